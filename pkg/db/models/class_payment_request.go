package models

import (
	"time"

	"github.com/google/uuid"
)

// ClassPaymentRequest is an administrative billing campaign: one class-wide
// request fanned out into per-student PaymentRequests outside any checkout.
type ClassPaymentRequest struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClassID   uuid.UUID  `gorm:"column:class_id;type:uuid;not null"`
	Title     string     `gorm:"column:title;not null"`
	DueDate   *time.Time `gorm:"column:due_date"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
