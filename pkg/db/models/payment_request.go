package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/enums"
)

// PaymentRequest is one billable line for one student for one class cycle.
// It is owned by an Order when created through checkout, or by a
// ClassPaymentRequest when created by an administrative campaign.
type PaymentRequest struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               *uuid.UUID          `gorm:"column:order_id;type:uuid"`
	ClassPaymentRequestID *uuid.UUID          `gorm:"column:class_payment_request_id;type:uuid"`
	ClassID               uuid.UUID           `gorm:"column:class_id;type:uuid;not null"`
	StudentID             uuid.UUID           `gorm:"column:student_id;type:uuid;not null"`
	Title                 string              `gorm:"column:title;not null"`
	ClassSubject          *string             `gorm:"column:class_subject"`
	BaseAmount            int64               `gorm:"column:base_amount;not null"`
	ScholarshipPercent    int                 `gorm:"column:scholarship_percent;not null;default:0"`
	DiscountAmount        int64               `gorm:"column:discount_amount;not null;default:0"`
	FinalAmount           int64               `gorm:"column:final_amount;not null"`
	Currency              enums.Currency      `gorm:"column:currency;type:text;not null;default:'IDR'"`
	DueDate               *time.Time          `gorm:"column:due_date"`
	Status                enums.RequestStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	SettledPaymentID      *uuid.UUID          `gorm:"column:settled_payment_id;type:uuid"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectiveStatus derives overdue at read time; overdue is never stored.
func (r *PaymentRequest) EffectiveStatus(now time.Time) enums.RequestStatus {
	if r.Status == enums.RequestStatusPending && r.DueDate != nil && r.DueDate.Before(now) {
		return enums.RequestStatusOverdue
	}
	return r.Status
}
