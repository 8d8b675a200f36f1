package models

import (
	"time"

	"github.com/google/uuid"
)

// Class is a billable course offering. Fee is the current per-cycle tuition
// in currency minor units.
type Class struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BranchID  uuid.UUID `gorm:"column:branch_id;type:uuid;not null"`
	Name      string    `gorm:"column:name;not null"`
	Subject   string    `gorm:"column:subject;not null"`
	Fee       int64     `gorm:"column:fee;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
