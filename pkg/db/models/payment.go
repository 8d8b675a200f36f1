package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/sekolahku/settlement-backend/pkg/db/types"
	"github.com/sekolahku/settlement-backend/pkg/enums"
)

// Payment is one attempt to collect money against one or more payment
// requests. BranchID, BranchName and SubjectName are creation-time report
// snapshots; when a directory lookup fails at creation they stay empty and
// the reconciliation pass repairs them later.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequestIDs    dbtypes.UUIDArray   `gorm:"column:request_ids;type:uuid[];not null"`
	StudentID     uuid.UUID           `gorm:"column:student_id;type:uuid;not null"`
	BranchID      *uuid.UUID          `gorm:"column:branch_id;type:uuid"`
	BranchName    *string             `gorm:"column:branch_name"`
	SubjectName   *string             `gorm:"column:subject_name"`
	Method        enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Amount        int64               `gorm:"column:amount;not null"`
	ExternalRef   *string             `gorm:"column:external_ref"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'created'"`
	FailureReason *string             `gorm:"column:failure_reason"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt   *time.Time          `gorm:"column:completed_at"`
}
