package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/enums"
)

// Student carries the directory fields settlement reads: home branch and
// current scholarship terms.
type Student struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FullName           string                `gorm:"column:full_name;not null"`
	BranchID           uuid.UUID             `gorm:"column:branch_id;type:uuid;not null"`
	ScholarshipPercent int                   `gorm:"column:scholarship_percent;not null;default:0"`
	ScholarshipType    enums.ScholarshipType `gorm:"column:scholarship_type;type:text;not null;default:'none'"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
