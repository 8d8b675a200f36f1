package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/enums"
)

// Order is one checkout transaction for one student. Amounts are currency
// minor units; BranchID and the item class names are creation-time snapshots.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StudentID          uuid.UUID             `gorm:"column:student_id;type:uuid;not null"`
	BranchID           uuid.UUID             `gorm:"column:branch_id;type:uuid;not null"`
	BaseAmount         int64                 `gorm:"column:base_amount;not null"`
	ScholarshipPercent int                   `gorm:"column:scholarship_percent;not null;default:0"`
	ScholarshipType    enums.ScholarshipType `gorm:"column:scholarship_type;type:text;not null;default:'none'"`
	DiscountAmount     int64                 `gorm:"column:discount_amount;not null;default:0"`
	FinalAmount        int64                 `gorm:"column:final_amount;not null"`
	Status             enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	Items              []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Requests           []PaymentRequest      `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt             *time.Time            `gorm:"column:paid_at"`
}

// RequestIDs returns the ids of the payment requests owned by the order.
func (o *Order) RequestIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Requests))
	for _, request := range o.Requests {
		ids = append(ids, request.ID)
	}
	return ids
}

// OrderItem is one selected class inside an order. ClassName and ClassFee
// are snapshots taken when the order was built.
type OrderItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ClassID   uuid.UUID `gorm:"column:class_id;type:uuid;not null"`
	ClassName string    `gorm:"column:class_name;not null"`
	ClassFee  int64     `gorm:"column:class_fee;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
