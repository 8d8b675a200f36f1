package requests

import (
	"time"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
)

// RequestView is the read shape of a payment request. Status carries the
// derived overdue state, which is never stored.
type RequestView struct {
	ID               uuid.UUID           `json:"id"`
	OrderID          *uuid.UUID          `json:"orderId,omitempty"`
	CampaignID       *uuid.UUID          `json:"campaignId,omitempty"`
	ClassID          uuid.UUID           `json:"classId"`
	StudentID        uuid.UUID           `json:"studentId"`
	Title            string              `json:"title"`
	ClassSubject     *string             `json:"classSubject,omitempty"`
	BaseAmount       int64               `json:"baseAmount"`
	DiscountAmount   int64               `json:"discountAmount"`
	FinalAmount      int64               `json:"finalAmount"`
	Currency         enums.Currency      `json:"currency"`
	DueDate          *time.Time          `json:"dueDate,omitempty"`
	Status           enums.RequestStatus `json:"status"`
	SettledPaymentID *uuid.UUID          `json:"settledPaymentId,omitempty"`
	PaidAt           *time.Time          `json:"paidAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// NewRequestView projects a payment request for reads as of now.
func NewRequestView(request models.PaymentRequest, now time.Time) RequestView {
	return RequestView{
		ID:               request.ID,
		OrderID:          request.OrderID,
		CampaignID:       request.ClassPaymentRequestID,
		ClassID:          request.ClassID,
		StudentID:        request.StudentID,
		Title:            request.Title,
		ClassSubject:     request.ClassSubject,
		BaseAmount:       request.BaseAmount,
		DiscountAmount:   request.DiscountAmount,
		FinalAmount:      request.FinalAmount,
		Currency:         request.Currency,
		DueDate:          request.DueDate,
		Status:           request.EffectiveStatus(now),
		SettledPaymentID: request.SettledPaymentID,
		PaidAt:           request.PaidAt,
		CreatedAt:        request.CreatedAt,
	}
}

// CampaignView is the read shape of a class campaign with its billing lines.
type CampaignView struct {
	ID        uuid.UUID     `json:"id"`
	ClassID   uuid.UUID     `json:"classId"`
	Title     string        `json:"title"`
	DueDate   *time.Time    `json:"dueDate,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Requests  []RequestView `json:"requests"`
}
