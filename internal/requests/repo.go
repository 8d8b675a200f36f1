package requests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

// Repository persists payment requests and campaigns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequests(ctx context.Context, requests []*models.PaymentRequest) error
	CreateCampaign(ctx context.Context, campaign *models.ClassPaymentRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PaymentRequest, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRequest, error)
	FindByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.PaymentRequest, error)
	FindCampaignByID(ctx context.Context, id uuid.UUID) (*models.ClassPaymentRequest, error)
	FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.PaymentRequest, error)
	// MarkPaid flips the given requests from pending to paid and stamps the
	// settling payment. Requests already paid or cancelled are left alone;
	// the affected row count tells the caller how many actually flipped.
	MarkPaid(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID, paidAt time.Time) (int64, error)
	CancelPendingByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	CountUnpaidByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	FindMissingSubject(ctx context.Context, limit int) ([]models.PaymentRequest, error)
	UpdateSubject(ctx context.Context, id uuid.UUID, subject string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment request repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRequests(ctx context.Context, requests []*models.PaymentRequest) error {
	if len(requests) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&requests).Error
}

func (r *repository) CreateCampaign(ctx context.Context, campaign *models.ClassPaymentRequest) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment request not found")
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PaymentRequest, error) {
	var found []models.PaymentRequest
	if len(ids) == 0 {
		return found, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRequest, error) {
	var found []models.PaymentRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) FindByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.PaymentRequest, error) {
	var found []models.PaymentRequest
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at DESC").Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) FindCampaignByID(ctx context.Context, id uuid.UUID) (*models.ClassPaymentRequest, error) {
	var campaign models.ClassPaymentRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found")
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.PaymentRequest, error) {
	var found []models.PaymentRequest
	err := r.db.WithContext(ctx).
		Where("class_payment_request_id = ?", campaignID).
		Order("created_at ASC").
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) MarkPaid(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID, paidAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("id IN ? AND status = ? AND settled_payment_id IS NULL", ids, enums.RequestStatusPending).
		Updates(map[string]any{
			"status":             enums.RequestStatusPaid,
			"settled_payment_id": paymentID,
			"paid_at":            paidAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) CancelPendingByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.RequestStatusPending).
		Update("status", enums.RequestStatusCancelled)
	return result.RowsAffected, result.Error
}

func (r *repository) CountUnpaidByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("order_id = ? AND status <> ?", orderID, enums.RequestStatusPaid).
		Count(&count).Error
	return count, err
}

func (r *repository) FindMissingSubject(ctx context.Context, limit int) ([]models.PaymentRequest, error) {
	var found []models.PaymentRequest
	query := r.db.WithContext(ctx).Where("class_subject IS NULL")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at ASC").Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) UpdateSubject(ctx context.Context, id uuid.UUID, subject string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("id = ?", id).
		Update("class_subject", subject).Error
}
