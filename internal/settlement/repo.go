package settlement

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

// Repository persists payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	// Transition flips a payment from a non-terminal status into the given
	// terminal one. The affected row count is zero when the payment was
	// already terminal; that zero is how duplicate callbacks are detected.
	Transition(ctx context.Context, id uuid.UUID, to enums.PaymentStatus, externalRef *string, reason *string, completedAt time.Time) (int64, error)
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	FindMissingSnapshots(ctx context.Context, limit int) ([]models.Payment, error)
	UpdateSnapshots(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, to enums.PaymentStatus, externalRef *string, reason *string, completedAt time.Time) (int64, error) {
	updates := map[string]any{
		"status":       to,
		"completed_at": completedAt,
	}
	if externalRef != nil {
		updates["external_ref"] = *externalRef
	}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, []enums.PaymentStatus{enums.PaymentStatusCreated, enums.PaymentStatusPending}).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var found []models.Payment
	query := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []enums.PaymentStatus{enums.PaymentStatusCreated, enums.PaymentStatusPending}, cutoff)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at ASC").Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) FindMissingSnapshots(ctx context.Context, limit int) ([]models.Payment, error) {
	var found []models.Payment
	query := r.db.WithContext(ctx).
		Where("branch_id IS NULL OR branch_name IS NULL OR subject_name IS NULL")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at ASC").Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) UpdateSnapshots(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
