package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/money"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service aggregates class selections into payable orders.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// CreateInput carries one checkout. Terms are the student's scholarship
// terms resolved by the caller at call time; the aggregator never looks
// them up again.
type CreateInput struct {
	StudentID uuid.UUID
	ClassIDs  []uuid.UUID
	Terms     requests.Terms
	Currency  enums.Currency
}

type service struct {
	tx          txRunner
	repo        Repository
	requestRepo requests.Repository
	fanout      requests.Service
	directory   directory.Service
	now         func() time.Time
}

// ServiceParams configure the order aggregator.
type ServiceParams struct {
	TransactionRunner txRunner
	Repo              Repository
	RequestRepo       requests.Repository
	Fanout            requests.Service
	Directory         directory.Service
}

// NewService builds the order aggregator.
func NewService(params ServiceParams) (Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.RequestRepo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	if params.Fanout == nil {
		return nil, fmt.Errorf("fanout service required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("directory service required")
	}
	return &service{
		tx:          params.TransactionRunner,
		repo:        params.Repo,
		requestRepo: params.RequestRepo,
		fanout:      params.Fanout,
		directory:   params.Directory,
		now:         time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	if len(input.ClassIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one class must be selected")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.ClassIDs))
	for _, classID := range input.ClassIDs {
		if _, dup := seen[classID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate class in selection")
		}
		seen[classID] = struct{}{}
	}

	student, err := s.directory.GetStudent(ctx, input.StudentID)
	if err != nil {
		return nil, err
	}

	classes := make([]models.Class, 0, len(input.ClassIDs))
	var baseAmount int64
	for _, classID := range input.ClassIDs {
		class, err := s.directory.GetClass(ctx, classID)
		if err != nil {
			return nil, err
		}
		if class.BranchID != student.BranchID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "selected class belongs to another branch")
		}
		classes = append(classes, *class)
		baseAmount += class.Fee
	}

	discount, final, err := money.Apply(baseAmount, input.Terms.Percent)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	autoSettled := final == 0

	order := &models.Order{
		StudentID:          input.StudentID,
		BranchID:           student.BranchID,
		BaseAmount:         baseAmount,
		ScholarshipPercent: input.Terms.Percent,
		ScholarshipType:    input.Terms.Type,
		DiscountAmount:     discount,
		FinalAmount:        final,
		Status:             enums.OrderStatusPendingPayment,
	}
	if autoSettled {
		// Full scholarship (or zero base): no payment will ever exist, the
		// order and its requests are born settled.
		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
	}
	order.Items = make([]models.OrderItem, 0, len(classes))
	for _, class := range classes {
		order.Items = append(order.Items, models.OrderItem{
			ClassID:   class.ID,
			ClassName: class.Name,
			ClassFee:  class.Fee,
		})
	}

	// An order without its requests persisted is not created; both land in
	// one transaction.
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		fanned, err := s.fanout.FanOut(ctx, tx, requests.FanOutInput{
			OrderID:   created.ID,
			StudentID: input.StudentID,
			Classes:   classes,
			Terms:     input.Terms,
			Currency:  input.Currency,
			Paid:      autoSettled,
			PaidAt:    now,
		})
		if err != nil {
			return err
		}
		created.Requests = make([]models.PaymentRequest, 0, len(fanned))
		for _, request := range fanned {
			created.Requests = append(created.Requests, *request)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		requestRepo := s.requestRepo.WithTx(tx)

		affected, err := repo.MarkCancelled(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if affected == 0 {
			current, err := repo.FindByID(ctx, orderID)
			if err != nil {
				return err
			}
			// A concurrently succeeding payment wins: the caller learns the
			// authoritative state instead of getting a silent cancel.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled").
				WithDetails(map[string]any{"status": current.Status.String()})
		}

		if _, err := requestRepo.CancelPendingByOrder(ctx, orderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order requests")
		}

		cancelled, err = repo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.repo.FindByID(ctx, orderID)
}
