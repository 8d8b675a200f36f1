package settlement

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/gateway"
	"github.com/sekolahku/settlement-backend/internal/orders"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/pkg/db/models"
	dbtypes "github.com/sekolahku/settlement-backend/pkg/db/types"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the payment lifecycle. All status transitions funnel
// through Apply so the same rules hold no matter which channel, worker
// or retry produced the event.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Apply(ctx context.Context, event gateway.Event) (*Outcome, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// InitiateInput starts one payment attempt over a set of requests.
type InitiateInput struct {
	StudentID  uuid.UUID
	RequestIDs []uuid.UUID
	Method     enums.PaymentMethod
}

// InitiateResult carries the created payment and, for redirect channels,
// the hosted checkout URL the client must follow.
type InitiateResult struct {
	Payment     *models.Payment
	RedirectURL string
}

// Outcome reports what a processed event did. Duplicate means the payment
// was already terminal and the stored outcome is being replayed.
type Outcome struct {
	PaymentID    uuid.UUID
	Status       enums.PaymentStatus
	Duplicate    bool
	PaidRequests int64
	PaidOrders   []uuid.UUID
}

type service struct {
	tx          txRunner
	repo        Repository
	requestRepo requests.Repository
	orderRepo   orders.Repository
	directory   directory.Service
	channels    *gateway.Registry
	log         *logger.Logger
	paymentTTL  time.Duration
	now         func() time.Time
}

// ServiceParams configure the settlement service.
type ServiceParams struct {
	TransactionRunner txRunner
	Repo              Repository
	RequestRepo       requests.Repository
	OrderRepo         orders.Repository
	Directory         directory.Service
	Channels          *gateway.Registry
	Logger            *logger.Logger
	PaymentTTL        time.Duration
}

// NewService builds the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repository is required")
	}
	if params.RequestRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "request repository is required")
	}
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository is required")
	}
	if params.Directory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "directory service is required")
	}
	if params.Channels == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "channel registry is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	ttl := params.PaymentTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{
		tx:          params.TransactionRunner,
		repo:        params.Repo,
		requestRepo: params.RequestRepo,
		orderRepo:   params.OrderRepo,
		directory:   params.Directory,
		channels:    params.Channels,
		log:         params.Logger,
		paymentTTL:  ttl,
		now:         time.Now,
	}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id is required")
	}
	if len(input.RequestIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one payment request is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.RequestIDs))
	for _, id := range input.RequestIDs {
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate payment request in selection").
				WithDetails(map[string]any{"requestId": id})
		}
		seen[id] = struct{}{}
	}

	channel, err := s.channels.Resolve(input.Method)
	if err != nil {
		return nil, err
	}

	found, err := s.requestRepo.FindByIDs(ctx, input.RequestIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment requests")
	}
	if len(found) != len(input.RequestIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more payment requests not found")
	}

	var total int64
	for _, request := range found {
		if request.StudentID != input.StudentID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment request belongs to another student").
				WithDetails(map[string]any{"requestId": request.ID})
		}
		if request.Status != enums.RequestStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment request is not payable").
				WithDetails(map[string]any{
					"requestId": request.ID,
					"status":    request.Status.String(),
				})
		}
		total += request.FinalAmount
	}

	payment := &models.Payment{
		ID:         uuid.New(),
		RequestIDs: dbtypes.UUIDArray(input.RequestIDs),
		StudentID:  input.StudentID,
		Method:     input.Method,
		Amount:     total,
		Status:     enums.PaymentStatusCreated,
	}
	s.snapshotReportFields(ctx, payment, found)

	initiated, err := channel.Initiate(ctx, payment)
	if err != nil {
		return nil, err
	}
	payment.Status = initiated.InitialStatus

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, txErr := s.repo.WithTx(tx).Create(ctx, payment)
		return txErr
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
	}

	return &InitiateResult{Payment: payment, RedirectURL: initiated.RedirectURL}, nil
}

// snapshotReportFields stamps branch and subject onto the payment. Lookup
// failures are logged and left nil; the reconciliation pass fills them in
// later. A payment never fails because reporting data was unavailable.
func (s *service) snapshotReportFields(ctx context.Context, payment *models.Payment, linked []models.PaymentRequest) {
	student, err := s.directory.GetStudent(ctx, payment.StudentID)
	if err != nil {
		s.log.Warn(s.log.WithField(ctx, "student_id", payment.StudentID.String()),
			"branch snapshot skipped, student lookup failed")
	} else {
		payment.BranchID = &student.BranchID
		branch, branchErr := s.directory.GetBranch(ctx, student.BranchID)
		if branchErr != nil {
			s.log.Warn(s.log.WithField(ctx, "branch_id", student.BranchID.String()),
				"branch name snapshot skipped, branch lookup failed")
		} else {
			payment.BranchName = &branch.Name
		}
	}

	if subject := JoinSubjects(linked); subject != "" {
		payment.SubjectName = &subject
	}
}

// JoinSubjects builds the payment subject label from the linked requests'
// class subject snapshots, deduped and sorted for a stable label.
func JoinSubjects(linked []models.PaymentRequest) string {
	subjects := make([]string, 0, len(linked))
	seen := make(map[string]struct{}, len(linked))
	for _, request := range linked {
		if request.ClassSubject == nil || *request.ClassSubject == "" {
			continue
		}
		if _, dup := seen[*request.ClassSubject]; dup {
			continue
		}
		seen[*request.ClassSubject] = struct{}{}
		subjects = append(subjects, *request.ClassSubject)
	}
	sort.Strings(subjects)
	return strings.Join(subjects, ", ")
}

func (s *service) Apply(ctx context.Context, event gateway.Event) (*Outcome, error) {
	if event.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if !event.Outcome.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event outcome must be terminal").
			WithDetails(map[string]any{"outcome": event.Outcome.String()})
	}

	outcome := &Outcome{PaymentID: event.PaymentID, Status: event.Outcome}
	appliedAt := s.now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		requestRepo := s.requestRepo.WithTx(tx)
		orderRepo := s.orderRepo.WithTx(tx)

		var externalRef *string
		if event.ExternalRef != "" {
			externalRef = &event.ExternalRef
		}
		var reason *string
		if event.Outcome == enums.PaymentStatusFailed {
			failed := event.Reason
			if failed == "" {
				failed = "gateway reported failure"
			}
			reason = &failed
		}

		affected, txErr := repo.Transition(ctx, event.PaymentID, event.Outcome, externalRef, reason, appliedAt)
		if txErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, txErr, "transition payment")
		}
		if affected == 0 {
			// Either the payment does not exist or a concurrent event
			// already settled it. Reload and replay the stored outcome.
			stored, loadErr := repo.FindByID(ctx, event.PaymentID)
			if loadErr != nil {
				return loadErr
			}
			outcome.Status = stored.Status
			outcome.Duplicate = true
			return nil
		}

		if event.Outcome != enums.PaymentStatusSuccess {
			// Failed and cancelled payments release their requests by
			// doing nothing; the requests never left pending.
			return nil
		}

		stored, loadErr := repo.FindByID(ctx, event.PaymentID)
		if loadErr != nil {
			return loadErr
		}
		requestIDs := []uuid.UUID(stored.RequestIDs)

		paid, markErr := requestRepo.MarkPaid(ctx, requestIDs, stored.ID, appliedAt)
		if markErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, markErr, "mark requests paid")
		}
		outcome.PaidRequests = paid

		linked, findErr := requestRepo.FindByIDs(ctx, requestIDs)
		if findErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load settled requests")
		}
		for _, orderID := range distinctOrderIDs(linked) {
			unpaid, countErr := requestRepo.CountUnpaidByOrder(ctx, orderID)
			if countErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, countErr, "count unpaid requests")
			}
			if unpaid > 0 {
				continue
			}
			if _, orderErr := orderRepo.MarkPaid(ctx, orderID, appliedAt); orderErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, orderErr, "mark order paid")
			}
			outcome.PaidOrders = append(outcome.PaidOrders, orderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Duplicate {
		s.log.Info(s.log.WithFields(ctx, map[string]any{
			"payment_id":    event.PaymentID.String(),
			"stored_status": outcome.Status.String(),
		}), "duplicate payment event, replaying stored outcome")
	}
	return outcome, nil
}

func distinctOrderIDs(linked []models.PaymentRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(linked))
	seen := make(map[uuid.UUID]struct{}, len(linked))
	for _, request := range linked {
		if request.OrderID == nil {
			continue
		}
		if _, dup := seen[*request.OrderID]; dup {
			continue
		}
		seen[*request.OrderID] = struct{}{}
		ids = append(ids, *request.OrderID)
	}
	return ids
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return s.repo.FindByID(ctx, paymentID)
}

// ExpireStale fails payments that sat non-terminal past the TTL. Each one
// goes through Apply so a callback racing this sweep loses or wins the same
// conditional update; it can never double-settle.
func (s *service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.paymentTTL)
	stale, err := s.repo.FindStale(ctx, cutoff, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale payments")
	}

	expired := 0
	for _, payment := range stale {
		outcome, applyErr := s.Apply(ctx, gateway.Event{
			PaymentID: payment.ID,
			Outcome:   enums.PaymentStatusFailed,
			Reason:    "payment expired",
		})
		if applyErr != nil {
			s.log.Error(s.log.WithPaymentID(ctx, payment.ID.String()),
				"expire stale payment", applyErr)
			continue
		}
		if !outcome.Duplicate {
			expired++
		}
	}
	return expired, nil
}
