package requests

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/money"
	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

// Terms are a student's scholarship terms resolved once at call time and
// never looked up again during settlement.
type Terms struct {
	Percent int
	Type    enums.ScholarshipType
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service fans an order or a campaign out into per-student billing lines.
type Service interface {
	// FanOut creates one pending (or paid, mirroring the order) request per
	// class inside the caller's transaction and returns them.
	FanOut(ctx context.Context, tx *gorm.DB, input FanOutInput) ([]*models.PaymentRequest, error)
	// CreateClassCampaign creates an administrative class-wide request and
	// its per-student billing lines outside any checkout.
	CreateClassCampaign(ctx context.Context, input CampaignInput) (*CampaignResult, error)
	// ListStudentRequests returns the student's billing lines, newest first,
	// with overdue derived as of the call.
	ListStudentRequests(ctx context.Context, studentID uuid.UUID) ([]RequestView, error)
	// GetCampaign returns a campaign and its billing lines.
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (*CampaignView, error)
}

// FanOutInput describes a checkout fanout.
type FanOutInput struct {
	OrderID   uuid.UUID
	StudentID uuid.UUID
	Classes   []models.Class
	Terms     Terms
	Currency  enums.Currency
	// Paid mirrors an auto-settled order: the requests are created already
	// paid at PaidAt.
	Paid   bool
	PaidAt time.Time
}

// CampaignInput describes an administrative class-wide billing campaign.
type CampaignInput struct {
	ClassID    uuid.UUID
	Title      string
	StudentIDs []uuid.UUID
	DueDate    *time.Time
	Currency   enums.Currency
}

// CampaignResult reports what a campaign produced.
type CampaignResult struct {
	Campaign *models.ClassPaymentRequest
	Requests []*models.PaymentRequest
}

type service struct {
	tx        txRunner
	repo      Repository
	directory directory.Service
	now       func() time.Time
}

// NewService builds the fanout service.
func NewService(tx txRunner, repo Repository, dir directory.Service) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	if dir == nil {
		return nil, fmt.Errorf("directory service required")
	}
	return &service{tx: tx, repo: repo, directory: dir, now: time.Now}, nil
}

func (s *service) FanOut(ctx context.Context, tx *gorm.DB, input FanOutInput) ([]*models.PaymentRequest, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(input.Classes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one class required")
	}

	built := make([]*models.PaymentRequest, 0, len(input.Classes))
	for _, class := range input.Classes {
		request, err := buildRequest(class, input.StudentID, input.Terms, input.Currency)
		if err != nil {
			return nil, err
		}
		orderID := input.OrderID
		request.OrderID = &orderID
		if input.Paid {
			paidAt := input.PaidAt
			request.Status = enums.RequestStatusPaid
			request.PaidAt = &paidAt
		}
		built = append(built, request)
	}

	if err := s.repo.WithTx(tx).CreateRequests(ctx, built); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment requests")
	}
	return built, nil
}

func (s *service) CreateClassCampaign(ctx context.Context, input CampaignInput) (*CampaignResult, error) {
	if input.ClassID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "class id required")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign title required")
	}
	if len(input.StudentIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one student required")
	}

	class, err := s.directory.GetClass(ctx, input.ClassID)
	if err != nil {
		return nil, err
	}

	// Scholarship terms are per student, resolved once up front.
	type fanTarget struct {
		studentID uuid.UUID
		terms     Terms
	}
	targets := make([]fanTarget, 0, len(input.StudentIDs))
	seen := make(map[uuid.UUID]struct{}, len(input.StudentIDs))
	for _, studentID := range input.StudentIDs {
		if _, dup := seen[studentID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate student in campaign")
		}
		seen[studentID] = struct{}{}
		student, err := s.directory.GetStudent(ctx, studentID)
		if err != nil {
			return nil, err
		}
		if student.BranchID != class.BranchID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "student does not belong to the class branch")
		}
		targets = append(targets, fanTarget{
			studentID: studentID,
			terms:     Terms{Percent: student.ScholarshipPercent, Type: student.ScholarshipType},
		})
	}

	result := &CampaignResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		campaign := &models.ClassPaymentRequest{
			ClassID: input.ClassID,
			Title:   input.Title,
			DueDate: input.DueDate,
		}
		if err := repo.CreateCampaign(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist campaign")
		}

		built := make([]*models.PaymentRequest, 0, len(targets))
		for _, target := range targets {
			request, err := buildRequest(*class, target.studentID, target.terms, input.Currency)
			if err != nil {
				return err
			}
			campaignID := campaign.ID
			request.ClassPaymentRequestID = &campaignID
			request.Title = input.Title
			request.DueDate = input.DueDate
			built = append(built, request)
		}
		if err := repo.CreateRequests(ctx, built); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist campaign requests")
		}

		result.Campaign = campaign
		result.Requests = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

const listLimit = 200

func (s *service) ListStudentRequests(ctx context.Context, studentID uuid.UUID) ([]RequestView, error) {
	if studentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	found, err := s.repo.FindByStudent(ctx, studentID, listLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list student requests")
	}
	now := s.now().UTC()
	views := make([]RequestView, 0, len(found))
	for _, request := range found {
		views = append(views, NewRequestView(request, now))
	}
	return views, nil
}

func (s *service) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*CampaignView, error) {
	if campaignID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id required")
	}
	campaign, err := s.repo.FindCampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	found, err := s.repo.FindByCampaign(ctx, campaignID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list campaign requests")
	}
	now := s.now().UTC()
	view := &CampaignView{
		ID:        campaign.ID,
		ClassID:   campaign.ClassID,
		Title:     campaign.Title,
		DueDate:   campaign.DueDate,
		CreatedAt: campaign.CreatedAt,
		Requests:  make([]RequestView, 0, len(found)),
	}
	for _, request := range found {
		view.Requests = append(view.Requests, NewRequestView(request, now))
	}
	return view, nil
}

func buildRequest(class models.Class, studentID uuid.UUID, terms Terms, currency enums.Currency) (*models.PaymentRequest, error) {
	discount, final, err := money.Apply(class.Fee, terms.Percent)
	if err != nil {
		return nil, err
	}
	subject := class.Subject
	request := &models.PaymentRequest{
		ClassID:            class.ID,
		StudentID:          studentID,
		Title:              fmt.Sprintf("%s tuition", class.Name),
		BaseAmount:         class.Fee,
		ScholarshipPercent: terms.Percent,
		DiscountAmount:     discount,
		FinalAmount:        final,
		Currency:           currency,
		Status:             enums.RequestStatusPending,
	}
	if subject != "" {
		request.ClassSubject = &subject
	}
	return request, nil
}
