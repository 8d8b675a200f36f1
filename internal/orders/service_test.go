package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOrderRepo struct {
	orders map[uuid.UUID]*models.Order
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	clone := *order
	s.orders[order.ID] = &clone
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	clone := *order
	return &clone, nil
}

func (s *stubOrderRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (int64, error) {
	panic("not implemented")
}

func (s *stubOrderRepo) MarkCancelled(ctx context.Context, id uuid.UUID) (int64, error) {
	order, ok := s.orders[id]
	if !ok || order.Status != enums.OrderStatusPendingPayment {
		return 0, nil
	}
	order.Status = enums.OrderStatusCancelled
	return 1, nil
}

type stubRequestRepo struct {
	cancelled []uuid.UUID
}

func (s *stubRequestRepo) WithTx(tx *gorm.DB) requests.Repository { return s }

func (s *stubRequestRepo) CreateRequests(ctx context.Context, reqs []*models.PaymentRequest) error {
	panic("not implemented")
}

func (s *stubRequestRepo) CreateCampaign(ctx context.Context, campaign *models.ClassPaymentRequest) error {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) MarkPaid(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID, paidAt time.Time) (int64, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) CancelPendingByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	s.cancelled = append(s.cancelled, orderID)
	return 1, nil
}

func (s *stubRequestRepo) CountUnpaidByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) FindMissingSubject(ctx context.Context, limit int) ([]models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) UpdateSubject(ctx context.Context, id uuid.UUID, subject string) error {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByStudent(ctx context.Context, studentID uuid.UUID, limit int) ([]models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) FindCampaignByID(ctx context.Context, id uuid.UUID) (*models.ClassPaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByCampaign(ctx context.Context, campaignID uuid.UUID) ([]models.PaymentRequest, error) {
	panic("not implemented")
}

type stubFanout struct {
	lastInput *requests.FanOutInput
}

func (s *stubFanout) FanOut(ctx context.Context, tx *gorm.DB, input requests.FanOutInput) ([]*models.PaymentRequest, error) {
	s.lastInput = &input
	built := make([]*models.PaymentRequest, 0, len(input.Classes))
	for _, class := range input.Classes {
		orderID := input.OrderID
		request := &models.PaymentRequest{
			ID:        uuid.New(),
			OrderID:   &orderID,
			ClassID:   class.ID,
			StudentID: input.StudentID,
			Status:    enums.RequestStatusPending,
		}
		if input.Paid {
			paidAt := input.PaidAt
			request.Status = enums.RequestStatusPaid
			request.PaidAt = &paidAt
		}
		built = append(built, request)
	}
	return built, nil
}

func (s *stubFanout) CreateClassCampaign(ctx context.Context, input requests.CampaignInput) (*requests.CampaignResult, error) {
	panic("not implemented")
}

func (s *stubFanout) ListStudentRequests(ctx context.Context, studentID uuid.UUID) ([]requests.RequestView, error) {
	panic("not implemented")
}

func (s *stubFanout) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*requests.CampaignView, error) {
	panic("not implemented")
}

type stubDirectory struct {
	students map[uuid.UUID]*models.Student
	classes  map[uuid.UUID]*models.Class
}

func (s *stubDirectory) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "student not found")
	}
	return student, nil
}

func (s *stubDirectory) GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	class, ok := s.classes[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "class not found")
	}
	return class, nil
}

func (s *stubDirectory) GetBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	panic("not implemented")
}

type fixture struct {
	service     Service
	orderRepo   *stubOrderRepo
	requestRepo *stubRequestRepo
	fanout      *stubFanout
	directory   *stubDirectory

	branchID uuid.UUID
	student  *models.Student
	math     *models.Class
	physics  *models.Class
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	branchID := uuid.New()
	student := &models.Student{
		ID:                 uuid.New(),
		FullName:           "Sari Wijaya",
		BranchID:           branchID,
		ScholarshipPercent: 25,
		ScholarshipType:    enums.ScholarshipTypeAcademic,
	}
	math := &models.Class{ID: uuid.New(), BranchID: branchID, Name: "Math 10A", Subject: "Math", Fee: 1_000_000}
	physics := &models.Class{ID: uuid.New(), BranchID: branchID, Name: "Physics 10A", Subject: "Physics", Fee: 500_000}

	dir := &stubDirectory{
		students: map[uuid.UUID]*models.Student{student.ID: student},
		classes:  map[uuid.UUID]*models.Class{math.ID: math, physics.ID: physics},
	}
	orderRepo := newStubOrderRepo()
	requestRepo := &stubRequestRepo{}
	fanout := &stubFanout{}

	svc, err := NewService(ServiceParams{
		TransactionRunner: &stubTxRunner{},
		Repo:              orderRepo,
		RequestRepo:       requestRepo,
		Fanout:            fanout,
		Directory:         dir,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{
		service:     svc,
		orderRepo:   orderRepo,
		requestRepo: requestRepo,
		fanout:      fanout,
		directory:   dir,
		branchID:    branchID,
		student:     student,
		math:        math,
		physics:     physics,
	}
}

func terms(f *fixture) requests.Terms {
	return requests.Terms{Percent: f.student.ScholarshipPercent, Type: f.student.ScholarshipType}
}

func TestCreateOrderAppliesScholarship(t *testing.T) {
	f := newFixture(t)

	order, err := f.service.Create(context.Background(), CreateInput{
		StudentID: f.student.ID,
		ClassIDs:  []uuid.UUID{f.math.ID, f.physics.ID},
		Terms:     terms(f),
		Currency:  enums.CurrencyIDR,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.BaseAmount != 1_500_000 {
		t.Fatalf("base amount = %d, want 1500000", order.BaseAmount)
	}
	if order.DiscountAmount != 375_000 {
		t.Fatalf("discount = %d, want 375000", order.DiscountAmount)
	}
	if order.FinalAmount != 1_125_000 {
		t.Fatalf("final = %d, want 1125000", order.FinalAmount)
	}
	if order.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("status = %s, want pending_payment", order.Status)
	}
	if order.PaidAt != nil {
		t.Fatalf("paid_at should be nil on a pending order")
	}
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
	if order.Items[0].ClassName != "Math 10A" || order.Items[0].ClassFee != 1_000_000 {
		t.Fatalf("first item snapshot wrong: %+v", order.Items[0])
	}
	if len(order.Requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(order.Requests))
	}
	if f.fanout.lastInput == nil || f.fanout.lastInput.Paid {
		t.Fatalf("fanout should have been called without the paid mirror")
	}
}

func TestCreateFullScholarshipAutoSettles(t *testing.T) {
	f := newFixture(t)
	f.student.ScholarshipPercent = 100

	order, err := f.service.Create(context.Background(), CreateInput{
		StudentID: f.student.ID,
		ClassIDs:  []uuid.UUID{f.math.ID},
		Terms:     terms(f),
		Currency:  enums.CurrencyIDR,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.FinalAmount != 0 {
		t.Fatalf("final = %d, want 0", order.FinalAmount)
	}
	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("status = %s, want paid", order.Status)
	}
	if order.PaidAt == nil {
		t.Fatalf("paid_at should be stamped on an auto-settled order")
	}
	if f.fanout.lastInput == nil || !f.fanout.lastInput.Paid {
		t.Fatalf("fanout should mirror the auto-settled order")
	}
	for _, request := range order.Requests {
		if request.Status != enums.RequestStatusPaid {
			t.Fatalf("request status = %s, want paid", request.Status)
		}
	}
}

func TestCreateRejectsCrossBranchClass(t *testing.T) {
	f := newFixture(t)
	foreign := &models.Class{ID: uuid.New(), BranchID: uuid.New(), Name: "Chem 11B", Subject: "Chemistry", Fee: 750_000}
	f.directory.classes[foreign.ID] = foreign

	_, err := f.service.Create(context.Background(), CreateInput{
		StudentID: f.student.ID,
		ClassIDs:  []uuid.UUID{f.math.ID, foreign.ID},
		Terms:     terms(f),
		Currency:  enums.CurrencyIDR,
	})
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsDuplicateClass(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateInput{
		StudentID: f.student.ID,
		ClassIDs:  []uuid.UUID{f.math.ID, f.math.ID},
		Terms:     terms(f),
		Currency:  enums.CurrencyIDR,
	})
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t)
	order := &models.Order{
		ID:        uuid.New(),
		StudentID: f.student.ID,
		BranchID:  f.branchID,
		Status:    enums.OrderStatusPendingPayment,
	}
	f.orderRepo.orders[order.ID] = order

	cancelled, err := f.service.Cancel(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if len(f.requestRepo.cancelled) != 1 || f.requestRepo.cancelled[0] != order.ID {
		t.Fatalf("pending requests were not cancelled with the order")
	}
}

func TestCancelSettledOrderConflicts(t *testing.T) {
	f := newFixture(t)
	paidAt := time.Now().UTC()
	order := &models.Order{
		ID:        uuid.New(),
		StudentID: f.student.ID,
		BranchID:  f.branchID,
		Status:    enums.OrderStatusPaid,
		PaidAt:    &paidAt,
	}
	f.orderRepo.orders[order.ID] = order

	_, err := f.service.Cancel(context.Background(), order.ID)
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(f.requestRepo.cancelled) != 0 {
		t.Fatalf("requests must stay untouched when the cancel loses")
	}
}

func TestCancelUnknownOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Cancel(context.Background(), uuid.New())
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
