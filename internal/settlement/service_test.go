package settlement

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sekolahku/settlement-backend/internal/gateway"
	"github.com/sekolahku/settlement-backend/internal/orders"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/pkg/db/models"
	dbtypes "github.com/sekolahku/settlement-backend/pkg/db/types"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// stubPaymentRepo keeps payments in memory behind a mutex so the
// conditional transition behaves like the real single-row update.
type stubPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
}

func newStubPaymentRepo() *stubPaymentRepo {
	return &stubPaymentRepo{payments: make(map[uuid.UUID]*models.Payment)}
}

func (s *stubPaymentRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubPaymentRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now().UTC()
	clone := *payment
	s.payments[payment.ID] = &clone
	return payment, nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	clone := *payment
	return &clone, nil
}

func (s *stubPaymentRepo) Transition(ctx context.Context, id uuid.UUID, to enums.PaymentStatus, externalRef *string, reason *string, completedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return 0, nil
	}
	if payment.Status.IsTerminal() {
		return 0, nil
	}
	payment.Status = to
	payment.CompletedAt = &completedAt
	if externalRef != nil {
		payment.ExternalRef = externalRef
	}
	if reason != nil {
		payment.FailureReason = reason
	}
	return 1, nil
}

func (s *stubPaymentRepo) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []models.Payment
	for _, payment := range s.payments {
		if !payment.Status.IsTerminal() && payment.CreatedAt.Before(cutoff) {
			stale = append(stale, *payment)
		}
	}
	return stale, nil
}

func (s *stubPaymentRepo) FindMissingSnapshots(ctx context.Context, limit int) ([]models.Payment, error) {
	panic("not implemented")
}

func (s *stubPaymentRepo) UpdateSnapshots(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	panic("not implemented")
}

type stubRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.PaymentRequest
}

func newStubRequestRepo(seed ...*models.PaymentRequest) *stubRequestRepo {
	repo := &stubRequestRepo{requests: make(map[uuid.UUID]*models.PaymentRequest)}
	for _, request := range seed {
		repo.requests[request.ID] = request
	}
	return repo
}

func (s *stubRequestRepo) WithTx(tx *gorm.DB) requests.Repository {
	return s
}

func (s *stubRequestRepo) CreateRequests(ctx context.Context, created []*models.PaymentRequest) error {
	panic("not implemented")
}

func (s *stubRequestRepo) CreateCampaign(ctx context.Context, campaign *models.ClassPaymentRequest) error {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make([]models.PaymentRequest, 0, len(ids))
	for _, id := range ids {
		if request, ok := s.requests[id]; ok {
			found = append(found, *request)
		}
	}
	return found, nil
}

func (s *stubRequestRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentRequest, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) MarkPaid(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID, paidAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, id := range ids {
		request, ok := s.requests[id]
		if !ok || request.Status != enums.RequestStatusPending || request.SettledPaymentID != nil {
			continue
		}
		request.Status = enums.RequestStatusPaid
		request.SettledPaymentID = &paymentID
		request.PaidAt = &paidAt
		affected++
	}
	return affected, nil
}

func (s *stubRequestRepo) CancelPendingByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	panic("not implemented")
}

func (s *stubRequestRepo) CountUnpaidByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unpaid int64
	for _, request := range s.requests {
		if request.OrderID != nil && *request.OrderID == orderID && request.Status == enums.RequestStatusPending {
			unpaid++
		}
	}
	return unpaid, nil
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

type stubOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newStubOrderRepo(seed ...*models.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
	for _, order := range seed {
		repo.orders[order.ID] = order
	}
	return repo
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository {
	return s
}

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	clone := *order
	return &clone, nil
}

func (s *stubOrderRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.Status != enums.OrderStatusPendingPayment {
		return 0, nil
	}
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &paidAt
	return 1, nil
}

func (s *stubOrderRepo) MarkCancelled(ctx context.Context, id uuid.UUID) (int64, error) {
	panic("not implemented")
}

type stubDirectory struct {
	student    *models.Student
	branch     *models.Branch
	studentErr error
	branchErr  error
}

func (s *stubDirectory) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	if s.studentErr != nil {
		return nil, s.studentErr
	}
	return s.student, nil
}

func (s *stubDirectory) GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	panic("not implemented")
}

func (s *stubDirectory) GetBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	if s.branchErr != nil {
		return nil, s.branchErr
	}
	return s.branch, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard})
}

type fixture struct {
	service     Service
	paymentRepo *stubPaymentRepo
	requestRepo *stubRequestRepo
	orderRepo   *stubOrderRepo
	directory   *stubDirectory
}

func newFixture(t *testing.T, requestRepo *stubRequestRepo, orderRepo *stubOrderRepo, dir *stubDirectory) *fixture {
	t.Helper()
	if dir == nil {
		branchID := uuid.New()
		dir = &stubDirectory{
			student: &models.Student{ID: uuid.New(), BranchID: branchID},
			branch:  &models.Branch{ID: branchID, Name: "North Campus"},
		}
	}
	redirect, err := gateway.NewRedirectChannel(gateway.RedirectConfig{
		CheckoutURL: "https://pay.example.test/checkout",
		MerchantID:  "merchant-1",
		SecretKey:   "secret",
	})
	if err != nil {
		t.Fatalf("NewRedirectChannel returned error: %v", err)
	}
	paymentRepo := newStubPaymentRepo()
	svc, err := NewService(ServiceParams{
		TransactionRunner: &stubTxRunner{},
		Repo:              paymentRepo,
		RequestRepo:       requestRepo,
		OrderRepo:         orderRepo,
		Directory:         dir,
		Channels:          gateway.NewRegistry(redirect, gateway.NewCashChannel()),
		Logger:            testLogger(),
		PaymentTTL:        24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return &fixture{
		service:     svc,
		paymentRepo: paymentRepo,
		requestRepo: requestRepo,
		orderRepo:   orderRepo,
		directory:   dir,
	}
}

func pendingRequest(studentID uuid.UUID, orderID *uuid.UUID, subject string, amount int64) *models.PaymentRequest {
	request := &models.PaymentRequest{
		ID:          uuid.New(),
		OrderID:     orderID,
		StudentID:   studentID,
		Title:       subject + " tuition",
		BaseAmount:  amount,
		FinalAmount: amount,
		Status:      enums.RequestStatusPending,
	}
	if subject != "" {
		request.ClassSubject = &subject
	}
	return request
}

func TestInitiateRedirectPayment(t *testing.T) {
	studentID := uuid.New()
	requestA := pendingRequest(studentID, nil, "Math", 800_000)
	requestB := pendingRequest(studentID, nil, "Physics", 500_000)
	f := newFixture(t, newStubRequestRepo(requestA, requestB), newStubOrderRepo(), nil)

	result, err := f.service.Initiate(context.Background(), InitiateInput{
		StudentID:  studentID,
		RequestIDs: []uuid.UUID{requestA.ID, requestB.ID},
		Method:     enums.PaymentMethodGateway,
	})
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if result.Payment.Amount != 1_300_000 {
		t.Fatalf("expected amount 1300000, got %d", result.Payment.Amount)
	}
	if result.Payment.Status != enums.PaymentStatusCreated {
		t.Fatalf("expected created status, got %s", result.Payment.Status)
	}
	if result.RedirectURL == "" {
		t.Fatal("expected a redirect url for the gateway channel")
	}
	if result.Payment.BranchName == nil || *result.Payment.BranchName != "North Campus" {
		t.Fatalf("expected branch name snapshot, got %v", result.Payment.BranchName)
	}
	if result.Payment.SubjectName == nil || *result.Payment.SubjectName != "Math, Physics" {
		t.Fatalf("expected joined subject snapshot, got %v", result.Payment.SubjectName)
	}
}

func TestInitiateCashStartsPending(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Chemistry", 250_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)

	result, err := f.service.Initiate(context.Background(), InitiateInput{
		StudentID:  studentID,
		RequestIDs: []uuid.UUID{request.ID},
		Method:     enums.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if result.Payment.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending status for cash, got %s", result.Payment.Status)
	}
	if result.RedirectURL != "" {
		t.Fatalf("expected no redirect url for cash, got %q", result.RedirectURL)
	}
}

func TestInitiateRejectsNonPendingRequest(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Math", 100_000)
	request.Status = enums.RequestStatusPaid
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		StudentID:  studentID,
		RequestIDs: []uuid.UUID{request.ID},
		Method:     enums.PaymentMethodCash,
	})
	if err == nil {
		t.Fatal("expected error for non-pending request")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestInitiateRejectsForeignRequest(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(uuid.New(), nil, "Math", 100_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)

	_, err := f.service.Initiate(context.Background(), InitiateInput{
		StudentID:  studentID,
		RequestIDs: []uuid.UUID{request.ID},
		Method:     enums.PaymentMethodCash,
	})
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestInitiateSurvivesDirectoryFailure(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Biology", 400_000)
	dir := &stubDirectory{studentErr: pkgerrors.New(pkgerrors.CodeDependency, "directory down")}
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), dir)

	result, err := f.service.Initiate(context.Background(), InitiateInput{
		StudentID:  studentID,
		RequestIDs: []uuid.UUID{request.ID},
		Method:     enums.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if result.Payment.BranchID != nil || result.Payment.BranchName != nil {
		t.Fatal("expected branch snapshot to stay empty when the directory fails")
	}
	if result.Payment.SubjectName == nil || *result.Payment.SubjectName != "Biology" {
		t.Fatalf("expected subject snapshot from requests, got %v", result.Payment.SubjectName)
	}
}

func seedPayment(f *fixture, t *testing.T, studentID uuid.UUID, requestIDs []uuid.UUID, amount int64) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:         uuid.New(),
		RequestIDs: dbtypes.UUIDArray(requestIDs),
		StudentID:  studentID,
		Method:     enums.PaymentMethodGateway,
		Amount:     amount,
		Status:     enums.PaymentStatusPending,
	}
	if _, err := f.paymentRepo.Create(context.Background(), payment); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

func TestApplySuccessSettlesRequestsAndOrder(t *testing.T) {
	studentID := uuid.New()
	orderID := uuid.New()
	requestA := pendingRequest(studentID, &orderID, "Math", 800_000)
	requestB := pendingRequest(studentID, &orderID, "Physics", 500_000)
	order := &models.Order{ID: orderID, StudentID: studentID, Status: enums.OrderStatusPendingPayment}
	f := newFixture(t, newStubRequestRepo(requestA, requestB), newStubOrderRepo(order), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{requestA.ID, requestB.ID}, 1_300_000)

	outcome, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID:   payment.ID,
		Outcome:     enums.PaymentStatusSuccess,
		ExternalRef: "trx-100",
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if outcome.Duplicate {
		t.Fatal("first apply must not be a duplicate")
	}
	if outcome.PaidRequests != 2 {
		t.Fatalf("expected 2 paid requests, got %d", outcome.PaidRequests)
	}
	if len(outcome.PaidOrders) != 1 || outcome.PaidOrders[0] != orderID {
		t.Fatalf("expected order %s marked paid, got %v", orderID, outcome.PaidOrders)
	}

	stored, err := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.Status != enums.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", stored.Status)
	}
	if stored.ExternalRef == nil || *stored.ExternalRef != "trx-100" {
		t.Fatalf("expected external ref, got %v", stored.ExternalRef)
	}
	if requestA.SettledPaymentID == nil || *requestA.SettledPaymentID != payment.ID {
		t.Fatal("expected request A settled by the payment")
	}
}

func TestApplyPartialOrderStaysPending(t *testing.T) {
	studentID := uuid.New()
	orderID := uuid.New()
	requestA := pendingRequest(studentID, &orderID, "Math", 800_000)
	requestB := pendingRequest(studentID, &orderID, "Physics", 500_000)
	order := &models.Order{ID: orderID, StudentID: studentID, Status: enums.OrderStatusPendingPayment}
	f := newFixture(t, newStubRequestRepo(requestA, requestB), newStubOrderRepo(order), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{requestA.ID}, 800_000)

	outcome, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusSuccess,
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(outcome.PaidOrders) != 0 {
		t.Fatalf("expected no orders paid while a request is unpaid, got %v", outcome.PaidOrders)
	}
	stored, _ := f.orderRepo.FindByID(context.Background(), orderID)
	if stored.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("expected order still pending_payment, got %s", stored.Status)
	}
}

func TestApplyDuplicateReplaysStoredOutcome(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Math", 800_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{request.ID}, 800_000)

	first, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusSuccess,
	})
	if err != nil {
		t.Fatalf("first Apply returned error: %v", err)
	}
	paidAt := *request.PaidAt

	second, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusSuccess,
	})
	if err != nil {
		t.Fatalf("duplicate Apply must not error, got: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("expected duplicate flag on the second apply")
	}
	if second.Status != first.Status {
		t.Fatalf("expected stored status %s, got %s", first.Status, second.Status)
	}
	if !request.PaidAt.Equal(paidAt) {
		t.Fatal("duplicate apply must not touch paid_at")
	}
	if second.PaidRequests != 0 {
		t.Fatalf("duplicate apply must not settle requests again, got %d", second.PaidRequests)
	}
}

func TestApplyConflictingOutcomeAfterTerminal(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Math", 800_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{request.ID}, 800_000)

	if _, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusSuccess,
	}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	outcome, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusFailed,
	})
	if err != nil {
		t.Fatalf("late failure event must not error, got: %v", err)
	}
	if !outcome.Duplicate || outcome.Status != enums.PaymentStatusSuccess {
		t.Fatalf("expected stored success to win, got duplicate=%v status=%s", outcome.Duplicate, outcome.Status)
	}
}

func TestApplyFailureLeavesRequestsPending(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Math", 800_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{request.ID}, 800_000)

	outcome, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusFailed,
		Reason:    "card declined",
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if outcome.PaidRequests != 0 {
		t.Fatal("failed payment must not settle requests")
	}
	if request.Status != enums.RequestStatusPending {
		t.Fatalf("expected request still pending, got %s", request.Status)
	}
	stored, _ := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if stored.FailureReason == nil || *stored.FailureReason != "card declined" {
		t.Fatalf("expected failure reason recorded, got %v", stored.FailureReason)
	}
}

func TestApplyUnknownPaymentReturnsNotFound(t *testing.T) {
	f := newFixture(t, newStubRequestRepo(), newStubOrderRepo(), nil)

	_, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: uuid.New(),
		Outcome:   enums.PaymentStatusSuccess,
	})
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyRejectsNonTerminalOutcome(t *testing.T) {
	f := newFixture(t, newStubRequestRepo(), newStubOrderRepo(), nil)

	_, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: uuid.New(),
		Outcome:   enums.PaymentStatusPending,
	})
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyConcurrentSuccessSettlesOnce(t *testing.T) {
	studentID := uuid.New()
	orderID := uuid.New()
	request := pendingRequest(studentID, &orderID, "Math", 800_000)
	order := &models.Order{ID: orderID, StudentID: studentID, Status: enums.OrderStatusPendingPayment}
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(order), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{request.ID}, 800_000)

	const workers = 16
	outcomes := make([]*Outcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.service.Apply(context.Background(), gateway.Event{
				PaymentID: payment.ID,
				Outcome:   enums.PaymentStatusSuccess,
			})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d returned error: %v", i, errs[i])
		}
		if !outcomes[i].Duplicate {
			applied++
		}
		if outcomes[i].Status != enums.PaymentStatusSuccess {
			t.Fatalf("worker %d saw status %s", i, outcomes[i].Status)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied transition, got %d", applied)
	}
	if request.SettledPaymentID == nil || *request.SettledPaymentID != payment.ID {
		t.Fatal("expected the request settled exactly once by the payment")
	}
}

func TestExpireStaleFailsOldPayments(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Math", 800_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{request.ID}, 800_000)
	f.paymentRepo.payments[payment.ID].CreatedAt = time.Now().Add(-48 * time.Hour)

	expired, err := f.service.ExpireStale(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ExpireStale returned error: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired payment, got %d", expired)
	}
	stored, _ := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if stored.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "payment expired" {
		t.Fatalf("expected expiry reason, got %v", stored.FailureReason)
	}
	if request.Status != enums.RequestStatusPending {
		t.Fatal("expired payment must leave requests pending")
	}
}

func TestExpireStaleLosesRaceToCallback(t *testing.T) {
	studentID := uuid.New()
	request := pendingRequest(studentID, nil, "Math", 800_000)
	f := newFixture(t, newStubRequestRepo(request), newStubOrderRepo(), nil)
	payment := seedPayment(f, t, studentID, []uuid.UUID{request.ID}, 800_000)
	f.paymentRepo.payments[payment.ID].CreatedAt = time.Now().Add(-48 * time.Hour)

	if _, err := f.service.Apply(context.Background(), gateway.Event{
		PaymentID: payment.ID,
		Outcome:   enums.PaymentStatusSuccess,
	}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	expired, err := f.service.ExpireStale(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ExpireStale returned error: %v", err)
	}
	if expired != 0 {
		t.Fatalf("settled payment must not expire, got %d", expired)
	}
	stored, _ := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if stored.Status != enums.PaymentStatusSuccess {
		t.Fatalf("expected success preserved, got %s", stored.Status)
	}
}
