// Package recon repairs report snapshot drift. Payments and requests keep
// denormalized branch and subject labels stamped at creation; lookups that
// failed then leave holes this pass fills on a schedule.
package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/sekolahku/settlement-backend/internal/cron"
	"github.com/sekolahku/settlement-backend/internal/directory"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/internal/settlement"
	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

const (
	defaultBatchSize = 500

	// unknownBranch labels payments whose student or branch record is gone.
	// Reports group them under one bucket instead of dropping them.
	unknownBranch = "Unknown"
)

// Result summarizes one reconciliation run.
type Result struct {
	Scanned  int
	Repaired int
	Skipped  int
}

// SnapshotJobParams configure the snapshot repair job.
type SnapshotJobParams struct {
	Logger      *logger.Logger
	PaymentRepo settlement.Repository
	RequestRepo requests.Repository
	Directory   directory.Service
	BatchSize   int
}

type SnapshotJob struct {
	logg        *logger.Logger
	paymentRepo settlement.Repository
	requestRepo requests.Repository
	directory   directory.Service
	batchSize   int
}

// NewSnapshotJob builds the cron job that repairs missing report snapshots.
func NewSnapshotJob(params SnapshotJobParams) (*SnapshotJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.PaymentRepo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.RequestRepo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("directory service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SnapshotJob{
		logg:        params.Logger,
		paymentRepo: params.PaymentRepo,
		requestRepo: params.RequestRepo,
		directory:   params.Directory,
		batchSize:   batchSize,
	}, nil
}

func (j *SnapshotJob) Name() string { return "snapshot-repair" }

func (j *SnapshotJob) Run(ctx context.Context) error {
	result, err := j.RunOnce(ctx)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"scanned":  result.Scanned,
		"repaired": result.Repaired,
		"skipped":  result.Skipped,
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "snapshot repair complete")
	return nil
}

// RunOnce makes a single repair pass. Each record is repaired on its own;
// one broken row never blocks the rest of the batch.
func (j *SnapshotJob) RunOnce(ctx context.Context) (*Result, error) {
	result := &Result{}
	var errs error

	stale, err := j.requestRepo.FindMissingSubject(ctx, j.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list requests missing subject: %w", err)
	}
	for i := range stale {
		result.Scanned++
		if repaired, repairErr := j.repairRequest(ctx, &stale[i]); repairErr != nil {
			errs = multierr.Append(errs, repairErr)
			result.Skipped++
		} else if repaired {
			result.Repaired++
		} else {
			result.Skipped++
		}
	}

	payments, err := j.paymentRepo.FindMissingSnapshots(ctx, j.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list payments missing snapshots: %w", err)
	}
	for i := range payments {
		result.Scanned++
		if repaired, repairErr := j.repairPayment(ctx, &payments[i]); repairErr != nil {
			errs = multierr.Append(errs, repairErr)
			result.Skipped++
		} else if repaired {
			result.Repaired++
		} else {
			result.Skipped++
		}
	}

	if errs != nil {
		j.logg.Error(ctx, "snapshot repair had per-record failures", errs)
	}
	return result, nil
}

func (j *SnapshotJob) repairRequest(ctx context.Context, request *models.PaymentRequest) (bool, error) {
	if request.ClassID == uuid.Nil {
		return false, nil
	}
	class, err := j.directory.GetClass(ctx, request.ClassID)
	if err != nil {
		return false, fmt.Errorf("request %s: load class: %w", request.ID, err)
	}
	if err := j.requestRepo.UpdateSubject(ctx, request.ID, class.Subject); err != nil {
		return false, fmt.Errorf("request %s: update subject: %w", request.ID, err)
	}
	return true, nil
}

func (j *SnapshotJob) repairPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	updates := make(map[string]any, 3)

	if payment.BranchID == nil || payment.BranchName == nil {
		branchID, branchName := j.resolveBranch(ctx, payment)
		if payment.BranchID == nil && branchID != nil {
			updates["branch_id"] = *branchID
		}
		if payment.BranchName == nil {
			updates["branch_name"] = branchName
		}
	}

	if payment.SubjectName == nil {
		subject, err := j.resolveSubject(ctx, payment)
		if err != nil {
			return false, err
		}
		if subject != "" {
			updates["subject_name"] = subject
		}
	}

	if len(updates) == 0 {
		return false, nil
	}
	if err := j.paymentRepo.UpdateSnapshots(ctx, payment.ID, updates); err != nil {
		return false, fmt.Errorf("payment %s: update snapshots: %w", payment.ID, err)
	}
	return true, nil
}

// resolveBranch resolves the home branch through the student record. When
// the student or branch is gone the payment is labeled Unknown so it still
// lands in a report bucket.
func (j *SnapshotJob) resolveBranch(ctx context.Context, payment *models.Payment) (*string, string) {
	student, err := j.directory.GetStudent(ctx, payment.StudentID)
	if err != nil {
		return nil, unknownBranch
	}
	branchID := student.BranchID.String()
	branch, err := j.directory.GetBranch(ctx, student.BranchID)
	if err != nil {
		return &branchID, unknownBranch
	}
	return &branchID, branch.Name
}

// resolveSubject prefers the subject snapshots already on the linked
// requests; only requests with no snapshot fall back to a live class read.
func (j *SnapshotJob) resolveSubject(ctx context.Context, payment *models.Payment) (string, error) {
	linked, err := j.requestRepo.FindByIDs(ctx, payment.RequestIDs)
	if err != nil {
		return "", fmt.Errorf("payment %s: load requests: %w", payment.ID, err)
	}
	for i := range linked {
		if linked[i].ClassSubject != nil && *linked[i].ClassSubject != "" {
			continue
		}
		if linked[i].ClassID == uuid.Nil {
			continue
		}
		class, classErr := j.directory.GetClass(ctx, linked[i].ClassID)
		if classErr != nil {
			continue
		}
		linked[i].ClassSubject = &class.Subject
	}
	return settlement.JoinSubjects(linked), nil
}

// ExpiryJobParams configure the stale payment sweep.
type ExpiryJobParams struct {
	Logger     *logger.Logger
	Settlement settlement.Service
	Now        func() time.Time
}

type expiryJob struct {
	logg       *logger.Logger
	settlement settlement.Service
	now        func() time.Time
}

// NewExpiryJob builds the cron job that fails payments past their TTL.
func NewExpiryJob(params ExpiryJobParams) (cron.Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &expiryJob{logg: params.Logger, settlement: params.Settlement, now: now}, nil
}

func (j *expiryJob) Name() string { return "payment-expiry" }

func (j *expiryJob) Run(ctx context.Context) error {
	expired, err := j.settlement.ExpireStale(ctx, j.now())
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "payment expiry sweep complete")
	return nil
}
