package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/api/responses"
	"github.com/sekolahku/settlement-backend/api/validators"
	"github.com/sekolahku/settlement-backend/internal/recon"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/pkg/config"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type createCampaignRequest struct {
	ClassID    string   `json:"classId" validate:"required,uuid4"`
	Title      string   `json:"title" validate:"required,min=3,max=200"`
	StudentIDs []string `json:"studentIds" validate:"required,min=1,dive,uuid4"`
	DueDate    *string  `json:"dueDate"`
	Currency   string   `json:"currency"`
}

// CreateClassCampaign fans a billing campaign out to every listed student of
// a class.
func CreateClassCampaign(svc requests.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}

		var body createCampaignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		classID, err := uuid.Parse(body.ClassID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid class id"))
			return
		}

		studentIDs := make([]uuid.UUID, 0, len(body.StudentIDs))
		for _, raw := range body.StudentIDs {
			studentID, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid student id"))
				return
			}
			studentIDs = append(studentIDs, studentID)
		}

		var dueDate *time.Time
		if body.DueDate != nil && *body.DueDate != "" {
			parsed, parseErr := time.Parse(time.RFC3339, *body.DueDate)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid due date"))
				return
			}
			dueDate = &parsed
		}

		currency := enums.Currency(cfg.Settlement.Currency)
		if body.Currency != "" {
			parsed, parseErr := enums.ParseCurrency(body.Currency)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid currency"))
				return
			}
			currency = parsed
		}

		result, err := svc.CreateClassCampaign(ctx, requests.CampaignInput{
			ClassID:    classID,
			Title:      body.Title,
			StudentIDs: studentIDs,
			DueDate:    dueDate,
			Currency:   currency,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type reconRunner interface {
	RunOnce(ctx context.Context) (*recon.Result, error)
}

// RunReconciliation triggers one snapshot repair pass on demand.
func RunReconciliation(runner reconRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if runner == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation unavailable"))
			return
		}

		result, err := runner.RunOnce(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "run reconciliation"))
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetClassCampaign returns a campaign and its billing lines.
func GetClassCampaign(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}

		campaignID, err := uuid.Parse(chi.URLParam(r, "campaignId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid campaign id"))
			return
		}

		view, err := svc.GetCampaign(ctx, campaignID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
