package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/api/responses"
	"github.com/sekolahku/settlement-backend/api/validators"
	"github.com/sekolahku/settlement-backend/internal/settlement"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type createPaymentRequest struct {
	RequestIDs []string `json:"requestIds" validate:"required,min=1,dive,uuid4"`
	Method     string   `json:"method" validate:"required"`
}

type createPaymentResponse struct {
	Payment     any    `json:"payment"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// CreatePayment starts one payment attempt over a set of billing lines.
func CreatePayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		studentID, err := callerStudentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body createPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(body.Method)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		requestIDs := make([]uuid.UUID, 0, len(body.RequestIDs))
		for _, raw := range body.RequestIDs {
			requestID, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid request id"))
				return
			}
			requestIDs = append(requestIDs, requestID)
		}

		result, err := svc.Initiate(ctx, settlement.InitiateInput{
			StudentID:  studentID,
			RequestIDs: requestIDs,
			Method:     method,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createPaymentResponse{
			Payment:     result.Payment,
			RedirectURL: result.RedirectURL,
		})
	}
}

// GetPayment returns one payment by id.
func GetPayment(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "paymentId"))
		if raw == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required"))
			return
		}
		paymentID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		payment, err := svc.Get(ctx, paymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}
