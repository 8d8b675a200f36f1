package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/api/middleware"
	"github.com/sekolahku/settlement-backend/api/responses"
	"github.com/sekolahku/settlement-backend/api/validators"
	"github.com/sekolahku/settlement-backend/internal/directory"
	internalorders "github.com/sekolahku/settlement-backend/internal/orders"
	"github.com/sekolahku/settlement-backend/internal/requests"
	"github.com/sekolahku/settlement-backend/pkg/config"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type createOrderRequest struct {
	ClassIDs []string `json:"classIds" validate:"required,min=1,dive,uuid4"`
	Currency string   `json:"currency"`
}

// CreateOrder aggregates a class selection into one order with its per-class
// billing lines.
func CreateOrder(svc internalorders.Service, dir directory.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		studentID, err := callerStudentID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		classIDs := make([]uuid.UUID, 0, len(body.ClassIDs))
		for _, raw := range body.ClassIDs {
			classID, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid class id"))
				return
			}
			classIDs = append(classIDs, classID)
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

		student, err := dir.GetStudent(ctx, studentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.Create(ctx, internalorders.CreateInput{
			StudentID: studentID,
			ClassIDs:  classIDs,
			Terms: requests.Terms{
				Percent: student.ScholarshipPercent,
				Type:    student.ScholarshipType,
			},
			Currency: currency,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// CancelOrder cancels a pending order together with its open billing lines.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.Cancel(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// GetOrder returns the order with its items and billing lines.
func GetOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.Get(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func callerStudentID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.StudentIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "student identity missing")
	}
	studentID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid student identity")
	}
	return studentID, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
