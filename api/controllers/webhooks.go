package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sekolahku/settlement-backend/api/responses"
	"github.com/sekolahku/settlement-backend/internal/gateway"
	"github.com/sekolahku/settlement-backend/internal/settlement"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
	"github.com/sekolahku/settlement-backend/pkg/logger"
)

type callbackGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type callbackResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// PaymentCallback receives channel callbacks, verifies them, and feeds the
// normalized event into the settlement state machine. Redeliveries answer
// 200 with the stored outcome so the sender stops retrying.
func PaymentCallback(svc settlement.Service, channels *gateway.Registry, guard callbackGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || channels == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		rawMethod := strings.TrimSpace(chi.URLParam(r, "channel"))
		method, err := enums.ParsePaymentMethod(rawMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown channel"))
			return
		}
		channel, err := channels.Resolve(method)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if channel.Manual() {
			// Manual channels settle via the admin surface, never via an
			// anonymous gateway callback.
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown channel"))
			return
		}

		applyChannelEvent(w, r, svc, channel, guard, logg)
	}
}

// ApplyCashAction settles a manual cash payment. It runs behind the admin
// role guard and feeds the same state machine as gateway callbacks, so
// redeliveries and races resolve identically.
func ApplyCashAction(svc settlement.Service, channels *gateway.Registry, guard callbackGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || channels == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		channel, err := channels.Resolve(enums.PaymentMethodCash)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		applyChannelEvent(w, r, svc, channel, guard, logg)
	}
}

func applyChannelEvent(w http.ResponseWriter, r *http.Request, svc settlement.Service, channel gateway.Channel, guard callbackGuard, logg *logger.Logger) {
	ctx := r.Context()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
		return
	}

	event, err := channel.ParseCallback(payload)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}

	eventID := gateway.EventKey(event)
	alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if alreadyProcessed {
		payment, loadErr := svc.Get(ctx, event.PaymentID)
		if loadErr != nil {
			responses.WriteError(ctx, logg, w, loadErr)
			return
		}
		responses.WriteSuccess(w, callbackResponse{
			PaymentID: payment.ID.String(),
			Status:    payment.Status.String(),
			Duplicate: true,
		})
		return
	}

	outcome, err := svc.Apply(ctx, *event)
	if err != nil {
		// Clear the marker so the sender's retry is not swallowed by a
		// failed attempt.
		_ = guard.Delete(ctx, eventID)
		responses.WriteError(ctx, logg, w, err)
		return
	}

	if logg != nil {
		logg.Info(logg.WithPaymentID(ctx, outcome.PaymentID.String()), "payment callback processed")
	}
	responses.WriteSuccess(w, callbackResponse{
		PaymentID: outcome.PaymentID.String(),
		Status:    outcome.Status.String(),
		Duplicate: outcome.Duplicate,
	})
}
