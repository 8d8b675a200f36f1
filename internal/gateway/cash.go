package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

// cashChannel is the manual channel: no redirect, completion is an
// administrative action shaped like a callback.
type cashChannel struct{}

// NewCashChannel builds the manual cash channel.
func NewCashChannel() Channel {
	return &cashChannel{}
}

func (c *cashChannel) Method() enums.PaymentMethod {
	return enums.PaymentMethodCash
}

func (c *cashChannel) Manual() bool {
	return true
}

func (c *cashChannel) Initiate(_ context.Context, _ *models.Payment) (*InitiateResult, error) {
	// Cash skips created: the payment immediately waits on a human.
	return &InitiateResult{InitialStatus: enums.PaymentStatusPending}, nil
}

// cashAction is the administrative completion payload.
type cashAction struct {
	PaymentID string `json:"payment_id"`
	Action    string `json:"action"`
	Reference string `json:"reference"`
}

func (c *cashChannel) VerifySignature(_ []byte) bool {
	// There is no gateway signature to check. Authentication is the admin
	// role guard on the route that accepts cash actions.
	return true
}

func (c *cashChannel) ParseCallback(raw []byte) (*Event, error) {
	var action cashAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cash action")
	}
	paymentID, err := uuid.Parse(action.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse payment id")
	}

	var outcome enums.PaymentStatus
	switch action.Action {
	case "confirm":
		outcome = enums.PaymentStatusSuccess
	case "void":
		outcome = enums.PaymentStatusCancelled
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "unknown cash action").
			WithDetails(map[string]any{"action": action.Action})
	}

	return &Event{
		PaymentID:   paymentID,
		Outcome:     outcome,
		ExternalRef: action.Reference,
	}, nil
}
