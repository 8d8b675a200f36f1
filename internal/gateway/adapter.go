// Package gateway abstracts payment channels behind one capability set.
// The settlement state machine only ever sees normalized events; adding a
// channel never touches it.
package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

// Event is a gateway callback normalized into settlement terms.
type Event struct {
	PaymentID   uuid.UUID
	Outcome     enums.PaymentStatus
	ExternalRef string
	// Reason is recorded on the payment for failed outcomes.
	Reason string
}

// InitiateResult is what a channel hands back when a payment starts.
type InitiateResult struct {
	// InitialStatus is created for redirect channels, pending for cash.
	InitialStatus enums.PaymentStatus
	// RedirectURL is empty for channels without a hosted checkout page.
	RedirectURL string
}

// Channel is the capability set every payment channel implements.
type Channel interface {
	Method() enums.PaymentMethod
	// Manual channels have no external gateway: their events are
	// administrative actions and must never be accepted from the public
	// callback endpoint.
	Manual() bool
	Initiate(ctx context.Context, payment *models.Payment) (*InitiateResult, error)
	// VerifySignature authenticates a raw callback payload. It must run
	// before any lookup or state change.
	VerifySignature(raw []byte) bool
	// ParseCallback verifies and normalizes a raw payload. A payload that
	// fails verification is rejected without touching any state.
	ParseCallback(raw []byte) (*Event, error)
}

// Registry resolves channels by payment method.
type Registry struct {
	channels map[enums.PaymentMethod]Channel
}

// NewRegistry builds a registry from the provided channels.
func NewRegistry(channels ...Channel) *Registry {
	registry := &Registry{channels: make(map[enums.PaymentMethod]Channel, len(channels))}
	for _, channel := range channels {
		if channel == nil {
			continue
		}
		registry.channels[channel.Method()] = channel
	}
	return registry
}

// Resolve returns the channel registered for the method.
func (r *Registry) Resolve(method enums.PaymentMethod) (Channel, error) {
	channel, ok := r.channels[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"method": method.String()})
	}
	return channel, nil
}
