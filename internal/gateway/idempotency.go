package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sekolahku/settlement-backend/pkg/redis"
)

// IdempotencyGuard short-circuits duplicate callback deliveries before they
// reach the settlement state machine. It is an optimization only; the state
// machine stays correct without it.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard storing seen event markers under the
// given scope for the ttl.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// EventKey identifies one delivery: the same payment and outcome always map
// to the same key so redeliveries collapse.
func EventKey(event *Event) string {
	if event == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", event.PaymentID, event.Outcome)
}

// CheckAndMark reports whether the event was already seen, marking it seen
// if not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete clears the marker so a failed handling attempt can be redelivered.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	return g.store.Del(ctx, key)
}
