package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/redis"
)

// IdempotencyGuard remembers the terminal outcome of processed webhook events.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

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

// Seen returns the recorded action for eventID, if any.
func (g *IdempotencyGuard) Seen(ctx context.Context, eventID string) (enums.WebhookAction, bool, error) {
	if eventID == "" {
		return "", false, errors.New("event id is required")
	}
	val, err := g.store.Get(ctx, g.store.IdempotencyKey(g.scope, eventID))
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get idempotency key: %w", err)
	}
	return enums.WebhookAction(val), true, nil
}

// Mark records a terminal action. Non-terminal actions are never stored so a
// redelivery is verified again.
func (g *IdempotencyGuard) Mark(ctx context.Context, eventID string, action enums.WebhookAction) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	if !action.IsTerminal() {
		return false, nil
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), string(action), g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return set, nil
}

