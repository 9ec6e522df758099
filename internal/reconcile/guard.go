package reconcile

import (
	"context"
	"time"

	"github.com/angelmondragon/agromarket-backend/pkg/redis"
)

const defaultGuardTTL = 24 * time.Hour

// Guard deduplicates callback deliveries per (channel, tran_id) with a Redis
// SETNX key. A nil Guard or one without a store lets every delivery through;
// the conditional status updates still hold.
type Guard struct {
	store redis.GuardStore
	ttl   time.Duration
}

func NewGuard(store redis.GuardStore, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &Guard{store: store, ttl: ttl}
}

// Acquire claims the key. It reports false when another delivery holds it.
func (g *Guard) Acquire(ctx context.Context, channel Channel, tranID string) (bool, error) {
	if g == nil || g.store == nil {
		return true, nil
	}
	return g.store.SetNX(ctx, redis.CallbackKey(string(channel), tranID), time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops the key so the gateway's next retry is processed.
func (g *Guard) Release(ctx context.Context, channel Channel, tranID string) error {
	if g == nil || g.store == nil {
		return nil
	}
	return g.store.Del(ctx, redis.CallbackKey(string(channel), tranID))
}
