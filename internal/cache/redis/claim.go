package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// unlockLua deletes a claim key only if its value matches the caller's
// unique token, so one worker can never release another worker's claim.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ClaimGuard implements domain.ClaimGuard using Redis SETNX with a TTL
// and a Lua-based conditional unlock. It is taken around the ledger's
// reserve/record pair when multiple executor replicas share one ledger,
// shedding duplicate deliveries before they reach the database.
type ClaimGuard struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewClaimGuard creates a ClaimGuard backed by the given Client.
func NewClaimGuard(c *Client) *ClaimGuard {
	return &ClaimGuard{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func claimKey(key string) string {
	return "claim:" + key
}

// Acquire attempts to obtain the claim for the given key with the
// specified TTL. On success it returns an unlock function that must be
// called to release the claim; the function is safe to call more than
// once. It returns domain.ErrClaimHeld when another worker holds the
// claim.
func (g *ClaimGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	ck := claimKey(key)

	ok, err := g.rdb.SetNX(ctx, ck, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire claim %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrClaimHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Use a background context so release succeeds even if the
		// caller's context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = g.unlockSc.Run(unlockCtx, g.rdb, []string{ck}, token).Err()
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.ClaimGuard = (*ClaimGuard)(nil)
