package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stratadb/stratadb"
)

// LeaseManager holds the write lease for a region: a Redis key with a TTL and
// an owning token, grounded on the teacher's LockKey/Lock/Unlock/IsLockedTTL
// API (redis/locker.go) generalized from a generic mutex to the region write
// lease spec.md §5 describes. A peer that cannot renew its lease must stop
// accepting writes within the lease's skew budget — callers enforce that by
// calling Renew on a ticker shorter than ttl and bailing out on failure.
type LeaseManager struct {
	client *redis.Client
}

// NewLeaseManager wraps an already-configured Redis client.
func NewLeaseManager(client *redis.Client) *LeaseManager {
	return &LeaseManager{client: client}
}

func leaseKey(regionID stratadb.RegionID) string {
	return fmt.Sprintf("%s%s", leaseKeyPrefix, regionID)
}

// Acquire claims the write lease for regionID for ttl, returning a token that
// must be presented to Renew/Release. Fails if another owner already holds
// the lease.
func (l *LeaseManager) Acquire(ctx context.Context, regionID stratadb.RegionID, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, leaseKey(regionID), token, ttl).Result()
	if err != nil {
		return "", stratadb.NewError(stratadb.Transient, err)
	}
	if !ok {
		return "", stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: region %s write lease already held", regionID))
	}
	return token, nil
}

// Renew extends the TTL of a lease this caller owns (token must match), used
// by the leader's keepalive loop. Fails (without extending) if token no
// longer matches the stored value — meaning the lease has expired and moved
// on, and the caller must stop accepting writes.
func (l *LeaseManager) Renew(ctx context.Context, regionID stratadb.RegionID, token string, ttl time.Duration) error {
	cur, err := l.client.Get(ctx, leaseKey(regionID)).Result()
	if err == redis.Nil {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: region %s lease expired", regionID))
	}
	if err != nil {
		return stratadb.NewError(stratadb.Transient, err)
	}
	if cur != token {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: region %s lease owned by another token", regionID))
	}
	return l.client.Expire(ctx, leaseKey(regionID), ttl).Err()
}

// Expire marks the lease "expiring" without deleting it outright, giving
// holders their grace period to drain in-flight writes (spec.md §4.4
// FreezeSourceWrites). Implemented as a short TTL bump so Renew calls from a
// no-longer-current leader start failing soon after.
func (l *LeaseManager) Expire(ctx context.Context, regionID stratadb.RegionID, token string, grace time.Duration) error {
	return l.Renew(ctx, regionID, token, grace)
}

// Release gives up the lease outright (spec.md §4.4 CloseSourceRegion), iff
// token is still the current owner.
func (l *LeaseManager) Release(ctx context.Context, regionID stratadb.RegionID, token string) error {
	cur, err := l.client.Get(ctx, leaseKey(regionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return stratadb.NewError(stratadb.Transient, err)
	}
	if cur != token {
		return nil
	}
	return l.client.Del(ctx, leaseKey(regionID)).Err()
}

// IsHeld reports whether regionID currently has an active write lease.
func (l *LeaseManager) IsHeld(ctx context.Context, regionID stratadb.RegionID) (bool, error) {
	n, err := l.client.Exists(ctx, leaseKey(regionID)).Result()
	if err != nil {
		return false, stratadb.NewError(stratadb.Transient, err)
	}
	return n > 0, nil
}
