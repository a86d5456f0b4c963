// Package heartbeat implements the Heartbeat Bus (C3): periodic datanode to
// metasrv liveness and region-status reports, with metasrv to datanode
// instructions piggybacked on the reply, and the Redis-backed write lease a
// region migration freezes during FreezeSourceWrites (spec.md §4.4, §5).
//
// Grounded on the teacher's redis/redis.go client and redis/locker.go lock-key
// primitives, generalized from a single distributed mutex to a per-peer
// liveness tracker plus a pub/sub instruction channel.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratadb/stratadb"
)

// Report is what a datanode publishes on every heartbeat tick.
type Report struct {
	Peer      stratadb.Peer  `json:"peer"`
	Regions   []RegionStatus `json:"regions"`
	Timestamp time.Time      `json:"timestamp"`
}

// RegionStatus is one region's self-reported state in a heartbeat Report.
type RegionStatus struct {
	RegionID   stratadb.RegionID `json:"region_id"`
	Role       string            `json:"role"`
	LastOffset uint64            `json:"last_offset"`
}

// Instruction is piggybacked on a heartbeat reply: an action the metasrv
// wants the reporting datanode to take (e.g. "close this region",
// "invalidate this cache entry").
type Instruction struct {
	RegionID stratadb.RegionID `json:"region_id"`
	Action   string            `json:"action"`
}

const (
	// ActionInvalidateCache asks the peer to drop any cached state for RegionID.
	ActionInvalidateCache = "invalidate_cache"
	// ActionCloseRegion asks the peer to close RegionID if still open.
	ActionCloseRegion = "close_region"
)

const (
	heartbeatKeyPrefix     = "heartbeat/"
	instructionTopicPrefix = "hb-instructions/"
	leaseKeyPrefix         = "L-lease/"
)

// Bus is the Redis-backed heartbeat fan-out: Report publishes liveness and
// region status; Subscribe receives instructions piggybacked for a
// specific peer; LastSeen drives the liveness check used by submit validation
// rule 3 (spec.md §4.3).
type Bus struct {
	client *redis.Client
}

// NewBus wraps an already-configured Redis client.
func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Report publishes r, keyed by peer ID, with a TTL so a crashed datanode's
// liveness entry expires rather than lingering.
func (b *Bus) Report(ctx context.Context, r Report, ttl time.Duration) error {
	body, err := json.Marshal(r)
	if err != nil {
		return stratadb.NewError(stratadb.Unknown, err)
	}
	key := fmt.Sprintf("%s%d", heartbeatKeyPrefix, r.Peer.ID)
	if err := b.client.Set(ctx, key, body, ttl).Err(); err != nil {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: publish report: %w", err))
	}
	return nil
}

// LastSeen returns the most recent Report for peerID and whether one exists
// within the TTL window set by Report (an absent key means the peer has not
// reported recently — submit validation rule 3's "reachable" check).
func (b *Bus) LastSeen(ctx context.Context, peerID uint64) (Report, bool, error) {
	key := fmt.Sprintf("%s%d", heartbeatKeyPrefix, peerID)
	body, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, stratadb.NewError(stratadb.Transient, err)
	}
	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return Report{}, false, stratadb.NewError(stratadb.Unknown, err)
	}
	return r, true, nil
}

// IsReachable reports whether peerID heartbeated within window.
func (b *Bus) IsReachable(ctx context.Context, peerID uint64, window time.Duration) (bool, error) {
	r, ok, err := b.LastSeen(ctx, peerID)
	if err != nil || !ok {
		return false, err
	}
	return time.Since(r.Timestamp) <= window, nil
}

// PushInstruction piggybacks instr for delivery to peerID on its next
// heartbeat reply, published on a per-peer pub/sub topic.
func (b *Bus) PushInstruction(ctx context.Context, peerID uint64, instr Instruction) error {
	body, err := json.Marshal(instr)
	if err != nil {
		return stratadb.NewError(stratadb.Unknown, err)
	}
	topic := fmt.Sprintf("%s%d", instructionTopicPrefix, peerID)
	if err := b.client.Publish(ctx, topic, body).Err(); err != nil {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: push instruction: %w", err))
	}
	return nil
}

// Subscribe returns a channel of Instructions piggybacked for peerID. Callers
// should range over it from a background goroutine and Close the
// subscription (via ctx cancellation) on shutdown.
func (b *Bus) Subscribe(ctx context.Context, peerID uint64) <-chan Instruction {
	topic := fmt.Sprintf("%s%d", instructionTopicPrefix, peerID)
	sub := b.client.Subscribe(ctx, topic)
	out := make(chan Instruction)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var instr Instruction
				if err := json.Unmarshal([]byte(msg.Payload), &instr); err != nil {
					continue
				}
				select {
				case out <- instr:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
