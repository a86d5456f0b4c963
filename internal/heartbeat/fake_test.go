package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stratadb/stratadb"
)

func TestFakeBusReachability(t *testing.T) {
	ctx := context.Background()
	bus := NewFakeBus()

	ok, err := bus.IsReachable(ctx, 1, time.Second)
	if err != nil || ok {
		t.Fatalf("peer never marked reachable should be unreachable, got ok=%v err=%v", ok, err)
	}

	bus.MarkReachable(1, time.Now())
	ok, err = bus.IsReachable(ctx, 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("marked peer within window should be reachable, got ok=%v err=%v", ok, err)
	}
}

func TestFakeBusInstructions(t *testing.T) {
	ctx := context.Background()
	bus := NewFakeBus()
	region := stratadb.NewRegionID(1, 1)

	if err := bus.PushInstruction(ctx, 2, Instruction{RegionID: region, Action: ActionInvalidateCache}); err != nil {
		t.Fatalf("PushInstruction: %v", err)
	}
	got := bus.Instructions(2)
	if len(got) != 1 || got[0].Action != ActionInvalidateCache {
		t.Fatalf("Instructions(2) = %+v, want one ActionInvalidateCache", got)
	}
}

func TestFakeLeaseManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	lm := NewFakeLeaseManager()
	region := stratadb.NewRegionID(1, 1)

	token, err := lm.Acquire(ctx, region, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, region, time.Minute); err == nil {
		t.Fatalf("expected second Acquire on a held lease to fail")
	}
	if err := lm.Expire(ctx, region, token, time.Second); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if lm.State(region) != "expiring" {
		t.Fatalf("State() = %q, want expiring", lm.State(region))
	}
	if err := lm.Release(ctx, region, token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	held, err := lm.IsHeld(ctx, region)
	if err != nil || held {
		t.Fatalf("expected lease released, held=%v err=%v", held, err)
	}
}
