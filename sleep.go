package stratadb

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// jitterRNG is the random source used for sleep jitter.
var jitterRNG = rand.New(rand.NewSource(time.Now().UnixNano()))

// SetJitterRNG overrides the RNG used for sleep jitter. Useful for deterministic tests.
func SetJitterRNG(r *rand.Rand) {
	if r != nil {
		jitterRNG = r
	}
}

// TimedOut returns an error if the context is done or if the elapsed time
// since startTime exceeds maxTime. Used by ReplicateCatchUp to bound lag-polling.
func TimedOut(ctx context.Context, name string, startTime time.Time, maxTime time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if time.Since(startTime) > maxTime {
		return fmt.Errorf("%s timed out (maxTime=%v)", name, maxTime)
	}
	return nil
}

// RandomSleepWithUnit sleeps a random multiple (1..4) of unit, used to jitter
// repeated polls (ReplicateCatchUp's lag checks).
func RandomSleepWithUnit(ctx context.Context, unit time.Duration) {
	multiplier := jitterRNG.Intn(4) + 1
	Sleep(ctx, time.Duration(multiplier)*unit)
}

// RandomSleep staggers retries by a random duration between 20ms and 80ms.
func RandomSleep(ctx context.Context) {
	RandomSleepWithUnit(ctx, 20*time.Millisecond)
}

// Sleep blocks for the given duration or until ctx is done, whichever is first.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	<-t.Done()
}
