package stratadb

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry executes task with Fibonacci backoff, retrying up to maxRetries times
// after the first attempt. If
// retries are exhausted, gaveUpTask is invoked (when not nil) and the final
// error is returned. Used by the procedure engine to re-execute a single step
// on a Transient error.
func Retry(ctx context.Context, maxRetries uint64, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(200 * time.Millisecond)
	b = retry.WithCappedDuration(30*time.Second, b)
	if err := retry.Do(ctx, retry.WithMaxRetries(maxRetries, b), task); err != nil {
		log.Warn("retry exhausted, giving up", "error", err)
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether err is retryable: non-nil, not a context
// cancellation/deadline, and not a known-permanent OS/filesystem condition.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) || errors.Is(err, os.ErrExist) {
		return false
	}
	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.EINVAL):
		return false
	}
	// Errors explicitly classified by this control plane's own taxonomy.
	switch KindOf(err) {
	case InvalidArguments, RegionRouteNotFound, RouteChanged, TargetRejected:
		return false
	case Transient, Catastrophic:
		return true
	}
	return true
}
