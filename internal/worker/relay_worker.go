package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner is a long-lived loop such as the realtime relay.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain loop function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// StartRelayWorker keeps runner alive in the background, restarting it with exponential
// backoff, until ctx is cancelled. The returned channel closes once the worker has stopped.
func StartRelayWorker(ctx context.Context, runner Runner, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if runner == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		backoff := minBackoff
		for {
			started := time.Now()
			err := runner.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			if time.Since(started) > maxBackoff {
				backoff = minBackoff
			}
			logger.Warn("relay stopped, restarting", zap.Error(err), zap.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()
	return done
}
