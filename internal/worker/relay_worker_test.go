package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyRunner struct {
	calls atomic.Int32
}

func (f *flakyRunner) Run(ctx context.Context) error {
	if f.calls.Add(1) == 1 {
		return errors.New("connection reset")
	}
	<-ctx.Done()
	return nil
}

func TestRelayWorkerRestartsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &flakyRunner{}

	done := StartRelayWorker(ctx, runner, zaptest.NewLogger(t))
	require.Eventually(t, func() bool { return runner.calls.Load() == 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestRelayWorkerWithoutRunner(t *testing.T) {
	done := StartRelayWorker(context.Background(), nil, zaptest.NewLogger(t))
	_, open := <-done
	assert.False(t, open)
}
