package composition

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// newTestRoot builds a Root without installing the process-wide signal handler, so
// tests can drive cancellation directly via the returned cancel func.
func newTestRoot() (*Root, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Root{ctx: ctx, cancel: cancel, log: zerolog.Nop()}
	return r, cancel
}

// ============================================================
// Go — runs tasks, recovers panics
// ============================================================

func TestGo_RunsTaskUntilContextCancelled(t *testing.T) {
	r, cancel := newTestRoot()
	var ran atomic.Bool

	r.Go("task", func(ctx context.Context) {
		ran.Store(true)
		<-ctx.Done()
	})

	time.Sleep(20 * time.Millisecond)
	assert.True(t, ran.Load())
	cancel()
	r.Wait()
}

func TestGo_RecoversPanic_DoesNotCrashProcess(t *testing.T) {
	r, cancel := newTestRoot()
	r.Go("panicky", func(ctx context.Context) {
		panic("boom")
	})

	cancel()
	assert.NotPanics(t, func() { r.Wait() })
}

// ============================================================
// OnShutdown — runs in registration order during drain
// ============================================================

func TestOnShutdown_RunsRegisteredFunctionsInOrder(t *testing.T) {
	r, cancel := newTestRoot()
	var order []int

	r.OnShutdown(func(ctx context.Context) error { order = append(order, 1); return nil })
	r.OnShutdown(func(ctx context.Context) error { order = append(order, 2); return nil })

	cancel()
	r.Wait()

	assert.Equal(t, []int{1, 2}, order)
}

func TestOnShutdown_ErrorDoesNotStopLaterFunctions(t *testing.T) {
	r, cancel := newTestRoot()
	var secondRan bool

	r.OnShutdown(func(ctx context.Context) error { return assertErr() })
	r.OnShutdown(func(ctx context.Context) error { secondRan = true; return nil })

	cancel()
	r.Wait()

	assert.True(t, secondRan)
}

func assertErr() error {
	return context.DeadlineExceeded
}

// ============================================================
// Wait — returns once all tasks observe cancellation
// ============================================================

func TestWait_ReturnsAfterTasksExit(t *testing.T) {
	r, cancel := newTestRoot()
	var exited atomic.Bool

	r.Go("task", func(ctx context.Context) {
		<-ctx.Done()
		exited.Store(true)
	})

	cancel()
	r.Wait()
	assert.True(t, exited.Load())
}

// ============================================================
// Context returns the root's context
// ============================================================

func TestContext_ReturnsRootContext(t *testing.T) {
	r, cancel := newTestRoot()
	defer cancel()
	assert.NotNil(t, r.Context())
	assert.NoError(t, r.Context().Err())
}
