// Package composition implements the shared composition-root lifecycle (§5, §9
// redesign flag: "Config becomes a single immutable value... composition explicit"):
// init -> start -> running -> draining -> stopped, driven by one root context.Context
// and one sync.WaitGroup, with a graceful-shutdown signal handler grounded on
// main.go's signal.Notify(os.Interrupt, syscall.SIGTERM) sequence.
package composition

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DrainDeadline bounds how long "draining" waits for tasks to unwind after
// cancellation before the process gives up and exits anyway (§5).
const DrainDeadline = 10 * time.Second

// Root owns the process-wide context and the set of independent tasks launched
// under it (§5: "each of the following is an independent task").
type Root struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger

	mu           sync.Mutex
	shutdownFns  []func(context.Context) error
}

// NewRoot builds a Root whose context is cancelled on SIGINT/SIGTERM.
func NewRoot(log zerolog.Logger) *Root {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Root{ctx: ctx, cancel: cancel, log: log.With().Str("component", "composition").Logger()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		r.log.Info().Str("signal", sig.String()).Msg("shutdown signal received, draining")
		cancel()
	}()

	return r
}

// Context returns the root context; tasks select on ctx.Done() to know when to
// unwind.
func (r *Root) Context() context.Context {
	return r.ctx
}

// Go launches fn as an independent task under the wait group, recovering and
// logging (rather than crashing the process) if it panics.
func (r *Root) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Interface("panic", rec).Str("task", name).Msg("task panicked")
			}
		}()
		fn(r.ctx)
	}()
}

// OnShutdown registers fn to run during draining, in registration order. Typical
// registrants: HTTP server Shutdown, store Close, event bus Close.
func (r *Root) OnShutdown(fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdownFns = append(r.shutdownFns, fn)
}

// Wait blocks until the root context is cancelled, then runs every registered
// shutdown function with a bounded deadline and waits for all Go tasks to return
// (or the deadline to elapse, whichever comes first) — the draining -> stopped
// transition.
func (r *Root) Wait() {
	<-r.ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), DrainDeadline)
	defer cancel()

	r.mu.Lock()
	fns := append([]func(context.Context) error(nil), r.shutdownFns...)
	r.mu.Unlock()

	for _, fn := range fns {
		if err := fn(drainCtx); err != nil {
			r.log.Warn().Err(err).Msg("shutdown step failed")
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Msg("all tasks drained")
	case <-drainCtx.Done():
		r.log.Warn().Msg("drain deadline exceeded, forcing exit")
	}
}
