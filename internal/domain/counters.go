package domain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	m "covfold.dev/pkg/covfold/internal/model"
)

// CounterSource hands out the raw coverage accumulated since its
// previous dump and resets itself, so every batch reaches the caller
// exactly once.
type CounterSource interface {
	Dump(ctx context.Context) ([]m.RawScriptCoverage, error)
}

// CounterStream polls a CounterSource on a fixed interval and forwards
// each non-empty batch to a sink. Start and Stop are no-ops when the
// stream is already in the requested state.
type CounterStream interface {
	Start(ctx context.Context)
	Stop()
}

type counterStream struct {
	source   CounterSource
	sink     func(context.Context, []m.RawScriptCoverage)
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCounterStream creates a CounterStream polling source every
// interval and handing batches to sink.
func NewCounterStream(source CounterSource, interval time.Duration, sink func(context.Context, []m.RawScriptCoverage)) CounterStream {
	if interval <= 0 {
		interval = time.Second
	}

	return &counterStream{
		source:   source,
		sink:     sink,
		interval: interval,
	}
}

// Start begins polling. Calling Start on a running stream does nothing.
func (cs *counterStream) Start(ctx context.Context) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.cancel != nil {
		slog.Debug("Counter stream already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cs.cancel = cancel
	cs.done = done

	slog.Debug("Starting counter stream", "interval", cs.interval)

	go cs.run(ctx, done)
}

// Stop ends polling, drains the source one final time and waits for the
// poll goroutine to finish. Calling Stop on a stopped stream does
// nothing.
func (cs *counterStream) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.cancel == nil {
		return
	}

	cs.cancel()
	<-cs.done

	cs.cancel = nil
	cs.done = nil

	slog.Debug("Counter stream stopped")
}

func (cs *counterStream) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Counts accumulated since the last tick would be lost
			// without a final dump.
			cs.poll(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			cs.poll(ctx)
		}
	}
}

// poll dumps the source once and forwards the batch when it carries
// anything.
func (cs *counterStream) poll(ctx context.Context) {
	batch, err := cs.source.Dump(ctx)
	if err != nil {
		slog.Warn("Failed to dump live counters", "error", err)
		return
	}

	if len(batch) == 0 {
		return
	}

	slog.Debug("Polled live counters", "scripts", len(batch))
	cs.sink(ctx, batch)
}
