package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/reqctx"
	"github.com/shinyyama/farm-market-backend/internal/service"
)

// Dispatcher queues domain events in memory and hands them to the notification
// handler on a fixed pool of workers. Publish never blocks: a full queue drops
// the event.
type Dispatcher struct {
	handler     service.EventHandler
	workers     int
	timeout     time.Duration
	logger      *slog.Logger
	jobs        chan service.Event
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     bool
	stopped     bool
	dropped     atomic.Int64
	handledJobs atomic.Int64
}

// NewDispatcher constructs the worker pool; Start must be called before events are handled.
func NewDispatcher(handler service.EventHandler, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handler: handler,
		workers: workers,
		timeout: 30 * time.Second,
		logger:  logger,
		jobs:    make(chan service.Event, queueSize),
	}
}

// Start launches the workers. Handling contexts derive from ctx without its
// cancellation so queued events still drain during shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(base)
	}
}

// Publish enqueues ev without waiting for a free worker.
func (d *Dispatcher) Publish(_ context.Context, ev service.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.dropped.Add(1)
		d.logger.Warn("event dropped after stop", slog.String("type", string(ev.Type)), slog.String("rid", ev.RID))
		return
	}
	select {
	case d.jobs <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.Uint64("order_id", ev.OrderID),
			slog.Uint64("product_id", ev.ProductID),
			slog.String("rid", ev.RID))
	}
}

// Stop refuses new events, lets the workers drain the queue and waits for them.
// When the pool was never started the queued events are handled inline.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	close(d.jobs)
	d.mu.Unlock()

	if !started {
		pending := len(d.jobs)
		if pending > 0 {
			d.logger.Warn("dispatcher stopped before start, handling queued events inline", slog.Int("pending", pending))
		}
		for ev := range d.jobs {
			d.handle(context.Background(), ev)
		}
		return
	}
	d.wg.Wait()
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Handled reports how many events reached the handler.
func (d *Dispatcher) Handled() int64 {
	return d.handledJobs.Load()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for ev := range d.jobs {
		d.handle(ctx, ev)
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev service.Event) {
	ctx, cancel := context.WithTimeout(reqctx.WithRID(ctx, ev.RID), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", slog.String("type", string(ev.Type)), slog.Any("panic", r))
		}
	}()
	start := time.Now()
	d.handler.HandleEvent(ctx, ev)
	d.handledJobs.Add(1)
	d.logger.Debug("event handled", slog.String("type", string(ev.Type)), slog.Duration("took", time.Since(start)), slog.String("rid", ev.RID))
}
