package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/messenger-wemo/internal/events"
	"github.com/mattjoyce/messenger-wemo/internal/log"
	"github.com/mattjoyce/messenger-wemo/internal/messenger"
)

var (
	// ErrQueueFull means Submit found no room; the platform should redeliver.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrStopped means the dispatcher is shutting down.
	ErrStopped = errors.New("dispatcher stopped")
)

// Default pool sizing.
const (
	DefaultQueueSize = 64
	DefaultWorkers   = 4
)

// Options sizes the dispatch queue and worker pool.
type Options struct {
	QueueSize int
	Workers   int
}

// Report summarises one Dispatch call.
type Report struct {
	Handled    int
	Duplicates int
	Failed     int
	Unknown    int
}

// Dispatcher routes decoded envelopes to per-event handlers.
type Dispatcher struct {
	router  *Router
	ledger  Ledger
	replies replier
	events  events.Publisher
	logger  *slog.Logger
	workers int

	mu     sync.RWMutex
	closed bool
	queue  chan *messenger.Envelope
}

// New creates a Dispatcher. ledger may be nil, which disables dedupe and
// watermark tracking.
func New(router *Router, notifier Notifier, ledger Ledger, pub events.Publisher, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Dispatcher{
		router:  router,
		ledger:  ledger,
		replies: newReplier(notifier, pub, logger),
		events:  pub,
		logger:  logger,
		workers: opts.Workers,
		queue:   make(chan *messenger.Envelope, opts.QueueSize),
	}
}

// Submit queues env without blocking.
func (d *Dispatcher) Submit(env *messenger.Envelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrStopped
	}
	select {
	case d.queue <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the worker pool until ctx is cancelled, then stops accepting
// envelopes and drains what is already queued before returning.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatch workers started", "workers", d.workers, "queue_size", cap(d.queue))
	defer d.logger.Info("dispatch workers stopped")

	// Device commands and replies must finish even while shutting down.
	work := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for env := range d.queue {
				d.Dispatch(work, env)
			}
		}()
	}

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	close(d.queue)
	pending := len(d.queue)
	d.mu.Unlock()

	if pending > 0 {
		d.logger.Info("draining dispatch queue", "pending", pending)
	}
	wg.Wait()
	return ctx.Err()
}

// Dispatch handles every event of env in order, isolating failures.
func (d *Dispatcher) Dispatch(ctx context.Context, env *messenger.Envelope) Report {
	var report Report
	if env == nil {
		return report
	}

	for _, entry := range env.Entries {
		for _, ev := range entry.Events {
			d.dispatchEvent(ctx, entry.PageID, ev, &report)
		}
	}

	if report.Failed > 0 || report.Duplicates > 0 {
		d.logger.Info("envelope dispatched",
			"handled", report.Handled,
			"duplicates", report.Duplicates,
			"failed", report.Failed,
			"unknown", report.Unknown,
		)
	}
	return report
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, pageID string, ev messenger.Event, report *Report) {
	meta := ev.EventMeta()
	logger := d.logger.With(log.Sender(meta.SenderID), "kind", string(ev.Kind()))

	if u, ok := ev.(messenger.Unknown); ok {
		logger.Warn("unknown event dropped", "reason", u.Reason, "page_id", pageID)
		report.Unknown++
		return
	}

	if !d.claim(ctx, ev, logger) {
		logger.Info("duplicate event skipped", "fingerprint", meta.Fingerprint)
		report.Duplicates++
		return
	}

	d.events.Publish(events.TypeMessengerEvent, map[string]any{
		"kind":      string(ev.Kind()),
		"sender_id": meta.SenderID,
		"page_id":   pageID,
		"timestamp": meta.Timestamp,
	})

	if err := d.safeHandle(ctx, ev, logger); err != nil {
		logger.Error("event handler failed", "error", err)
		report.Failed++
		return
	}
	report.Handled++
}

// claim reports whether ev should be handled. Ledger errors let the event
// through.
func (d *Dispatcher) claim(ctx context.Context, ev messenger.Event, logger *slog.Logger) bool {
	if d.ledger == nil {
		return true
	}
	meta := ev.EventMeta()
	first, err := d.ledger.MarkProcessed(ctx, dedupeKey(ev), string(ev.Kind()), meta.SenderID)
	if err != nil {
		logger.Warn("dedupe ledger unavailable", "error", err)
		return true
	}
	return first
}

// dedupeKey prefers the platform message id and falls back to the event
// fingerprint.
func dedupeKey(ev messenger.Event) string {
	if m, ok := ev.(messenger.MessageEvent); ok && m.Message.MID != "" {
		return "mid:" + m.Message.MID
	}
	return "fp:" + ev.EventMeta().Fingerprint
}

func (d *Dispatcher) safeHandle(ctx context.Context, ev messenger.Event, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handle(ctx, ev, logger)
}

func (d *Dispatcher) handle(ctx context.Context, ev messenger.Event, logger *slog.Logger) error {
	switch e := ev.(type) {
	case messenger.OptIn:
		logger.Info("optin received", "ref", e.Ref, "user_ref", e.UserRef)
		return d.replies.send(ctx, e.SenderID, ReplyOptIn)

	case messenger.MessageEvent:
		return d.router.HandleMessage(ctx, e)

	case messenger.Delivery:
		for _, mid := range e.MessageIDs {
			logger.Debug("message delivered", "mid", mid)
		}
		logger.Debug("delivery watermark", "watermark", e.Watermark, "seq", e.Seq)
		return d.recordWatermark(ctx, ev, e.Watermark, e.Seq)

	case messenger.Postback:
		logger.Info("postback received", "title", e.Title, "payload", e.Payload)
		return d.replies.send(ctx, e.SenderID, ReplyPostback)

	case messenger.Read:
		logger.Debug("read watermark", "watermark", e.Watermark, "seq", e.Seq)
		return d.recordWatermark(ctx, ev, e.Watermark, e.Seq)

	case messenger.AccountLink:
		logger.Info("account link event", "status", e.Status, "authorization_code", e.AuthorizationCode)
		return nil

	default:
		return fmt.Errorf("no handler for %T", ev)
	}
}

func (d *Dispatcher) recordWatermark(ctx context.Context, ev messenger.Event, watermark, seq int64) error {
	if d.ledger == nil || watermark == 0 {
		return nil
	}
	if err := d.ledger.RecordWatermark(ctx, string(ev.Kind()), ev.EventMeta().SenderID, watermark, seq); err != nil {
		return fmt.Errorf("record %s watermark: %w", ev.Kind(), err)
	}
	return nil
}
