// Package message – dispatcher.go fans every normalized record out to the
// persistence store, the webhook notifier, the in-memory log and the
// registered handler chain. Each stage is isolated: a failing collaborator
// or a panicking handler never aborts the rest of the pipeline.
package message

import (
	"context"
	"log/slog"
	"sync"
)

// Store is the slice of the persistence collaborator the dispatcher needs.
type Store interface {
	UpsertMessage(rec *Record) error
}

// AutoResponder is invoked for records eligible for automatic replies.
type AutoResponder interface {
	MatchAndRespond(ctx context.Context, rec *Record)
}

// Handler is a plain side-effecting callback with no return contract.
type Handler func(rec *Record)

// DispatchConfig holds dispatch policy.
type DispatchConfig struct {
	// RespondToGroups lets group messages reach the auto-responder.
	// Off by default; group traffic is still persisted and logged.
	RespondToGroups bool `yaml:"respond_to_groups"`
}

// Dispatcher owns the inbound pipeline. Records are processed one at a
// time in arrival order; a record is fully persisted, notified, logged and
// handled before the next one starts.
type Dispatcher struct {
	cfg       DispatchConfig
	store     Store
	webhook   *Notifier
	buffer    *LogBuffer
	responder AutoResponder
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// NewDispatcher wires the pipeline. store, webhook and responder may be
// nil; those stages are skipped.
func NewDispatcher(cfg DispatchConfig, store Store, webhook *Notifier, buffer *LogBuffer, logger *slog.Logger) *Dispatcher {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   store,
		webhook: webhook,
		buffer:  buffer,
		logger:  logger.With("component", "dispatcher"),
	}
}

// SetResponder installs the auto-response engine. Separate from the
// constructor because the engine needs the session manager, which needs
// the dispatcher.
func (d *Dispatcher) SetResponder(r AutoResponder) {
	d.mu.Lock()
	d.responder = r
	d.mu.Unlock()
}

// RegisterHandler appends fn to the ordered handler chain.
func (d *Dispatcher) RegisterHandler(fn Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, fn)
	d.mu.Unlock()
}

// HandlerCount returns the number of registered handlers.
func (d *Dispatcher) HandlerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Buffer exposes the in-memory message log.
func (d *Dispatcher) Buffer() *LogBuffer {
	return d.buffer
}

// Dispatch runs one record through the pipeline.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *Record) {
	if rec == nil {
		return
	}

	if d.store != nil {
		if err := d.store.UpsertMessage(rec); err != nil {
			d.logger.Error("dispatcher: persist failed", "id", rec.ID, "error", err)
		}
	}

	if d.webhook != nil && !rec.FromMe {
		if err := d.webhook.Notify(ctx, rec); err != nil {
			d.logger.Warn("dispatcher: webhook delivery failed", "id", rec.ID, "error", err)
		}
	}

	d.buffer.Append(rec)

	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	responder := d.responder
	d.mu.RUnlock()

	for i, fn := range handlers {
		d.invoke(i, fn, rec)
	}

	if responder != nil && d.autoRespondEligible(rec) {
		responder.MatchAndRespond(ctx, rec)
	}
}

// invoke runs one handler, containing panics so later handlers still run.
func (d *Dispatcher) invoke(idx int, fn Handler, rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher: handler panicked", "handler", idx, "id", rec.ID, "panic", r)
		}
	}()
	fn(rec)
}

// autoRespondEligible applies the reply policy: never to our own messages,
// and to group messages only when explicitly enabled.
func (d *Dispatcher) autoRespondEligible(rec *Record) bool {
	if rec.FromMe {
		return false
	}
	if rec.IsGroup && !d.cfg.RespondToGroups {
		return false
	}
	return true
}
