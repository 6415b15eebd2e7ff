// Package publisher emits audit events to a Store.
//
// Synchronous mode is fail-closed: Emit returns the store error and the
// calling operation must fail. Async mode buffers events and drops them when
// the buffer is full; use it only where losing an event is acceptable.
// Emit after Close returns ErrClosed in either mode.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/requestcontext"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	// mu guards closed and sends on buffer against Close.
	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer switches the publisher to buffered, best-effort delivery.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit fills in timestamp, category and request id, then persists the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if p.buffer == nil {
		if err := p.store.Append(ctx, event); err != nil {
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "audit persistence failed",
					"action", event.Action,
					"holder_id", event.HolderID,
					"error", err,
				)
			}
			return err
		}
		return nil
	}

	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event", "action", event.Action)
		}
		return ErrBufferFull
	}
}

// Close drains buffered events. Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("async audit persistence failed", "action", event.Action, "error", err)
		}
	}
}
