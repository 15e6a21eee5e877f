package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aicreator-emprenovus/gimmicks-crm/internal/models"
)

// DefaultMaxConcurrent bounds the messages handled at the same time.
const DefaultMaxConcurrent = 16

// InboundHandler processes one inbound message. flow.Engine satisfies it.
type InboundHandler interface {
	HandleInboundMessage(ctx context.Context, msg models.InboundMessage)
}

// Dispatcher feeds a service's inbound messages to a handler, one goroutine
// per message, bounded by a semaphore.
type Dispatcher struct {
	service Service
	handler InboundHandler
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. maxConcurrent <= 0 uses DefaultMaxConcurrent.
func NewDispatcher(service Service, handler InboundHandler, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Dispatcher{
		service: service,
		handler: handler,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Run dispatches until ctx is done or the service channels close, then
// waits for in-flight messages.
func (d *Dispatcher) Run(ctx context.Context) {
	responses := d.service.Responses()
	receipts := d.service.Receipts()
	defer d.wg.Wait()

	for responses != nil || receipts != nil {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: context done, stopping")
			return
		case msg, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			d.dispatch(ctx, msg)
		case r, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			slog.Debug("Dispatcher.Run: receipt", "to", r.To, "message_id", r.MessageID, "status", r.Status)
		}
	}
	slog.Info("Dispatcher.Run: service channels closed")
}

func (d *Dispatcher) dispatch(ctx context.Context, msg models.InboundMessage) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		slog.Warn("Dispatcher.dispatch: shutting down, message not handled", "from", msg.From, "message_id", msg.MessageID)
		return
	}
	// accepted messages run to completion; only their own timeouts stop them
	msgCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		d.handler.HandleInboundMessage(msgCtx, msg)
	}()
}
