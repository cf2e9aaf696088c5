package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Name identifies an in-process workflow event.
type Name string

const (
	// DocumentFullySigned fires once per document when every signature request is signed.
	DocumentFullySigned Name = "document_fully_signed"
)

// Event is the envelope handed to subscribers.
type Event struct {
	Name       Name
	RoomID     uuid.UUID
	ActorID    *uuid.UUID
	OccurredAt time.Time
	Data       any
}

// DocumentFullySignedData is the payload carried by DocumentFullySigned.
type DocumentFullySignedData struct {
	DocumentID uuid.UUID
	SignerIDs  []uuid.UUID
}

// Outcome lets a handler surface follow-up work that must run after the
// enclosing transaction commits, such as user notifications.
type Outcome struct {
	AfterCommit []func(ctx context.Context)
}

// Handler runs inside the publisher's transaction. Returning an error undoes
// the handler's writes; whether the publisher's own writes survive is the
// publisher's choice.
type Handler func(ctx context.Context, tx *gorm.DB, event Event) (Outcome, error)

// Bus dispatches events synchronously to registered handlers in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Name][]Handler)}
}

// Subscribe registers handler for name.
func (b *Bus) Subscribe(name Name, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Dispatch invokes every handler for the event inside tx and stops at the
// first failure.
func (b *Bus) Dispatch(ctx context.Context, tx *gorm.DB, event Event) (Outcome, error) {
	if tx == nil {
		return Outcome{}, fmt.Errorf("dispatch %s: transaction required", event.Name)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Name]...)
	b.mu.RUnlock()

	var combined Outcome
	for i, handler := range handlers {
		outcome, err := handler(ctx, tx, event)
		if err != nil {
			return Outcome{}, fmt.Errorf("dispatch %s handler %d: %w", event.Name, i, err)
		}
		combined.AfterCommit = append(combined.AfterCommit, outcome.AfterCommit...)
	}
	return combined, nil
}

// Run executes the deferred work collected from handlers.
func (o Outcome) Run(ctx context.Context) {
	for _, fn := range o.AfterCommit {
		if fn != nil {
			fn(ctx)
		}
	}
}
