// Package dispatch routes decoded realtime events to registered consumers
// and provides outbound send with client event-id assignment.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/speaches-ai/realtime-console/pkg/events"
	"github.com/speaches-ai/realtime-console/pkg/transport"
)

// ErrHandlerExists is returned by Handle when a typed handler is already
// registered. The existing handler stays in effect; the new one is never
// invoked. This single-owner-per-type contract is deliberate: protocol
// semantics for one event type belong to exactly one component.
var ErrHandlerExists = errors.New("dispatch: handler already registered for type")

// Handler consumes one event. A returned error is logged and isolated; it
// never aborts delivery to remaining handlers.
type Handler func(ctx context.Context, ev events.Event) error

type anyEntry struct{ fn Handler }

type sentEntry struct{ fn func(events.Event) }

// Dispatcher delivers each event to at most one type-specific handler and
// to every generic handler, in registration order. Delivery of one event
// completes before the next begins.
type Dispatcher struct {
	log *slog.Logger

	mu      sync.Mutex
	channel transport.Channel
	typed   map[events.Type]Handler
	any     []*anyEntry
	sent    []*sentEntry

	// dispatchMu serializes event delivery so handlers never observe
	// concurrent conversation mutations.
	dispatchMu sync.Mutex
}

// New creates a Dispatcher. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:   log,
		typed: make(map[events.Type]Handler),
	}
}

// Attach sets the outbound channel used by Send.
func (d *Dispatcher) Attach(ch transport.Channel) {
	d.mu.Lock()
	d.channel = ch
	d.mu.Unlock()
}

// Handle registers the sole handler for the given event type and returns a
// function that removes the registration. If a handler is already
// registered the call is a diagnosed no-op: the existing handler is kept
// and ErrHandlerExists is returned.
func (d *Dispatcher) Handle(t events.Type, h Handler) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.typed[t]; ok {
		d.log.Warn("dispatch: handler conflict, keeping first registration", "type", t)
		return func() {}, fmt.Errorf("%w: %q", ErrHandlerExists, t)
	}

	d.typed[t] = h
	return func() {
		d.mu.Lock()
		delete(d.typed, t)
		d.mu.Unlock()
	}, nil
}

// HandleAny adds a generic handler invoked for every event, after the typed
// handler. Returns a removal function.
func (d *Dispatcher) HandleAny(h Handler) func() {
	e := &anyEntry{fn: h}

	d.mu.Lock()
	d.any = append(d.any, e)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, cur := range d.any {
			if cur == e {
				d.any = append(d.any[:i], d.any[i+1:]...)
				return
			}
		}
	}
}

// OnSent registers an observer for successfully sent client events, used by
// the host for the event log. Returns a removal function.
func (d *Dispatcher) OnSent(fn func(events.Event)) func() {
	e := &sentEntry{fn: fn}

	d.mu.Lock()
	d.sent = append(d.sent, e)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, cur := range d.sent {
			if cur == e {
				d.sent = append(d.sent[:i], d.sent[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers ev to the typed handler (if registered) and then to all
// generic handlers. Handler errors and panics are logged per handler and do
// not stop delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.Event) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	d.mu.Lock()
	typed := d.typed[ev.Type]
	generic := make([]*anyEntry, len(d.any))
	copy(generic, d.any)
	d.mu.Unlock()

	if !ev.Type.Known() && typed == nil {
		d.log.Warn("dispatch: unrecognized event type", "type", ev.Type)
	}

	if typed != nil {
		d.run(ctx, ev, typed)
	}
	for _, e := range generic {
		d.run(ctx, ev, e.fn)
	}
}

// Send assigns a fresh event_id when absent, serializes ev, and transmits
// it. With no channel attached the call is a logged no-op. Sent events are
// reported to OnSent observers.
func (d *Dispatcher) Send(ctx context.Context, ev events.Event) error {
	d.mu.Lock()
	ch := d.channel
	observers := make([]*sentEntry, len(d.sent))
	copy(observers, d.sent)
	d.mu.Unlock()

	if ch == nil {
		d.log.Error("dispatch: cannot send, no transport attached", "type", ev.Type)
		return nil
	}

	if ev.EventID == "" {
		ev.EventID = events.NewEventID()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("dispatch: encode event: %w", err)
	}

	if err := ch.Send(ctx, data); err != nil {
		return fmt.Errorf("dispatch: send event: %w", err)
	}

	for _, e := range observers {
		e.fn(ev)
	}
	return nil
}

// run invokes one handler with panic isolation.
func (d *Dispatcher) run(ctx context.Context, ev events.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch: handler panicked", "type", ev.Type, "panic", r)
		}
	}()

	if err := h(ctx, ev); err != nil {
		d.log.Error("dispatch: handler failed", "type", ev.Type, "err", err)
	}
}
