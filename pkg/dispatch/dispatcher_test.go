package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/speaches-ai/realtime-console/pkg/events"
	"github.com/speaches-ai/realtime-console/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleFirstRegistrationWins(t *testing.T) {
	d := New(nil)

	var h1Calls, h2Calls int
	_, err := d.Handle(events.TypeResponseTextDelta, func(context.Context, events.Event) error {
		h1Calls++
		return nil
	})
	require.NoError(t, err)

	_, err = d.Handle(events.TypeResponseTextDelta, func(context.Context, events.Event) error {
		h2Calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrHandlerExists)

	d.Dispatch(context.Background(), events.Event{Type: events.TypeResponseTextDelta})

	assert.Equal(t, 1, h1Calls)
	assert.Zero(t, h2Calls)
}

func TestHandleUnregister(t *testing.T) {
	d := New(nil)

	var calls int
	remove, err := d.Handle(events.TypeResponseCreated, func(context.Context, events.Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	d.Dispatch(context.Background(), events.Event{Type: events.TypeResponseCreated})
	remove()
	d.Dispatch(context.Background(), events.Event{Type: events.TypeResponseCreated})

	assert.Equal(t, 1, calls)

	// The slot is free again after removal.
	_, err = d.Handle(events.TypeResponseCreated, func(context.Context, events.Event) error { return nil })
	assert.NoError(t, err)
}

func TestDispatchInvokesTypedThenGeneric(t *testing.T) {
	d := New(nil)

	var order []string
	_, err := d.Handle(events.TypeResponseDone, func(context.Context, events.Event) error {
		order = append(order, "typed")
		return nil
	})
	require.NoError(t, err)

	d.HandleAny(func(context.Context, events.Event) error {
		order = append(order, "any1")
		return nil
	})
	d.HandleAny(func(context.Context, events.Event) error {
		order = append(order, "any2")
		return nil
	})

	d.Dispatch(context.Background(), events.Event{Type: events.TypeResponseDone})

	assert.Equal(t, []string{"typed", "any1", "any2"}, order)
}

func TestDispatchGenericRunsWithoutTypedHandler(t *testing.T) {
	d := New(nil)

	var calls int
	d.HandleAny(func(context.Context, events.Event) error {
		calls++
		return nil
	})

	d.Dispatch(context.Background(), events.Event{Type: events.TypeSessionCreated})
	d.Dispatch(context.Background(), events.Event{Type: "totally.unknown"})

	assert.Equal(t, 2, calls)
}

func TestDispatchIsolatesHandlerFailures(t *testing.T) {
	d := New(nil)

	var reached []string
	_, err := d.Handle(events.TypeError, func(context.Context, events.Event) error {
		return errors.New("typed handler failed")
	})
	require.NoError(t, err)

	d.HandleAny(func(context.Context, events.Event) error {
		panic("generic handler panicked")
	})
	d.HandleAny(func(context.Context, events.Event) error {
		reached = append(reached, "last")
		return nil
	})

	d.Dispatch(context.Background(), events.Event{Type: events.TypeError})

	assert.Equal(t, []string{"last"}, reached)
}

func TestHandleAnyRemove(t *testing.T) {
	d := New(nil)

	var calls int
	remove := d.HandleAny(func(context.Context, events.Event) error {
		calls++
		return nil
	})

	d.Dispatch(context.Background(), events.Event{Type: events.TypeResponseDone})
	remove()
	d.Dispatch(context.Background(), events.Event{Type: events.TypeResponseDone})

	assert.Equal(t, 1, calls)
}

func TestSendAssignsEventID(t *testing.T) {
	d := New(nil)
	a, b := transport.NewPipe()
	d.Attach(a)

	var raw []byte
	b.OnMessage(func(data []byte) { raw = data })

	require.NoError(t, d.Send(context.Background(), events.Event{Type: events.TypeResponseCreate}))

	var got events.Event
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, events.TypeResponseCreate, got.Type)
	assert.NotEmpty(t, got.EventID)
}

func TestSendKeepsCallerEventID(t *testing.T) {
	d := New(nil)
	a, b := transport.NewPipe()
	d.Attach(a)

	var raw []byte
	b.OnMessage(func(data []byte) { raw = data })

	require.NoError(t, d.Send(context.Background(), events.Event{
		Type:    events.TypeResponseCreate,
		EventID: "evt_fixed",
	}))

	var got events.Event
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "evt_fixed", got.EventID)
}

func TestSendWithoutTransportIsNoOp(t *testing.T) {
	d := New(nil)

	var observed int
	d.OnSent(func(events.Event) { observed++ })

	assert.NoError(t, d.Send(context.Background(), events.Event{Type: events.TypeResponseCreate}))
	assert.Zero(t, observed)
}

func TestOnSentObservesSentEvents(t *testing.T) {
	d := New(nil)
	a, _ := transport.NewPipe()
	d.Attach(a)

	var log []events.Event
	remove := d.OnSent(func(ev events.Event) { log = append(log, ev) })

	require.NoError(t, d.Send(context.Background(), events.Event{Type: events.TypeSessionUpdate}))
	require.Len(t, log, 1)
	assert.Equal(t, events.TypeSessionUpdate, log[0].Type)
	assert.NotEmpty(t, log[0].EventID)

	remove()
	require.NoError(t, d.Send(context.Background(), events.Event{Type: events.TypeResponseCreate}))
	assert.Len(t, log, 1)
}

func TestSendFailsWhenChannelClosed(t *testing.T) {
	d := New(nil)
	a, _ := transport.NewPipe()
	d.Attach(a)
	require.NoError(t, a.Close())

	err := d.Send(context.Background(), events.Event{Type: events.TypeResponseCreate})
	assert.ErrorIs(t, err, transport.ErrClosed)
}
