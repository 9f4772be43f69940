// Package convo provides the ordered, keyed conversation container shown in
// the console.
package convo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/speaches-ai/realtime-console/pkg/events"
)

var (
	// ErrMissingID is returned when an item without an id is upserted.
	ErrMissingID = errors.New("convo: item id is required")
	// ErrUnknownItem is returned when a delta addresses an item that does
	// not exist.
	ErrUnknownItem = errors.New("convo: unknown item")
	// ErrIncompatibleItem is returned when a delta addresses an item that
	// cannot accumulate text.
	ErrIncompatibleItem = errors.New("convo: item cannot accept deltas")
)

// Conversation is a mutable, ordered collection of conversation items keyed
// by id. Insertion order is preserved for display; lookup is by key.
// Conversation is safe for concurrent use: the event dispatcher mutates it
// from its delivery goroutine while the UI reads it from another. Returned
// items are snapshots; deltas copy content parts before writing, so a
// snapshot never observes a later mutation.
type Conversation struct {
	mu        sync.RWMutex
	order     []string
	items     map[string]events.Item
	updateFns []func()
}

// New creates an empty Conversation.
func New() *Conversation {
	return &Conversation{items: make(map[string]events.Item)}
}

// OnUpdate registers fn to run after every successful mutation. Used by the
// host for display refresh and persistence. Callbacks run outside the
// container's lock and may read the conversation.
func (c *Conversation) OnUpdate(fn func()) {
	c.mu.Lock()
	c.updateFns = append(c.updateFns, fn)
	c.mu.Unlock()
}

// Upsert inserts the item or, when an item with the same id already exists,
// replaces it entirely. Replacement keeps the item's original position.
func (c *Conversation) Upsert(item events.Item) error {
	if item.ID == "" {
		return ErrMissingID
	}

	c.mu.Lock()
	if _, ok := c.items[item.ID]; !ok {
		c.order = append(c.order, item.ID)
	}
	c.items[item.ID] = item
	fns := c.updateFnsLocked()
	c.mu.Unlock()

	notify(fns)
	return nil
}

// AddDelta appends delta text to the item's first content part. Only legal
// on message items whose first part is text, input_text, or audio; text
// parts accumulate into Text, audio parts into Transcript.
func (c *Conversation) AddDelta(id, delta string) error {
	c.mu.Lock()

	item, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownItem, id)
	}

	if item.Type != events.ItemMessage || len(item.Content) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrIncompatibleItem, id)
	}

	// Copy-on-write: previously returned snapshots share the content
	// backing array and must not observe this append.
	content := make([]events.ContentPart, len(item.Content))
	copy(content, item.Content)

	switch content[0].Type {
	case events.ContentText, events.ContentInputText:
		content[0].Text += delta
	case events.ContentAudio:
		content[0].Transcript += delta
	default:
		kind := content[0].Type
		c.mu.Unlock()
		return fmt.Errorf("%w: %q has content kind %q", ErrIncompatibleItem, id, kind)
	}

	item.Content = content
	c.items[id] = item
	fns := c.updateFnsLocked()
	c.mu.Unlock()

	notify(fns)
	return nil
}

// Get returns the item with the given id.
func (c *Conversation) Get(id string) (events.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	return item, ok
}

// Len returns the number of items.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.order)
}

// Items returns all items in insertion order.
func (c *Conversation) Items() []events.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]events.Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Serialize returns a copy of the item map keyed by id, for persistence.
func (c *Conversation) Serialize() map[string]events.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]events.Item, len(c.items))
	for id, item := range c.items {
		out[id] = item
	}
	return out
}

func (c *Conversation) updateFnsLocked() []func() {
	fns := make([]func(), len(c.updateFns))
	copy(fns, c.updateFns)
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
