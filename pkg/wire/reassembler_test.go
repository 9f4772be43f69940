package wire

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/speaches-ai/realtime-console/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collector() (*[]events.Event, func(events.Event)) {
	var got []events.Event
	return &got, func(ev events.Event) { got = append(got, ev) }
}

func sampleEvent() events.Event {
	return events.Event{
		Type:    events.TypeConversationItemCreated,
		EventID: "evt_0102030405060708",
		Item: &events.Item{
			ID:   "item_1",
			Type: events.ItemMessage,
			Role: "assistant",
			Content: []events.ContentPart{
				{Type: events.ContentText, Text: "The quick brown fox jumps over the lazy dog."},
			},
		},
	}
}

func TestIngestFullMessage(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	ev := sampleEvent()
	raw, err := Encode(ev, NewMessageID())
	require.NoError(t, err)

	r.Ingest(raw)

	require.Len(t, *got, 1)
	assert.Equal(t, ev, (*got)[0])
}

func TestIngestFragmentsAnyOrder(t *testing.T) {
	ev := sampleEvent()

	frames, err := EncodeFragmented(ev, "msg_1", 10)
	require.NoError(t, err)
	require.Greater(t, len(frames), 3)

	// Every permutation of a fixed shuffle seed set; a handful of random
	// orders is enough to cover out-of-order arrival.
	for i := 0; i < 20; i++ {
		t.Run(fmt.Sprintf("shuffle_%d", i), func(t *testing.T) {
			got, emit := collector()
			r := NewReassembler(emit, slog.Default())

			order := rand.Perm(len(frames))
			for _, j := range order {
				r.Ingest(frames[j])
			}

			require.Len(t, *got, 1)
			assert.Equal(t, ev, (*got)[0])
			assert.Zero(t, r.Pending())
		})
	}
}

func TestIngestSingleFragmentMessage(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	ev := sampleEvent()
	frames, err := EncodeFragmented(ev, "msg_1", 1<<20)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	r.Ingest(frames[0])

	require.Len(t, *got, 1)
	assert.Equal(t, ev, (*got)[0])
}

func TestIngestLegacyEvent(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	r.Ingest([]byte(`{"type":"response.text.delta","item_id":"item_1","delta":"Hel"}`))

	require.Len(t, *got, 1)
	assert.Equal(t, events.TypeResponseTextDelta, (*got)[0].Type)
	assert.Equal(t, "Hel", (*got)[0].Delta)
}

func TestIngestDropsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"no type", `{"id":"msg_1","data":"aGk="}`},
		{"bad base64 in full message", `{"type":"full_message","id":"m","data":"!!!not-base64!!!"}`},
		{"payload not an event", `{"type":"full_message","id":"m","data":"bm90IGpzb24="}`},
		{"fragment without index", `{"type":"partial_message","id":"m","data":"aGk=","total_fragments":2}`},
		{"fragment index out of range", `{"type":"partial_message","id":"m","data":"aGk=","fragment_index":2,"total_fragments":2}`},
		{"fragment with zero total", `{"type":"partial_message","id":"m","data":"aGk=","fragment_index":0,"total_fragments":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, emit := collector()
			r := NewReassembler(emit, slog.Default())

			r.Ingest([]byte(tt.raw))

			assert.Empty(t, *got)
		})
	}
}

func TestIngestMismatchedTotalDropsFragment(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	frames, err := EncodeFragmented(sampleEvent(), "msg_1", 20)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 3)

	r.Ingest(frames[0])

	// Same id, conflicting total_fragments: protocol error, fragment dropped,
	// existing record intact.
	idx := 1
	bad, err := json.Marshal(frame{
		Type:           framePartial,
		ID:             "msg_1",
		Data:           "aGk=",
		FragmentIndex:  &idx,
		TotalFragments: len(frames) + 5,
	})
	require.NoError(t, err)
	r.Ingest(bad)

	assert.Empty(t, *got)
	assert.Equal(t, 1, r.Pending())

	// The original message still completes.
	for _, f := range frames[1:] {
		r.Ingest(f)
	}
	assert.Len(t, *got, 1)
	assert.Zero(t, r.Pending())
}

func TestIngestIgnoresDuplicateFragment(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	frames, err := EncodeFragmented(sampleEvent(), "msg_1", 20)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 3)

	// Deliver the first fragment repeatedly: the duplicate must not count
	// toward completion.
	r.Ingest(frames[0])
	r.Ingest(frames[0])
	r.Ingest(frames[0])
	assert.Empty(t, *got)

	for _, f := range frames[1:] {
		r.Ingest(f)
	}
	require.Len(t, *got, 1)
	assert.Equal(t, sampleEvent(), (*got)[0])
}

func TestCompletedIDStartsFreshAssembly(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	frames, err := EncodeFragmented(sampleEvent(), "msg_1", 20)
	require.NoError(t, err)

	for _, f := range frames {
		r.Ingest(f)
	}
	require.Len(t, *got, 1)
	assert.Zero(t, r.Pending())

	// A late fragment reusing the completed id opens a new record instead of
	// resurrecting the old one.
	r.Ingest(frames[0])
	assert.Equal(t, 1, r.Pending())
	assert.Len(t, *got, 1)
}

func TestInterleavedMessagesCompleteIndependently(t *testing.T) {
	got, emit := collector()
	r := NewReassembler(emit, slog.Default())

	first := sampleEvent()
	second := events.Event{Type: events.TypeResponseCreate, EventID: "evt_aaaaaaaaaaaaaaaa"}

	f1, err := EncodeFragmented(first, "msg_1", 15)
	require.NoError(t, err)
	f2, err := EncodeFragmented(second, "msg_2", 15)
	require.NoError(t, err)

	// Start msg_1 first but finish msg_2 before it.
	r.Ingest(f1[0])
	for _, f := range f2 {
		r.Ingest(f)
	}
	for _, f := range f1[1:] {
		r.Ingest(f)
	}

	require.Len(t, *got, 2)
	assert.Equal(t, second, (*got)[0])
	assert.Equal(t, first, (*got)[1])
}

func TestEncodeFragmentedRejectsBadSize(t *testing.T) {
	_, err := EncodeFragmented(sampleEvent(), "msg_1", 0)
	assert.Error(t, err)
}
