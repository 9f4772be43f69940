package wire

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/speaches-ai/realtime-console/pkg/events"
)

// assembly tracks the fragments of one in-flight message. It exists only
// while fragments are outstanding and is removed the instant the last one
// lands.
type assembly struct {
	slots  []string
	filled []bool
	total  int
	count  int
}

// Reassembler converts a stream of raw inbound frames into decoded events.
// Events are emitted in reassembly-completion order, which for interleaved
// multi-fragment messages may differ from frame-arrival order. Malformed
// input is logged and dropped; Ingest never fails outward.
//
// Reassembler is not safe for concurrent use; callers must serialize Ingest.
type Reassembler struct {
	emit    func(events.Event)
	log     *slog.Logger
	pending map[string]*assembly
}

// NewReassembler creates a Reassembler that passes each decoded event to
// emit. A nil logger falls back to slog.Default().
func NewReassembler(emit func(events.Event), log *slog.Logger) *Reassembler {
	if log == nil {
		log = slog.Default()
	}
	return &Reassembler{
		emit:    emit,
		log:     log,
		pending: make(map[string]*assembly),
	}
}

// Pending returns the number of messages with outstanding fragments.
func (r *Reassembler) Pending() int { return len(r.pending) }

// Ingest accepts one raw inbound frame: a full_message, a partial_message
// fragment, or a bare event object (legacy passthrough).
func (r *Reassembler) Ingest(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		r.log.Error("wire: dropping undecodable frame", "err", err)
		return
	}

	switch f.Type {
	case frameFull:
		r.decodeAndEmit(f.ID, f.Data)
	case framePartial:
		r.ingestFragment(f)
	case "":
		r.log.Error("wire: dropping frame without type")
	default:
		// A bare event carrying its own type: pass it through as-is.
		var ev events.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			r.log.Error("wire: dropping malformed legacy event", "err", err)
			return
		}
		r.emit(ev)
	}
}

// ingestFragment files one partial_message slice and completes the message
// when the last slot fills. Completion for a given id happens at most once:
// the record is deleted before decoding, so a late duplicate starts a fresh,
// independent assembly.
func (r *Reassembler) ingestFragment(f frame) {
	if f.ID == "" || f.FragmentIndex == nil || f.TotalFragments <= 0 {
		r.log.Error("wire: dropping fragment with missing framing fields", "id", f.ID)
		return
	}

	idx := *f.FragmentIndex
	if idx < 0 || idx >= f.TotalFragments {
		r.log.Error("wire: dropping fragment with index out of range",
			"id", f.ID, "index", idx, "total", f.TotalFragments)
		return
	}

	a, ok := r.pending[f.ID]
	if !ok {
		a = &assembly{
			slots:  make([]string, f.TotalFragments),
			filled: make([]bool, f.TotalFragments),
			total:  f.TotalFragments,
		}
		r.pending[f.ID] = a
	}

	if a.total != f.TotalFragments {
		r.log.Error("wire: dropping fragment with mismatched total",
			"id", f.ID, "got", f.TotalFragments, "want", a.total)
		return
	}

	// Re-delivery of an already-filled slot is ignored rather than
	// double-counted, so a duplicate can never trigger premature completion.
	if a.filled[idx] {
		r.log.Warn("wire: ignoring duplicate fragment", "id", f.ID, "index", idx)
		return
	}

	a.slots[idx] = f.Data
	a.filled[idx] = true
	a.count++

	if a.count < a.total {
		return
	}

	delete(r.pending, f.ID)

	var encoded []byte
	for _, s := range a.slots {
		encoded = append(encoded, s...)
	}
	r.decodeAndEmit(f.ID, string(encoded))
}

// decodeAndEmit base64-decodes and JSON-parses one complete message payload.
func (r *Reassembler) decodeAndEmit(id, data string) {
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		r.log.Error("wire: dropping message with undecodable payload", "id", id, "err", err)
		return
	}

	var ev events.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.log.Error("wire: dropping message with unparseable event", "id", id, "err", err)
		return
	}

	r.emit(ev)
}
