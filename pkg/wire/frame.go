// Package wire implements the data-channel framing protocol: events too
// large for a single transport frame are base64-encoded and split into
// fragments which the receiver reassembles before decoding.
package wire

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/speaches-ai/realtime-console/pkg/events"
)

// Envelope frame types. Any other JSON object carrying a "type" field is
// treated as a bare, already-decoded event (legacy passthrough).
const (
	frameFull    = "full_message"
	framePartial = "partial_message"
)

// frame is the wire shape shared by full and partial messages. For partial
// messages Data holds one slice of the base64 encoding of the complete
// JSON-encoded event; slices must be concatenated before base64 decoding.
type frame struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	Data           string `json:"data,omitempty"`
	FragmentIndex  *int   `json:"fragment_index,omitempty"`
	TotalFragments int    `json:"total_fragments,omitempty"`
}

// NewMessageID produces a unique framing message identifier.
func NewMessageID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "msg_" + hex.EncodeToString(b)
}

// Encode wraps ev in a single full_message frame with the given message id.
func Encode(ev events.Event, id string) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("wire: encode event: %w", err)
	}

	return json.Marshal(frame{
		Type: frameFull,
		ID:   id,
		Data: base64.StdEncoding.EncodeToString(payload),
	})
}

// EncodeFragmented splits ev into partial_message frames whose data slices
// hold at most maxLen bytes of the base64 encoding each. The split point is
// arbitrary: slices are cut mid-encoding, not at base64 block boundaries.
func EncodeFragmented(ev events.Event, id string, maxLen int) ([][]byte, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("wire: fragment size must be positive, got %d", maxLen)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("wire: encode event: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	total := (len(encoded) + maxLen - 1) / maxLen
	if total == 0 {
		total = 1
	}

	frames := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxLen
		end := min(start+maxLen, len(encoded))

		idx := i
		data, err := json.Marshal(frame{
			Type:           framePartial,
			ID:             id,
			Data:           encoded[start:end],
			FragmentIndex:  &idx,
			TotalFragments: total,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: encode fragment %d: %w", i, err)
		}
		frames = append(frames, data)
	}

	return frames, nil
}
