package anthropicadapter

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Frame is one server-sent event, formatted and ready to be written verbatim.
type Frame string

// DoneFrame terminates every stream, after message_stop.
const DoneFrame Frame = "data: [DONE]\n\n"

// Stream event types.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
)

// NewFrame formats an event whose payload is JSON-encoded on one data line.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", event, err)
	}
	return Frame("event: " + event + "\ndata: " + string(data) + "\n\n"), nil
}

// MessageStartEvent opens a stream with an empty message shell.
type MessageStartEvent struct {
	Type    string        `json:"type"`
	Message StreamedShell `json:"message"`
}

// StreamedShell is the message announced by message_start. Content is always empty
// and stop fields are null; both are filled by later events.
type StreamedShell struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ContentBlockStartEvent opens the block at Index.
type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// Delta types.
const (
	DeltaTypeText      = "text_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// ContentBlockDeltaEvent appends to the block at Index.
type ContentBlockDeltaEvent struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

// BlockDelta is a text_delta (Text) or an input_json_delta (PartialJSON).
type BlockDelta struct {
	Type        string
	Text        string
	PartialJSON string
}

// MarshalJSON always emits the payload field of the delta type, even when empty.
func (d BlockDelta) MarshalJSON() ([]byte, error) {
	if d.Type == DeltaTypeInputJSON {
		return json.Marshal(struct {
			Type        string `json:"type"`
			PartialJSON string `json:"partial_json"`
		}{d.Type, d.PartialJSON})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{d.Type, d.Text})
}

// ContentBlockStopEvent closes the block at Index.
type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaEvent carries the final stop reason and token usage.
type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage DeltaUsage   `json:"usage"`
}

// MessageDelta holds the top-level fields changed at the end of a message.
type MessageDelta struct {
	StopReason   anthropic.StopReason `json:"stop_reason"`
	StopSequence *string              `json:"stop_sequence"`
}

// DeltaUsage is the cumulative usage reported by message_delta.
type DeltaUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TypeOnlyEvent is the payload of events without fields (message_stop, ping).
type TypeOnlyEvent struct {
	Type string `json:"type"`
}
