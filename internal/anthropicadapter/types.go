package anthropicadapter

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// MessagesRequest is the body of POST /v1/messages.
//
// System and message content are kept raw: both accept a plain string or a list of
// block objects, and the block list is normalized by the adapter.
type MessagesRequest struct {
	Model         string          `json:"model" validate:"required"`
	MaxTokens     int             `json:"max_tokens" validate:"gte=1"`
	Messages      []Message       `json:"messages" validate:"required,min=1,dive"`
	System        json.RawMessage `json:"system,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty" validate:"omitnil,gte=0,lte=2"`
	TopP          *float64        `json:"top_p,omitempty" validate:"omitnil,gte=0,lte=1"`
	TopK          *int            `json:"top_k,omitempty" validate:"omitnil,gte=0"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
	Tools         []Tool          `json:"tools,omitempty" validate:"dive"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      json.RawMessage `json:"thinking,omitempty"`
}

// TokenCountRequest is the body of POST /v1/messages/count_tokens.
type TokenCountRequest struct {
	Model      string          `json:"model" validate:"required"`
	Messages   []Message       `json:"messages" validate:"required,min=1,dive"`
	System     json.RawMessage `json:"system,omitempty"`
	Tools      []Tool          `json:"tools,omitempty" validate:"dive"`
	ToolChoice *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking   json.RawMessage `json:"thinking,omitempty"`
}

// MessagesRequest returns the generation request equivalent to the count request.
func (r *TokenCountRequest) MessagesRequest() *MessagesRequest {
	return &MessagesRequest{
		Model:      r.Model,
		MaxTokens:  1,
		Messages:   r.Messages,
		System:     r.System,
		Tools:      r.Tools,
		ToolChoice: r.ToolChoice,
		Thinking:   r.Thinking,
	}
}

// TokenCountResponse is the reply of POST /v1/messages/count_tokens.
type TokenCountResponse struct {
	InputTokens int `json:"input_tokens"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn. Content is a string or a list of blocks.
type Message struct {
	Role    string          `json:"role" validate:"oneof=user assistant"`
	Content json.RawMessage `json:"content" validate:"required"`
}

// Metadata carries request metadata.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Tool declares a client tool.
type Tool struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Tool choice types.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceAny  = "any"
	ToolChoiceTool = "tool"
	ToolChoiceNone = "none"
)

// ToolChoice controls whether and which tools the model uses.
type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

// Content block types.
const (
	BlockTypeText       = "text"
	BlockTypeImage      = "image"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// ContentBlock is a normalized content block. Only the fields of its Type are set:
//
//	text:        Text
//	image:       Source
//	tool_use:    ID, Name, Input
//	tool_result: ToolUseID, ResultContent, IsError
type ContentBlock struct {
	Type string

	Text string

	Source *ImageSource

	ID    string
	Name  string
	Input json.RawMessage

	ToolUseID     string
	ResultContent json.RawMessage
	IsError       bool
}

// ImageSource is the payload of an image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// TextBlock returns a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// MarshalJSON encodes the block in Anthropic wire format. Text blocks always carry
// "text" and tool_use blocks always carry an object "input", even when empty.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockTypeText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})

	case BlockTypeToolUse:
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return json.Marshal(struct {
			Type  string          `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{b.Type, b.ID, b.Name, input})

	case BlockTypeToolResult:
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content,omitempty"`
			IsError   bool            `json:"is_error,omitempty"`
		}{b.Type, b.ToolUseID, b.ResultContent, b.IsError})

	case BlockTypeImage:
		return json.Marshal(struct {
			Type   string       `json:"type"`
			Source *ImageSource `json:"source"`
		}{b.Type, b.Source})

	default:
		return nil, fmt.Errorf("unknown content block type %q", b.Type)
	}
}

// MessagesResponse is the non-streaming reply of POST /v1/messages.
type MessagesResponse struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	Role         string               `json:"role"`
	Model        string               `json:"model"`
	Content      []ContentBlock       `json:"content"`
	StopReason   anthropic.StopReason `json:"stop_reason"`
	StopSequence *string              `json:"stop_sequence"`
	Usage        Usage                `json:"usage"`
}

// Usage reports token accounting.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

// StopReasonError marks a stream that ended because the upstream failed. It is
// not part of the SDK's StopReason constants.
const StopReasonError anthropic.StopReason = "error"
