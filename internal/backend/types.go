package backend

import (
	"encoding/json"
	"strings"
)

// ChatCompletionRequest is the outbound chat completion request body.
type ChatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []ChatMessage  `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	TopK          *int           `json:"top_k,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	User          string         `json:"user,omitempty"`
}

// StreamOptions requests a trailing usage chunk on streamed responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry of the conversation sent upstream.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    MessageContent `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// MessageContent is the content of a ChatMessage: null, a plain string, or an
// array of content parts. Parts take precedence over Text when both are set.
type MessageContent struct {
	Text  *string
	Parts []ContentPart
}

// TextContent returns string content.
func TextContent(s string) MessageContent {
	return MessageContent{Text: &s}
}

// MarshalJSON encodes the content as null, a string or a parts array.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	switch {
	case len(c.Parts) > 0:
		return json.Marshal(c.Parts)
	case c.Text != nil:
		return json.Marshal(*c.Text)
	default:
		return []byte("null"), nil
	}
}

// String returns the textual portion of the content.
func (c MessageContent) String() string {
	if len(c.Parts) == 0 {
		if c.Text == nil {
			return ""
		}
		return *c.Text
	}
	var texts []string
	for _, part := range c.Parts {
		if part.Type == ContentPartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Content part types.
const (
	ContentPartTypeText     = "text"
	ContentPartTypeImageURL = "image_url"
)

// ContentPart is one element of an array-valued message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ToolTypeFunction is the only tool type chat completion backends understand.
const ToolTypeFunction = "function"

// Tool declares a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function and its JSON Schema parameters.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// NamedToolChoice forces the model to call one specific function.
type NamedToolChoice struct {
	Type     string       `json:"type"`
	Function FunctionName `json:"function"`
}

// FunctionName identifies a function by name.
type FunctionName struct {
	Name string `json:"name"`
}

// ToolCall is a complete function invocation, either sent back upstream as part
// of an assistant message or decoded from a non-streaming response.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionResponse is the canonical form of a non-streaming reply.
type ChatCompletionResponse struct {
	ID      string
	Model   string
	Choices []Choice
	Usage   Usage
}

// Choice is one completion alternative. FinishReason defaults to "stop" when the
// upstream omits it.
type Choice struct {
	Index        int
	Message      ResponseMessage
	FinishReason string
}

// ResponseMessage is the assistant message of a Choice.
type ResponseMessage struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// Usage holds token accounting. Missing counters decode as zero.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
}

// ChatCompletionChunk is the canonical form of one streamed reply fragment.
// Usage is nil unless the chunk carried usage information.
type ChatCompletionChunk struct {
	ID      string
	Model   string
	Choices []ChunkChoice
	Usage   *Usage
}

// ChunkChoice is the incremental update of one completion alternative.
// FinishReason is empty until the upstream reports one.
type ChunkChoice struct {
	Index        int
	Delta        Delta
	FinishReason string
}

// Delta carries newly generated text and tool-call fragments.
type Delta struct {
	Role      string
	Content   string
	ToolCalls []ToolCallDelta
}

// ToolCallDelta is an incremental tool-call fragment. ID and Name are typically
// present only on the first fragment of a call; Arguments is a raw fragment of
// the JSON-encoded argument string.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}
