package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// DecodeResponse normalizes a non-streaming chat completion body.
//
// Tolerated variations: missing usage (zero counters), missing finish_reason
// ("stop"), content given as an array of parts (flattened to text), tool_calls
// given as a single object, and function arguments given as a JSON object
// instead of an encoded string.
func DecodeResponse(data []byte) (*ChatCompletionResponse, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrMalformedResponse, root.Type)
	}
	if apiErr := decodeInBandError(root); apiErr != nil {
		return nil, apiErr
	}

	resp := &ChatCompletionResponse{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
		Usage: decodeUsage(root.Get("usage")),
	}

	for i, choice := range listOf(root.Get("choices")) {
		finishReason := choice.Get("finish_reason").String()
		if finishReason == "" {
			finishReason = "stop"
		}
		message := choice.Get("message")
		resp.Choices = append(resp.Choices, Choice{
			Index: indexOr(choice, i),
			Message: ResponseMessage{
				Role:      message.Get("role").String(),
				Content:   decodeText(message.Get("content")),
				ToolCalls: decodeToolCalls(message.Get("tool_calls")),
			},
			FinishReason: finishReason,
		})
	}

	return resp, nil
}

// DecodeChunk normalizes one streamed data payload. Unlike DecodeResponse, an
// absent finish_reason stays empty. Some servers send "message" instead of
// "delta" in stream chunks; both are accepted.
func DecodeChunk(data []byte) (*ChatCompletionChunk, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("expected object, got %s", root.Type)
	}
	if apiErr := decodeInBandError(root); apiErr != nil {
		return nil, apiErr
	}

	chunk := &ChatCompletionChunk{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
	}
	if usage := root.Get("usage"); usage.IsObject() {
		u := decodeUsage(usage)
		chunk.Usage = &u
	}

	for i, choice := range listOf(root.Get("choices")) {
		delta := choice.Get("delta")
		if !delta.Exists() {
			delta = choice.Get("message")
		}

		var toolCalls []ToolCallDelta
		for j, call := range listOf(delta.Get("tool_calls")) {
			toolCalls = append(toolCalls, ToolCallDelta{
				Index:     indexOr(call, j),
				ID:        call.Get("id").String(),
				Name:      call.Get("function.name").String(),
				Arguments: decodeArguments(call.Get("function.arguments")),
			})
		}

		chunk.Choices = append(chunk.Choices, ChunkChoice{
			Index: indexOr(choice, i),
			Delta: Delta{
				Role:      delta.Get("role").String(),
				Content:   decodeText(delta.Get("content")),
				ToolCalls: toolCalls,
			},
			FinishReason: choice.Get("finish_reason").String(),
		})
	}

	return chunk, nil
}

// decodeInBandError returns an APIError when the payload is an error envelope.
func decodeInBandError(root gjson.Result) *APIError {
	errField := root.Get("error")
	if !errField.Exists() || errField.Type == gjson.Null {
		return nil
	}
	if errField.Type == gjson.String {
		return &APIError{Message: errField.String()}
	}
	message := errField.Get("message").String()
	if message == "" {
		message = errField.Raw
	}
	return &APIError{
		Type:    errField.Get("type").String(),
		Message: message,
	}
}

// decodeUsage reads token counters; cached prompt tokens are reported under
// prompt_tokens_details by OpenAI.
func decodeUsage(usage gjson.Result) Usage {
	return Usage{
		PromptTokens:     int(usage.Get("prompt_tokens").Int()),
		CompletionTokens: int(usage.Get("completion_tokens").Int()),
		TotalTokens:      int(usage.Get("total_tokens").Int()),
		CachedTokens:     int(usage.Get("prompt_tokens_details.cached_tokens").Int()),
	}
}

// decodeToolCalls reads complete tool calls from a non-streaming message.
func decodeToolCalls(value gjson.Result) []ToolCall {
	var calls []ToolCall
	for _, call := range listOf(value) {
		callType := call.Get("type").String()
		if callType == "" {
			callType = ToolTypeFunction
		}
		calls = append(calls, ToolCall{
			ID:   call.Get("id").String(),
			Type: callType,
			Function: FunctionCall{
				Name:      call.Get("function.name").String(),
				Arguments: decodeArguments(call.Get("function.arguments")),
			},
		})
	}
	return calls
}

// decodeArguments returns function arguments as an encoded JSON string. Some
// servers send the arguments object itself rather than its encoding.
func decodeArguments(value gjson.Result) string {
	switch {
	case !value.Exists() || value.Type == gjson.Null:
		return ""
	case value.Type == gjson.String:
		return value.String()
	default:
		return value.Raw
	}
}

// decodeText flattens string or parts-array content into plain text.
func decodeText(value gjson.Result) string {
	switch {
	case value.Type == gjson.String:
		return value.String()
	case value.IsArray():
		var sb strings.Builder
		for _, part := range value.Array() {
			if part.Type == gjson.String {
				sb.WriteString(part.String())
				continue
			}
			if partType := part.Get("type").String(); partType != "" && partType != "text" {
				continue
			}
			sb.WriteString(part.Get("text").String())
		}
		return sb.String()
	default:
		return ""
	}
}

// listOf treats a single object as a one-element list.
func listOf(value gjson.Result) []gjson.Result {
	switch {
	case value.IsArray():
		return value.Array()
	case value.IsObject():
		return []gjson.Result{value}
	default:
		return nil
	}
}

// indexOr returns the explicit "index" field or the fallback position.
func indexOr(value gjson.Result, fallback int) int {
	if index := value.Get("index"); index.Exists() && index.Type == gjson.Number {
		return int(index.Int())
	}
	return fallback
}
