package openaichat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

func completion(content, finishReason string, toolCalls ...backend.ToolCall) *backend.ChatCompletionResponse {
	return &backend.ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "upstream-model",
		Choices: []backend.Choice{{
			Message: backend.ResponseMessage{
				Role:      "assistant",
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: finishReason,
		}},
		Usage: backend.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
	}
}

func weatherCall(id, arguments string) backend.ToolCall {
	return backend.ToolCall{
		ID:       id,
		Type:     backend.ToolTypeFunction,
		Function: backend.FunctionCall{Name: "get_weather", Arguments: arguments},
	}
}

func TestToMessagesResponse(t *testing.T) {
	tests := []struct {
		name  string
		resp  *backend.ChatCompletionResponse
		model string
		want  *anthropicadapter.MessagesResponse
	}{
		{
			name:  "text reply",
			resp:  completion("Hi", "stop"),
			model: "gpt-4o",
			want: &anthropicadapter.MessagesResponse{
				ID:         "chatcmpl-1",
				Type:       "message",
				Role:       "assistant",
				Model:      "gpt-4o",
				Content:    []anthropicadapter.ContentBlock{anthropicadapter.TextBlock("Hi")},
				StopReason: anthropic.StopReasonEndTurn,
				Usage:      anthropicadapter.Usage{InputTokens: 5, OutputTokens: 2},
			},
		},
		{
			name:  "empty reply keeps a text block",
			resp:  completion("", "length"),
			model: "gpt-4o",
			want: &anthropicadapter.MessagesResponse{
				ID:         "chatcmpl-1",
				Type:       "message",
				Role:       "assistant",
				Model:      "gpt-4o",
				Content:    []anthropicadapter.ContentBlock{anthropicadapter.TextBlock("")},
				StopReason: anthropic.StopReasonMaxTokens,
				Usage:      anthropicadapter.Usage{InputTokens: 5, OutputTokens: 2},
			},
		},
		{
			name:  "tool_use blocks for matching model",
			resp:  completion("Checking.", "tool_calls", weatherCall("call_1", `{ "city": "Paris" }`), weatherCall("call_2", "not json")),
			model: "anthropic/claude-3-5-sonnet",
			want: &anthropicadapter.MessagesResponse{
				ID:    "chatcmpl-1",
				Type:  "message",
				Role:  "assistant",
				Model: "anthropic/claude-3-5-sonnet",
				Content: []anthropicadapter.ContentBlock{
					anthropicadapter.TextBlock("Checking."),
					{Type: "tool_use", ID: "call_1", Name: "get_weather", Input: json.RawMessage(`{"city":"Paris"}`)},
					{Type: "tool_use", ID: "call_2", Name: "get_weather", Input: json.RawMessage(`{"raw":"not json"}`)},
				},
				StopReason: anthropic.StopReasonToolUse,
				Usage:      anthropicadapter.Usage{InputTokens: 5, OutputTokens: 2},
			},
		},
		{
			name:  "tool calls rendered as text for other models",
			resp:  completion("Checking.", "tool_calls", weatherCall("call_1", `{"city":"Paris"}`)),
			model: "gpt-4o",
			want: &anthropicadapter.MessagesResponse{
				ID:    "chatcmpl-1",
				Type:  "message",
				Role:  "assistant",
				Model: "gpt-4o",
				Content: []anthropicadapter.ContentBlock{
					anthropicadapter.TextBlock("Checking.\n\nTool usage:\nTool: get_weather\nArguments: {\n  \"city\": \"Paris\"\n}\n\n"),
				},
				StopReason: anthropic.StopReasonToolUse,
				Usage:      anthropicadapter.Usage{InputTokens: 5, OutputTokens: 2},
			},
		},
		{
			name:  "tool call text without content and with invalid arguments",
			resp:  completion("", "tool_calls", weatherCall("call_1", "{broken")),
			model: "gpt-4o",
			want: &anthropicadapter.MessagesResponse{
				ID:    "chatcmpl-1",
				Type:  "message",
				Role:  "assistant",
				Model: "gpt-4o",
				Content: []anthropicadapter.ContentBlock{
					anthropicadapter.TextBlock("\n\nTool usage:\nTool: get_weather\nArguments: {broken\n\n"),
				},
				StopReason: anthropic.StopReasonToolUse,
				Usage:      anthropicadapter.Usage{InputTokens: 5, OutputTokens: 2},
			},
		},
		{
			name: "missing finish reason and cached tokens",
			resp: &backend.ChatCompletionResponse{
				ID:      "chatcmpl-2",
				Choices: []backend.Choice{{Message: backend.ResponseMessage{Content: "ok"}}},
				Usage:   backend.Usage{PromptTokens: 100, CompletionTokens: 3, CachedTokens: 64},
			},
			model: "gpt-4o",
			want: &anthropicadapter.MessagesResponse{
				ID:         "chatcmpl-2",
				Type:       "message",
				Role:       "assistant",
				Model:      "gpt-4o",
				Content:    []anthropicadapter.ContentBlock{anthropicadapter.TextBlock("ok")},
				StopReason: anthropic.StopReasonEndTurn,
				Usage:      anthropicadapter.Usage{InputTokens: 100, OutputTokens: 3, CacheReadInputTokens: 64},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toMessagesResponse(context.Background(), tt.resp, tt.model, DefaultOptions())

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("toMessagesResponse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToMessagesResponseGeneratesIDs(t *testing.T) {
	resp := completion("", "tool_calls", weatherCall("", ""))
	resp.ID = ""

	got := toMessagesResponse(context.Background(), resp, "claude-3-haiku", DefaultOptions())

	if !strings.HasPrefix(got.ID, "msg_") || len(got.ID) != len("msg_")+24 {
		t.Errorf("message ID = %q, want msg_ followed by 24 characters", got.ID)
	}

	want := []anthropicadapter.ContentBlock{
		{Type: "tool_use", Name: "get_weather", Input: json.RawMessage("{}")},
	}
	opt := cmpopts.IgnoreFields(anthropicadapter.ContentBlock{}, "ID")
	if diff := cmp.Diff(want, got.Content, opt); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(got.Content[0].ID, "toolu_") {
		t.Errorf("tool use ID = %q, want toolu_ prefix", got.Content[0].ID)
	}
}

func TestToMessagesResponseDegrades(t *testing.T) {
	got := toMessagesResponse(context.Background(), nil, "gpt-4o", DefaultOptions())

	if len(got.Content) != 1 || !strings.HasPrefix(got.Content[0].Text, "Error converting response: ") {
		t.Fatalf("content = %+v, want a single error text block", got.Content)
	}
	if got.StopReason != anthropic.StopReasonEndTurn {
		t.Errorf("stop reason = %q, want end_turn", got.StopReason)
	}
	if got.Usage != (anthropicadapter.Usage{}) {
		t.Errorf("usage = %+v, want zero", got.Usage)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", got.Model)
	}
}

func TestToStopReason(t *testing.T) {
	tests := map[string]anthropic.StopReason{
		"stop":           anthropic.StopReasonEndTurn,
		"length":         anthropic.StopReasonMaxTokens,
		"tool_calls":     anthropic.StopReasonToolUse,
		"content_filter": anthropic.StopReasonEndTurn,
		"function_call":  anthropic.StopReasonEndTurn,
		"":               anthropic.StopReasonEndTurn,
	}

	for finishReason, want := range tests {
		if got := toStopReason(finishReason); got != want {
			t.Errorf("toStopReason(%q) = %q, want %q", finishReason, got, want)
		}
	}
}

func TestRendersToolBlocks(t *testing.T) {
	prefixes := []string{"claude-"}

	tests := map[string]bool{
		"claude-3-5-sonnet":           true,
		"anthropic/claude-3-5-sonnet": true,
		"openai/gpt-4o":               false,
		"gpt-4o":                      false,
		"my-claude-clone":             false,
	}

	for model, want := range tests {
		if got := rendersToolBlocks(model, prefixes); got != want {
			t.Errorf("rendersToolBlocks(%q) = %v, want %v", model, got, want)
		}
	}
}
