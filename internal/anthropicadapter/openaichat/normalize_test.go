package openaichat

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []anthropicadapter.ContentBlock
	}{
		{name: "null", raw: `null`, want: nil},
		{name: "string", raw: `"hello"`, want: []anthropicadapter.ContentBlock{anthropicadapter.TextBlock("hello")}},
		{name: "number", raw: `42`, want: []anthropicadapter.ContentBlock{anthropicadapter.TextBlock("42")}},
		{
			name: "mixed list",
			raw: `[
				"plain",
				{"type": "text", "text": "block"},
				{"type": "tool_use", "id": "toolu_1", "name": "f"},
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "done", "is_error": true},
				{"type": "weird", "value": 1},
				7
			]`,
			want: []anthropicadapter.ContentBlock{
				anthropicadapter.TextBlock("plain"),
				anthropicadapter.TextBlock("block"),
				{Type: "tool_use", ID: "toolu_1", Name: "f", Input: json.RawMessage("{}")},
				{Type: "tool_result", ToolUseID: "toolu_1", ResultContent: json.RawMessage(`"done"`), IsError: true},
				anthropicadapter.TextBlock(`{"type":"weird","value":1}`),
				anthropicadapter.TextBlock("7"),
			},
		},
		{
			name: "image",
			raw:  `[{"type":"image","source":{"type":"base64","media_type":"image/gif","data":"R0lG"}}]`,
			want: []anthropicadapter.ContentBlock{{
				Type:   "image",
				Source: &anthropicadapter.ImageSource{Type: "base64", MediaType: "image/gif", Data: "R0lG"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeContent(json.RawMessage(tt.raw))

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("normalizeContent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCollapseToolResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "absent", raw: ``, want: "No content provided"},
		{name: "null", raw: `null`, want: "No content provided"},
		{name: "string", raw: `"result"`, want: "result"},
		{
			name: "list",
			raw:  `[{"type":"text","text":"a"}, "b", {"text":"c"}, {"x":1}, 5]`,
			want: "a\nb\nc\n{\"x\":1}\n5",
		},
		{name: "list trimmed", raw: `["  padded  ", ""]`, want: "padded"},
		{name: "text block object", raw: `{"type":"text","text":"hi"}`, want: "hi"},
		{name: "other object", raw: `{"a": 1}`, want: `{"a":1}`},
		{name: "number", raw: `3.5`, want: "3.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := collapseToolResult(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("collapseToolResult(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSystemText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: ``, want: ""},
		{raw: `"Be brief."`, want: "Be brief."},
		{raw: `[{"type":"text","text":"One"},{"type":"image","source":{"type":"url","url":"u"}},{"type":"text","text":"Two"}]`, want: "One\n\nTwo"},
	}

	for _, tt := range tests {
		if got := systemText(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("systemText(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseToolArguments(t *testing.T) {
	tests := map[string]string{
		"":                 `{}`,
		"   ":              `{}`,
		`{ "a" : [1, 2] }`: `{"a":[1,2]}`,
		`[1,2]`:            `{"raw":"[1,2]"}`,
		`"text"`:           `{"raw":"\"text\""}`,
		`null`:             `{"raw":"null"}`,
		`{"a":`:            `{"raw":"{\"a\":"}`,
	}

	for arguments, want := range tests {
		if got := string(parseToolArguments(arguments)); got != want {
			t.Errorf("parseToolArguments(%q) = %s, want %s", arguments, got, want)
		}
	}
}
