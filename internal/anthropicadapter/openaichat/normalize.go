package openaichat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
)

const noToolResultContent = "No content provided"

// normalizeContent converts raw message content into content blocks. A string
// becomes one text block, a list is normalized item by item, null is empty, and
// any other value becomes a text block holding its JSON rendering.
func normalizeContent(raw json.RawMessage) []anthropicadapter.ContentBlock {
	value := gjson.ParseBytes(raw)

	switch {
	case !value.Exists() || value.Type == gjson.Null:
		return nil
	case value.Type == gjson.String:
		return []anthropicadapter.ContentBlock{anthropicadapter.TextBlock(value.String())}
	case value.IsArray():
		items := value.Array()
		blocks := make([]anthropicadapter.ContentBlock, 0, len(items))
		for _, item := range items {
			blocks = append(blocks, normalizeBlock(item))
		}
		return blocks
	default:
		return []anthropicadapter.ContentBlock{anthropicadapter.TextBlock(compactJSON(value.Raw))}
	}
}

// normalizeBlock converts one block-like value. Unknown shapes degrade to a text
// block with the value's string rendering.
func normalizeBlock(item gjson.Result) anthropicadapter.ContentBlock {
	if item.Type == gjson.String {
		return anthropicadapter.TextBlock(item.String())
	}
	if !item.IsObject() {
		return anthropicadapter.TextBlock(compactJSON(item.Raw))
	}

	switch item.Get("type").String() {
	case anthropicadapter.BlockTypeText:
		return anthropicadapter.TextBlock(item.Get("text").String())

	case anthropicadapter.BlockTypeImage:
		source := item.Get("source")
		return anthropicadapter.ContentBlock{
			Type: anthropicadapter.BlockTypeImage,
			Source: &anthropicadapter.ImageSource{
				Type:      source.Get("type").String(),
				MediaType: source.Get("media_type").String(),
				Data:      source.Get("data").String(),
				URL:       source.Get("url").String(),
			},
		}

	case anthropicadapter.BlockTypeToolUse:
		input := json.RawMessage("{}")
		if in := item.Get("input"); in.IsObject() {
			input = json.RawMessage(compactJSON(in.Raw))
		}
		return anthropicadapter.ContentBlock{
			Type:  anthropicadapter.BlockTypeToolUse,
			ID:    item.Get("id").String(),
			Name:  item.Get("name").String(),
			Input: input,
		}

	case anthropicadapter.BlockTypeToolResult:
		var content json.RawMessage
		if c := item.Get("content"); c.Exists() {
			content = json.RawMessage(c.Raw)
		}
		return anthropicadapter.ContentBlock{
			Type:          anthropicadapter.BlockTypeToolResult,
			ToolUseID:     item.Get("tool_use_id").String(),
			ResultContent: content,
			IsError:       item.Get("is_error").Bool(),
		}

	default:
		return anthropicadapter.TextBlock(compactJSON(item.Raw))
	}
}

// collapseToolResult renders tool-result content as plain text.
//
// Lists join their items with newlines: text blocks and objects with a "text"
// field contribute that text, strings contribute themselves, anything else its
// JSON rendering. A text block object yields its text, any other object its JSON.
func collapseToolResult(raw json.RawMessage) string {
	value := gjson.ParseBytes(raw)

	switch {
	case !value.Exists() || value.Type == gjson.Null:
		return noToolResultContent
	case value.Type == gjson.String:
		return value.String()
	case value.IsArray():
		var parts []string
		for _, item := range value.Array() {
			switch {
			case item.Type == gjson.String:
				parts = append(parts, item.String())
			case item.IsObject() && item.Get("type").String() == anthropicadapter.BlockTypeText:
				parts = append(parts, item.Get("text").String())
			case item.IsObject() && item.Get("text").Exists():
				parts = append(parts, item.Get("text").String())
			default:
				parts = append(parts, compactJSON(item.Raw))
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case value.IsObject() && value.Get("type").String() == anthropicadapter.BlockTypeText:
		return value.Get("text").String()
	default:
		return compactJSON(value.Raw)
	}
}

// systemText flattens the system prompt. Block lists join their text blocks with a
// blank line.
func systemText(raw json.RawMessage) string {
	value := gjson.ParseBytes(raw)

	switch {
	case value.Type == gjson.String:
		return value.String()
	case value.IsArray():
		var texts []string
		for _, item := range value.Array() {
			block := normalizeBlock(item)
			if block.Type == anthropicadapter.BlockTypeText {
				texts = append(texts, block.Text)
			}
		}
		return strings.TrimSpace(strings.Join(texts, "\n\n"))
	default:
		return ""
	}
}

// compactJSON strips insignificant whitespace from raw JSON, returning the input
// unchanged when it does not parse.
func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
