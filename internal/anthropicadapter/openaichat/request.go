package openaichat

import (
	"fmt"
	"strings"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

// defaultTemperature is sent when the client leaves temperature unset.
const defaultTemperature = 1.0

// toChatCompletionRequest translates a Messages request into a chat completion
// request. It performs no I/O. The model name is passed through verbatim; alias
// resolution happens before translation.
func toChatCompletionRequest(req *anthropicadapter.MessagesRequest, opts Options) (*backend.ChatCompletionRequest, error) {
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	chatReq := &backend.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stop:        req.StopSequences,
		Stream:      req.Stream,
		Tools:       toChatCompletionTools(req.Tools),
	}

	if req.Stream && opts.IncludeUsage {
		chatReq.StreamOptions = &backend.StreamOptions{IncludeUsage: true}
	}

	if req.Metadata != nil {
		chatReq.User = req.Metadata.UserID
	}

	toolChoice, err := toToolChoice(req.ToolChoice)
	if err != nil {
		return nil, err
	}
	chatReq.ToolChoice = toolChoice

	// Thinking transformation: chat completion backends expose no budgeted reasoning
	// switch, so the thinking configuration is dropped.

	if system := systemText(req.System); system != "" {
		chatReq.Messages = append(chatReq.Messages, backend.ChatMessage{
			Role:    backend.RoleSystem,
			Content: backend.TextContent(system),
		})
	}

	for i, msg := range req.Messages {
		chatMessages, err := toChatMessages(msg, opts.ToolResultMode)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		chatReq.Messages = append(chatReq.Messages, chatMessages...)
	}

	return chatReq, nil
}

// toChatMessages translates one Anthropic message. It yields exactly one chat
// message, except in ToolResultModeToolMessages where each tool result becomes a
// preceding tool message.
func toChatMessages(msg anthropicadapter.Message, toolResultMode ToolResultMode) ([]backend.ChatMessage, error) {
	blocks := normalizeContent(msg.Content)

	// Plain string content passes through untouched.
	if len(blocks) == 1 && blocks[0].Type == anthropicadapter.BlockTypeText && isStringContent(msg) {
		return []backend.ChatMessage{{
			Role:    msg.Role,
			Content: backend.TextContent(blocks[0].Text),
		}}, nil
	}

	var (
		texts        []string
		images       []backend.ContentPart
		toolCalls    []backend.ToolCall
		toolMessages []backend.ChatMessage
	)

	for i, block := range blocks {
		switch block.Type {
		case anthropicadapter.BlockTypeText:
			texts = append(texts, block.Text)

		case anthropicadapter.BlockTypeImage:
			part, err := toImagePart(block.Source)
			if err != nil {
				return nil, fmt.Errorf("content block %d: %w", i, err)
			}
			images = append(images, part)

		case anthropicadapter.BlockTypeToolUse:
			// Only assistants call tools; a tool_use block elsewhere has no chat equivalent.
			if msg.Role == anthropicadapter.RoleAssistant {
				toolCalls = append(toolCalls, toToolCall(block))
			}

		case anthropicadapter.BlockTypeToolResult:
			result := collapseToolResult(block.ResultContent)
			if toolResultMode == ToolResultModeToolMessages {
				toolMessages = append(toolMessages, backend.ChatMessage{
					Role:       backend.RoleTool,
					Content:    backend.TextContent(result),
					ToolCallID: block.ToolUseID,
				})
				continue
			}
			texts = append(texts, result)
		}
	}

	chatMsg := backend.ChatMessage{
		Role:      msg.Role,
		ToolCalls: toolCalls,
	}

	if len(texts) > 0 {
		chatMsg.Content = backend.TextContent(strings.TrimSpace(strings.Join(texts, "\n")))
	}
	if len(images) > 0 {
		var parts []backend.ContentPart
		if chatMsg.Content.Text != nil && *chatMsg.Content.Text != "" {
			parts = append(parts, backend.ContentPart{Type: backend.ContentPartTypeText, Text: *chatMsg.Content.Text})
		}
		chatMsg.Content = backend.MessageContent{Parts: append(parts, images...)}
	}

	if len(toolMessages) == 0 {
		return []backend.ChatMessage{chatMsg}, nil
	}

	if len(texts) > 0 || len(images) > 0 || len(toolCalls) > 0 {
		return append(toolMessages, chatMsg), nil
	}
	return toolMessages, nil
}

// isStringContent reports whether the raw content was a JSON string.
func isStringContent(msg anthropicadapter.Message) bool {
	for _, c := range msg.Content {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '"':
			return true
		default:
			return false
		}
	}
	return false
}

// toImagePart converts an image source into an image_url part, using a data URL
// for inline base64 images.
func toImagePart(source *anthropicadapter.ImageSource) (backend.ContentPart, error) {
	if source == nil {
		return backend.ContentPart{}, fmt.Errorf("image block without source")
	}

	var url string
	switch {
	case source.Type == "base64" && source.Data != "":
		mediaType := source.MediaType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		url = "data:" + mediaType + ";base64," + source.Data
	case source.Type == "url" && source.URL != "":
		url = source.URL
	default:
		return backend.ContentPart{}, fmt.Errorf("unsupported image source type %q", source.Type)
	}

	return backend.ContentPart{
		Type:     backend.ContentPartTypeImageURL,
		ImageURL: &backend.ImageURL{URL: url},
	}, nil
}
