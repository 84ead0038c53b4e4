package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

// toMessagesResponse translates a chat completion reply into an Anthropic message.
// It never fails: any translation error yields a degraded response that carries
// the error as text.
func toMessagesResponse(
	ctx context.Context,
	resp *backend.ChatCompletionResponse,
	model string,
	opts Options,
) (out *anthropicadapter.MessagesResponse) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			slog.ErrorContext(ctx, "response translation failed", "error", err)
			out = degradedResponse(err, model)
		}
	}()

	out, err := translateResponse(resp, model, opts)
	if err != nil {
		slog.ErrorContext(ctx, "response translation failed", "error", err)
		return degradedResponse(err, model)
	}
	return out
}

// translateResponse does the actual work of toMessagesResponse.
func translateResponse(
	resp *backend.ChatCompletionResponse,
	model string,
	opts Options,
) (*anthropicadapter.MessagesResponse, error) {
	if resp == nil {
		return nil, errors.New("empty backend response")
	}

	var message backend.ResponseMessage
	finishReason := "stop"
	if len(resp.Choices) > 0 {
		message = resp.Choices[0].Message
		if resp.Choices[0].FinishReason != "" {
			finishReason = resp.Choices[0].FinishReason
		}
	}

	var content []anthropicadapter.ContentBlock
	if message.Content != "" {
		content = append(content, anthropicadapter.TextBlock(message.Content))
	}

	if len(message.ToolCalls) > 0 {
		if rendersToolBlocks(model, opts.ToolBlockModelPrefixes) {
			for _, call := range message.ToolCalls {
				content = append(content, toToolUseBlock(call))
			}
		} else {
			// Tool calls of models without structured tool rendering are appended to
			// the text block (or become one).
			toolText, err := renderToolCalls(message.ToolCalls)
			if err != nil {
				return nil, err
			}
			if len(content) > 0 {
				content[0].Text += toolText
			} else {
				content = append(content, anthropicadapter.TextBlock(toolText))
			}
		}
	}

	if len(content) == 0 {
		content = append(content, anthropicadapter.TextBlock(""))
	}

	id := resp.ID
	if id == "" {
		id = newMessageID()
	}

	return &anthropicadapter.MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       anthropicadapter.RoleAssistant,
		Model:      model,
		Content:    content,
		StopReason: toStopReason(finishReason),
		Usage:      toUsage(resp.Usage),
	}, nil
}

// degradedResponse is returned in place of a response that could not be translated.
func degradedResponse(err error, model string) *anthropicadapter.MessagesResponse {
	return &anthropicadapter.MessagesResponse{
		ID:    newMessageID(),
		Type:  "message",
		Role:  anthropicadapter.RoleAssistant,
		Model: model,
		Content: []anthropicadapter.ContentBlock{
			anthropicadapter.TextBlock("Error converting response: " + err.Error()),
		},
		StopReason: anthropic.StopReasonEndTurn,
	}
}

// toToolUseBlock converts a complete tool call into a tool_use block.
func toToolUseBlock(call backend.ToolCall) anthropicadapter.ContentBlock {
	id := call.ID
	if id == "" {
		id = newToolUseID()
	}
	return anthropicadapter.ContentBlock{
		Type:  anthropicadapter.BlockTypeToolUse,
		ID:    id,
		Name:  call.Function.Name,
		Input: parseToolArguments(call.Function.Arguments),
	}
}

// renderToolCalls renders tool calls as readable text:
//
//	\n\nTool usage:\nTool: <name>\nArguments: <indented JSON>\n\n...
//
// Arguments that are not valid JSON are rendered verbatim.
func renderToolCalls(calls []backend.ToolCall) (string, error) {
	var sb strings.Builder
	sb.WriteString("\n\nTool usage:\n")

	for _, call := range calls {
		arguments := call.Function.Arguments
		if arguments == "" {
			arguments = "{}"
		}

		rendered := arguments
		if json.Valid([]byte(arguments)) {
			var indented bytes.Buffer
			if err := json.Indent(&indented, []byte(arguments), "", "  "); err != nil {
				return "", fmt.Errorf("indent arguments of tool %q: %w", call.Function.Name, err)
			}
			rendered = indented.String()
		}

		fmt.Fprintf(&sb, "Tool: %s\nArguments: %s\n\n", call.Function.Name, rendered)
	}

	return sb.String(), nil
}

// rendersToolBlocks reports whether tool calls of the model are returned as
// tool_use blocks. A provider namespace ("openai/", "anthropic/", ...) is ignored.
func rendersToolBlocks(model string, prefixes []string) bool {
	if _, name, found := strings.Cut(model, "/"); found {
		model = name
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
