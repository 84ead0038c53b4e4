package openaichat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

// toChatCompletionTools transforms Anthropic tools to function tools. The input
// schema is already a JSON Schema object and is passed as the parameters verbatim.
func toChatCompletionTools(tools []anthropicadapter.Tool) []backend.Tool {
	if len(tools) == 0 {
		return nil
	}

	chatTools := make([]backend.Tool, 0, len(tools))
	for _, tool := range tools {
		parameters := tool.InputSchema
		if len(parameters) == 0 {
			parameters = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		chatTools = append(chatTools, backend.Tool{
			Type: backend.ToolTypeFunction,
			Function: backend.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  parameters,
			},
		})
	}
	return chatTools
}

// toToolChoice converts Anthropic tool_choice to its chat completion form.
//
// DisableParallelToolUse transformation: the matching parallel_tool_calls flag is
// not understood by every OpenAI-compatible server and is not forwarded.
func toToolChoice(choice *anthropicadapter.ToolChoice) (any, error) {
	if choice == nil {
		return nil, nil
	}

	switch choice.Type {
	case anthropicadapter.ToolChoiceAuto:
		return "auto", nil
	case anthropicadapter.ToolChoiceAny:
		return "required", nil
	case anthropicadapter.ToolChoiceNone:
		return "none", nil
	case anthropicadapter.ToolChoiceTool:
		if choice.Name == "" {
			return nil, fmt.Errorf("tool_choice of type tool requires a name")
		}
		return backend.NamedToolChoice{
			Type:     backend.ToolTypeFunction,
			Function: backend.FunctionName{Name: choice.Name},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported tool_choice type %q", choice.Type)
	}
}

// toToolCall converts an assistant tool_use block into a tool call whose arguments
// are the JSON encoding of the block input.
func toToolCall(block anthropicadapter.ContentBlock) backend.ToolCall {
	arguments := "{}"
	if len(block.Input) > 0 {
		arguments = string(block.Input)
	}

	id := block.ID
	if id == "" {
		id = newToolUseID()
	}

	return backend.ToolCall{
		ID:   id,
		Type: backend.ToolTypeFunction,
		Function: backend.FunctionCall{
			Name:      block.Name,
			Arguments: arguments,
		},
	}
}

// parseToolArguments decodes a tool call's argument string into a tool_use input.
// Empty arguments mean no input. Anything that is not a JSON object is wrapped as
// {"raw": <arguments>}.
func parseToolArguments(arguments string) json.RawMessage {
	if strings.TrimSpace(arguments) == "" {
		return json.RawMessage("{}")
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil || input == nil {
		raw, _ := json.Marshal(map[string]string{"raw": arguments})
		return raw
	}
	return json.RawMessage(compactJSON(arguments))
}

// newToolUseID generates an Anthropic-style tool use ID (format: toolu_<24 hex chars>).
// Used as fallback when the backend omits a tool call ID.
func newToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// newMessageID generates an Anthropic-style message ID (format: msg_<24 hex chars>).
func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}
