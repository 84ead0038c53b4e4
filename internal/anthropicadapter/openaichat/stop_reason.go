package openaichat

import "github.com/anthropics/anthropic-sdk-go"

// toStopReason maps a chat completion finish reason to an Anthropic stop reason.
// The mapping is total: unknown and empty reasons end the turn.
func toStopReason(finishReason string) anthropic.StopReason {
	switch finishReason {
	case "stop":
		return anthropic.StopReasonEndTurn
	case "length":
		return anthropic.StopReasonMaxTokens
	case "tool_calls":
		return anthropic.StopReasonToolUse
	default:
		// content_filter and provider-specific reasons have no Anthropic equivalent
		return anthropic.StopReasonEndTurn
	}
}
