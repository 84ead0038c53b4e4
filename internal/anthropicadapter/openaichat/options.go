package openaichat

// ToolResultMode selects how tool_result blocks are sent to the backend.
type ToolResultMode string

const (
	// ToolResultModeText folds collapsed tool results into the text of the message
	// carrying them, keeping one chat message per Anthropic message.
	ToolResultModeText ToolResultMode = "text"

	// ToolResultModeToolMessages sends each tool result as a separate "tool" role
	// message ahead of the remaining user content.
	ToolResultModeToolMessages ToolResultMode = "tool_messages"
)

// Options is the translation configuration. It is passed explicitly to every
// translator; nothing in this package reads global state.
type Options struct {
	// ToolBlockModelPrefixes lists model name prefixes, matched after stripping a
	// provider namespace ("openai/gpt-4o" → "gpt-4o"), whose non-streaming tool
	// calls are returned as tool_use blocks.
	ToolBlockModelPrefixes []string

	ToolResultMode ToolResultMode

	// IncludeUsage requests a trailing usage chunk on streams and makes the
	// reconstructor wait for it after the finish reason.
	IncludeUsage bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ToolBlockModelPrefixes: []string{"claude-"},
		ToolResultMode:         ToolResultModeText,
		IncludeUsage:           true,
	}
}
