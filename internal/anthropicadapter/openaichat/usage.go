package openaichat

import (
	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

// toUsage converts chat completion usage to Anthropic usage. Cached prompt tokens
// map to cache_read_input_tokens.
//
// CacheCreationInputTokens transformation: chat completion backends cache prompts
// implicitly and never report cache writes, so the field is always omitted.
func toUsage(usage backend.Usage) anthropicadapter.Usage {
	return anthropicadapter.Usage{
		InputTokens:          usage.PromptTokens,
		OutputTokens:         usage.CompletionTokens,
		CacheReadInputTokens: usage.CachedTokens,
	}
}
