// Package openaichat adapts Anthropic Messages requests to OpenAI-compatible chat
// completion backends, enabling Anthropic SDK clients to work with any such model
// without code changes.
//
// The adapter handles:
//
//   - Content normalization: message content arrives as a string or as a list of
//     loosely shaped blocks. Unknown shapes degrade to text instead of failing, and
//     tool-result content collapses to newline-joined text.
//
//   - Request translation: the system prompt becomes a leading system message, text
//     blocks of a message are joined, assistant tool_use blocks become tool_calls,
//     tools and tool_choice map to function tools.
//
//   - Response translation: text becomes block 0. Tool calls become tool_use blocks
//     only for models known to render structured tool blocks; for every other model
//     they are rendered as readable text. Translation never fails: malformed replies
//     produce a degraded text response.
//
//   - Streaming: chat completion deltas have no notion of content blocks. The
//     reconstructor keeps the block bookkeeping (text block 0, one block per tool
//     call, strictly paired start/stop events) and forwards text as soon as it arrives.
//
// # Adapters
//
// CreateMessageAdapter: Anthropic Messages → OpenAI CreateChatCompletion
// CountTokensAdapter:   Anthropic count_tokens → local token estimate
package openaichat
