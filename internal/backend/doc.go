// Package backend is a client for OpenAI-compatible chat completion endpoints
// (OpenAI, Ollama, vLLM, LiteLLM, llama.cpp server and similar).
//
// Upstream replies are loosely typed: fields go missing, content arrives as a
// string or as an array of parts, and tool calls are sometimes a single object
// instead of a list. DecodeResponse and DecodeChunk normalize every reply once,
// at the boundary, into the canonical structs of this package so that callers
// never inspect raw maps.
//
// # Streaming
//
// Client.Stream returns an iterator over decoded chunks. A data line that cannot
// be decoded yields a *ChunkDecodeError and the iteration continues; transport
// failures and in-band error events end it.
//
// # Retries
//
// Requests that fail before a response body is consumed (transport errors, 429
// and 5xx replies) are retried with exponential backoff, honoring Retry-After.
package backend
