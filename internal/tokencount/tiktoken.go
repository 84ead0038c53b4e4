// Package tokencount estimates prompt sizes of chat completion requests locally,
// without calling the backend.
package tokencount

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/claudine-bridge/internal/backend"
)

// DefaultEncoding is used for models tiktoken does not know, which covers most
// non-OpenAI models served by compatible backends.
const DefaultEncoding = "cl100k_base"

// Per-request overheads of the chat format, as documented for gpt-3.5/gpt-4.
const (
	tokensPerMessage = 3
	tokensPerName    = 1
	replyPriming     = 3
	tokensPerImage   = 85
)

// Tokenizer encodes text into tokens.
type Tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// TiktokenCounter counts tokens with the tiktoken encoding of the request model.
// Encodings are loaded lazily, once per encoding name, and cached.
type TiktokenCounter struct {
	load func(model string) (Tokenizer, error)

	mu    sync.RWMutex
	cache map[string]Tokenizer
	group singleflight.Group
}

// useEmbeddedEncodings makes tiktoken read BPE ranks compiled into the binary.
// Its default loader downloads them on first use, which hangs or fails on hosts
// without internet access.
var useEmbeddedEncodings = sync.OnceFunc(func() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
})

// NewTiktokenCounter creates a counter backed by tiktoken-go. Encodings never
// touch the network.
func NewTiktokenCounter() *TiktokenCounter {
	useEmbeddedEncodings()
	return newCounter(loadTiktoken)
}

func newCounter(load func(model string) (Tokenizer, error)) *TiktokenCounter {
	return &TiktokenCounter{
		load:  load,
		cache: make(map[string]Tokenizer),
	}
}

// loadTiktoken resolves the model's encoding, falling back to DefaultEncoding.
func loadTiktoken(model string) (Tokenizer, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", DefaultEncoding, err)
	}
	return enc, nil
}

// CountTokens estimates the prompt tokens of req: message contents, tool calls and
// tool definitions, plus the chat format overhead.
func (c *TiktokenCounter) CountTokens(ctx context.Context, req *backend.ChatCompletionRequest) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	enc, err := c.tokenizer(req.Model)
	if err != nil {
		return 0, err
	}

	count := func(text string) int {
		if text == "" {
			return 0
		}
		return len(enc.Encode(text, nil, nil))
	}

	total := replyPriming
	for _, msg := range req.Messages {
		total += tokensPerMessage
		total += count(msg.Role)
		total += count(msg.Content.String())
		for _, part := range msg.Content.Parts {
			if part.Type == backend.ContentPartTypeImageURL {
				total += tokensPerImage
			}
		}
		for _, call := range msg.ToolCalls {
			total += tokensPerName
			total += count(call.Function.Name)
			total += count(call.Function.Arguments)
		}
	}

	for _, tool := range req.Tools {
		total += tokensPerName
		total += count(tool.Function.Name)
		total += count(tool.Function.Description)
		total += count(string(tool.Function.Parameters))
	}

	return total, nil
}

// tokenizer returns the cached encoding of model, loading it on first use.
// Concurrent first uses share one load; failed loads are retried next time.
func (c *TiktokenCounter) tokenizer(model string) (Tokenizer, error) {
	c.mu.RLock()
	enc, ok := c.cache[model]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	v, err, _ := c.group.Do(model, func() (any, error) {
		enc, err := c.load(model)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[model] = enc
		c.mu.Unlock()
		return enc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Tokenizer), nil
}
