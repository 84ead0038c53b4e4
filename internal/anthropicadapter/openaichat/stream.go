package openaichat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/claudine-bridge/internal/anthropicadapter"
	"github.com/florianilch/claudine-bridge/internal/backend"
)

// textBlockIndex is reserved for the text block opened at stream start.
const textBlockIndex = 0

// streamState is the working memory of one streamed response. It is owned by the
// goroutine ranging over the frame sequence and is never shared.
type streamState struct {
	textBlockOpen bool
	textSent      bool
	toolsStarted  bool

	// pendingText holds text for block 0 that has not been emitted yet. It is
	// flushed whenever pass-through is possible and before block 0 closes.
	pendingText strings.Builder

	// trailingText holds text that arrived after block 0 closed. It is emitted as
	// its own text block after the tool blocks.
	trailingText strings.Builder

	toolCalls   []*toolCallState       // in block index order
	toolCallsBy map[int]*toolCallState // keyed by backend tool index

	nextBlockIndex int

	inputTokens  int
	outputTokens int

	// finishReason is the first finish reason seen, empty until then.
	finishReason string
	finished     bool
}

type toolCallState struct {
	blockIndex int
	id         string
	name       string
	arguments  strings.Builder
	open       bool
}

// streamReconstructor turns chat completion chunks into Anthropic stream frames.
type streamReconstructor struct {
	ctx        context.Context
	messageID  string
	model      string
	awaitUsage bool

	state streamState

	yield        func(anthropicadapter.Frame) bool
	consumerGone bool
}

// reconstructStream returns the frame sequence for a chunk sequence.
//
// Frames are produced lazily while ranging: message_start, the text block 0 start
// and a ping come first, text is forwarded as soon as it arrives, and every opened
// block is closed before message_stop. The sequence always ends with the [DONE]
// frame unless the consumer stops early. Malformed chunks are logged and skipped;
// a failing chunk source ends the message with stop reason "error".
func reconstructStream(
	ctx context.Context,
	chunks iter.Seq2[*backend.ChatCompletionChunk, error],
	model string,
	opts Options,
) iter.Seq[anthropicadapter.Frame] {
	return func(yield func(anthropicadapter.Frame) bool) {
		r := &streamReconstructor{
			ctx:        ctx,
			messageID:  newMessageID(),
			model:      model,
			awaitUsage: opts.IncludeUsage,
			state: streamState{
				toolCallsBy:    make(map[int]*toolCallState),
				nextBlockIndex: textBlockIndex + 1,
			},
			yield: yield,
		}
		r.run(chunks)
	}
}

func (r *streamReconstructor) run(chunks iter.Seq2[*backend.ChatCompletionChunk, error]) {
	r.start()

	for chunk, err := range chunks {
		if r.consumerGone {
			return
		}

		if err != nil {
			var decodeErr *backend.ChunkDecodeError
			if errors.As(err, &decodeErr) {
				slog.WarnContext(r.ctx, "skipping malformed stream chunk", "error", err)
				continue
			}
			if r.state.finishReason != "" {
				// Content is complete; only the trailing usage chunk is lost.
				slog.WarnContext(r.ctx, "stream failed after finish reason", "error", err)
				break
			}
			slog.ErrorContext(r.ctx, "backend stream failed", "error", err)
			r.fail()
			return
		}

		if err := r.process(chunk); err != nil {
			slog.WarnContext(r.ctx, "skipping stream chunk", "error", err)
			continue
		}

		if r.state.finished || r.consumerGone {
			return
		}
	}

	if r.consumerGone {
		return
	}

	// Input exhausted, with or without a finish reason.
	r.closeBlocks()
	r.terminate(toStopReason(r.state.finishReason))
}

// process applies one chunk. A chunk that fails validation is rejected before any
// state changes or frames are emitted.
func (r *streamReconstructor) process(chunk *backend.ChatCompletionChunk) error {
	if err := validateChunk(chunk); err != nil {
		return err
	}

	s := &r.state

	if chunk.Usage != nil {
		s.inputTokens = chunk.Usage.PromptTokens
		s.outputTokens = chunk.Usage.CompletionTokens
	}

	if s.finishReason != "" {
		// All blocks are closed; waiting for the trailing usage chunk.
		if chunk.Usage != nil {
			r.terminate(toStopReason(s.finishReason))
		}
		return nil
	}

	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		r.appendText(choice.Delta.Content)
	}

	if len(choice.Delta.ToolCalls) > 0 {
		if !s.toolsStarted {
			s.toolsStarted = true
			r.closeTextBlock()
		}
		for _, fragment := range choice.Delta.ToolCalls {
			r.appendToolFragment(fragment)
		}
	}

	if choice.FinishReason != "" {
		s.finishReason = choice.FinishReason
		r.closeBlocks()
		if !r.awaitUsage || chunk.Usage != nil {
			r.terminate(toStopReason(s.finishReason))
		}
	}

	return nil
}

// validateChunk rejects chunks that cannot be applied consistently.
func validateChunk(chunk *backend.ChatCompletionChunk) error {
	if chunk == nil {
		return errors.New("nil chunk")
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	for _, fragment := range chunk.Choices[0].Delta.ToolCalls {
		if fragment.Index < 0 {
			return fmt.Errorf("invalid tool call index %d", fragment.Index)
		}
	}
	return nil
}

// start emits the stream preamble and opens text block 0.
func (r *streamReconstructor) start() {
	r.emit(anthropicadapter.EventMessageStart, anthropicadapter.MessageStartEvent{
		Type: anthropicadapter.EventMessageStart,
		Message: anthropicadapter.StreamedShell{
			ID:      r.messageID,
			Type:    "message",
			Role:    anthropicadapter.RoleAssistant,
			Model:   r.model,
			Content: []anthropicadapter.ContentBlock{},
		},
	})
	r.emit(anthropicadapter.EventContentBlockStart, anthropicadapter.ContentBlockStartEvent{
		Type:         anthropicadapter.EventContentBlockStart,
		Index:        textBlockIndex,
		ContentBlock: anthropicadapter.TextBlock(""),
	})
	r.state.textBlockOpen = true
	r.emit(anthropicadapter.EventPing, anthropicadapter.TypeOnlyEvent{Type: anthropicadapter.EventPing})
}

// appendText forwards text on block 0 while it is open and no tool call has
// started; later text is held for a trailing text block.
func (r *streamReconstructor) appendText(text string) {
	s := &r.state
	if s.textBlockOpen && !s.toolsStarted {
		s.pendingText.WriteString(text)
		r.flushText()
		return
	}
	s.trailingText.WriteString(text)
}

// flushText emits pending block 0 text as a single delta.
func (r *streamReconstructor) flushText() {
	s := &r.state
	if s.pendingText.Len() == 0 {
		return
	}
	r.emitTextDelta(textBlockIndex, s.pendingText.String())
	s.pendingText.Reset()
	s.textSent = true
}

// closeTextBlock flushes and closes block 0. It is a no-op once closed.
func (r *streamReconstructor) closeTextBlock() {
	s := &r.state
	if !s.textBlockOpen {
		return
	}
	r.flushText()
	r.emitBlockStop(textBlockIndex)
	s.textBlockOpen = false
}

// appendToolFragment opens a tool_use block for an unseen backend index and
// forwards argument text verbatim as partial JSON.
func (r *streamReconstructor) appendToolFragment(fragment backend.ToolCallDelta) {
	s := &r.state

	call, ok := s.toolCallsBy[fragment.Index]
	if !ok {
		id := fragment.ID
		if id == "" {
			id = newToolUseID()
		}
		call = &toolCallState{
			blockIndex: s.nextBlockIndex,
			id:         id,
			name:       fragment.Name,
			open:       true,
		}
		s.nextBlockIndex++
		s.toolCalls = append(s.toolCalls, call)
		s.toolCallsBy[fragment.Index] = call

		r.emit(anthropicadapter.EventContentBlockStart, anthropicadapter.ContentBlockStartEvent{
			Type:  anthropicadapter.EventContentBlockStart,
			Index: call.blockIndex,
			ContentBlock: anthropicadapter.ContentBlock{
				Type: anthropicadapter.BlockTypeToolUse,
				ID:   call.id,
				Name: call.name,
			},
		})
	}

	if fragment.Arguments == "" || !call.open {
		return
	}
	call.arguments.WriteString(fragment.Arguments)
	r.emit(anthropicadapter.EventContentBlockDelta, anthropicadapter.ContentBlockDeltaEvent{
		Type:  anthropicadapter.EventContentBlockDelta,
		Index: call.blockIndex,
		Delta: anthropicadapter.BlockDelta{
			Type:        anthropicadapter.DeltaTypeInputJSON,
			PartialJSON: fragment.Arguments,
		},
	})
}

// closeBlocks closes every open block: tool blocks in ascending index order, then
// block 0, then emits held trailing text as one more complete text block.
func (r *streamReconstructor) closeBlocks() {
	s := &r.state

	for _, call := range s.toolCalls {
		if call.open {
			r.emitBlockStop(call.blockIndex)
			call.open = false
		}
	}

	r.closeTextBlock()

	if s.trailingText.Len() > 0 {
		index := s.nextBlockIndex
		s.nextBlockIndex++
		r.emit(anthropicadapter.EventContentBlockStart, anthropicadapter.ContentBlockStartEvent{
			Type:         anthropicadapter.EventContentBlockStart,
			Index:        index,
			ContentBlock: anthropicadapter.TextBlock(""),
		})
		r.emitTextDelta(index, s.trailingText.String())
		r.emitBlockStop(index)
		s.trailingText.Reset()
	}
}

// terminate emits message_delta, message_stop and [DONE]. Only the first call has
// an effect.
func (r *streamReconstructor) terminate(stopReason anthropic.StopReason) {
	s := &r.state
	if s.finished {
		return
	}
	s.finished = true

	r.emit(anthropicadapter.EventMessageDelta, anthropicadapter.MessageDeltaEvent{
		Type:  anthropicadapter.EventMessageDelta,
		Delta: anthropicadapter.MessageDelta{StopReason: stopReason},
		Usage: anthropicadapter.DeltaUsage{
			InputTokens:  s.inputTokens,
			OutputTokens: s.outputTokens,
		},
	})
	r.emit(anthropicadapter.EventMessageStop, anthropicadapter.TypeOnlyEvent{Type: anthropicadapter.EventMessageStop})
	r.emitFrame(anthropicadapter.DoneFrame)
}

// fail ends the message after a chunk source failure, with zero usage.
func (r *streamReconstructor) fail() {
	r.closeBlocks()
	r.state.inputTokens = 0
	r.state.outputTokens = 0
	r.terminate(anthropicadapter.StopReasonError)
}

func (r *streamReconstructor) emitTextDelta(index int, text string) {
	r.emit(anthropicadapter.EventContentBlockDelta, anthropicadapter.ContentBlockDeltaEvent{
		Type:  anthropicadapter.EventContentBlockDelta,
		Index: index,
		Delta: anthropicadapter.BlockDelta{
			Type: anthropicadapter.DeltaTypeText,
			Text: text,
		},
	})
}

func (r *streamReconstructor) emitBlockStop(index int) {
	r.emit(anthropicadapter.EventContentBlockStop, anthropicadapter.ContentBlockStopEvent{
		Type:  anthropicadapter.EventContentBlockStop,
		Index: index,
	})
}

// emit encodes and yields one event frame.
func (r *streamReconstructor) emit(event string, payload any) {
	frame, err := anthropicadapter.NewFrame(event, payload)
	if err != nil {
		slog.ErrorContext(r.ctx, "failed to encode stream event", "event", event, "error", err)
		return
	}
	r.emitFrame(frame)
}

// emitFrame yields a frame unless the consumer has stopped ranging.
func (r *streamReconstructor) emitFrame(frame anthropicadapter.Frame) {
	if r.consumerGone {
		return
	}
	if !r.yield(frame) {
		r.consumerGone = true
	}
}
