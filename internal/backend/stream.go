package backend

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

const (
	doneMarker = "[DONE]"

	// maxLineBytes bounds one SSE line; tool-call argument chunks can be large.
	maxLineBytes = 4 << 20
)

// readChunks decodes an SSE body into chunks.
//
// Data lines of one event are joined with newlines and dispatched on the blank
// line ending the event (or at EOF). Comments and non-data fields are ignored.
// The [DONE] marker ends the sequence. An undecodable payload yields a
// *ChunkDecodeError and reading continues; an in-band error payload yields an
// *APIError and ends the sequence.
func readChunks(body io.Reader) iter.Seq2[*ChatCompletionChunk, error] {
	return func(yield func(*ChatCompletionChunk, error) bool) {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

		var data []string

		// dispatch reports whether reading should continue.
		dispatch := func() bool {
			if len(data) == 0 {
				return true
			}
			payload := strings.Join(data, "\n")
			data = data[:0]

			if strings.TrimSpace(payload) == doneMarker {
				return false
			}

			chunk, err := DecodeChunk([]byte(payload))
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					yield(nil, apiErr)
					return false
				}
				return yield(nil, &ChunkDecodeError{Data: payload, Err: err})
			}
			return yield(chunk, nil)
		}

		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")

			if line == "" {
				if !dispatch() {
					return
				}
				continue
			}

			field, value, _ := strings.Cut(line, ":")
			if field != "data" {
				// comments (":"), "event", "id" and "retry" fields carry nothing we use
				continue
			}
			data = append(data, strings.TrimPrefix(value, " "))
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("read stream: %w", err))
			return
		}

		dispatch()
	}
}
