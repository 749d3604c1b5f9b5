package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/gennadis/virtualparent/internal/chat"
)

var doneSentinel = []byte("[DONE]")

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the data of the next event, joining multi-line data
// fields. It returns io.EOF once the stream is exhausted.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[len("data:"):]))
		}
		// event:, id:, retry: and comments are ignored
	}
}

// Stream performs one streamed request and yields text fragments in arrival
// order. A failure is yielded once as the final element. The sequence is
// single-use.
func (c *Client) Stream(ctx context.Context, request *chat.ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		streamed := *request
		streamed.Stream = true

		res, err := c.send(ctx, &streamed, EventStreamContentType)
		if err != nil {
			yield("", err)
			return
		}
		defer res.Body.Close()

		reader := NewSSEReader(res.Body)
		for {
			data, err := reader.ReadEvent()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("failed to read stream: %w", err))
				return
			}
			if bytes.Equal(data, doneSentinel) {
				return
			}

			var chunk chat.ChatResponse
			if err := json.Unmarshal(data, &chunk); err != nil {
				slog.Debug("Skipping malformed stream chunk", "error", err)
				continue
			}
			if text := chunk.DeltaContent(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}
