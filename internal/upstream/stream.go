package upstream

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"sync"
)

// maxLineBytes bounds a single upstream line. Chat-completion chunks are far smaller.
const maxLineBytes = 1 << 20

// Stream is an open upstream response body.
type Stream struct {
	body io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body}
}

// Lines returns the response body as a sequence of lines without line terminators.
// The sequence reads the body as it goes and can be consumed once. A read error is
// yielded as the final element.
func (s *Stream) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading upstream stream: %w", err))
		}
	}
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
