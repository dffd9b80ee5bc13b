// Package relay turns the upstream's line stream into server-sent event frames.
package relay

import (
	"iter"
	"strings"
)

// DataPrefix starts every SSE data line.
const DataPrefix = "data: "

// Done is the payload of the terminal frame.
const Done = "[DONE]"

// Frame formats a single non-empty upstream line as an SSE frame.
// Lines that already carry DataPrefix are kept as-is; others get it prepended.
// The frame always ends with the blank-line terminator.
func Frame(line string) string {
	if strings.HasPrefix(line, DataPrefix) {
		return line + "\n\n"
	}
	return DataPrefix + line + "\n\n"
}

// isDone reports whether line carries the terminal payload, with or without DataPrefix.
func isDone(line string) bool {
	return strings.TrimPrefix(line, DataPrefix) == Done
}

// Frames lazily maps upstream lines to SSE frames, one frame per non-empty line.
//
// Iteration stops after the frame carrying Done has been yielded, when the line
// sequence ends, or after the first error, which is yielded with an empty frame.
// The sequence is single-use: it consumes lines as it goes.
func Frames(lines iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for line, err := range lines {
			if err != nil {
				yield("", err)
				return
			}
			if line == "" {
				continue
			}
			if !yield(Frame(line), nil) {
				return
			}
			if isDone(line) {
				return
			}
		}
	}
}
