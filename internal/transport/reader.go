// ABOUTME: Newline-delimited frame reader for child process output streams
// ABOUTME: Reassembles chunked input into trimmed, non-empty lines

package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
)

// MaxLineSize bounds a single frame. Tool results carrying file contents can
// be large, so the limit is generous.
const MaxLineSize = 16 << 20

// ErrLineTooLong is returned when a frame exceeds MaxLineSize.
var ErrLineTooLong = errors.New("line exceeds maximum frame size")

// LineReader yields complete lines from a byte stream.
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64<<10), max: MaxLineSize}
}

// Next returns the next non-blank line with surrounding whitespace removed.
// It returns io.EOF once the stream is exhausted. The returned slice is owned
// by the caller.
func (lr *LineReader) Next() ([]byte, error) {
	for {
		line, err := lr.readLine()
		if len(line) > 0 {
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				return trimmed, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// Lines iterates over the remaining lines. Iteration stops at end of stream;
// any other read error is yielded once as the final element.
func (lr *LineReader) Lines() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			line, err := lr.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// readLine returns one line without its terminator. A line that ends the
// stream without a terminator is returned together with io.EOF.
func (lr *LineReader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		if len(buf)+len(chunk) > lr.max {
			lr.discardLine(err)
			return nil, ErrLineTooLong
		}
		buf = append(buf, chunk...)

		switch {
		case err == nil:
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return buf, err
		}
	}
}

// discardLine skips the rest of an oversized line so reading can resume at
// the next frame.
func (lr *LineReader) discardLine(err error) {
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = lr.r.ReadSlice('\n')
	}
}
