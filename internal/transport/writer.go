// ABOUTME: Serialized frame writer for a child process standard input
// ABOUTME: Each frame is written whole and flushed under a single lock

package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("frame writer closed")

// FrameWriter writes newline-terminated frames. Safe for concurrent use;
// frames from different callers never interleave.
type FrameWriter struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	closed bool
}

// NewFrameWriter wraps w. If w is also an io.Closer, Close closes it.
func NewFrameWriter(w io.Writer) *FrameWriter {
	fw := &FrameWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		fw.closer = c
	}
	return fw
}

// Write sends one frame, appending a newline if it lacks one, and flushes.
func (fw *FrameWriter) Write(frame []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return ErrWriterClosed
	}
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if len(frame) == 0 || frame[len(frame)-1] != '\n' {
		if err := fw.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing frame terminator: %w", err)
		}
	}
	if err := fw.w.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}
	return nil
}

// Close marks the writer closed and closes the underlying stream. Safe to
// call more than once.
func (fw *FrameWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return nil
	}
	fw.closed = true
	if fw.closer != nil {
		return fw.closer.Close()
	}
	return nil
}
