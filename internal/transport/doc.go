// Package transport frames the byte streams of a child process into lines.
//
// LineReader turns an arbitrarily chunked byte stream into complete lines:
// a frame split across reads is reassembled, several frames in one read are
// split apart, trailing carriage returns and surrounding whitespace are
// trimmed and blank lines are skipped. A final line without a terminator is
// still delivered when the stream ends.
//
// FrameWriter serializes writes from concurrent callers so that every frame
// reaches the child contiguously and is flushed before the call returns.
package transport
