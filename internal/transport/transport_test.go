// ABOUTME: Tests for line framing and serialized frame writes
// ABOUTME: Verifies chunk-boundary invariance, trimming and concurrent write integrity

package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns the input in pieces of the given sizes, cycling.
type chunkReader struct {
	data  []byte
	sizes []int
	i     int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.sizes[c.i%len(c.sizes)]
	c.i++
	n = min(n, len(p), len(c.data))
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var lines []string
	for line, err := range NewLineReader(r).Lines() {
		require.NoError(t, err)
		lines = append(lines, string(line))
	}
	return lines
}

const stream = "{\"id\":1,\"result\":{}}\r\n\n   \n{\"method\":\"notifications/message\"}\n  {\"id\":2,\"result\":{\"tools\":[]}}  \n{\"id\":3"

var want = []string{
	`{"id":1,"result":{}}`,
	`{"method":"notifications/message"}`,
	`{"id":2,"result":{"tools":[]}}`,
	`{"id":3`,
}

func TestLineReaderWholeStream(t *testing.T) {
	assert.Equal(t, want, collect(t, strings.NewReader(stream)))
}

func TestLineReaderChunkBoundaryInvariance(t *testing.T) {
	splits := [][]int{
		{1},
		{2, 3},
		{7},
		{13, 1, 29},
		{len(stream)},
	}
	for _, sizes := range splits {
		r := &chunkReader{data: []byte(stream), sizes: sizes}
		assert.Equal(t, want, collect(t, r), "chunk sizes %v", sizes)
	}
	assert.Equal(t, want, collect(t, iotest.OneByteReader(strings.NewReader(stream))))
}

func TestLineReaderNextEOF(t *testing.T) {
	lr := NewLineReader(strings.NewReader("a\n\n"))

	line, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", string(line))

	_, err = lr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReaderReadError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader("first\n"), iotest.ErrReader(boom))

	var (
		lines []string
		errs  []error
	)
	for line, err := range NewLineReader(r).Lines() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		lines = append(lines, string(line))
	}
	assert.Equal(t, []string{"first"}, lines)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestLineReaderLineTooLong(t *testing.T) {
	lr := NewLineReader(strings.NewReader(strings.Repeat("x", 200) + "\nok\n"))
	lr.max = 100

	_, err := lr.Next()
	require.ErrorIs(t, err, ErrLineTooLong)

	line, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(line))
}

func TestFrameWriterAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	require.NoError(t, fw.Write([]byte(`{"a":1}`)))
	require.NoError(t, fw.Write([]byte("{\"b\":2}\n")))
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
}

// lockedBuffer is a bytes.Buffer that records each Write call separately so
// interleaving inside a frame would be visible.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestFrameWriterConcurrentFramesStayWhole(t *testing.T) {
	out := &lockedBuffer{}
	fw := NewFrameWriter(out)

	frames := []string{
		strings.Repeat("a", 5000),
		strings.Repeat("b", 7000),
		strings.Repeat("c", 9000),
	}

	var wg sync.WaitGroup
	for _, f := range frames {
		for range 20 {
			wg.Go(func() {
				assert.NoError(t, fw.Write([]byte(f)))
			})
		}
	}
	wg.Wait()

	lines := collect(t, bytes.NewReader(out.buf.Bytes()))
	require.Len(t, lines, 60)
	for _, line := range lines {
		assert.Contains(t, frames, line)
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestFrameWriterClose(t *testing.T) {
	rec := &closeRecorder{}
	fw := NewFrameWriter(rec)

	require.NoError(t, fw.Close())
	require.NoError(t, fw.Close())
	assert.Equal(t, 1, rec.closed)
	assert.ErrorIs(t, fw.Write([]byte("x")), ErrWriterClosed)
}
