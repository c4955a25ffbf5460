package process

import (
	"bytes"
	"sync"
)

// Longest buffered partial line. A line growing past this is delivered as is.
const maxLineSize = 1 << 20

// Returns a handler that forwards to h under a mutex.
func Serialize(h LineHandler) LineHandler {
	if h == nil {
		return func(Stream, string) {}
	}
	var mu sync.Mutex
	return func(s Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		h(s, line)
	}
}

// Splits on "\n", "\r\n", or a bare "\r".
//
// Progress meters rewrite their line with "\r"; treating it as a terminator
// lets each update reach the handler as it happens.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 == len(data) && !atEOF {
				return 0, nil, nil // Might be the first half of "\r\n".
			}
			if i+1 < len(data) && data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// An [io.Writer] that splits written bytes into lines for a handler.
//
// Used where a library hands output to a writer rather than a reader.
// Call Flush after the last write to deliver a trailing partial line.
type LineWriter struct {
	stream  Stream
	handler LineHandler
	mu      sync.Mutex
	buf     []byte
}

// Creates a line writer tagging lines with stream.
func NewLineWriter(stream Stream, handler LineHandler) *LineWriter {
	if handler == nil {
		handler = func(Stream, string) {}
	}
	return &LineWriter{stream: stream, handler: handler}
}

// Buffers p and delivers every complete line.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		advance, token, _ := scanLines(w.buf, false)
		if advance == 0 {
			break
		}
		if len(token) > 0 {
			w.handler(w.stream, string(token))
		}
		w.buf = w.buf[advance:]
	}
	if len(w.buf) > maxLineSize {
		w.handler(w.stream, string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// Delivers any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.buf) > 0 {
		advance, token, _ := scanLines(w.buf, true)
		if advance == 0 {
			break
		}
		if len(token) > 0 {
			w.handler(w.stream, string(token))
		}
		w.buf = w.buf[advance:]
	}
}
