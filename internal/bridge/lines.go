package bridge

import "bytes"

// lineBuffer accumulates raw socket bytes and yields complete lines. The
// earliest '\r' or '\n' ends a line and "\r\n" counts as one terminator.
// Splitting happens before UTF-8 decoding so a rune split across reads
// survives.
type lineBuffer struct {
	buf []byte
}

func (b *lineBuffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next returns the next complete line without its terminator.
func (b *lineBuffer) Next() ([]byte, bool) {
	idx := bytes.IndexAny(b.buf, "\r\n")
	if idx < 0 {
		return nil, false
	}
	line := b.buf[:idx:idx]
	skip := 1
	if b.buf[idx] == '\r' && idx+1 < len(b.buf) && b.buf[idx+1] == '\n' {
		skip = 2
	}
	b.buf = b.buf[idx+skip:]
	return line, true
}

// Len is the number of buffered bytes not yet returned as a line.
func (b *lineBuffer) Len() int {
	return len(b.buf)
}
