package proto

import (
	"bufio"
	"io"
)

// DefaultMaxLineBytes caps the per-connection accumulator. A peer that sends
// a longer line is dropped.
const DefaultMaxLineBytes = 64 * 1024

// LineReader frames a connection's byte stream into trimmed, non-empty lines.
// It tolerates partial reads and arbitrary chunk boundaries and is not
// restartable after EOF.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r with a framer whose accumulator holds at most
// maxLineBytes of a single line. maxLineBytes <= 0 selects the default cap.
func NewLineReader(r io.Reader, maxLineBytes int) *LineReader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &LineReader{scanner: scanner}
}

// Next returns the next non-empty trimmed line. It returns io.EOF when the
// stream ends and bufio.ErrTooLong when a line overflows the accumulator;
// either way the reader is done.
func (lr *LineReader) Next() (string, error) {
	for lr.scanner.Scan() {
		line := Trim(lr.scanner.Text())
		if line == "" {
			continue
		}
		return line, nil
	}
	if err := lr.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
