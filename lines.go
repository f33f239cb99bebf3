package main

import (
	"bufio"
	"io"
)

// lineReader reads bounded lines: a chunk ends after '\n' or once
// size-1 bytes have been read, whichever comes first. A trailing
// partial line is returned before io.EOF; on any other read error the
// bytes already read come back together with the error.
type lineReader struct {
	r    *bufio.Reader
	size int
}

func newLineReader(r io.Reader, size int) *lineReader {
	if size < 2 {
		size = 2
	}
	return &lineReader{r: bufio.NewReaderSize(r, size), size: size}
}

// next returns a freshly allocated chunk owned by the caller.
func (l *lineReader) next() ([]byte, error) {
	buf := make([]byte, 0, l.size-1)
	for len(buf) < l.size-1 {
		b, err := l.r.ReadByte()
		if err != nil {
			if len(buf) == 0 {
				return nil, err
			}
			if err == io.EOF {
				return buf, nil
			}
			return buf, err
		}
		buf = append(buf, b)
		if b == '\n' {
			break
		}
	}
	return buf, nil
}
