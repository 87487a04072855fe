package process

import (
	"bufio"
	"errors"
	"io"
)

// readBufferSize is the bufio buffer used per pipe.
const readBufferSize = 64 * 1024

// readLines calls emit for every line read from r, without the line ending.
// A line longer than limit is split into chunks of limit bytes, so nothing
// after it is lost. A final line without a newline is still emitted.
// It returns nil at EOF and the read error otherwise.
func readLines(r io.Reader, limit int, emit func(string)) error {
	br := bufio.NewReaderSize(r, readBufferSize)
	var line []byte

	for {
		chunk, isPrefix, err := br.ReadLine()
		line = append(line, chunk...)

		for len(line) > limit {
			emit(string(line[:limit]))
			line = append(line[:0], line[limit:]...)
		}

		if err != nil {
			if len(line) > 0 {
				emit(string(line))
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if !isPrefix {
			emit(string(line))
			line = line[:0]
		}
	}
}
