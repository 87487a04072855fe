package process

import (
	"errors"
	"strings"
	"testing"
)

// failingReader returns data once, then err.
type failingReader struct {
	data string
	err  error
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestReadLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  []string
	}{
		{name: "plain lines", input: "a\nb\n", limit: 10, want: []string{"a", "b"}},
		{name: "crlf endings", input: "a\r\nb\r\n", limit: 10, want: []string{"a", "b"}},
		{name: "empty line kept", input: "a\n\nb\n", limit: 10, want: []string{"a", "", "b"}},
		{name: "final line without newline", input: "a\nlast", limit: 10, want: []string{"a", "last"}},
		{name: "exactly at limit", input: "abcd\nx\n", limit: 4, want: []string{"abcd", "x"}},
		{name: "long line is chunked", input: "abcdefghij\nafter\n", limit: 4, want: []string{"abcd", "efgh", "ij", "after"}},
		{name: "empty input", input: "", limit: 4, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := readLines(strings.NewReader(tt.input), tt.limit, func(line string) {
				got = append(got, line)
			})
			if err != nil {
				t.Fatalf("readLines() error = %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLines_LongerThanReadBuffer(t *testing.T) {
	long := strings.Repeat("x", 3*readBufferSize+17)
	input := long + "\nnext\n"

	var got []string
	if err := readLines(strings.NewReader(input), 1<<20, func(line string) {
		got = append(got, line)
	}); err != nil {
		t.Fatalf("readLines() error = %v", err)
	}

	if len(got) != 2 || got[0] != long || got[1] != "next" {
		t.Errorf("got %d lines (first len %d), want the long line whole then next", len(got), len(got[0]))
	}
}

func TestReadLines_ReadError(t *testing.T) {
	boom := errors.New("boom")
	r := &failingReader{data: "one\npartial", err: boom}

	var got []string
	err := readLines(r, 100, func(line string) { got = append(got, line) })

	if !errors.Is(err, boom) {
		t.Errorf("readLines() error = %v, want boom", err)
	}
	if strings.Join(got, "|") != "one|partial" {
		t.Errorf("lines = %q, want [one partial]", got)
	}
}
