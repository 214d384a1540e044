package stream

import "strings"

// LineBuffer reassembles complete lines from fragments that may split a line
// anywhere, including inside a multi-byte character. It holds at most one
// partial line between pushes.
type LineBuffer struct {
	partial strings.Builder
}

// Push appends a fragment and returns every line it completed, without the
// terminating newline or a trailing carriage return.
func (b *LineBuffer) Push(fragment string) []string {
	var lines []string
	for {
		before, after, found := strings.Cut(fragment, "\n")
		if !found {
			b.partial.WriteString(fragment)
			return lines
		}
		var line string
		if b.partial.Len() > 0 {
			b.partial.WriteString(before)
			line = b.partial.String()
			b.partial.Reset()
		} else {
			line = before
		}
		lines = append(lines, strings.TrimSuffix(line, "\r"))
		fragment = after
	}
}

// Flush returns the buffered partial line at end of stream, if it holds
// anything besides whitespace, and empties the buffer.
func (b *LineBuffer) Flush() (string, bool) {
	rest := strings.TrimSuffix(b.partial.String(), "\r")
	b.partial.Reset()
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}

// Pending reports the number of bytes held in the partial line.
func (b *LineBuffer) Pending() int {
	return b.partial.Len()
}
