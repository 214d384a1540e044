package stream

import (
	"slices"
	"testing"
)

func TestLineBufferPush(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		wantLines []string
		wantRest  string
	}{
		{
			name:      "single complete line",
			fragments: []string{"data: x\n"},
			wantLines: []string{"data: x"},
		},
		{
			name:      "line split across fragments",
			fragments: []string{"da", "ta: ", "x\n"},
			wantLines: []string{"data: x"},
		},
		{
			name:      "several lines in one fragment",
			fragments: []string{"a\nb\n\nc"},
			wantLines: []string{"a", "b", ""},
			wantRest:  "c",
		},
		{
			name:      "carriage returns trimmed",
			fragments: []string{"a\r\n", "b\r", "\n"},
			wantLines: []string{"a", "b"},
		},
		{
			name:      "empty fragments are harmless",
			fragments: []string{"", "a", "", "\n", ""},
			wantLines: []string{"a"},
		},
		{
			name:      "multi-byte rune split mid-sequence",
			fragments: []string{"h\xc3", "\xa9llo\n"},
			wantLines: []string{"héllo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf LineBuffer
			var got []string
			for _, f := range tt.fragments {
				got = append(got, buf.Push(f)...)
			}
			if !slices.Equal(got, tt.wantLines) {
				t.Errorf("lines: got %q, want %q", got, tt.wantLines)
			}
			rest, ok := buf.Flush()
			if ok != (tt.wantRest != "") || rest != tt.wantRest {
				t.Errorf("flush: got (%q, %v), want %q", rest, ok, tt.wantRest)
			}
		})
	}
}

func TestLineBufferHoldsOnlyPartialLine(t *testing.T) {
	var buf LineBuffer
	buf.Push("complete\npart")
	if got := buf.Pending(); got != len("part") {
		t.Errorf("Pending() = %d, want %d", got, len("part"))
	}
	buf.Push("ial\n")
	if got := buf.Pending(); got != 0 {
		t.Errorf("Pending() after newline = %d, want 0", got)
	}
}

func TestLineBufferFlushWhitespaceOnly(t *testing.T) {
	var buf LineBuffer
	buf.Push("  \r")
	if rest, ok := buf.Flush(); ok {
		t.Errorf("Flush() = %q, true; want nothing", rest)
	}
	if _, ok := buf.Flush(); ok {
		t.Error("second Flush() should be empty")
	}
}
