package stream

import (
	"io"
	"iter"
)

// DefaultReadSize is the fragment size Fragments uses when none is given.
const DefaultReadSize = 4096

// Normalize converts a fragment source into unified events.
//
// The sequence always begins with one EventStart, emitted before the source
// is first pulled. Events follow in arrival order. The sequence ends after
// the first terminal event (EventDone or EventError), when the source is
// exhausted, or when the consumer stops iterating. A source error becomes a
// single EventError wrapping a *TransportError.
func Normalize(dialect Dialect, fragments iter.Seq2[string, error]) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !yield(Event{Type: EventStart}) {
			return
		}

		var buf LineBuffer
		emit := func(line string) bool {
			payload, ok := dialect.Payload(line)
			if !ok {
				return true
			}
			for _, ev := range dialect.Decode(payload) {
				if !yield(ev) || ev.Type.Terminal() {
					return false
				}
			}
			return true
		}

		for fragment, err := range fragments {
			if err != nil {
				yield(errorEvent(&TransportError{Err: err}))
				return
			}
			for _, line := range buf.Push(fragment) {
				if !emit(line) {
					return
				}
			}
		}
		if rest, ok := buf.Flush(); ok {
			emit(rest)
		}
	}
}

// NormalizeReader is Normalize over the raw reads of r.
func NormalizeReader(dialect Dialect, r io.Reader, size int) iter.Seq[Event] {
	return Normalize(dialect, Fragments(r, size))
}

// Fragments yields the raw reads of r as fragments. Reads are not aligned to
// lines. io.EOF ends the sequence; any other read error is yielded once.
func Fragments(r io.Reader, size int) iter.Seq2[string, error] {
	if size <= 0 {
		size = DefaultReadSize
	}
	return func(yield func(string, error) bool) {
		buf := make([]byte, size)
		for {
			n, err := r.Read(buf)
			if n > 0 && !yield(string(buf[:n]), nil) {
				return
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}

// FromStrings yields the given fragments in order.
func FromStrings(fragments ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}
