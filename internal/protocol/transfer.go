package protocol

import "github.com/san-kum/simbridge/internal/layout"

// CarriedBuffer returns the shared buffer a message or event carries, if any.
func CarriedBuffer(v any) *layout.Buffer {
	switch m := v.(type) {
	case Step:
		return m.Buffer
	case Probe:
		return m.Buffer
	case StepDone:
		return m.Buffer
	}
	return nil
}

func withBuffer[T any](v T, buf *layout.Buffer) T {
	var out any = v
	switch m := out.(type) {
	case Step:
		m.Buffer = buf
		out = m
	case Probe:
		m.Buffer = buf
		out = m
	case StepDone:
		m.Buffer = buf
		out = m
	}
	return out.(T)
}

// Transfer hands the carried buffer's storage to the receiver. The sender's
// Buffer is left detached.
func Transfer[T any](v T) T {
	buf := CarriedBuffer(v)
	if buf == nil || buf.Detached() {
		return v
	}
	return withBuffer(v, layout.Wrap(buf.Detach()))
}

// Copy gives the receiver a deep copy of the carried buffer. The sender keeps
// its storage.
func Copy[T any](v T) T {
	buf := CarriedBuffer(v)
	if buf == nil || buf.Detached() {
		return v
	}
	return withBuffer(v, layout.Wrap(buf.Clone()))
}
