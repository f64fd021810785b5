package provider

import "strings"

// sseDecoder is a byte-level Server-Sent Events state machine. Unlike
// a bufio.Scanner over response.Body, it accepts arbitrary byte
// fragments via Push (as they arrive off the wire) and only ever
// yields a complete event once its terminating blank line has been
// seen, so a read that splits a line mid-byte never produces a
// truncated event.
type sseDecoder struct {
	buf        []byte
	eventLines []string
}

// sseEvent is one decoded SSE frame. Name is "" for the default
// message event. Data is the concatenation of every "data:" line in
// the frame, joined with newlines per the SSE spec.
type sseEvent struct {
	Name string
	Data string
}

func newSSEDecoder() *sseDecoder {
	return &sseDecoder{}
}

// Push feeds raw bytes read from the connection and returns every
// complete event they produced, in order. Bytes that don't yet form a
// full line are retained for the next call.
func (d *sseDecoder) Push(chunk []byte) []sseEvent {
	d.buf = append(d.buf, chunk...)

	var events []sseEvent
	for {
		idx := indexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if ev, ok := d.flushEvent(); ok {
				events = append(events, ev)
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keepalive
		}
		d.eventLines = append(d.eventLines, line)
	}
	return events
}

// Finish flushes any event accumulated at end-of-stream without a
// trailing blank line.
func (d *sseDecoder) Finish() []sseEvent {
	if ev, ok := d.flushEvent(); ok {
		return []sseEvent{ev}
	}
	return nil
}

func (d *sseDecoder) flushEvent() (sseEvent, bool) {
	if len(d.eventLines) == 0 {
		return sseEvent{}, false
	}
	var ev sseEvent
	var dataLines []string
	for _, line := range d.eventLines {
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	d.eventLines = nil
	ev.Data = strings.Join(dataLines, "\n")
	if ev.Data == "" && ev.Name == "" {
		return sseEvent{}, false
	}
	return ev, true
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
