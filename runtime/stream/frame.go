// Package stream renders run events as line-oriented text frames suitable for
// Server-Sent Events transports, and exposes the per-subscriber frame
// iterator that interleaves keepalive pings when a stream is idle.
package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fableforge/fableforge/runtime/run"
)

type (
	// Frame is one transport-level unit of the event stream: an optional id
	// line, an event line, one or more data lines and a blank-line
	// terminator. Comment frames carry no event semantics and exist purely
	// to keep idle connections alive across intermediaries.
	Frame struct {
		// ID carries the run's per-event sequence number. Zero means no id
		// line is emitted (sequence numbers start at 1).
		ID int
		// Event is the wire-level event name. Empty for comment frames.
		Event string
		// Data is the payload text. Multi-line payloads are split so each
		// physical line is individually framed.
		Data string
		// Comment, when non-empty, makes this a comment-only frame rendered
		// as ": <comment>".
		Comment string
	}
)

// Encode formats a run event into a frame. The frame data is the JSON
// envelope {run_id, seq, type, ts, payload}; the event type is mirrored into
// the wire-level event name and the sequence number into the id line.
func Encode(ev run.Event) (Frame, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Frame{}, fmt.Errorf("stream: encode event %s/%d: %w", ev.Type, ev.Seq, err)
	}
	return Frame{ID: ev.Seq, Event: ev.Type, Data: string(data)}, nil
}

// Hello builds the greeting frame emitted immediately after a subscriber
// attaches so the client sees activity before the first event.
func Hello(runID string) Frame {
	data, _ := json.Marshal(map[string]string{"run_id": runID})
	return Frame{Event: "hello", Data: string(data)}
}

// Ping builds a comment-only keepalive frame.
func Ping() Frame {
	return Frame{Comment: "ping"}
}

// String renders the frame as wire text, terminated by a blank line.
func (f Frame) String() string {
	var b strings.Builder
	if f.Comment != "" {
		b.WriteString(": ")
		b.WriteString(f.Comment)
		b.WriteString("\n\n")
		return b.String()
	}
	if f.ID > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.Itoa(f.ID))
		b.WriteString("\n")
	}
	b.WriteString("event: ")
	b.WriteString(f.Event)
	b.WriteString("\n")
	lines := strings.Split(f.Data, "\n")
	for _, line := range lines {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Decode parses one wire frame back into its parts. The engine never decodes
// its own frames in production; this exists so tests can assert on streamed
// output without string matching.
func Decode(text string) (Frame, error) {
	var (
		f        Frame
		dataSeen bool
		data     []string
	)
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, ": "):
			f.Comment = strings.TrimPrefix(line, ": ")
		case strings.HasPrefix(line, "id: "):
			id, err := strconv.Atoi(strings.TrimPrefix(line, "id: "))
			if err != nil {
				return Frame{}, fmt.Errorf("stream: bad id line %q: %w", line, err)
			}
			f.ID = id
		case strings.HasPrefix(line, "event: "):
			f.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataSeen = true
			data = append(data, strings.TrimPrefix(line, "data: "))
		case line == "data:":
			dataSeen = true
			data = append(data, "")
		default:
			return Frame{}, fmt.Errorf("stream: unrecognized frame line %q", line)
		}
	}
	if dataSeen {
		f.Data = strings.Join(data, "\n")
	}
	return f, nil
}
