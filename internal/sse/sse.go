// Package sse renders relay events as text/event-stream frames.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is one unit of the push stream: an optional event name and a text
// payload that is JSON-encoded on the wire.
type Event struct {
	Name string `json:"event"`
	Data string `json:"data"`
}

// Names used by the agent relay.
const (
	EventInit      = "init"
	EventAgent     = "agent"
	EventTools     = "tools"
	EventError     = "error"
	EventCompleted = "completed"
)

// Format renders data as a blank-line-terminated SSE frame. The event line is
// omitted when event is empty. Event names are written verbatim and must not
// contain line breaks.
func Format(data, event string) string {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.WriteString(encodeString(data))
	b.WriteString("\n\n")
	return b.String()
}

// Frame renders the event with Format.
func (e Event) Frame() string {
	return Format(e.Data, e.Name)
}

func encodeString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
