package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

type flusher interface {
	Flush()
}

type deltaEvent struct {
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Delta deltaContent `json:"delta"`
}

type deltaContent struct {
	Content string `json:"content"`
}

// EventWriter emits content deltas in the same event-stream shape the
// Decoder consumes, flushing after every event when w supports it.
type EventWriter struct {
	w io.Writer
}

func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

func (e *EventWriter) Delta(content string) error {
	data, err := json.Marshal(deltaEvent{Choices: []deltaChoice{{Delta: deltaContent{Content: content}}}})
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	return e.emit(data)
}

// Done writes the terminating [DONE] event.
func (e *EventWriter) Done() error {
	return e.emit([]byte(doneMarker))
}

func (e *EventWriter) emit(data []byte) error {
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if f, ok := e.w.(flusher); ok {
		f.Flush()
	}
	return nil
}
