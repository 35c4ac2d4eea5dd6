// Package stream decodes and re-emits the line-delimited event stream used
// by OpenAI-compatible chat completion endpoints.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"

	// maxBufferSize bounds the text held while waiting for a line delimiter.
	maxBufferSize = 1 << 20
	readChunkSize = 4096
)

var ErrBufferOverflow = errors.New("stream: buffered line exceeds limit")

type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type lineResult int

const (
	lineConsumed lineResult = iota
	lineUnparsable
	lineDone
)

// Decoder turns arbitrary chunks of an event stream into content deltas.
// Chunks may split lines and JSON payloads anywhere. A Decoder is not safe
// for concurrent use.
type Decoder struct {
	buf     []byte
	onDelta func(string)
	onDone  func()

	// headRetry is set when the line at the front of buf was pushed back
	// after failing to parse.
	headRetry bool
	done      bool
	signaled  bool
}

// NewDecoder calls onDelta for every non-empty content delta in arrival
// order and onDone exactly once, either at [DONE] or on Close.
func NewDecoder(onDelta func(string), onDone func()) *Decoder {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	if onDone == nil {
		onDone = func() {}
	}
	return &Decoder{onDelta: onDelta, onDone: onDone}
}

// Write appends chunk and extracts every complete line it can.
func (d *Decoder) Write(chunk []byte) (int, error) {
	if d.done {
		return len(chunk), nil
	}
	d.buf = append(d.buf, chunk...)
	d.extract()
	if len(d.buf) > maxBufferSize {
		return len(chunk), ErrBufferOverflow
	}
	return len(chunk), nil
}

// Done reports whether the [DONE] marker has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Close processes any residual text, including a final line without a
// delimiter, and signals completion if that has not happened yet. Parse
// failures in the residual are dropped.
func (d *Decoder) Close() error {
	if !d.done {
		rest := d.buf
		d.buf = nil
		for len(rest) > 0 && !d.done {
			line := rest
			if i := bytes.IndexByte(rest, '\n'); i >= 0 {
				line, rest = rest[:i], rest[i+1:]
			} else {
				rest = nil
			}
			d.handle(bytes.TrimSuffix(line, []byte{'\r'}))
		}
	}
	d.buf = nil
	d.signal()
	return nil
}

func (d *Decoder) extract() {
	pos := 0
	for !d.done {
		i := bytes.IndexByte(d.buf[pos:], '\n')
		if i < 0 {
			break
		}
		start := pos
		pos += i + 1
		line := bytes.TrimSuffix(d.buf[start:start+i], []byte{'\r'})

		if d.handle(line) != lineUnparsable {
			d.headRetry = false
			continue
		}

		// A line that still fails on retry cannot be completed by more
		// data once the next line has arrived, so it is dropped.
		if start == 0 && d.headRetry && bytes.IndexByte(d.buf[pos:], '\n') >= 0 {
			d.headRetry = false
			continue
		}

		// Push the line and its delimiter back and wait for the next chunk.
		pos = start
		d.headRetry = true
		break
	}
	d.buf = append(d.buf[:0], d.buf[pos:]...)
}

func (d *Decoder) handle(line []byte) lineResult {
	if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' {
		return lineConsumed
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return lineConsumed
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneMarker {
		d.done = true
		d.signal()
		return lineDone
	}

	if !json.Valid(payload) {
		return lineUnparsable
	}

	var chunk chunkPayload
	if err := json.Unmarshal(payload, &chunk); err != nil {
		// Well-formed JSON of another shape carries no delta.
		return lineConsumed
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
		d.onDelta(chunk.Choices[0].Delta.Content)
	}
	return lineConsumed
}

func (d *Decoder) signal() {
	if d.signaled {
		return
	}
	d.signaled = true
	d.onDone()
}

// Decode reads r until [DONE] or end of data and reports each delta to
// onDelta. A read error other than io.EOF is returned without signaling
// completion.
func Decode(ctx context.Context, r io.Reader, onDelta func(string)) error {
	d := NewDecoder(onDelta, nil)
	buf := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := d.Write(buf[:n]); werr != nil {
				return werr
			}
			if d.Done() {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return d.Close()
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
}
