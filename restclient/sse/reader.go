// Package sse provides a reusable Server-Sent Events reader.
package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event represents a single server-sent event.
type Event struct {
	// Event is the SSE event type (from "event:" line). Empty for data-only events.
	Event string
	// Data is the event payload (from "data:" line(s)). Multi-line data is joined with newlines.
	Data string
	// ID is the event ID (from "id:" line).
	ID string
	// Retry is the reconnection delay suggested by the server, zero if unset.
	Retry time.Duration
}

// Reader reads server-sent events from a stream.
type Reader interface {
	// Next returns the next SSE event. Returns io.EOF when the stream ends.
	Next() (*Event, error)
	// LastEventID returns the ID of the most recently delivered event.
	// Useful as the Last-Event-ID header on reconnect.
	LastEventID() string
	// Close releases the underlying resources.
	Close() error
}

type reader struct {
	scanner     *bufio.Scanner
	body        io.ReadCloser
	lastEventID string
}

// NewReader creates an SSE reader from a readable stream.
func NewReader(body io.ReadCloser) Reader {
	return &reader{
		scanner: bufio.NewScanner(body),
		body:    body,
	}
}

func (r *reader) Next() (*Event, error) {
	var event Event
	var hasData bool

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line signals end of event
		if line == "" {
			if hasData {
				r.deliver(&event)
				return &event, nil
			}
			continue
		}

		// Skip comments
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseLine(line)
		switch field {
		case "data":
			if hasData {
				event.Data += "\n" + value
			} else {
				event.Data = value
				hasData = true
			}
		case "event":
			event.Event = value
		case "id":
			event.ID = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				event.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Stream ended, return the trailing event if one was in flight
	if hasData {
		r.deliver(&event)
		return &event, nil
	}
	return nil, io.EOF
}

func (r *reader) deliver(event *Event) {
	if event.ID != "" {
		r.lastEventID = event.ID
	}
}

func (r *reader) LastEventID() string {
	return r.lastEventID
}

func (r *reader) Close() error {
	return r.body.Close()
}

// parseLine splits an SSE line into field and value.
func parseLine(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	// Strip single leading space after colon per SSE spec
	if value != "" && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
