package logevent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame is a source location (the logging call site or one stack frame).
type Frame struct {
	Class  string `json:"class,omitempty"`
	Method string `json:"method,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Thrown describes an error attached to an event.
type Thrown struct {
	Type    string  `json:"type"`
	Message string  `json:"message,omitempty"`
	Frames  []Frame `json:"frames,omitempty"`
}

// Event is a single log record.
type Event struct {
	Level        Level
	Message      string
	Marker       string
	Source       *Frame
	ContextMap   map[string]string
	ContextStack []string
	Thrown       *Thrown
	TimeMillis   int64
}

// Time returns the event timestamp.
func (e Event) Time() time.Time { return time.UnixMilli(e.TimeMillis) }

// wireEvent is the JSON Lines shape accepted on input.
type wireEvent struct {
	Level        string            `json:"level"`
	Message      string            `json:"message"`
	Msg          string            `json:"msg,omitempty"`
	Marker       string            `json:"marker,omitempty"`
	Source       *Frame            `json:"source,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	ContextStack []string          `json:"context_stack,omitempty"`
	Thrown       *Thrown           `json:"thrown,omitempty"`
	Time         json.RawMessage   `json:"time,omitempty"`
}

var ErrEmptyLine = errors.New("logevent: empty line")

// Decode parses one JSON Lines record.
//
// "time" may be an RFC3339 string or epoch milliseconds; when absent, now is
// used. "msg" is accepted when "message" is empty.
func Decode(line []byte, now time.Time) (Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, ErrEmptyLine
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	var w wireEvent
	if err := dec.Decode(&w); err != nil {
		return Event{}, fmt.Errorf("logevent: decode: %w", err)
	}

	lvl, err := ParseLevel(w.Level)
	if err != nil {
		return Event{}, fmt.Errorf("logevent: %w", err)
	}
	ts, err := parseTime(w.Time, now)
	if err != nil {
		return Event{}, fmt.Errorf("logevent: %w", err)
	}

	msg := w.Message
	if msg == "" {
		msg = w.Msg
	}
	return Event{
		Level:        lvl,
		Message:      msg,
		Marker:       w.Marker,
		Source:       w.Source,
		ContextMap:   w.Context,
		ContextStack: w.ContextStack,
		Thrown:       w.Thrown,
		TimeMillis:   ts.UnixMilli(),
	}, nil
}

func parseTime(raw json.RawMessage, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return now, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q: %w", str, err)
		}
		return t, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %s: %w", s, err)
	}
	return time.UnixMilli(ms), nil
}
