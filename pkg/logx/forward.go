package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"logchat/internal/logevent"
)

func (s *Service) forwardWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.fwdQueue:
			s.mu.Lock()
			sink := s.sink
			s.mu.Unlock()
			if sink == nil {
				continue
			}
			ev, ok := decodeRecord(line, time.Now())
			if !ok {
				continue
			}
			if err := sink.Append(ctx, ev); err != nil {
				// Straight to stderr: logging through the service could loop.
				fmt.Fprintf(Stderr(), "logx: forward failed: %v\n", err)
			}
		}
	}
}

// ---- Forward writer (zerolog sink) ----

type forwardWriter struct{ svc *Service }

func (w *forwardWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *forwardWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	min := s.minLevel
	hasSink := s.sink != nil
	s.mu.Unlock()

	if !hasSink || level < min {
		return len(p), nil
	}
	if bytes.Contains(p, []byte(`"`+noForwardKey+`":true`)) {
		return len(p), nil
	}

	// zerolog reuses p after Write returns.
	line := append([]byte(nil), p...)
	select {
	case s.fwdQueue <- line:
	default:
		s.fwdDrops.Add(1)
	}
	return len(p), nil
}

// decodeRecord maps one zerolog JSON line onto an event:
// "comp" and "caller" become the source, "err" becomes the thrown error,
// every other field lands in the context map.
func decodeRecord(p []byte, now time.Time) (logevent.Event, bool) {
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &m); err != nil {
		return logevent.Event{}, false
	}

	lvlText, _ := m[zerolog.LevelFieldName].(string)
	lvl, err := logevent.ParseLevel(lvlText)
	if err != nil {
		return logevent.Event{}, false
	}
	ev := logevent.Event{Level: lvl, TimeMillis: now.UnixMilli()}
	ev.Message, _ = m[zerolog.MessageFieldName].(string)

	if ts, ok := m[zerolog.TimestampFieldName].(string); ok {
		if t, err := time.Parse(consoleTimeFormat, ts); err == nil {
			ev.TimeMillis = t.UnixMilli()
		}
	}

	comp, _ := m["comp"].(string)
	caller, _ := m[zerolog.CallerFieldName].(string)
	if comp != "" || caller != "" {
		fr := &logevent.Frame{Class: comp, Method: "log"}
		if file, line, ok := strings.Cut(caller, ":"); ok {
			fr.File = file
			fr.Line, _ = strconv.Atoi(line)
		} else {
			fr.File = caller
		}
		ev.Source = fr
	}

	if msg, ok := m[zerolog.ErrorFieldName].(string); ok && msg != "" {
		ev.Thrown = &logevent.Thrown{Type: "error", Message: msg}
	}

	for k, v := range m {
		switch k {
		case zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName,
			zerolog.CallerFieldName, zerolog.ErrorFieldName, "comp", noForwardKey:
			continue
		}
		if ev.ContextMap == nil {
			ev.ContextMap = make(map[string]string)
		}
		if s, ok := v.(string); ok {
			ev.ContextMap[k] = s
		} else {
			ev.ContextMap[k] = fmt.Sprint(v)
		}
	}
	return ev, true
}
