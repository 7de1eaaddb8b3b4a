package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logchat/internal/appender"
	"logchat/internal/storage"
	logx "logchat/pkg/logx"
)

func writeConfig(t *testing.T, dir string, cfg map[string]any) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "logchat.json")
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const inputLines = `{"level":"WARN","message":"disk low","source":{"class":"Worker"}}
{"level":"ERROR","message":"disk full","source":{"class":"Worker"}}

not json
{"level":"INFO","message":"dropped 1"}
{"level":"INFO","message":"dropped 2"}
{"level":"INFO","message":"dropped 3"}
`

func TestRunDeliversUntilEndOfInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.jsonl")
	path := writeConfig(t, dir, map[string]any{
		"appender":   map[string]any{"name": "ops", "rate": 2, "per": 60},
		"dispatcher": map[string]any{"driver": "stdout"},
		"audit":      map[string]any{"driver": "file", "path": auditPath},
	})

	var out bytes.Buffer
	a, err := NewApp(path, WithStdin(strings.NewReader(inputLines)), WithStdout(&out))
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run did not stop at end of input")
	}

	got := a.Appender().Stats()
	want := appender.Stats{Admitted: 2, Dropped: 3, Sent: 2}
	if got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout has %d lines, want 2:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "[yellow notify] Worker: WARN: disk low") {
		t.Fatalf("first notification = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[red notify] Worker: ERROR: disk full") {
		t.Fatalf("second notification = %q", lines[1])
	}

	store, err := storage.Open(storage.Config{Driver: "file", Path: auditPath}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	recs, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("audit has %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if !r.OK || r.Appender != "ops" || r.Recipient != "stdout" {
			t.Fatalf("unexpected audit record: %+v", r)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"dispatcher": map[string]any{"driver": "stdout"},
	})

	// A reader that never returns keeps the input open.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	defer r.Close()

	a, err := NewApp(path, WithStdin(r), WithStdout(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := map[string]map[string]any{
		"missing token": {"dispatcher": map[string]any{"driver": "telegram", "room": "1"}},
		"bad color":     {"dispatcher": map[string]any{"driver": "stdout"}, "appender": map[string]any{"color": "pink"}},
		"bad audit":     {"dispatcher": map[string]any{"driver": "stdout"}, "audit": map[string]any{"driver": "mongo"}},
	}
	for name, cfg := range cases {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), cfg)
			if a, err := NewApp(path); err == nil {
				_ = a.Close()
				t.Fatal("expected error")
			}
		})
	}

	if _, err := NewApp(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
