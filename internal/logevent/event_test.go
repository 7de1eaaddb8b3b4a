package logevent

import (
	"errors"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{" Info ", LevelInfo},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"FATAL", LevelFatal},
		{"panic", LevelFatal},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelOrder(t *testing.T) {
	t.Parallel()
	lv := Levels()
	for i := 1; i < len(lv); i++ {
		if lv[i-1] >= lv[i] {
			t.Fatalf("levels not ascending at %d: %v >= %v", i, lv[i-1], lv[i])
		}
	}
	if LevelWarn.String() != "WARN" {
		t.Fatalf("String() = %q", LevelWarn.String())
	}
}

func TestDecodeFull(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"error","message":"boom","marker":"DB",
		"source":{"class":"com.acme.Worker","method":"run","file":"Worker.java","line":42},
		"context":{"user":"alice"},"context_stack":["req-1"],
		"thrown":{"type":"java.io.IOException","message":"closed","frames":[{"class":"a.B","method":"c","file":"B.java","line":7}]},
		"time":"2024-03-05T10:11:12Z"}`)
	ev, err := Decode(line, time.Now())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.Level != LevelError || ev.Message != "boom" || ev.Marker != "DB" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Source == nil || ev.Source.Line != 42 {
		t.Fatalf("source not decoded: %+v", ev.Source)
	}
	if ev.Thrown == nil || len(ev.Thrown.Frames) != 1 {
		t.Fatalf("thrown not decoded: %+v", ev.Thrown)
	}
	want := time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC).UnixMilli()
	if ev.TimeMillis != want {
		t.Fatalf("TimeMillis = %d, want %d", ev.TimeMillis, want)
	}
}

func TestDecodeDefaults(t *testing.T) {
	t.Parallel()
	now := time.UnixMilli(1700000000123)
	ev, err := Decode([]byte(`{"level":"INFO","msg":"hello"}`), now)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.Message != "hello" {
		t.Fatalf("Message = %q", ev.Message)
	}
	if ev.TimeMillis != now.UnixMilli() {
		t.Fatalf("TimeMillis = %d, want now", ev.TimeMillis)
	}

	ev, err = Decode([]byte(`{"level":"INFO","message":"x","time":1700000000999}`), now)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if ev.TimeMillis != 1700000000999 {
		t.Fatalf("TimeMillis = %d", ev.TimeMillis)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte("   "), time.Now()); !errors.Is(err, ErrEmptyLine) {
		t.Fatalf("expected ErrEmptyLine, got %v", err)
	}
	bad := []string{
		`not json`,
		`{"level":"LOUD","message":"x"}`,
		`{"level":"INFO","message":"x","extra":1}`,
		`{"level":"INFO","message":"x","time":"yesterday"}`,
	}
	for _, s := range bad {
		if _, err := Decode([]byte(s), time.Now()); err == nil {
			t.Fatalf("Decode(%s): expected error", s)
		}
	}
}
