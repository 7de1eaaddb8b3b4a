package dispatch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"logchat/internal/notification"
	"logchat/internal/palette"
)

func TestPacedPassesThrough(t *testing.T) {
	t.Parallel()
	var got []notification.Notification
	d := Paced(Func{To: "room-1", Fn: func(ctx context.Context, n notification.Notification) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the send context")
		}
		got = append(got, n)
		return nil
	}}, PaceConfig{})

	if d.Recipient() != "room-1" {
		t.Fatalf("Recipient() = %q", d.Recipient())
	}
	if err := d.Send(context.Background(), notification.Notification{Body: "hi"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(got) != 1 || got[0].Body != "hi" {
		t.Fatalf("unexpected sends: %+v", got)
	}
}

func TestPacedTimeoutWhileWaiting(t *testing.T) {
	t.Parallel()
	calls := 0
	d := Paced(Func{To: "r", Fn: func(ctx context.Context, n notification.Notification) error {
		calls++
		return nil
	}}, PaceConfig{RatePerSec: 1, Timeout: 50 * time.Millisecond})

	if err := d.Send(context.Background(), notification.Notification{}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	// The bucket is empty and the next token is 1s away, beyond the timeout.
	if err := d.Send(context.Background(), notification.Notification{}); err == nil {
		t.Fatal("expected pacing error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPacedPropagatesError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	d := Paced(Func{To: "r", Fn: func(context.Context, notification.Notification) error { return boom }}, PaceConfig{})
	if err := d.Send(context.Background(), notification.Notification{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestWriter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, "")
	if w.Recipient() != "stdout" {
		t.Fatalf("Recipient() = %q", w.Recipient())
	}
	err := w.Send(context.Background(), notification.Notification{From: "Worker", Body: "WARN: x", Color: palette.Yellow, Notify: true})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[yellow notify] Worker: WARN: x" {
		t.Fatalf("output = %q", got)
	}
}
