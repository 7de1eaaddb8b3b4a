package report

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"logchat/internal/appender"
	"logchat/internal/storage"
	logx "logchat/pkg/logx"
)

type fakeSource struct {
	mu sync.Mutex
	s  appender.Stats
}

func (f *fakeSource) Name() string { return "ops" }

func (f *fakeSource) Stats() appender.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fakeSource) set(s appender.Stats) {
	f.mu.Lock()
	f.s = s
	f.mu.Unlock()
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	if _, err := New("every tuesday", &fakeSource{}, nil, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New("@every 1m", nil, nil, logx.Nop()); err == nil {
		t.Fatal("expected error for nil source")
	}
	for _, spec := range []string{"@every 5m", "*/5 * * * *", "0 */5 * * * *", "@hourly"} {
		if _, err := New(spec, &fakeSource{}, nil, logx.Nop()); err != nil {
			t.Fatalf("New(%q) error: %v", spec, err)
		}
	}
}

func TestReportDeltasAndLastFailure(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	_ = st.AppendDelivery(ctx, storage.DeliveryRecord{Appender: "ops", OK: false, Error: "http=502"})
	_ = st.AppendDelivery(ctx, storage.DeliveryRecord{Appender: "ops", OK: true})

	src := &fakeSource{}
	var buf syncBuffer
	r, err := New("@every 1h", src, st, logx.NewWriter(&buf, "debug"))
	if err != nil {
		t.Fatal(err)
	}

	src.set(appender.Stats{Admitted: 4, Dropped: 2, Sent: 4})
	s := r.Report(ctx)
	if s.Delta != (appender.Stats{Admitted: 4, Dropped: 2, Sent: 4}) || s.LastFailure != nil {
		t.Fatalf("first summary = %+v", s)
	}

	src.set(appender.Stats{Admitted: 6, Dropped: 2, Sent: 5, Failed: 1})
	s = r.Report(ctx)
	if s.Delta != (appender.Stats{Admitted: 2, Sent: 1, Failed: 1}) {
		t.Fatalf("second delta = %+v", s.Delta)
	}
	if s.LastFailure == nil || s.LastFailure.Error != "http=502" {
		t.Fatalf("LastFailure = %+v", s.LastFailure)
	}
	out := buf.String()
	if !strings.Contains(out, `"last_error":"http=502"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("log output = %s", out)
	}
}

func TestRunFiresOnSchedule(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	var buf syncBuffer
	r, err := New("@every 1s", src, nil, logx.NewWriter(&buf, "info"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(buf.String(), "delivery report") {
		if time.Now().After(deadline) {
			t.Fatal("no report within deadline")
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
