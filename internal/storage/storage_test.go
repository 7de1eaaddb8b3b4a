package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "logchat/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestStores(t *testing.T) {
	t.Parallel()
	cases := []struct {
		driver string
		file   string
	}{
		{"file", "audit.jsonl"},
		{"sqlite", "audit.db"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "nested", tc.file)
			st, err := Open(Config{Driver: tc.driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("Open error: %v", err)
			}
			defer st.Close()
			ctx := context.Background()

			base := time.UnixMilli(1_700_000_000_000)
			for i := 0; i < 5; i++ {
				r := DeliveryRecord{
					At:        base.Add(time.Duration(i) * time.Second),
					Appender:  "ops",
					Recipient: "room:1",
					Level:     "ERROR",
					Color:     "red",
					OK:        i != 3,
				}
				if i == 3 {
					r.Error = "http=500"
				}
				if err := st.AppendDelivery(ctx, r); err != nil {
					t.Fatalf("AppendDelivery error: %v", err)
				}
			}

			got, err := st.Recent(ctx, 3)
			if err != nil {
				t.Fatalf("Recent error: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("Recent returned %d records, want 3", len(got))
			}
			if !got[0].At.Equal(base.Add(4*time.Second)) || !got[2].At.Equal(base.Add(2*time.Second)) {
				t.Fatalf("not newest first: %v, %v", got[0].At, got[2].At)
			}
			if got[1].OK || got[1].Error != "http=500" {
				t.Fatalf("failure not preserved: %+v", got[1])
			}
			for _, r := range got {
				if r.ID == "" {
					t.Fatal("record without ID")
				}
			}

			all, err := st.Recent(ctx, 50)
			if err != nil || len(all) != 5 {
				t.Fatalf("Recent(50) = %d records, %v", len(all), err)
			}
		})
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "a.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if err := st.AppendDelivery(context.Background(), DeliveryRecord{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
