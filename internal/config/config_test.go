package config

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"logchat/internal/palette"
	"logchat/internal/throttle"
)

const sampleYAML = `
logging:
  level: debug
  console: true
  forward:
    enabled: true
    min_level: error
appender:
  name: ops
  from: "$class"
  notify: false
  rate: 5
  per: 2
  timezone: UTC
dispatcher:
  driver: webhook
  url: https://chat.example.com
  room: "42"
  auth_token: secret
  timeout: 3s
audit:
  driver: file
  path: ./audit.jsonl
report:
  enabled: true
metrics:
  enabled: true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "logchat.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}
	if err := Validate(context.Background(), cfg); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	a := cfg.AppenderOptions()
	if a.Name != "ops" || a.Notify || a.Rate != 5 || a.Per != 2 || a.Timezone != "UTC" {
		t.Fatalf("unexpected appender options: %+v", a)
	}
	if a.Color != palette.DefaultSpec || a.Format != "html" {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if d, _ := cfg.DispatchTimeout(); d != 3*time.Second {
		t.Fatalf("DispatchTimeout = %v", d)
	}
	if cfg.ReportSchedule() != DefaultReportSchedule || cfg.MetricsAddr() != DefaultMetricsAddr {
		t.Fatalf("report/metrics defaults: %q %q", cfg.ReportSchedule(), cfg.MetricsAddr())
	}
	if cfg.InputPath() != "-" {
		t.Fatalf("InputPath = %q", cfg.InputPath())
	}
	lx := cfg.Logx()
	if !lx.Forward.Enabled || lx.Forward.MinLevel != "error" {
		t.Fatalf("Logx = %+v", lx)
	}
}

func TestParseRejectsUnknownKeysAndTrailingData(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown.yaml":  "appender:\n  colour: red\n",
		"trailing.json": `{"appender":{}} {"appender":{}}`,
		"broken.json":   `{"appender":`,
	}
	for name, content := range cases {
		if _, err := NewConfigManager(writeFile(t, name, content)).Parse(); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestAppenderOptionsDefaults(t *testing.T) {
	t.Parallel()
	a := (&Config{}).AppenderOptions()
	if !math.IsInf(a.Rate, 1) || a.Rate != throttle.Unlimited {
		t.Fatalf("Rate = %v, want unlimited", a.Rate)
	}
	if a.Per != 1 || !a.Notify || a.From != "$class" || !strings.Contains(a.Message, "$stack") {
		t.Fatalf("unexpected defaults: %+v", a)
	}

	zero := 0.0
	a = (&Config{Appender: AppenderConfig{Rate: &zero}}).AppenderOptions()
	if a.Rate != 0 {
		t.Fatalf("explicit rate 0 lost: %v", a.Rate)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	badPer := -1.0
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"telegram without token", Config{Dispatcher: DispatcherConfig{Room: "1"}}, ErrMissingToken},
		{"telegram without room", Config{Dispatcher: DispatcherConfig{AuthToken: "t"}}, ErrMissingRoom},
		{"webhook without url", Config{Dispatcher: DispatcherConfig{Driver: "webhook", Room: "1", AuthToken: "t"}}, ErrMissingURL},
		{"webhook without token", Config{Dispatcher: DispatcherConfig{Driver: "webhook", URL: "https://chat.example.com", Room: "1"}}, ErrMissingToken},
		{"unknown driver", Config{Dispatcher: DispatcherConfig{Driver: "irc"}}, ErrUnknownDriver},
		{"negative pacing", Config{Dispatcher: DispatcherConfig{Driver: "stdout", RatePerSec: -1}}, ErrInvalidRateCap},
		{"bad per", Config{Dispatcher: DispatcherConfig{Driver: "stdout"}, Appender: AppenderConfig{Per: &badPer}}, throttle.ErrInvalidPer},
		{"bad color", Config{Dispatcher: DispatcherConfig{Driver: "stdout"}, Appender: AppenderConfig{Color: "pink"}}, palette.ErrUnknownColor},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := Validate(context.Background(), &tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	bad := Config{
		Dispatcher: DispatcherConfig{Driver: "stdout", Timeout: "soon"},
		Report:     &ReportConfig{Enabled: true, Schedule: "every tuesday"},
		Audit:      &AuditConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "-1s"},
	}
	err := Validate(context.Background(), &bad)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"dispatcher.timeout", "report.schedule", "audit.busy_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}

	exposed := Config{
		Dispatcher: DispatcherConfig{Driver: "stdout"},
		Metrics:    &MetricsConfig{Enabled: true, Addr: "0.0.0.0:9464", Pprof: true},
	}
	if err := Validate(context.Background(), &exposed); err == nil || !strings.Contains(err.Error(), "requires a token") {
		t.Fatalf("open pprof accepted: %v", err)
	}

	ok := Config{Dispatcher: DispatcherConfig{Driver: "stdout"}}
	if err := Validate(context.Background(), &ok); err != nil {
		t.Fatalf("minimal stdout config rejected: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Dispatcher: DispatcherConfig{Driver: "telegram", AuthToken: "old-secret", Room: "1"}}
	newCfg := &Config{
		Logging:    LoggingConfig{Level: "debug"},
		Dispatcher: DispatcherConfig{Driver: "telegram", AuthToken: "new-secret", Room: "1"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !slices.Equal(changed, []string{"dispatcher", "logging"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{"dispatcher"}) {
		t.Fatalf("RestartRequired = %v", got)
	}

	// Omitted fields equal their defaults.
	notify := true
	same := &Config{Appender: AppenderConfig{Notify: &notify, Name: "logchat"}}
	if changed, _ := SummarizeConfigChange(&Config{}, same); len(changed) != 0 {
		t.Fatalf("changed = %v, want none", changed)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "logchat.json", `{"logging":{"level":"info"},"dispatcher":{"driver":"stdout"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(Validate)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Let the watcher register before writing.
	time.Sleep(200 * time.Millisecond)

	// Rejected by the validator: must not be published.
	if err := os.WriteFile(path, []byte(`{"dispatcher":{"driver":"irc"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"},"dispatcher":{"driver":"stdout"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("valid change was not published")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned %v", err)
	}
	m.Unsubscribe(sub)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 7 * time.Second, false},
		{"0", 7 * time.Second, false},
		{"750ms", 750 * time.Millisecond, false},
		{"2.5", 2500 * time.Millisecond, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := parseDuration("x", tc.raw, 7*time.Second)
		if (err != nil) != tc.wantErr {
			t.Fatalf("parseDuration(%q) err = %v", tc.raw, err)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("parseDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
