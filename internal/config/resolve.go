package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"logchat/internal/appender"
	"logchat/internal/metrics"
	"logchat/internal/notification"
	"logchat/internal/report"
	"logchat/internal/storage"
	"logchat/internal/throttle"
	logx "logchat/pkg/logx"
)

const (
	DefaultReportSchedule  = "@every 5m"
	DefaultMetricsAddr     = "127.0.0.1:9464"
	DefaultDispatchTimeout = 10 * time.Second
)

var (
	ErrUnknownDriver  = errors.New("unknown dispatcher driver")
	ErrMissingToken   = errors.New("dispatcher.auth_token is required")
	ErrMissingRoom    = errors.New("dispatcher.room is required")
	ErrMissingURL     = errors.New("dispatcher.url is required")
	ErrInvalidRateCap = errors.New("dispatcher.rate_per_sec must be >= 0")
)

// Logx maps the logging section onto the log service config.
func (c *Config) Logx() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Forward: logx.ForwardConfig{Enabled: l.Forward.Enabled, MinLevel: l.Forward.MinLevel},
	}
}

// AppenderOptions applies defaults to the appender section. Values are not
// validated here; appender.New does that.
func (c *Config) AppenderOptions() appender.Config {
	a := c.Appender
	out := appender.DefaultConfig()
	if s := strings.TrimSpace(a.Name); s != "" {
		out.Name = s
	}
	if a.From != nil {
		out.From = *a.From
	}
	if a.Message != nil {
		out.Message = *a.Message
	}
	if a.Notify != nil {
		out.Notify = *a.Notify
	}
	if strings.TrimSpace(a.Color) != "" {
		out.Color = a.Color
	}
	if strings.TrimSpace(a.Format) != "" {
		out.Format = a.Format
	}
	if a.Rate != nil {
		out.Rate = *a.Rate
	} else {
		out.Rate = throttle.Unlimited
	}
	if a.Per != nil {
		out.Per = *a.Per
	}
	out.Timezone = a.Timezone
	out.EscapeHTML = a.EscapeHTML
	return out
}

func (c *Config) DispatcherDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Dispatcher.Driver))
	if d == "" {
		return "telegram"
	}
	return d
}

func (c *Config) DispatchTimeout() (time.Duration, error) {
	return parseDuration("dispatcher.timeout", c.Dispatcher.Timeout, DefaultDispatchTimeout)
}

// Storage returns the audit store config; a nil section disables audit.
func (c *Config) Storage() (storage.Config, error) {
	if c.Audit == nil {
		return storage.Config{}, nil
	}
	busy, err := parseDuration("audit.busy_timeout", c.Audit.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	ret, err := parseDuration("audit.retention", c.Audit.Retention, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Audit.Driver,
		Path:        c.Audit.Path,
		BusyTimeout: busy,
		Retention:   ret,
	}, nil
}

// ReportSchedule returns the cron spec, or "" when reporting is disabled.
func (c *Config) ReportSchedule() string {
	if c.Report == nil || !c.Report.Enabled {
		return ""
	}
	if s := strings.TrimSpace(c.Report.Schedule); s != "" {
		return s
	}
	return DefaultReportSchedule
}

// MetricsAddr returns the listen address, or "" when metrics are disabled.
func (c *Config) MetricsAddr() string {
	if c.Metrics == nil || !c.Metrics.Enabled {
		return ""
	}
	if s := strings.TrimSpace(c.Metrics.Addr); s != "" {
		return s
	}
	return DefaultMetricsAddr
}

// MetricsServe returns the endpoint config; Addr is "" when disabled.
func (c *Config) MetricsServe() metrics.ServeConfig {
	out := metrics.ServeConfig{Addr: c.MetricsAddr()}
	if out.Addr != "" {
		out.Pprof = c.Metrics.Pprof
		out.Token = strings.TrimSpace(c.Metrics.Token)
	}
	return out
}

// InputPath returns the NDJSON source; "-" means stdin.
func (c *Config) InputPath() string {
	if p := strings.TrimSpace(c.Input.Path); p != "" {
		return p
	}
	return "-"
}

// parseDuration reads a Go duration string ("750ms", "5m") or a bare
// number of seconds. Empty or zero yields def.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		secs, nerr := strconv.ParseFloat(s, 64)
		if nerr != nil {
			return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// Validate checks everything that can be checked without side effects.
// It is used at startup and as the hot-reload validator.
func Validate(_ context.Context, c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	d := c.Dispatcher
	switch c.DispatcherDriver() {
	case "telegram":
		if strings.TrimSpace(d.AuthToken) == "" {
			errs = append(errs, ErrMissingToken)
		}
		if strings.TrimSpace(d.Room) == "" {
			errs = append(errs, ErrMissingRoom)
		}
	case "webhook":
		if strings.TrimSpace(d.URL) == "" {
			errs = append(errs, ErrMissingURL)
		}
		if strings.TrimSpace(d.AuthToken) == "" {
			errs = append(errs, ErrMissingToken)
		}
		if strings.TrimSpace(d.Room) == "" {
			errs = append(errs, ErrMissingRoom)
		}
	case "stdout":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownDriver, d.Driver))
	}
	if d.RatePerSec < 0 {
		errs = append(errs, ErrInvalidRateCap)
	}
	if _, err := c.DispatchTimeout(); err != nil {
		errs = append(errs, err)
	}

	if _, err := appender.New(c.AppenderOptions(), validationTarget{}); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Storage(); err != nil {
		errs = append(errs, err)
	}
	if s := c.ReportSchedule(); s != "" {
		if _, err := report.Parser.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("report.schedule: %w", err))
		}
	}
	if m := c.MetricsServe(); m.Addr != "" {
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validationTarget lets Validate build a throwaway appender without a transport.
type validationTarget struct{}

func (validationTarget) Recipient() string { return "validate" }
func (validationTarget) Send(context.Context, notification.Notification) error {
	return nil
}
