package config

// Config is the on-disk configuration (JSON or YAML).
//
// Only the logging section is applied on hot reload. Every other section
// is read once at startup: the appender's token bucket must survive for the
// lifetime of the process.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Appender   AppenderConfig   `json:"appender"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Audit      *AuditConfig     `json:"audit,omitempty"`
	Report     *ReportConfig    `json:"report,omitempty"`
	Metrics    *MetricsConfig   `json:"metrics,omitempty"`
	Input      InputConfig      `json:"input"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Forward LoggingForward `json:"forward"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingForward sends logchat's own warnings and errors through the
// appender, so a broken input or audit store shows up in the chat room.
type LoggingForward struct {
	Enabled  bool   `json:"enabled"`
	MinLevel string `json:"min_level"`
}

// AppenderConfig describes how events become notifications.
//
// Pointer fields distinguish "omitted" (use the default) from an explicit
// zero value:
//   - notify: default true
//   - rate: default unlimited; 0 means drop everything
//   - per: default 1 (seconds)
type AppenderConfig struct {
	Name       string   `json:"name"`
	From       *string  `json:"from,omitempty"`
	Message    *string  `json:"message,omitempty"`
	Notify     *bool    `json:"notify,omitempty"`
	Color      string   `json:"color,omitempty"`
	Format     string   `json:"format,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Per        *float64 `json:"per,omitempty"`
	Timezone   string   `json:"timezone,omitempty"`
	EscapeHTML bool     `json:"escape_html,omitempty"`
}

// DispatcherConfig selects and configures the chat transport.
//
// Driver values:
//   - "telegram": auth_token is the bot token, room the chat id or @channel
//   - "webhook":  HipChat v2 style room notifications at url
//   - "stdout":   print notifications (dry run)
type DispatcherConfig struct {
	Driver    string `json:"driver"`
	AuthToken string `json:"auth_token,omitempty"` // never logged
	Room      string `json:"room,omitempty"`
	ThreadID  int    `json:"thread_id,omitempty"`
	URL       string `json:"url,omitempty"`
	// Timeout is a Go duration string (e.g. "10s"); default 10s.
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// AuditConfig controls the delivery audit trail.
//
// Example:
//
//	"audit": { "driver": "sqlite", "path": "./data/audit.db" }
type AuditConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`    // Go duration string (sqlite)
}

// ReportConfig schedules a periodic summary of appender counters.
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec, default "@every 5m"
}

// MetricsConfig controls the Prometheus endpoint.
//
// Prefer binding to localhost; the endpoint has no authentication.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
	// Pprof mounts /debug/pprof/ on the same listener.
	Pprof bool   `json:"pprof,omitempty"`
	Token string `json:"token,omitempty"` // never logged
}

// InputConfig selects where NDJSON events are read from.
type InputConfig struct {
	// Path is a file path; empty or "-" means stdin.
	Path string `json:"path,omitempty"`
}
