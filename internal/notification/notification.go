// Package notification builds the chat notification for an admitted log event:
// it renders the sender and body templates, applies the length bounds and the
// HTML line-break rule, and picks the color.
package notification

import (
	"fmt"
	"html"
	"strings"
	"time"

	"logchat/internal/logevent"
	"logchat/internal/palette"
	"logchat/internal/render"
)

const (
	// MaxFromLen bounds the rendered sender name, in characters.
	MaxFromLen = 15
	// MaxBodyLen bounds the rendered body, in characters.
	MaxBodyLen = 10000
	// LineBreakHTML replaces newlines in HTML bodies.
	LineBreakHTML = "<br>"
)

// Format is the body markup.
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// ParseFormat maps "html" to FormatHTML and anything else to FormatText.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatHTML)) {
		return FormatHTML
	}
	return FormatText
}

// Notification is a finished message ready for a dispatcher.
type Notification struct {
	From   string
	Body   string
	Color  palette.Color
	Notify bool
	Format Format
	// Level is carried for dispatchers and audit; it is not rendered.
	Level logevent.Level
}

// Config configures a Formatter.
type Config struct {
	From       string
	Message    string
	Notify     bool
	Format     Format
	Policy     *palette.Policy
	Location   *time.Location
	EscapeHTML bool
}

// Formatter is immutable after New and safe for concurrent use.
type Formatter struct {
	from     *render.Template
	message  *render.Template
	policy   *palette.Policy
	notify   bool
	format   Format
	renderer render.Renderer
}

func New(cfg Config) (*Formatter, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("notification: color policy is required")
	}
	format := cfg.Format
	if format != FormatHTML {
		format = FormatText
	}
	r := render.Renderer{Location: cfg.Location}
	if cfg.EscapeHTML && format == FormatHTML {
		r.Escape = html.EscapeString
	}
	return &Formatter{
		from:     render.Compile(cfg.From),
		message:  render.Compile(cfg.Message),
		policy:   cfg.Policy,
		notify:   cfg.Notify,
		format:   format,
		renderer: r,
	}, nil
}

// Format builds the notification for ev. It never fails: missing event
// fields render as empty strings.
func (f *Formatter) Format(ev logevent.Event) Notification {
	from := truncate(f.renderer.Render(f.from, ev), MaxFromLen)
	body := truncate(f.renderer.Render(f.message, ev), MaxBodyLen)
	if f.format == FormatHTML {
		body = strings.ReplaceAll(body, "\n", LineBreakHTML)
	}
	return Notification{
		From:   from,
		Body:   body,
		Color:  f.policy.Pick(ev.Level),
		Notify: f.notify,
		Format: f.format,
		Level:  ev.Level,
	}
}

// truncate cuts s to at most n characters (runes).
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
