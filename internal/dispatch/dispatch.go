// Package dispatch delivers finished notifications to a chat service.
//
// Dispatchers are the only components that perform network I/O. They own
// transport concerns (timeouts, pacing, markup quirks, color rendering);
// the appender calls Send once per admitted event and never retries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"logchat/internal/notification"
)

// Dispatcher posts a notification. Send must be safe for concurrent use.
type Dispatcher interface {
	Send(ctx context.Context, n notification.Notification) error
	// Recipient names the destination (room, chat) for error reports.
	Recipient() string
}

var ErrNotDelivered = errors.New("dispatch: notification not delivered")

// Func adapts a function to Dispatcher.
type Func struct {
	To string
	Fn func(ctx context.Context, n notification.Notification) error
}

func (f Func) Send(ctx context.Context, n notification.Notification) error { return f.Fn(ctx, n) }
func (f Func) Recipient() string                                           { return f.To }

// PaceConfig bounds how a dispatcher is used.
type PaceConfig struct {
	// RatePerSec limits sends per second (burst = rate). 0 disables pacing.
	RatePerSec int
	// Timeout bounds one send including time spent waiting for pacing.
	// 0 means 10s.
	Timeout time.Duration
}

type paced struct {
	next    Dispatcher
	limiter *rate.Limiter
	timeout time.Duration
}

// Paced wraps d with a transport rate limit and a per-send timeout.
func Paced(d Dispatcher, cfg PaceConfig) Dispatcher {
	p := &paced{next: d, timeout: cfg.Timeout}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}
	if cfg.RatePerSec > 0 {
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return p
}

func (p *paced) Recipient() string { return p.next.Recipient() }

func (p *paced) Send(ctx context.Context, n notification.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if p.limiter != nil {
		if err := p.limiter.Wait(callCtx); err != nil {
			return fmt.Errorf("dispatch: pacing: %w", err)
		}
	}
	return p.next.Send(callCtx, n)
}

// Writer prints notifications as text lines. Useful for dry runs.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
	to string
}

func NewWriter(w io.Writer, to string) *Writer {
	if strings.TrimSpace(to) == "" {
		to = "stdout"
	}
	return &Writer{w: w, to: to}
}

func (w *Writer) Recipient() string { return w.to }

func (w *Writer) Send(ctx context.Context, n notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	notify := ""
	if n.Notify {
		notify = " notify"
	}
	_, err := fmt.Fprintf(w.w, "[%s%s] %s: %s\n", n.Color, notify, n.From, n.Body)
	return err
}
