// Package appender turns log events into rate-limited chat notifications.
//
// An Appender admits each event through a token bucket, formats admitted
// events into a Notification and hands it to a dispatcher. Callers may
// invoke Append from many goroutines; the bucket is the only shared mutable
// state and the dispatcher is always called outside its lock.
package appender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"logchat/internal/dispatch"
	"logchat/internal/eventbus"
	"logchat/internal/logevent"
	"logchat/internal/notification"
	"logchat/internal/palette"
	"logchat/internal/storage"
	"logchat/internal/throttle"
	logx "logchat/pkg/logx"
)

const (
	DefaultFrom    = "$class"
	DefaultMessage = "$level: $message $marker <i>$source</i> $context $stack"
	DefaultPer     = 1.0
)

var (
	ErrMissingName       = errors.New("appender: name is required")
	ErrMissingDispatcher = errors.New("appender: dispatcher is required")
	ErrMissingRecipient  = errors.New("appender: dispatcher has no recipient")
	ErrInvalidFormat     = errors.New("appender: format must be html or text")
)

// Config is the validated shape of the appender section.
type Config struct {
	Name    string
	From    string
	Message string
	Notify  bool
	// Color is a palette spec, e.g. "red: FATAL, ERROR; yellow: WARN; purple".
	Color  string
	Format string
	// Rate is the bucket capacity. throttle.Unlimited admits everything.
	Rate float64
	// Per is the refill period in seconds; must be > 0.
	Per float64
	// Timezone for $date and $time; empty means local time.
	Timezone   string
	EscapeHTML bool
}

// DefaultConfig returns the defaults used when a field is not configured.
func DefaultConfig() Config {
	return Config{
		Name:    "logchat",
		From:    DefaultFrom,
		Message: DefaultMessage,
		Notify:  true,
		Color:   palette.DefaultSpec,
		Format:  string(notification.FormatHTML),
		Rate:    throttle.Unlimited,
		Per:     DefaultPer,
	}
}

// Stats are monotonically increasing counters.
type Stats struct {
	Admitted uint64
	Dropped  uint64
	Sent     uint64
	Failed   uint64
}

// Sub returns the per-field difference s - prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Admitted: s.Admitted - prev.Admitted,
		Dropped:  s.Dropped - prev.Dropped,
		Sent:     s.Sent - prev.Sent,
		Failed:   s.Failed - prev.Failed,
	}
}

type Option func(*Appender)

// WithBus publishes appender.sent, appender.dropped and appender.failed.
func WithBus(b eventbus.Bus) Option { return func(a *Appender) { a.bus = b } }

// WithStore records every dispatch attempt.
func WithStore(s storage.Store) Option { return func(a *Appender) { a.store = s } }

func WithLogger(l logx.Logger) Option { return func(a *Appender) { a.log = l } }

// WithClock replaces time.Now for admission decisions.
func WithClock(now func() time.Time) Option { return func(a *Appender) { a.now = now } }

type Appender struct {
	name      string
	recipient string

	bucket *throttle.Bucket
	fmt    *notification.Formatter
	d      dispatch.Dispatcher

	bus   eventbus.Bus
	store storage.Store
	log   logx.Logger
	now   func() time.Time

	admitted atomic.Uint64
	dropped  atomic.Uint64
	sent     atomic.Uint64
	failed   atomic.Uint64
}

// New validates cfg and builds an appender delivering through d.
// Any configuration error is returned and no appender is produced.
func New(cfg Config, d dispatch.Dispatcher, opts ...Option) (*Appender, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	if d == nil {
		return nil, ErrMissingDispatcher
	}
	recipient := strings.TrimSpace(d.Recipient())
	if recipient == "" {
		return nil, ErrMissingRecipient
	}

	bucket, err := throttle.New(cfg.Rate, cfg.Per)
	if err != nil {
		return nil, fmt.Errorf("appender %s: %w", name, err)
	}
	policy, err := palette.Parse(cfg.Color)
	if err != nil {
		return nil, fmt.Errorf("appender %s: color: %w", name, err)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("appender %s: %w", name, err)
	}
	var loc *time.Location
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("appender %s: timezone: %w", name, err)
		}
	}

	f, err := notification.New(notification.Config{
		From:       cfg.From,
		Message:    cfg.Message,
		Notify:     cfg.Notify,
		Format:     format,
		Policy:     policy,
		Location:   loc,
		EscapeHTML: cfg.EscapeHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("appender %s: %w", name, err)
	}

	a := &Appender{
		name:      name,
		recipient: recipient,
		bucket:    bucket,
		fmt:       f,
		d:         d,
		now:       time.Now,
	}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}
	if a.log.IsZero() {
		a.log = logx.Nop()
	}
	a.log = a.log.With(logx.String("appender", name))
	return a, nil
}

func parseFormat(s string) (notification.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(notification.FormatHTML):
		return notification.FormatHTML, nil
	case string(notification.FormatText):
		return notification.FormatText, nil
	default:
		return "", fmt.Errorf("%w, got %q", ErrInvalidFormat, s)
	}
}

func (a *Appender) Name() string      { return a.name }
func (a *Appender) Recipient() string { return a.recipient }

func (a *Appender) Stats() Stats {
	return Stats{
		Admitted: a.admitted.Load(),
		Dropped:  a.dropped.Load(),
		Sent:     a.sent.Load(),
		Failed:   a.failed.Load(),
	}
}

// Append delivers ev if the bucket admits it. A rate-limited event is
// dropped silently and Append returns nil. A dispatch failure is returned
// once as a *DeliveryError and never retried.
func (a *Appender) Append(ctx context.Context, ev logevent.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !a.bucket.Admit(a.now().UnixMilli()) {
		a.dropped.Add(1)
		a.publish(eventbus.TypeDropped, eventbus.Outcome{Level: ev.Level.String()}, 0)
		return nil
	}
	a.admitted.Add(1)

	n := a.fmt.Format(ev)
	start := time.Now()
	err := a.send(ctx, n)
	took := time.Since(start)

	a.audit(ctx, n, took, err)

	out := eventbus.Outcome{Level: n.Level.String(), Color: string(n.Color), Err: err}
	if err != nil {
		a.failed.Add(1)
		a.publish(eventbus.TypeFailed, out, took)
		return &DeliveryError{Appender: a.name, Recipient: a.recipient, Message: n.Body, Err: err}
	}
	a.sent.Add(1)
	a.publish(eventbus.TypeSent, out, took)
	return nil
}

// send calls the dispatcher, turning a panic into an error so a broken
// transport cannot take down the caller's logging path.
func (a *Appender) send(ctx context.Context, n notification.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return a.d.Send(ctx, n)
}

func (a *Appender) publish(typ string, o eventbus.Outcome, took time.Duration) {
	if a.bus == nil {
		return
	}
	o.Appender = a.name
	o.Recipient = a.recipient
	o.Took = took
	a.bus.Publish(eventbus.Event{Type: typ, Data: o})
}

func (a *Appender) audit(ctx context.Context, n notification.Notification, took time.Duration, sendErr error) {
	if a.store == nil {
		return
	}
	rec := storage.DeliveryRecord{
		At:        a.now(),
		Appender:  a.name,
		Recipient: a.recipient,
		Level:     n.Level.String(),
		Color:     string(n.Color),
		OK:        sendErr == nil,
		TookMS:    took.Milliseconds(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	// A cancelled caller still gets its attempt recorded.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.store.AppendDelivery(actx, rec); err != nil {
		a.log.Warn("audit write failed", logx.Err(err), logx.NoForward())
	}
}
