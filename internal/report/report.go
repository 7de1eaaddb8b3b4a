// Package report logs a periodic summary of appender counters on a cron
// schedule.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"logchat/internal/appender"
	"logchat/internal/storage"
	logx "logchat/pkg/logx"
)

// Source is the appender side of a report.
type Source interface {
	Name() string
	Stats() appender.Stats
}

// Summary covers the interval since the previous report.
type Summary struct {
	Appender string
	Delta    appender.Stats
	Total    appender.Stats
	// LastFailure is the newest failed delivery in the audit trail, if any.
	LastFailure *storage.DeliveryRecord
}

type Reporter struct {
	spec   string
	parser cron.Parser
	src    Source
	store  storage.Store
	log    logx.Logger

	mu   sync.Mutex
	prev appender.Stats
}

// Parser accepts 5 or 6 field specs and descriptors such as "@every 5m".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// recentScan bounds how far back the audit trail is searched for a failure.
const recentScan = 50

// New validates spec ("@every 5m", "*/10 * * * *", optional seconds field).
// store may be nil.
func New(spec string, src Source, store storage.Store, log logx.Logger) (*Reporter, error) {
	if src == nil {
		return nil, fmt.Errorf("report: source is required")
	}
	parser := Parser
	spec = strings.TrimSpace(spec)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("report: schedule %q: %w", spec, err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{
		spec:   spec,
		parser: parser,
		src:    src,
		store:  store,
		log:    log.With(logx.String("comp", "report")),
	}, nil
}

// Run fires Report on the schedule until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	cl := cronLogger{log: r.log}
	c := cron.New(
		cron.WithParser(r.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(r.spec, func() { r.Report(ctx) }); err != nil {
		return err
	}
	c.Start()
	r.log.Debug("report scheduled", logx.String("schedule", r.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Report computes and logs the summary for the interval since the last call.
func (r *Reporter) Report(ctx context.Context) Summary {
	total := r.src.Stats()
	r.mu.Lock()
	delta := total.Sub(r.prev)
	r.prev = total
	r.mu.Unlock()

	s := Summary{Appender: r.src.Name(), Delta: delta, Total: total}
	if delta.Failed > 0 && r.store != nil {
		recent, err := r.store.Recent(ctx, recentScan)
		if err != nil {
			r.log.Debug("audit lookup failed", logx.Err(err), logx.NoForward())
		}
		for i := range recent {
			if !recent[i].OK {
				s.LastFailure = &recent[i]
				break
			}
		}
	}

	fields := []logx.Field{
		logx.String("appender", s.Appender),
		logx.Uint64("admitted", delta.Admitted),
		logx.Uint64("dropped", delta.Dropped),
		logx.Uint64("sent", delta.Sent),
		logx.Uint64("failed", delta.Failed),
		logx.Uint64("sent_total", total.Sent),
	}
	if s.LastFailure != nil {
		fields = append(fields,
			logx.String("last_error", s.LastFailure.Error),
			logx.Time("last_error_at", s.LastFailure.At),
		)
	}
	if delta.Failed > 0 {
		// The chat side is what is failing; keep this out of the forward sink.
		r.log.Warn("delivery report", append(fields, logx.NoForward())...)
	} else {
		r.log.Info("delivery report", fields...)
	}
	return s
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
