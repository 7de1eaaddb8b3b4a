// Package metrics exposes appender outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logchat/internal/eventbus"
	logx "logchat/pkg/logx"
)

const (
	ResultSent    = "sent"
	ResultDropped = "dropped"
	ResultFailed  = "failed"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg      *prometheus.Registry
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logchat_events_total",
				Help: "Events seen by an appender, by result.",
			},
			[]string{"appender", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logchat_dispatch_duration_seconds",
				Help:    "Duration of dispatcher sends.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"appender", "result"},
		),
	}
	reg.MustRegister(m.events, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one bus event. Unknown types are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	o, _ := e.Data.(eventbus.Outcome)
	var result string
	switch e.Type {
	case eventbus.TypeSent:
		result = ResultSent
	case eventbus.TypeFailed:
		result = ResultFailed
	case eventbus.TypeDropped:
		m.events.WithLabelValues(o.Appender, ResultDropped).Inc()
		return
	default:
		return
	}
	m.events.WithLabelValues(o.Appender, result).Inc()
	m.duration.WithLabelValues(o.Appender, result).Observe(o.Took.Seconds())
}

// WatchForwardDrops exports fn as logchat_log_forward_dropped_total.
// It may be called once per Metrics.
func (m *Metrics) WatchForwardDrops(fn func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "logchat_log_forward_dropped_total",
		Help: "Own log records not forwarded to the appender because the queue was full.",
	}, func() float64 { return float64(fn()) }))
}

// Consume observes events from ch until ctx ends or ch closes.
func (m *Metrics) Consume(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(e)
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ServeConfig describes the HTTP endpoint.
type ServeConfig struct {
	Addr string
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool
	// Token, when set, is required as a bearer token (or ?token=) on every
	// route except /healthz.
	Token string
}

// Validate rejects pprof on a non-loopback addr without a token.
func (c ServeConfig) Validate() error {
	if c.Pprof && c.Token == "" && !isLoopbackAddr(c.Addr) {
		return fmt.Errorf("metrics: pprof on non-loopback addr %q requires a token", c.Addr)
	}
	return nil
}

// Serve exposes /metrics (and optionally pprof) until ctx is cancelled.
// A non-loopback addr with pprof enabled requires a token.
func (m *Metrics) Serve(ctx context.Context, cfg ServeConfig, log logx.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: m.mux(cfg), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("metrics listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cfg.Pprof))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
