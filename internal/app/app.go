package app

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"logchat/internal/appender"
	"logchat/internal/config"
	"logchat/internal/eventbus"
	"logchat/internal/metrics"
	"logchat/internal/report"
	"logchat/internal/storage"
	logx "logchat/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store    storage.Store
	appender *appender.Appender
	metrics  *metrics.Metrics
	reporter *report.Reporter

	metricsCfg metrics.ServeConfig
	inputPath  string
	stdin      io.Reader
	stdout     io.Writer
}

type Option func(*App)

// WithStdin replaces os.Stdin as the event source when input.path is "-".
func WithStdin(r io.Reader) Option { return func(a *App) { a.stdin = r } }

// WithStdout replaces os.Stdout for the stdout dispatcher.
func WithStdout(w io.Writer) Option { return func(a *App) { a.stdout = w } }

// NewApp loads and validates the config and builds every component. Any
// configuration error is returned before anything starts.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	a := &App{stdin: os.Stdin, stdout: os.Stdout}
	for _, o := range opts {
		o(a)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logx())
	log = log.With(logx.String("comp", "app"))

	sc, err := cfg.Storage()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if store != nil {
		log.Info("audit enabled", logx.String("driver", sc.Driver))
	}

	d, err := buildDispatcher(cfg, a.stdout, log.With(logx.String("comp", "dispatch")))
	if err != nil {
		a.closeAll(store, logSvc)
		return nil, err
	}

	bus := eventbus.New()
	ap, err := appender.New(cfg.AppenderOptions(), d,
		appender.WithBus(bus),
		appender.WithStore(store),
		appender.WithLogger(log.With(logx.String("comp", "appender"))),
	)
	if err != nil {
		a.closeAll(store, logSvc)
		return nil, err
	}
	logSvc.SetForwardSink(ap)

	var rep *report.Reporter
	if spec := cfg.ReportSchedule(); spec != "" {
		rep, err = report.New(spec, ap, store, log)
		if err != nil {
			a.closeAll(store, logSvc)
			return nil, err
		}
	}

	a.cfgm = cfgm
	a.log = log
	a.logs = logSvc
	a.bus = bus
	a.store = store
	a.appender = ap
	a.reporter = rep
	a.metrics = metrics.New()
	a.metrics.WatchForwardDrops(logSvc.ForwardDrops)
	a.metricsCfg = cfg.MetricsServe()
	a.inputPath = cfg.InputPath()
	return a, nil
}

func (a *App) closeAll(store storage.Store, logs *logx.Service) {
	if store != nil {
		_ = store.Close()
	}
	if logs != nil {
		_ = logs.Close()
	}
}

func (a *App) Appender() *appender.Appender { return a.appender }

// Run processes input until it is exhausted or ctx is cancelled, then
// shuts every component down. It returns the first component error.
func (a *App) Run(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(config.Validate)

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// End of input ends the run.
		defer stop()
		return a.consumeInput(gctx)
	})

	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error { a.reloadLoop(gctx); return nil })

	events, unsub := a.bus.Subscribe(256)
	g.Go(func() error {
		defer unsub()
		a.metrics.Consume(gctx, events)
		return nil
	})

	if a.reporter != nil {
		g.Go(func() error { return a.reporter.Run(gctx) })
	}
	if a.metricsCfg.Addr != "" {
		g.Go(func() error {
			return a.metrics.Serve(gctx, a.metricsCfg, a.log.With(logx.String("comp", "metrics")))
		})
	}

	a.log.Info("logchat started",
		logx.String("appender", a.appender.Name()),
		logx.String("recipient", a.appender.Recipient()),
		logx.String("input", a.inputPath),
	)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	s := a.appender.Stats()
	a.log.Info("logchat stopped",
		logx.Uint64("admitted", s.Admitted),
		logx.Uint64("dropped", s.Dropped),
		logx.Uint64("sent", s.Sent),
		logx.Uint64("failed", s.Failed),
		logx.Uint64("forward_dropped", a.logs.ForwardDrops()),
		logx.NoForward(),
	)
	return err
}

// Close releases the audit store and log sinks.
func (a *App) Close() error {
	// Stop forwarding first so nothing appends to a closed store.
	if a.logs != nil {
		_ = a.logs.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// reloadLoop applies the logging section of each published config and
// warns about sections that need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config change summary", fields...)

			if pending := config.RestartRequired(sections); len(pending) > 0 {
				a.log.Warn("config sections changed; restart required for changes to take effect",
					logx.String("sections", strings.Join(pending, ",")))
			}
			a.logs.Apply(newCfg.Logx())
			lastApplied = newCfg
		}
	}
}
