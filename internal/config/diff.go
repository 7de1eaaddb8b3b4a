package config

import (
	"reflect"
	"sort"
	"strings"

	logx "logchat/pkg/logx"
)

// SectionLogging is the only section applied without a restart.
const SectionLogging = "logging"

// SummarizeConfigChange returns the sorted names of changed sections and
// safe structured attrs for logging. Tokens and URLs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.forward_enabled", newCfg.Logging.Forward.Enabled),
			logx.String("logging.forward_min_level", newCfg.Logging.Forward.MinLevel),
		)
	}

	// Compare resolved values so an omitted field and its default are equal.
	oa, na := oldCfg.AppenderOptions(), newCfg.AppenderOptions()
	if oa != na {
		changed = append(changed, "appender")
		attrs = append(attrs,
			logx.String("appender.name", na.Name),
			logx.String("appender.color", na.Color),
			logx.String("appender.format", na.Format),
			logx.Float64("appender.per", na.Per),
		)
	}

	od, nd := oldCfg.Dispatcher, newCfg.Dispatcher
	if !strings.EqualFold(oldCfg.DispatcherDriver(), newCfg.DispatcherDriver()) ||
		strings.TrimSpace(od.Room) != strings.TrimSpace(nd.Room) ||
		od.ThreadID != nd.ThreadID ||
		strings.TrimSpace(od.URL) != strings.TrimSpace(nd.URL) ||
		strings.TrimSpace(od.Timeout) != strings.TrimSpace(nd.Timeout) ||
		od.RatePerSec != nd.RatePerSec ||
		od.AuthToken != nd.AuthToken {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.String("dispatcher.driver", newCfg.DispatcherDriver()),
			logx.Bool("dispatcher.token_set", strings.TrimSpace(nd.AuthToken) != ""),
			logx.Bool("dispatcher.url_set", strings.TrimSpace(nd.URL) != ""),
			logx.Int("dispatcher.rate_per_sec", nd.RatePerSec),
		)
	}

	if !reflect.DeepEqual(derefAudit(oldCfg.Audit), derefAudit(newCfg.Audit)) {
		changed = append(changed, "audit")
		nAudit := derefAudit(newCfg.Audit)
		attrs = append(attrs,
			logx.String("audit.driver", strings.TrimSpace(nAudit.Driver)),
			logx.Bool("audit.path_set", strings.TrimSpace(nAudit.Path) != ""),
		)
	}

	if oldCfg.ReportSchedule() != newCfg.ReportSchedule() {
		changed = append(changed, "report")
		attrs = append(attrs, logx.String("report.schedule", newCfg.ReportSchedule()))
	}

	if om, nm := oldCfg.MetricsServe(), newCfg.MetricsServe(); om != nm {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.String("metrics.addr", nm.Addr),
			logx.Bool("metrics.pprof", nm.Pprof),
			logx.Bool("metrics.token_set", nm.Token != ""),
		)
	}

	if oldCfg.InputPath() != newCfg.InputPath() {
		changed = append(changed, "input")
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to sections that only take effect
// after a restart.
func RestartRequired(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		if s != SectionLogging {
			out = append(out, s)
		}
	}
	return out
}

func derefAudit(a *AuditConfig) AuditConfig {
	if a == nil {
		return AuditConfig{}
	}
	return *a
}
