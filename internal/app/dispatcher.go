package app

import (
	"fmt"
	"io"

	"logchat/internal/config"
	"logchat/internal/dispatch"
	"logchat/internal/dispatch/telegram"
	"logchat/internal/dispatch/webhook"
	logx "logchat/pkg/logx"
)

// buildDispatcher maps the dispatcher section onto a paced transport.
func buildDispatcher(cfg *config.Config, stdout io.Writer, log logx.Logger) (dispatch.Dispatcher, error) {
	timeout, err := cfg.DispatchTimeout()
	if err != nil {
		return nil, err
	}
	dc := cfg.Dispatcher

	var d dispatch.Dispatcher
	switch driver := cfg.DispatcherDriver(); driver {
	case "telegram":
		d, err = telegram.New(telegram.Config{
			Token:    dc.AuthToken,
			Room:     dc.Room,
			ThreadID: dc.ThreadID,
			APIURL:   dc.URL,
		}, log)
	case "webhook":
		d, err = webhook.New(webhook.Config{
			URL:       dc.URL,
			AuthToken: dc.AuthToken,
			Room:      dc.Room,
			Timeout:   timeout,
		})
	case "stdout":
		d = dispatch.NewWriter(stdout, "stdout")
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return dispatch.Paced(d, dispatch.PaceConfig{RatePerSec: dc.RatePerSec, Timeout: timeout}), nil
}
