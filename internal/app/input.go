package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"logchat/internal/appender"
	"logchat/internal/logevent"
	logx "logchat/pkg/logx"
)

const maxLineBytes = 1 << 20

// consumeInput feeds NDJSON events from the configured source to the
// appender until EOF or ctx is cancelled.
func (a *App) consumeInput(ctx context.Context) error {
	r := a.stdin
	if a.inputPath != "-" {
		f, err := os.Open(a.inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return pump(ctx, r, a.appender, a.log.With(logx.String("comp", "input")))
}

type line struct {
	n    int
	text []byte
}

// pump scans r on its own goroutine so a blocked read (stdin) never keeps
// ctx cancellation from returning.
func pump(ctx context.Context, r io.Reader, ap *appender.Appender, log logx.Logger) error {
	lines := make(chan line)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64<<10), maxLineBytes)
		n := 0
		for sc.Scan() {
			n++
			select {
			case lines <- line{n: n, text: append([]byte(nil), sc.Bytes()...)}:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			handleLine(ctx, l, ap, log)
		}
	}
}

func handleLine(ctx context.Context, l line, ap *appender.Appender, log logx.Logger) {
	ev, err := logevent.Decode(l.text, time.Now())
	if errors.Is(err, logevent.ErrEmptyLine) {
		return
	}
	if err != nil {
		log.Warn("skipping malformed event", logx.Int("line", l.n), logx.Err(err))
		return
	}
	if err := ap.Append(ctx, ev); err != nil {
		// Reported here once; forwarding it would go through the failing dispatcher.
		log.Warn("event not delivered", logx.Int("line", l.n), logx.Err(err), logx.NoForward())
	}
}
