// Package webhook posts notifications as HipChat v2 style room notifications:
//
//	POST {url}/v2/room/{room}/notification
//	Authorization: Bearer {token}
//	{"from": ..., "message": ..., "color": ..., "notify": ..., "message_format": ...}
//
// Any server speaking this shape (HipChat, self-hosted compatible bridges)
// can receive logchat notifications.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"logchat/internal/dispatch"
	"logchat/internal/notification"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "logchat/1"
)

type Config struct {
	URL       string
	AuthToken string
	Room      string
	// Timeout bounds one HTTP request. 0 means 10s.
	Timeout time.Duration
}

// payload is the JSON body of a room notification.
type payload struct {
	From          string `json:"from,omitempty"`
	Message       string `json:"message"`
	Color         string `json:"color"`
	Notify        bool   `json:"notify"`
	MessageFormat string `json:"message_format"`
}

type Dispatcher struct {
	endpoint string
	room     string
	token    string
	http     *http.Client
}

func New(cfg Config) (*Dispatcher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is required")
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook url must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("webhook url must include a host")
	}
	room := strings.TrimSpace(cfg.Room)
	if room == "" {
		return nil, errors.New("webhook room is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		endpoint: u.String() + "/v2/room/" + url.PathEscape(room) + "/notification",
		room:     room,
		token:    strings.TrimSpace(cfg.AuthToken),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (d *Dispatcher) Recipient() string { return "room:" + d.room }

func (d *Dispatcher) Send(ctx context.Context, n notification.Notification) error {
	b, err := json.Marshal(payload{
		From:          n.From,
		Message:       n.Body,
		Color:         string(n.Color),
		Notify:        n.Notify,
		MessageFormat: string(n.Format),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var out struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(body, &out)
		if out.Error.Message != "" {
			return fmt.Errorf("%w: %s (http=%d)", dispatch.ErrNotDelivered, out.Error.Message, resp.StatusCode)
		}
		return fmt.Errorf("%w: http=%d", dispatch.ErrNotDelivered, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
