package telegram

import (
	"context"
	"errors"
	"html"
	"math/rand"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"logchat/internal/notification"
	"logchat/internal/palette"
	logx "logchat/pkg/logx"
)

// Config identifies the bot and the destination chat.
type Config struct {
	Token string
	// Room is a numeric chat id or an @channel username.
	Room     string
	ThreadID int
	// APIURL overrides the Bot API endpoint (e.g. a local bot server).
	APIURL string
}

// sender is the part of *tele.Bot the dispatcher uses.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Dispatcher posts notifications to a Telegram chat.
type Dispatcher struct {
	room     string
	threadID int
	bot      sender
	log      logx.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an offline bot client: no network call happens until Send.
func New(cfg Config, log logx.Logger) (*Dispatcher, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if strings.TrimSpace(cfg.Room) == "" {
		return nil, errors.New("telegram room (chat id) is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimSpace(cfg.APIURL),
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return newWithSender(cfg, b, log), nil
}

func newWithSender(cfg Config, s sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		room:     strings.TrimSpace(cfg.Room),
		threadID: cfg.ThreadID,
		bot:      s,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *Dispatcher) Recipient() string { return "telegram:" + d.room }

// chat implements tele.Recipient for both numeric ids and @usernames.
type chat string

func (c chat) Recipient() string { return string(c) }

func (d *Dispatcher) Send(ctx context.Context, n notification.Notification) error {
	parseMode := tele.ParseMode("")
	if n.Format == notification.FormatHTML {
		parseMode = tele.ModeHTML
	}
	text := d.compose(n)
	chunks := splitTelegramText(text, telegramTextLimit, string(parseMode))
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	for _, chunk := range chunks {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		opt := &tele.SendOptions{
			ParseMode:             parseMode,
			DisableWebPagePreview: true,
			DisableNotification:   !n.Notify,
			ThreadID:              d.threadID,
		}
		if _, err := d.bot.Send(chat(d.room), chunk, opt); err != nil {
			return err
		}
	}
	d.log.Debug("telegram notification sent", logx.Int("chunks", len(chunks)), logx.String("color", string(n.Color)), logx.NoForward())
	return nil
}

// compose renders the color as an emoji, the sender as a header line, and
// turns HTML line-break markers back into newlines (Telegram HTML has no <br>).
// HTML bodies are sanitized so raw values such as "<init>" or "a && b" do
// not make the Bot API reject the message.
func (d *Dispatcher) compose(n notification.Notification) string {
	var b strings.Builder
	b.WriteString(d.emoji(n.Color))
	b.WriteString(" ")
	if n.From != "" {
		if n.Format == notification.FormatHTML {
			b.WriteString("<b>")
			b.WriteString(html.EscapeString(n.From))
			b.WriteString("</b>")
		} else {
			b.WriteString(n.From)
		}
		b.WriteString("\n")
	}
	body := n.Body
	if n.Format == notification.FormatHTML {
		body = sanitizeHTML(strings.ReplaceAll(body, notification.LineBreakHTML, "\n"))
	}
	b.WriteString(body)
	return b.String()
}

var colorEmoji = map[palette.Color]string{
	palette.Red:    "🔴",
	palette.Yellow: "🟡",
	palette.Green:  "🟢",
	palette.Purple: "🟣",
	palette.Gray:   "⚪",
}

var randomPool = []palette.Color{palette.Red, palette.Yellow, palette.Green, palette.Purple, palette.Gray}

func (d *Dispatcher) emoji(c palette.Color) string {
	if c == palette.Random {
		d.rngMu.Lock()
		c = randomPool[d.rng.Intn(len(randomPool))]
		d.rngMu.Unlock()
	}
	if e, ok := colorEmoji[c]; ok {
		return e
	}
	return colorEmoji[palette.Yellow]
}
