// Package telegram adapts the Telegram Bot API to the gateway interface.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"github.com/announcehq/broadcastq/internal/gateway"
)

type Config struct {
	Token     string        `env:"TELEGRAM_BOT_TOKEN"`
	ParseMode string        `env:"TELEGRAM_PARSE_MODE,default=HTML"`
	Timeout   time.Duration `env:"TELEGRAM_HTTP_TIMEOUT,default=10s"`
}

type Adapter struct {
	bot  *tele.Bot
	mode tele.ParseMode
	log  zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Send-only bot: no poller, updates are not consumed here.
	b, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		Synchronous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Adapter{
		bot:  b,
		mode: tele.ParseMode(cfg.ParseMode),
		log:  log.With().Str("component", "gateway.telegram").Logger(),
	}, nil
}

var _ gateway.Gateway = (*Adapter)(nil)

// Send delivers one text message to a Telegram user id. Telegram API
// failures come back as *gateway.Error carrying the API's error code and
// description; flood responses carry the retry-after hint.
func (a *Adapter) Send(ctx context.Context, recipientID int64, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg, err := a.bot.Send(&tele.User{ID: recipientID}, text, &tele.SendOptions{ParseMode: a.mode})
	if err != nil {
		return "", translate(err)
	}
	return strconv.Itoa(msg.ID), nil
}

// translate maps telebot errors onto the typed gateway error.
func translate(err error) error {
	var flood *tele.FloodError
	if errors.As(err, &flood) {
		return &gateway.Error{
			Code:        429,
			Description: flood.Description,
			RetryAfter:  time.Duration(flood.RetryAfter) * time.Second,
		}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return &gateway.Error{
			Code:        apiErr.Code,
			Description: apiErr.Description,
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}
