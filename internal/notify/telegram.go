package notify

import (
	"context"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// captionLimit is the longest caption Telegram accepts on a photo.
const captionLimit = 1024

// Telegram sends HTML messages through the Bot API. Owners are chat ids.
type Telegram struct {
	bot *tgbotapi.BotAPI
	l   *zap.Logger
}

// NewTelegram authenticates with token against the public Bot API.
func NewTelegram(token string, l *zap.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{}, l)
}

// NewTelegramWithEndpoint authenticates against a custom endpoint, formatted with
// the token and method name.
func NewTelegramWithEndpoint(token, endpoint string, client *http.Client, l *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	l.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))

	return &Telegram{bot: bot, l: l}, nil
}

// Send delivers text to owner. With an image the text becomes the photo caption,
// or a follow-up message when it is too long for one.
func (t *Telegram) Send(ctx context.Context, owner int64, text string, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(image) == 0 {
		return t.sendText(owner, text)
	}

	photo := tgbotapi.NewPhoto(owner, tgbotapi.FileBytes{Name: "chart.png", Bytes: image})
	long := len([]rune(text)) > captionLimit
	if !long {
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
	}
	if _, err := t.bot.Send(photo); err != nil {
		return errors.Wrapf(err, "send photo to %d", owner)
	}
	if long {
		return t.sendText(owner, text)
	}

	return nil
}

func (t *Telegram) sendText(owner int64, text string) error {
	msg := tgbotapi.NewMessage(owner, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrapf(err, "send message to %d", owner)
	}
	return nil
}
