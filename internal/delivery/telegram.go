package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ErrPermanent необратимая ошибка доставки: получатель недоступен
// навсегда (заблокировал бота, удалил аккаунт). Ретраить бессмысленно.
var ErrPermanent = errors.New("permanent delivery failure")

// Sender канал доставки уведомлений
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// TelegramSender доставка через Telegram Bot API
type TelegramSender struct {
	bot *bot.Bot
}

func NewTelegramSender(b *bot.Bot) *TelegramSender {
	return &TelegramSender{bot: b}
}

// Send отправляет сообщение пользователю. Необратимые ошибки API
// оборачиваются в ErrPermanent, остальные считаются временными
// и уходят на ретрай с backoff.
func (s *TelegramSender) Send(ctx context.Context, userID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: bot.True(),
		},
	})
	if err == nil {
		return nil
	}

	if isPermanentAPIError(err) {
		return fmt.Errorf("send to %d: %v: %w", userID, err, ErrPermanent)
	}
	return fmt.Errorf("send to %d: %w", userID, err)
}

// isPermanentAPIError распознаёт необратимые ответы Bot API по тексту
// ошибки: у go-telegram/bot нет типизированных кодов для этих случаев
func isPermanentAPIError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"bot was blocked",
		"user is deactivated",
		"chat not found",
		"bot can't initiate conversation",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
