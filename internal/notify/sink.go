package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sink は通知の送信先。
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogSink は通知を構造化ログとして出力する。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink はLogSinkを生成する。
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name は送信先名を返す。
func (s *LogSink) Name() string { return "log" }

// Send は通知をログに出力する。
func (s *LogSink) Send(ctx context.Context, msg Message) error {
	level := slog.LevelInfo
	if msg.Kind == KindError {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "notification",
		slog.String("kind", string(msg.Kind)),
		slog.String("title", msg.Title),
		slog.String("body", msg.Body),
		slog.String("url", msg.URL),
	)
	return nil
}

// botSender はtgbotapi.BotAPIの送信部分。
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink はTelegramのチャットへ通知を送信する。
type TelegramSink struct {
	bot    botSender
	chatID int64
}

// NewTelegramSink はボットトークンで認証したTelegramSinkを生成する。
// 生成時にTelegram APIへ接続してトークンを検証する。
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// Name は送信先名を返す。
func (s *TelegramSink) Name() string { return "telegram" }

// Send はメッセージを送信する。
func (s *TelegramSink) Send(_ context.Context, msg Message) error {
	m := tgbotapi.NewMessage(s.chatID, msg.Text())
	m.DisableWebPagePreview = msg.URL == ""
	if _, err := s.bot.Send(m); err != nil {
		return fmt.Errorf("telegramへの送信に失敗: %w", err)
	}
	return nil
}
