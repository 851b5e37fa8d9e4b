package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"slidebot/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultPollTimeout = 30 * time.Second

// TelegramService is the chat transport. Bot API calls are bounded by the
// HTTP client timeout; file downloads additionally honour ctx.
type TelegramService struct {
	bot         *tgbotapi.BotAPI
	pollTimeout time.Duration
	logger      *zap.Logger
}

func NewTelegramService(token string, timeout time.Duration, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to authorize bot: %w", err)
	}
	return newTelegramService(bot, timeout, logger), nil
}

func newTelegramService(bot *tgbotapi.BotAPI, timeout time.Duration, logger *zap.Logger) *TelegramService {
	// Long polls must finish before the client timeout cuts them off.
	pollTimeout := defaultPollTimeout
	if timeout > 0 && timeout <= pollTimeout+10*time.Second {
		pollTimeout = timeout / 2
	}
	return &TelegramService{bot: bot, pollTimeout: pollTimeout, logger: logger}
}

func (t *TelegramService) Username() string {
	return t.bot.Self.UserName
}

// Updates long-polls the Bot API until ctx is done, emitting documents and
// plain text. Commands and non-message updates are dropped.
func (t *TelegramService) Updates(ctx context.Context) <-chan models.Inbound {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(t.pollTimeout.Seconds())
	updates := t.bot.GetUpdatesChan(cfg)

	out := make(chan models.Inbound)
	go func() {
		defer close(out)
		defer t.logger.Info("Stopped receiving updates")
		defer t.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := toInbound(update)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func toInbound(update tgbotapi.Update) (models.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return models.Inbound{}, false
	}

	in := models.Inbound{
		Ref:        models.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
		SenderID:   msg.From.ID,
		SenderName: msg.From.FirstName,
	}

	switch {
	case msg.Document != nil:
		in.Document = &models.Document{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			FileSize: int64(msg.Document.FileSize),
		}
	case msg.Text != "" && !msg.IsCommand():
		in.Text = msg.Text
	default:
		return models.Inbound{}, false
	}
	return in, true
}

// Download fetches the file behind fileID into dest. A partial dest is
// removed on failure.
func (t *TelegramService) Download(ctx context.Context, fileID string, dest string) error {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.bot.Client.Do(req)
	if err != nil {
		return fmt.Errorf("file download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to save file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

func (t *TelegramService) Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error) {
	msg := tgbotapi.NewMessage(to.ChatID, text)
	msg.ReplyToMessageID = to.MessageID
	sent, err := t.bot.Send(msg)
	if err != nil {
		return models.MessageRef{}, err
	}
	return models.MessageRef{ChatID: to.ChatID, MessageID: sent.MessageID}, nil
}

func (t *TelegramService) ReplyWithFile(ctx context.Context, to models.MessageRef, path, filename, caption string) error {
	return t.sendDocument(to.ChatID, to.MessageID, path, filename, caption)
}

func (t *TelegramService) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (t *TelegramService) SendFile(ctx context.Context, chatID int64, path, filename, caption string) error {
	return t.sendDocument(chatID, 0, path, filename, caption)
}

func (t *TelegramService) sendDocument(chatID int64, replyTo int, path, filename, caption string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: file})
	doc.Caption = caption
	doc.ReplyToMessageID = replyTo
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

func (t *TelegramService) EditStatus(ctx context.Context, ref models.MessageRef, text string) error {
	_, err := t.bot.Request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
	return err
}

func (t *TelegramService) Delete(ctx context.Context, ref models.MessageRef) error {
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return err
}

func (t *TelegramService) Forward(ctx context.Context, ref models.MessageRef, target int64) error {
	_, err := t.bot.Send(tgbotapi.NewForward(target, ref.ChatID, ref.MessageID))
	return err
}
