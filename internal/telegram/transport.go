package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/renamer"
)

// Transport implements renamer.Transport on top of the bot API.
type Transport struct {
	api          *tgbotapi.BotAPI
	fileEndpoint string
	httpClient   *http.Client
}

// NewTransport builds a transport. fileEndpoint is a format string taking the
// bot token and the file path, like tgbotapi's API endpoints.
func NewTransport(api *tgbotapi.BotAPI, fileEndpoint string, timeout time.Duration) *Transport {
	return &Transport{
		api:          api,
		fileEndpoint: fileEndpoint,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

func (t *Transport) Send(_ context.Context, chatID int64, r renamer.Reply) (int, error) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if r.Menu == renamer.MenuOperation {
		msg.ReplyMarkup = operationMenu()
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, mapError(err)
	}
	return sent.MessageID, nil
}

func (t *Transport) Edit(_ context.Context, chatID int64, messageID int, text string) error {
	_, err := t.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return mapError(err)
}

// Open streams a file from the bot API file endpoint.
func (t *Transport) Open(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", mapError(err))
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf(t.fileEndpoint, t.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &renamer.FloodWaitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// defaultRetryAfter is used when a 429 carries no usable Retry-After header.
const defaultRetryAfter = 30 * time.Second

func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// Upload sends the renamed file back. Photos go out as documents so the new
// name survives.
func (t *Transport) Upload(ctx context.Context, req renamer.UploadRequest) error {
	file := tgbotapi.FileReader{Name: req.Name, Reader: &contextReader{ctx: ctx, r: req.Reader}}
	var thumb tgbotapi.RequestFileData
	if req.ThumbnailPath != "" {
		thumb = tgbotapi.FilePath(req.ThumbnailPath)
	}

	var c tgbotapi.Chattable
	switch req.Kind {
	case models.KindVideo:
		v := tgbotapi.NewVideo(req.ChatID, file)
		v.Thumb = thumb
		v.Caption = req.Caption
		v.Duration = req.Duration
		v.SupportsStreaming = true
		c = v
	case models.KindAudio:
		a := tgbotapi.NewAudio(req.ChatID, file)
		a.Thumb = thumb
		a.Caption = req.Caption
		a.Duration = req.Duration
		a.Title = req.Title
		a.Performer = req.Performer
		c = a
	default:
		d := tgbotapi.NewDocument(req.ChatID, file)
		d.Thumb = thumb
		d.Caption = req.Caption
		c = d
	}

	if _, err := t.api.Send(c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mapError(err)
	}
	return nil
}

// mapError turns telegram rate limiting into renamer.FloodWaitError.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &renamer.FloodWaitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return err
}

func operationMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Rename", cbRename),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Add thumbnail", cbAddThumbnail),
			tgbotapi.NewInlineKeyboardButtonData("Add caption", cbAddCaption),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", cbCancelOperation),
		),
	)
}

// contextReader fails reads once ctx is done, which aborts an in-flight
// multipart upload.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
