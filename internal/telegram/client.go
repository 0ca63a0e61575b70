// Package telegram wraps the Bot API client used by the ingestion worker:
// long-poll update batches, bounded file downloads, and profile photo lookup.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrTooLarge reports a download that exceeded the configured size ceiling.
var ErrTooLarge = errors.New("telegram: file exceeds size limit")

// Client is a thin handle over the Bot API plus the HTTP client used for
// file-content downloads.
type Client struct {
	bot    *tgbotapi.BotAPI
	http   *http.Client
	logger *slog.Logger
}

// New authenticates against the Bot API. The shared HTTP client timeout must
// exceed the long-poll window or every idle poll fails.
func New(token string, pollTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram: api token is required")
	}
	httpClient := &http.Client{Timeout: pollTimeout + 30*time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("authenticate bot: %w", err)
	}
	logger.Info("authenticated with telegram", "username", bot.Self.UserName)
	return &Client{bot: bot, http: httpClient, logger: logger}, nil
}

// Updates performs one long poll and returns the batch. The caller owns
// offset bookkeeping.
func (c *Client) Updates(offset, timeoutSeconds int) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = timeoutSeconds
	updates, err := c.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// Download fetches the content of a file by its Bot API file-id, failing with
// ErrTooLarge when the body exceeds limit bytes.
func (c *Client) Download(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	if file.FileSize > 0 && int64(file.FileSize) > limit {
		return nil, fmt.Errorf("file %s is %d bytes: %w", fileID, file.FileSize, ErrTooLarge)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(c.bot.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status %s", fileID, resp.Status)
	}

	// Read one byte past the limit so undeclared oversizes are caught too.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrTooLarge)
	}
	return body, nil
}

// LatestProfilePhoto returns the size renditions of a user's most recent
// profile photo, or nil when the user has none visible.
func (c *Client) LatestProfilePhoto(userID int64) ([]tgbotapi.PhotoSize, error) {
	photos, err := c.bot.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("get profile photos for %d: %w", userID, err)
	}
	if len(photos.Photos) == 0 {
		return nil, nil
	}
	return photos.Photos[0], nil
}
