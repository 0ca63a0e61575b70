// Package ingest drives the long-poll loop: it normalizes every visible
// update, archives media blobs, and commits the per-message record set in a
// single transaction.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/disintegration/imaging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/chatvault/internal/archive"
	"github.com/nextlevelbuilder/chatvault/internal/kv"
)

// BotAPI is the slice of the Telegram client the worker needs.
type BotAPI interface {
	Updates(offset, timeoutSeconds int) ([]tgbotapi.Update, error)
	Download(ctx context.Context, fileID string, limit int64) ([]byte, error)
	LatestProfilePhoto(userID int64) ([]tgbotapi.PhotoSize, error)
}

// Worker consumes updates and writes the archive.
type Worker struct {
	store       *kv.Store
	bot         BotAPI
	logger      *slog.Logger
	tracer      trace.Tracer
	maxFileSize int64
	pollTimeout int
}

// New builds a worker. maxFileSize caps every blob download; pollTimeout is
// the long-poll window in seconds.
func New(store *kv.Store, bot BotAPI, maxFileSize int64, pollTimeout int, logger *slog.Logger) *Worker {
	return &Worker{
		store:       store,
		bot:         bot,
		logger:      logger,
		tracer:      otel.Tracer("chatvault/ingest"),
		maxFileSize: maxFileSize,
		pollTimeout: pollTimeout,
	}
}

// Run polls until ctx is cancelled or an error escapes. The update offset
// lives in memory only: after a restart the unconfirmed tail of the stream is
// redelivered, and the upsert write path absorbs the replay.
func (w *Worker) Run(ctx context.Context) error {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := w.bot.Updates(offset, w.pollTimeout)
		if err != nil {
			return fmt.Errorf("poll updates: %w", err)
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if err := w.ProcessUpdate(ctx, u); err != nil {
				return fmt.Errorf("process update %d: %w", u.UpdateID, err)
			}
		}
	}
}

// ProcessUpdate archives one update, reply chain included. Updates that carry
// no message are dropped.
func (w *Worker) ProcessUpdate(ctx context.Context, u tgbotapi.Update) error {
	ctx, span := w.tracer.Start(ctx, "ingest.update",
		trace.WithAttributes(attribute.Int("update_id", u.UpdateID)))
	defer span.End()

	msg := archive.FromUpdate(u)
	if msg == nil {
		w.logger.Debug("skipping non-message update", "update_id", u.UpdateID)
		return nil
	}

	// Reply targets land first so a reply never references a missing record.
	for _, m := range msg.Chain() {
		if err := w.ingest(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) ingest(ctx context.Context, m *archive.InterMessage) error {
	chat := m.ArchiveChat()
	chatID := chat.ID()
	ts := m.EffectiveTime()

	art := w.fetchMedia(ctx, m)
	item := archive.BuildLogItem(m, art)

	record, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	meta, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode chat meta: %w", err)
	}

	err = w.store.Update(func(txn *badger.Txn) error {
		if err := txn.Set(kv.MessageKey(chatID, ts), record); err != nil {
			return err
		}
		if err := txn.Set(kv.DayIndexKey(chatID, kv.DayOf(ts)), kv.Marker); err != nil {
			return err
		}
		if err := txn.Set(kv.ChatRelKey(chatID), kv.Marker); err != nil {
			return err
		}
		if err := txn.Set(kv.ChatRefKey(chatID, m.ID), []byte(strconv.FormatInt(ts, 10))); err != nil {
			return err
		}
		return txn.Set(kv.ChatMetaKey(chatID), meta)
	})
	if err != nil {
		return fmt.Errorf("write record chat=%d time=%d: %w", chatID, ts, err)
	}

	w.logger.Info("archived message", "chat", chatID, "message_id", m.ID, "time", ts)

	if m.From != nil {
		w.recordUser(ctx, m.From)
	}
	return nil
}

// recordUser refreshes the identity snapshot and, when no avatar blob exists
// yet, fetches the latest profile photo. Both are best effort.
func (w *Worker) recordUser(ctx context.Context, u *archive.UserMeta) {
	userID, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return
	}

	meta, err := json.Marshal(u)
	if err == nil {
		if err := w.store.Set(kv.UserMetaKey(userID), meta); err != nil {
			w.logger.Warn("write user meta", "user", u.ID, "error", err)
		}
	}

	avatarKey := kv.FileKey(kv.FileKindUser, u.ID)
	if has, err := w.store.Has(avatarKey); err != nil || has {
		return
	}
	sizes, err := w.bot.LatestProfilePhoto(userID)
	if err != nil {
		w.logger.Warn("fetch profile photos", "user", u.ID, "error", err)
		return
	}
	best, ok := archive.BiggestPhoto(toPhotoSizes(sizes))
	if !ok {
		return
	}
	data, ok := w.download(ctx, best.FileID, best.FileSize, true)
	if !ok {
		return
	}
	if err := w.store.Set(avatarKey, data); err != nil {
		w.logger.Warn("write profile photo", "user", u.ID, "error", err)
	}
}

// fetchMedia downloads whatever blob the message kind calls for and reports
// the stored artifacts. Videos and video notes keep the thumbnail only; the
// full stream stays upstream regardless of size.
func (w *Worker) fetchMedia(ctx context.Context, m *archive.InterMessage) archive.MediaArtifacts {
	var art archive.MediaArtifacts
	k := m.Kind

	switch {
	case k.Photo != nil:
		best, ok := archive.BiggestPhoto(k.Photo)
		if !ok {
			break
		}
		if w.storeBlob(ctx, kv.FileKindChat, best.FileID, best.FileSize, true) {
			art.Files = append(art.Files, best.FileID)
		}
	case k.Audio != nil:
		if w.storeBlob(ctx, kv.FileKindChat, k.Audio.FileID, k.Audio.FileSize, false) {
			art.Files = append(art.Files, k.Audio.FileID)
		}
	case k.Voice != nil:
		if w.storeBlob(ctx, kv.FileKindChat, k.Voice.FileID, k.Voice.FileSize, false) {
			art.Files = append(art.Files, k.Voice.FileID)
		}
	case k.Document != nil:
		if w.storeBlob(ctx, kv.FileKindChat, k.Document.FileID, k.Document.FileSize, false) {
			art.Files = append(art.Files, k.Document.FileID)
		}
	case k.Sticker != nil:
		if w.storeBlob(ctx, kv.FileKindChat, k.Sticker.FileID, k.Sticker.FileSize, false) {
			art.Files = append(art.Files, k.Sticker.FileID)
		}
	case k.Video != nil:
		if t := k.Video.Thumb; t != nil {
			if w.storeBlob(ctx, kv.FileKindVideoThumb, t.FileID, t.FileSize, true) {
				art.ThumbFileID = t.FileID
			}
		}
	case k.VideoNote != nil:
		if t := k.VideoNote.Thumb; t != nil {
			if w.storeBlob(ctx, kv.FileKindVideoThumb, t.FileID, t.FileSize, true) {
				art.ThumbFileID = t.FileID
			}
		}
	case k.NewChatPhoto != nil:
		best, ok := archive.BiggestPhoto(k.NewChatPhoto)
		if !ok {
			break
		}
		if w.storeBlob(ctx, kv.FileKindVideoThumb, best.FileID, best.FileSize, true) {
			art.ChatPhotoFileID = best.FileID
		}
	}
	return art
}

// storeBlob downloads and persists one file unless it is already archived.
// Returns whether the blob exists in the store afterwards.
func (w *Worker) storeBlob(ctx context.Context, kind kv.FileKind, fileID string, declaredSize int64, validateImage bool) bool {
	key := kv.FileKey(kind, fileID)
	if has, err := w.store.Has(key); err == nil && has {
		return true
	}
	data, ok := w.download(ctx, fileID, declaredSize, validateImage)
	if !ok {
		return false
	}
	if err := w.store.Set(key, data); err != nil {
		w.logger.Warn("write blob", "file", fileID, "error", err)
		return false
	}
	return true
}

func (w *Worker) download(ctx context.Context, fileID string, declaredSize int64, validateImage bool) ([]byte, bool) {
	if declaredSize <= 0 {
		w.logger.Warn("skipping file of undeclared size", "file", fileID)
		return nil, false
	}
	if declaredSize > w.maxFileSize {
		w.logger.Warn("skipping oversized file", "file", fileID, "size", declaredSize, "limit", w.maxFileSize)
		return nil, false
	}
	data, err := w.bot.Download(ctx, fileID, w.maxFileSize)
	if err != nil {
		w.logger.Warn("download failed", "file", fileID, "error", err)
		return nil, false
	}
	if validateImage {
		if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
			w.logger.Warn("discarding undecodable image", "file", fileID, "error", err)
			return nil, false
		}
	}
	return data, true
}

func toPhotoSizes(sizes []tgbotapi.PhotoSize) []archive.PhotoSize {
	out := make([]archive.PhotoSize, 0, len(sizes))
	for _, p := range sizes {
		out = append(out, archive.PhotoSize{
			FileID:   p.FileID,
			Width:    int64(p.Width),
			Height:   int64(p.Height),
			FileSize: int64(p.FileSize),
		})
	}
	return out
}
