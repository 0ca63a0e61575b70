package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strconv"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nextlevelbuilder/chatvault/internal/archive"
	"github.com/nextlevelbuilder/chatvault/internal/kv"
)

type fakeBot struct {
	files     map[string][]byte
	profiles  map[int64][]tgbotapi.PhotoSize
	downloads []string
}

func (f *fakeBot) Updates(offset, timeout int) ([]tgbotapi.Update, error) {
	return nil, nil
}

func (f *fakeBot) Download(_ context.Context, fileID string, limit int64) ([]byte, error) {
	f.downloads = append(f.downloads, fileID)
	data, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("no such file %s", fileID)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file %s too large", fileID)
	}
	return data, nil
}

func (f *fakeBot) LatestProfilePhoto(userID int64) ([]tgbotapi.PhotoSize, error) {
	return f.profiles[userID], nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestWorker(t *testing.T, bot *fakeBot) (*Worker, *kv.Store) {
	t.Helper()
	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, bot, 50*1024*1024, 1, logger), store
}

func textUpdate(id int, chat *tgbotapi.Chat, userID int64, date int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			From:      &tgbotapi.User{ID: userID, FirstName: "Ada"},
			Date:      date,
			Chat:      chat,
			Text:      text,
		},
	}
}

func readItem(t *testing.T, store *kv.Store, key []byte) archive.LogItem {
	t.Helper()
	raw, found, err := store.Get(key)
	if err != nil || !found {
		t.Fatalf("record %q: found=%v err=%v", key, found, err)
	}
	var item archive.LogItem
	if err := json.Unmarshal(raw, &item); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return item
}

func TestIngestText_WritesFullRecordSet(t *testing.T) {
	bot := &fakeBot{}
	w, store := newTestWorker(t, bot)

	chat := &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"}
	if err := w.ProcessUpdate(context.Background(), textUpdate(5, chat, 42, 1700000000, "hi")); err != nil {
		t.Fatalf("process: %v", err)
	}

	item := readItem(t, store, kv.MessageKey(-100, 1700000000))
	if item.Message == nil || item.Message.Text != "hi" || item.Message.UserID != "42" {
		t.Fatalf("record = %+v", item)
	}

	for _, key := range [][]byte{
		kv.DayIndexKey(-100, 19675),
		kv.ChatRelKey(-100),
		kv.ChatMetaKey(-100),
		kv.UserMetaKey(42),
	} {
		if has, _ := store.Has(key); !has {
			t.Errorf("missing key %q", key)
		}
	}

	ref, found, _ := store.Get(kv.ChatRefKey(-100, 5))
	if !found || string(ref) != "1700000000" {
		t.Errorf("chat_ref = %q found=%v", ref, found)
	}

	var meta archive.ChatMeta
	raw, _, _ := store.Get(kv.ChatMetaKey(-100))
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Group == nil || meta.Group.Title != "den" {
		t.Errorf("chat meta = %s", raw)
	}
}

func TestIngestPhoto_StoresBiggestRenditionOnly(t *testing.T) {
	img := pngBytes(t, 4, 3)
	bot := &fakeBot{files: map[string][]byte{"big": img, "small": img}}
	w, store := newTestWorker(t, bot)

	u := tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42, FirstName: "Ada"},
			Date:      1700000000,
			Chat:      &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"},
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 60, FileSize: len(img)},
				{FileID: "big", Width: 800, Height: 600, FileSize: len(img)},
			},
			Caption: "cap",
		},
	}
	if err := w.ProcessUpdate(context.Background(), u); err != nil {
		t.Fatalf("process: %v", err)
	}

	if has, _ := store.Has(kv.FileKey(kv.FileKindChat, "big")); !has {
		t.Error("biggest rendition not stored")
	}
	if has, _ := store.Has(kv.FileKey(kv.FileKindChat, "small")); has {
		t.Error("smaller rendition must not be stored")
	}

	item := readItem(t, store, kv.MessageKey(-100, 1700000000))
	if item.Media == nil || item.Media.Type.Image == nil {
		t.Fatalf("record = %+v", item)
	}
	if item.Media.Type.Image.Width != 800 {
		t.Errorf("width = %d", item.Media.Type.Image.Width)
	}
	if len(item.Media.Files) != 1 || item.Media.Files[0] != "big" {
		t.Errorf("files = %v", item.Media.Files)
	}
	if item.Media.Caption != "cap" {
		t.Errorf("caption = %q", item.Media.Caption)
	}
}

func TestIngestSizeCeiling(t *testing.T) {
	img := pngBytes(t, 2, 2)
	bot := &fakeBot{files: map[string][]byte{"ok": img}}
	w, store := newTestWorker(t, bot)
	w.maxFileSize = int64(len(img))

	mk := func(id int, fileID string, size int) tgbotapi.Update {
		return tgbotapi.Update{
			UpdateID: id,
			Message: &tgbotapi.Message{
				MessageID: id,
				From:      &tgbotapi.User{ID: 42},
				Date:      1700000000 + id,
				Chat:      &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"},
				Photo:     []tgbotapi.PhotoSize{{FileID: fileID, Width: 2, Height: 2, FileSize: size}},
			},
		}
	}

	t.Run("at limit stored", func(t *testing.T) {
		if err := w.ProcessUpdate(context.Background(), mk(1, "ok", len(img))); err != nil {
			t.Fatal(err)
		}
		if has, _ := store.Has(kv.FileKey(kv.FileKindChat, "ok")); !has {
			t.Error("blob at exactly the limit must be stored")
		}
	})

	t.Run("above limit dropped, record kept", func(t *testing.T) {
		if err := w.ProcessUpdate(context.Background(), mk(2, "huge", len(img)+1)); err != nil {
			t.Fatal(err)
		}
		if has, _ := store.Has(kv.FileKey(kv.FileKindChat, "huge")); has {
			t.Error("oversized blob stored")
		}
		item := readItem(t, store, kv.MessageKey(-100, 1700000002))
		if item.Media == nil || len(item.Media.Files) != 0 {
			t.Errorf("record = %+v, want media with empty files", item)
		}
	})

	t.Run("undeclared size dropped without download", func(t *testing.T) {
		before := len(bot.downloads)
		if err := w.ProcessUpdate(context.Background(), mk(3, "mystery", 0)); err != nil {
			t.Fatal(err)
		}
		for _, id := range bot.downloads[before:] {
			if id == "mystery" {
				t.Error("undeclared-size file was downloaded")
			}
		}
	})
}

func TestIngestForwardedChannelPost_RedirectsToOrigin(t *testing.T) {
	bot := &fakeBot{}
	w, store := newTestWorker(t, bot)

	u := tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID:            9,
			From:                 &tgbotapi.User{ID: 42, FirstName: "Ada"},
			Date:                 1700000000,
			Chat:                 &tgbotapi.Chat{ID: 42, Type: "private", FirstName: "Ada"},
			Text:                 "fwd",
			ForwardDate:          1690000000,
			ForwardFromChat:      &tgbotapi.Chat{ID: -1001, Type: "channel", Title: "news"},
			ForwardFromMessageID: 77,
		},
	}
	if err := w.ProcessUpdate(context.Background(), u); err != nil {
		t.Fatal(err)
	}

	// Record lands under the channel at the original post time.
	if has, _ := store.Has(kv.MessageKey(-1001, 1690000000)); !has {
		t.Error("record not archived under origin channel")
	}
	if has, _ := store.Has(kv.MessageKey(42, 1700000000)); has {
		t.Error("record also archived under receiving chat")
	}
	if has, _ := store.Has(kv.DayIndexKey(-1001, kv.DayOf(1690000000))); !has {
		t.Error("day index missing for origin channel")
	}
	if has, _ := store.Has(kv.ChatRefKey(-1001, 9)); !has {
		t.Error("chat_ref missing under origin chat")
	}

	var meta archive.ChatMeta
	raw, _, _ := store.Get(kv.ChatMetaKey(-1001))
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Channel == nil || meta.Channel.Title != "news" {
		t.Errorf("origin chat meta = %s", raw)
	}
}

func TestIngestReply_TargetArchivedFirst(t *testing.T) {
	bot := &fakeBot{}
	w, store := newTestWorker(t, bot)

	chat := &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"}
	target := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 7, FirstName: "Bob"},
		Date:      1700000000,
		Chat:      chat,
		Text:      "root",
	}
	u := tgbotapi.Update{
		UpdateID: 2,
		Message: &tgbotapi.Message{
			MessageID:      2,
			From:           &tgbotapi.User{ID: 42, FirstName: "Ada"},
			Date:           1700000100,
			Chat:           chat,
			Text:           "reply",
			ReplyToMessage: target,
		},
	}
	if err := w.ProcessUpdate(context.Background(), u); err != nil {
		t.Fatal(err)
	}

	for _, ts := range []int64{1700000000, 1700000100} {
		if has, _ := store.Has(kv.MessageKey(-100, ts)); !has {
			t.Errorf("missing record at %d", ts)
		}
	}
	for _, id := range []int{1, 2} {
		if has, _ := store.Has(kv.ChatRefKey(-100, id)); !has {
			t.Errorf("missing chat_ref for message %d", id)
		}
	}
	if has, _ := store.Has(kv.UserMetaKey(7)); !has {
		t.Error("reply target author meta missing")
	}
}

func TestIngestVideo_KeepsThumbOnly(t *testing.T) {
	thumb := pngBytes(t, 3, 2)
	bot := &fakeBot{files: map[string][]byte{"th": thumb, "vid": []byte("mpeg")}}
	w, store := newTestWorker(t, bot)

	u := tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42},
			Date:      1700000000,
			Chat:      &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"},
			Video: &tgbotapi.Video{
				FileID:    "vid",
				FileSize:  4,
				Duration:  10,
				Width:     640,
				Height:    480,
				Thumbnail: &tgbotapi.PhotoSize{FileID: "th", Width: 3, Height: 2, FileSize: len(thumb)},
			},
		},
	}
	if err := w.ProcessUpdate(context.Background(), u); err != nil {
		t.Fatal(err)
	}

	if has, _ := store.Has(kv.FileKey(kv.FileKindVideoThumb, "th")); !has {
		t.Error("thumbnail not stored")
	}
	if has, _ := store.Has(kv.FileKey(kv.FileKindChat, "vid")); has {
		t.Error("full video stream must not be stored")
	}

	item := readItem(t, store, kv.MessageKey(-100, 1700000000))
	if item.Media == nil || item.Media.Type.Video == nil || item.Media.Type.Video.ThumbFileID != "th" {
		t.Fatalf("record = %+v", item)
	}
}

func TestIngestProfilePhoto_FetchedOnceWhileBlobExists(t *testing.T) {
	avatar := pngBytes(t, 2, 2)
	bot := &fakeBot{
		files:    map[string][]byte{"av": avatar},
		profiles: map[int64][]tgbotapi.PhotoSize{42: {{FileID: "av", Width: 2, Height: 2, FileSize: len(avatar)}}},
	}
	w, store := newTestWorker(t, bot)

	chat := &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"}
	for i := 1; i <= 3; i++ {
		if err := w.ProcessUpdate(context.Background(), textUpdate(i, chat, 42, 1700000000+i, "m"+strconv.Itoa(i))); err != nil {
			t.Fatal(err)
		}
	}

	if has, _ := store.Has(kv.FileKey(kv.FileKindUser, "42")); !has {
		t.Error("profile photo not stored")
	}
	count := 0
	for _, id := range bot.downloads {
		if id == "av" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("avatar downloaded %d times, want 1", count)
	}
}

func TestIngestIdempotentReplay(t *testing.T) {
	bot := &fakeBot{}
	w, store := newTestWorker(t, bot)

	chat := &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"}
	u := textUpdate(5, chat, 42, 1700000000, "hi")
	for i := 0; i < 2; i++ {
		if err := w.ProcessUpdate(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}

	count := 0
	lo, hi := kv.MessageRange(-100, 19675)
	if err := store.ScanRange(lo, hi, false, func(_, _ []byte) error {
		count++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("replay produced %d records, want 1", count)
	}
}

func TestIngestCorruptImageDropped(t *testing.T) {
	bot := &fakeBot{files: map[string][]byte{"bad": []byte("not an image")}}
	w, store := newTestWorker(t, bot)

	u := tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42},
			Date:      1700000000,
			Chat:      &tgbotapi.Chat{ID: -100, Type: "group", Title: "den"},
			Photo:     []tgbotapi.PhotoSize{{FileID: "bad", Width: 2, Height: 2, FileSize: 12}},
		},
	}
	if err := w.ProcessUpdate(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	if has, _ := store.Has(kv.FileKey(kv.FileKindChat, "bad")); has {
		t.Error("undecodable image stored")
	}
	item := readItem(t, store, kv.MessageKey(-100, 1700000000))
	if item.Media == nil || len(item.Media.Files) != 0 {
		t.Errorf("record = %+v, want media with no files", item)
	}
}
