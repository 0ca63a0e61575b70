package kv

import (
	"fmt"
	"strconv"
	"strings"
)

// Key layout. All keys are ASCII, colon-separated:
//
//	chat:<chat-id>:<time>           message record (JSON LogItem)
//	chat:meta:<chat-id>             chat metadata (JSON ChatMeta)
//	chat_index:<chat-id>:<day>      day-bucket presence marker
//	chat_rel:<chat-id>              chat roster entry
//	chat_ref:<chat-id>:<message-id> source message-id -> effective time
//	user:meta:<user-id>             user metadata (JSON UserMeta)
//	file:chat:<file-id>             message attachment bytes
//	file:user:<user-id>             profile picture bytes
//	file:video_thumb:<file-id>      video/chat-photo thumbnail bytes
//
// Timestamps are unix seconds rendered as unpadded decimal, so lexicographic
// order equals numeric order only within a fixed digit width. All timestamps
// the bot can observe share the same ten-digit width until 2286, which is the
// same tradeoff the key schema has always made.

// SecondsPerDay is the day-bucket divisor. Day buckets are
// floor(effective_time / SecondsPerDay).
const SecondsPerDay = 86400

// Marker is the value stored under presence-only keys (chat_index, chat_rel).
var Marker = []byte{0}

// FileKind selects one of the three binary blob namespaces.
type FileKind string

const (
	FileKindChat       FileKind = "chat"
	FileKindUser       FileKind = "user"
	FileKindVideoThumb FileKind = "video_thumb"
)

// DayOf returns the day bucket for a unix-second timestamp.
func DayOf(ts int64) int64 {
	return ts / SecondsPerDay
}

// MessageKey is the primary record key for a message archived under chatID
// at the effective timestamp ts.
func MessageKey(chatID, ts int64) []byte {
	return []byte(fmt.Sprintf("chat:%d:%d", chatID, ts))
}

// ChatMetaKey addresses the stored ChatMeta for a chat.
func ChatMetaKey(chatID int64) []byte {
	return []byte(fmt.Sprintf("chat:meta:%d", chatID))
}

// DayIndexKey marks that chatID has at least one message in the given day
// bucket.
func DayIndexKey(chatID, day int64) []byte {
	return []byte(fmt.Sprintf("chat_index:%d:%d", chatID, day))
}

// ChatRelKey is the roster entry for a chat.
func ChatRelKey(chatID int64) []byte {
	return []byte(fmt.Sprintf("chat_rel:%d", chatID))
}

// ChatRefKey maps a source message-id to the effective timestamp the record
// was archived under.
func ChatRefKey(chatID int64, messageID int) []byte {
	return []byte(fmt.Sprintf("chat_ref:%d:%d", chatID, messageID))
}

// UserMetaKey addresses the stored UserMeta for a user.
func UserMetaKey(userID int64) []byte {
	return []byte(fmt.Sprintf("user:meta:%d", userID))
}

// FileKey addresses a binary blob in one of the file namespaces.
func FileKey(kind FileKind, fileID string) []byte {
	return []byte(fmt.Sprintf("file:%s:%s", kind, fileID))
}

// MessageRange returns the [lo, hi) key bounds covering every message of
// chatID within the given day bucket. Both bounds are unpadded decimal
// seconds; they order correctly against stored keys because all observable
// timestamps share the same decimal width.
func MessageRange(chatID, day int64) (lo, hi []byte) {
	start := day * SecondsPerDay
	lo = []byte(fmt.Sprintf("chat:%d:%d", chatID, start))
	hi = []byte(fmt.Sprintf("chat:%d:%d", chatID, start+SecondsPerDay))
	return lo, hi
}

// DayIndexRange returns the [lo, hi) bounds covering every day-bucket marker
// of chatID. 0x7f is past any decimal digit in ASCII.
func DayIndexRange(chatID int64) (lo, hi []byte) {
	lo = []byte(fmt.Sprintf("chat_index:%d:", chatID))
	hi = append([]byte(fmt.Sprintf("chat_index:%d:", chatID)), 0x7f)
	return lo, hi
}

// ChatRelPrefix is the prefix shared by every roster entry.
func ChatRelPrefix() []byte {
	return []byte("chat_rel:")
}

// ParseMessageKey extracts chat id and timestamp from a chat:<id>:<time> key.
func ParseMessageKey(key []byte) (chatID, ts int64, ok bool) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 3 || parts[0] != "chat" || parts[1] == "meta" {
		return 0, 0, false
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	ts, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return chatID, ts, true
}

// ParseDayIndexKey extracts chat id and day bucket from a chat_index key.
func ParseDayIndexKey(key []byte) (chatID, day int64, ok bool) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 3 || parts[0] != "chat_index" {
		return 0, 0, false
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	day, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return chatID, day, true
}

// ParseChatRelKey extracts the chat id from a chat_rel key.
func ParseChatRelKey(key []byte) (chatID int64, ok bool) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 2 || parts[0] != "chat_rel" {
		return 0, false
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return chatID, true
}
