package web

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/chatvault/internal/archive"
	"github.com/nextlevelbuilder/chatvault/internal/kv"
)

//go:embed assets/global.css
var globalCSS string

// headerBar renders the navigation strip at the top of a page.
type headerBar struct {
	items []string
}

func newHeaderBar() *headerBar {
	return &headerBar{}
}

func (h *headerBar) title(label string) *headerBar {
	h.items = append(h.items, fmt.Sprintf(`<span class="title">%s</span>`, html.EscapeString(label)))
	return h
}

// link appends a navigation link; an empty url renders the disabled form.
func (h *headerBar) link(label, url string) *headerBar {
	if url == "" {
		h.items = append(h.items, fmt.Sprintf(`<span class="nolink">%s (none)</span>`, html.EscapeString(label)))
	} else {
		h.items = append(h.items, fmt.Sprintf(`<a href="%s">%s</a>`, url, html.EscapeString(label)))
	}
	return h
}

// flag appends a plain non-link label, used for the page's own section.
func (h *headerBar) flag(label string) *headerBar {
	h.items = append(h.items, fmt.Sprintf(`<span class="nolink">%s</span>`, html.EscapeString(label)))
	return h
}

func (h *headerBar) String() string {
	return fmt.Sprintf(`<div class="navigation">%s</div>`, strings.Join(h.items, " | "))
}

func pageOpen(title string) string {
	return fmt.Sprintf(
		`<!DOCTYPE html><html lang="en"><style type="text/css">%s</style><head><title>%s</title></head><body>`,
		globalCSS, html.EscapeString(title))
}

const pageClose = "</body></html>"

func htmlEscape(s string) string {
	return html.EscapeString(s)
}

// chatName resolves the display name of a chat from its stored meta,
// falling back to the raw id.
func (s *Server) chatName(chatID int64) string {
	raw, found, err := s.store.Get(kv.ChatMetaKey(chatID))
	if err != nil || !found {
		return strconv.FormatInt(chatID, 10)
	}
	var meta archive.ChatMeta
	if err := json.Unmarshal(raw, &meta); err != nil || meta.IsZero() {
		return strconv.FormatInt(chatID, 10)
	}
	return meta.DisplayName()
}

// userName resolves a display name from the identity snapshot. An empty id
// means a channel post and renders as Unknown.
func (s *Server) userName(userID string) string {
	if userID == "" {
		return "Unknown"
	}
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return userID
	}
	raw, found, err := s.store.Get(kv.UserMetaKey(id))
	if err != nil || !found {
		return userID
	}
	var meta archive.UserMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return userID
	}
	return meta.DisplayName()
}

// latestDay returns the most recent indexed day of a chat.
func (s *Server) latestDay(chatID int64) (int64, bool) {
	lo, hi := kv.DayIndexRange(chatID)
	var day int64
	var found bool
	s.store.ScanRange(lo, hi, true, func(key, _ []byte) error {
		if _, d, ok := kv.ParseDayIndexKey(key); ok {
			day = d
			found = true
		}
		return kv.ErrStop
	})
	return day, found
}

func dayToDate(day int64) string {
	return time.Unix(day*kv.SecondsPerDay, 0).UTC().Format("2006-01-02")
}

func clockOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("15:04:05")
}

// renderRow formats one log record as a table row. Kinds without a row
// representation return the empty string.
func (s *Server) renderRow(ts int64, item archive.LogItem) string {
	clock := clockOf(ts)

	switch {
	case item.Message != nil:
		return fmt.Sprintf(
			`<tr class="message"><td class="time"><a>%s</a></td><td class="nick">%s</td><td class="content">%s</td></tr>`,
			clock,
			html.EscapeString(s.userName(item.Message.UserID)),
			html.EscapeString(item.Message.Text))

	case item.Media != nil:
		caption := `<span class="note">Message has no caption.</span>`
		if item.Media.Caption != "" {
			caption = html.EscapeString(item.Media.Caption)
		}
		img := ""
		if n := len(item.Media.Files); n > 0 {
			img = fmt.Sprintf(
				`<img src="/file/image/%s" style="max-height: 300px; max-width: 300px;" loading="lazy"/>`,
				item.Media.Files[n-1])
		}
		return fmt.Sprintf(
			`<tr class="message action"><td class="time"><a>%s</a></td><td class="nick">%s</td><td class="content">%s <br/> %s</td></tr>`,
			clock,
			html.EscapeString(s.userName(item.Media.UserID)),
			caption,
			img)

	case item.Membership != nil:
		class, reason := "join", "joined the chat"
		if item.Membership.Type == archive.MembershipLeft {
			class, reason = "leave", "left the chat"
		}
		return fmt.Sprintf(
			`<tr class="%s"><td class="time"><a>%s</a></td><td class="nick">%s</td><td class="content"><span class="reason">%s</span></td></tr>`,
			class,
			clock,
			html.EscapeString(s.userName(item.Membership.UserID)),
			reason)
	}
	return ""
}

// rewriteFileLinks maps stored file-ids to servable URLs for JSON clients.
// Only image-like media gets the /file/image/ form; other kinds keep raw ids.
func rewriteFileLinks(item *archive.LogItem) {
	if item.Media == nil || !item.Media.Type.IsImageLike() {
		return
	}
	for i, id := range item.Media.Files {
		item.Media.Files[i] = "/file/image/" + id
	}
}
