// Package web serves the read-only browsing interface: the chat roster, the
// per-chat day index, day views in HTML and JSON, and archived file blobs.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/chatvault/internal/archive"
	"github.com/nextlevelbuilder/chatvault/internal/kv"
)

// Server exposes the archive over HTTP. All routes are GET; nothing writes.
type Server struct {
	store  *kv.Store
	logger *slog.Logger
	tracer trace.Tracer
	mux    *http.ServeMux
}

// New wires the route table onto a fresh mux.
func New(store *kv.Store, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("chatvault/web"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleRoster)
	s.mux.HandleFunc("GET /chat/{id}", s.handleDayIndex)
	s.mux.HandleFunc("GET /chat/{id}/{date}", s.handleDayView)
	s.mux.HandleFunc("GET /file/{kind}/{id}", s.handleFile)
	return s
}

// Handler returns the route table for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

type jsonEnvelope struct {
	Status string      `json:"status"`
	Error  bool        `json:"error"`
	Data   interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(body))
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	var out strings.Builder
	out.WriteString(pageOpen("channel index"))
	out.WriteString(`<div class="channels"><ul>`)

	err := s.store.ScanPrefix(kv.ChatRelPrefix(), func(key, _ []byte) error {
		chatID, ok := kv.ParseChatRelKey(key)
		if !ok {
			return nil
		}
		fmt.Fprintf(&out,
			`<li><a href="/chat/%d/latest">%s</a> (<a href="/chat/%d">index</a> | <a href="/chat/%d/latest">latest</a>)</li>`,
			chatID, htmlEscape(s.chatName(chatID)), chatID, chatID)
		return nil
	})
	if err != nil {
		s.internalError(w, "list chats", err)
		return
	}

	out.WriteString("</ul></div>")
	out.WriteString(pageClose)
	writeHTML(w, out.String())
}

func (s *Server) handleDayIndex(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	name := s.chatName(chatID)

	var out strings.Builder
	out.WriteString(pageOpen("channel index"))
	out.WriteString(newHeaderBar().
		title(name).
		flag("index").
		link("latest", fmt.Sprintf("/chat/%d/latest", chatID)).
		String())
	out.WriteString(`<div class="index"><ul>`)

	first := true
	lo, hi := kv.DayIndexRange(chatID)
	err = s.store.ScanRange(lo, hi, true, func(key, _ []byte) error {
		_, day, ok := kv.ParseDayIndexKey(key)
		if !ok {
			return nil
		}
		date := dayToDate(day)
		fmt.Fprintf(&out, `<li><a href="/chat/%d/%s">%s</a>`, chatID, date, date)
		if first {
			fmt.Fprintf(&out, ` (<a href="/chat/%d/latest">latest</a>)`, chatID)
			first = false
		}
		out.WriteString("</li>")
		return nil
	})
	if err != nil {
		s.internalError(w, "list days", err)
		return
	}

	out.WriteString("</ul></div>")
	out.WriteString(pageClose)
	writeHTML(w, out.String())
}

func (s *Server) handleDayView(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "web.day_view")
	defer span.End()

	chatID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	date := r.PathValue("date")
	jsonMode := strings.HasSuffix(date, ".json")
	date = strings.TrimSuffix(date, ".json")
	span.SetAttributes(attribute.Int64("chat_id", chatID), attribute.String("date", date))

	name := s.chatName(chatID)

	if date == "latest" {
		day, ok := s.latestDay(chatID)
		if !ok {
			if jsonMode {
				writeJSON(w, http.StatusOK, []archive.LogItem{})
				return
			}
			var out strings.Builder
			out.WriteString(pageOpen(name))
			out.WriteString(newHeaderBar().
				title(name).
				flag("index").
				link("latest", fmt.Sprintf("/chat/%d/latest", chatID)).
				String())
			out.WriteString(pageClose)
			writeHTML(w, out.String())
			return
		}
		date = dayToDate(day)
	}

	parsed, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		if jsonMode {
			writeJSON(w, http.StatusBadRequest, jsonEnvelope{Status: "invalid date", Error: true, Data: nil})
			return
		}
		writeHTML(w, "invalid date")
		return
	}
	day := parsed.Unix() / kv.SecondsPerDay

	if jsonMode {
		s.renderDayJSON(w, chatID, day)
		return
	}
	s.renderDayHTML(w, chatID, name, date, day)
}

func (s *Server) renderDayHTML(w http.ResponseWriter, chatID int64, name, date string, day int64) {
	var out strings.Builder
	out.WriteString(pageOpen(fmt.Sprintf("%s - %s", name, date)))
	out.WriteString(newHeaderBar().
		link("<- home", "/").
		title(fmt.Sprintf("%s - %s", name, date)).
		link("index", fmt.Sprintf("/chat/%d", chatID)).
		link("previous", "").
		link("next", "").
		link("latest", fmt.Sprintf("/chat/%d/latest", chatID)).
		String())
	out.WriteString(`<div class="log"><table class="log"><tbody>`)

	lo, hi := kv.MessageRange(chatID, day)
	err := s.store.ScanRange(lo, hi, true, func(key, val []byte) error {
		_, ts, ok := kv.ParseMessageKey(key)
		if !ok {
			return nil
		}
		var item archive.LogItem
		if err := json.Unmarshal(val, &item); err != nil {
			s.logger.Warn("undecodable record", "key", string(key), "error", err)
			return nil
		}
		out.WriteString(s.renderRow(ts, item))
		return nil
	})
	if err != nil {
		s.internalError(w, "scan day", err)
		return
	}

	out.WriteString("</tbody></table></div>")
	out.WriteString(pageClose)
	writeHTML(w, out.String())
}

func (s *Server) renderDayJSON(w http.ResponseWriter, chatID, day int64) {
	items := []archive.LogItem{}
	lo, hi := kv.MessageRange(chatID, day)
	err := s.store.ScanRange(lo, hi, true, func(key, val []byte) error {
		var item archive.LogItem
		if err := json.Unmarshal(val, &item); err != nil {
			s.logger.Warn("undecodable record", "key", string(key), "error", err)
			return nil
		}
		rewriteFileLinks(&item)
		items = append(items, item)
		return nil
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, jsonEnvelope{Status: "internal error", Error: true, Data: nil})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	var namespace kv.FileKind
	sniff := false
	switch r.PathValue("kind") {
	case "user":
		namespace, sniff = kv.FileKindUser, true
	case "image":
		namespace, sniff = kv.FileKindChat, true
	case "video_thumb":
		namespace, sniff = kv.FileKindVideoThumb, true
	case "document", "video":
		namespace = kv.FileKindChat
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Unknown file request type"))
		return
	}

	blob, found, err := s.store.Get(kv.FileKey(namespace, r.PathValue("id")))
	if err != nil {
		s.internalError(w, "read blob", err)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	contentType := "application/octet-stream"
	if sniff {
		contentType = http.DetectContentType(blob)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(blob)
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("request failed", "what", what, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
