// Package httpapi exposes the session, chat, message and send
// operations over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/send"
	"github.com/osari/wabridge/internal/session"
	"github.com/osari/wabridge/internal/store"
	syncengine "github.com/osari/wabridge/internal/sync"
)

const maxUploadBytes = 64 << 20

// API bundles the handlers for the HTTP surface.
type API struct {
	session  *session.Manager
	engine   *syncengine.Engine
	db       *store.DB
	pipeline *send.Pipeline
	logger   *zap.Logger
}

// New creates the API over the given components.
func New(sm *session.Manager, engine *syncengine.Engine, db *store.DB, pipeline *send.Pipeline, logger *zap.Logger) *API {
	return &API{
		session:  sm,
		engine:   engine,
		db:       db,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Routes returns the route table.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth", a.handleAuthStatus)
	mux.HandleFunc("POST /auth", a.handleAuthStart)
	mux.HandleFunc("GET /chats", a.handleListChats)
	mux.HandleFunc("GET /messages", a.handleListMessages)
	mux.HandleFunc("POST /messages", a.handleSendMessage)
	return mux
}

func (a *API) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Status())
}

func (a *API) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	st, err := a.session.Initialize(r.Context())
	if err != nil {
		a.logger.Error("session initialize failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st.State})
}

func (a *API) handleListChats(w http.ResponseWriter, _ *http.Request) {
	if !a.session.Authenticated() {
		writeError(w, http.StatusUnauthorized, "session not authenticated")
		return
	}

	chats, err := a.db.ListChats()
	if err != nil {
		a.logger.Error("list chats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get chats")
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if !a.session.Authenticated() {
		writeError(w, http.StatusUnauthorized, "session not authenticated")
		return
	}
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat ID is required")
		return
	}

	// Freshen the chat's view state before answering; the engine
	// suppresses overlap with the background poll.
	if err := a.engine.PollMessages(r.Context(), chatID); err != nil {
		a.logger.Error("message poll failed", zap.String("chat", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}

	msgs, err := a.db.ListMessages(chatID)
	if err != nil {
		a.logger.Error("list messages failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !a.session.Authenticated() {
		writeError(w, http.StatusUnauthorized, "session not authenticated")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := send.Request{
		ChatID: r.FormValue("chatId"),
		Text:   r.FormValue("message"),
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read file")
			return
		}
		req.Attachment = &send.Attachment{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		}
	}

	res, err := a.pipeline.Send(r.Context(), req)
	switch {
	case errors.Is(err, send.ErrInvalidRequest):
		msg := "message or file is required"
		if req.ChatID == "" {
			msg = "chat ID is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	case errors.Is(err, session.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "session not authenticated")
		return
	case err != nil:
		a.logger.Error("send failed", zap.String("chat", req.ChatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
