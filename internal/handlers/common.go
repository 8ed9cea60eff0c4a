package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/session"
	"github.com/lehigh-university-libraries/epub2zip/internal/storage"
)

const DefaultMaxUploadSize int64 = 512 * 1024 * 1024

// Options configure a Handler.
type Options struct {
	Session       session.Options
	MaxUploadSize int64
	// BaseContext bounds background conversions; it is cancelled on shutdown.
	BaseContext context.Context
}

type Handler struct {
	sessionStore  *storage.SessionStore
	sessionOpts   session.Options
	maxUploadSize int64
	baseCtx       context.Context
	newSession    func(session.Options) *session.Session
}

func New(opts Options) *Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	return &Handler{
		sessionStore:  storage.New(),
		sessionOpts:   opts.Session,
		maxUploadSize: opts.MaxUploadSize,
		baseCtx:       opts.BaseContext,
		newSession:    session.New,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/sessions/", h.HandleSessionDetail)
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

// writeErr maps domain errors onto HTTP status codes.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrFileNotFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, archive.ErrNothingToAggregate):
		code = http.StatusConflict
	case errors.Is(err, session.ErrEmptyFile), errors.Is(err, session.ErrUnsupportedType):
		code = http.StatusBadRequest
	}
	h.writeError(w, err.Error(), code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*session.Session, bool) {
	sess, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (h *Handler) createSession() *session.Session {
	sess := h.newSession(h.sessionOpts)
	h.sessionStore.Set(sess.ID, sess)
	slog.Info("Created session", "session_id", sess.ID)
	return sess
}
