package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/epub2zip/internal/models"
	"github.com/lehigh-university-libraries/epub2zip/internal/session"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		sessions := h.sessionStore.List()
		sessionList := make([]session.Info, 0, len(sessions))
		for _, sess := range sessions {
			sessionList = append(sessionList, sess.Info())
		}
		h.writeJSON(w, sessionList)
	case "POST":
		sess := h.createSession()
		h.writeJSONStatus(w, http.StatusCreated, sess.Info())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSessionDetail serves /api/sessions/{id} and its sub-resources.
func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/"), "/")
	sessionID := parts[0]

	sess, ok := h.getSessionOrError(w, sessionID)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		h.handleSession(w, r, sess)
	case len(parts) == 3 && parts[1] == "files":
		h.handleFile(w, r, sess, parts[2])
	case len(parts) == 2 && parts[1] == "plan":
		h.handlePlan(w, r, sess)
	case len(parts) == 2 && parts[1] == "convert":
		h.handleConvert(w, r, sess)
	case len(parts) == 2 && parts[1] == "events":
		h.handleEvents(w, r, sess)
	case len(parts) == 2 && parts[1] == "results":
		h.handleResults(w, r, sess)
	case len(parts) == 2 && parts[1] == "download":
		h.handleDownloadAll(w, r, sess)
	case len(parts) == 3 && parts[1] == "download":
		h.handleDownloadFile(w, r, sess, parts[2])
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, sess.Info())
	case "DELETE":
		if err := sess.Clear(); err != nil {
			h.writeErr(w, err)
			return
		}
		h.sessionStore.Delete(sess.ID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request, sess *session.Session, fileID string) {
	switch r.Method {
	case "GET":
		f, err := sess.File(fileID)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		h.writeJSON(w, f)
	case "DELETE":
		if err := sess.RemoveFile(fileID); err != nil {
			h.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, sess.Plan())
}

// handleConvert starts a batch in the background. Clients follow it
// through the events endpoint.
func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(sess.Files()) == 0 {
		h.writeError(w, "Session has no files", http.StatusBadRequest)
		return
	}

	since := sess.Bus().Last()
	err := sess.Start(h.baseCtx, func(_ models.Summary, err error) {
		if err != nil {
			slog.Error("Conversion did not complete", "session_id", sess.ID, "err", err)
		}
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}

	h.writeJSONStatus(w, http.StatusAccepted, map[string]any{
		"session_id": sess.ID,
		"message":    "Conversion started",
		"events":     fmt.Sprintf("/api/sessions/%s/events?since=%d", sess.ID, since),
	})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
		since = n
	}
	h.writeJSON(w, map[string]any{
		"converting": sess.Converting(),
		"events":     sess.Events(since),
	})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response := map[string]any{"results": sess.Results()}
	if sum, ok := sess.Summary(); ok {
		response["summary"] = sum
	}
	h.writeJSON(w, response)
}

func (h *Handler) handleDownloadAll(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sess.Converting() {
		h.writeErr(w, session.ErrBusy)
		return
	}
	art, err := sess.DownloadAll()
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeZip(w, art.Name, art.Data)
}

func (h *Handler) handleDownloadFile(w http.ResponseWriter, r *http.Request, sess *session.Session, fileID string) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := sess.Result(fileID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !res.Success {
		h.writeError(w, "File failed to convert: "+res.Error, http.StatusConflict)
		return
	}
	h.writeZip(w, res.FileName, res.Archive)
}

func (h *Handler) writeZip(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("Unable to write archive", "name", name, "err", err)
	}
}
