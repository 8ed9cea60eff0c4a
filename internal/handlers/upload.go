package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/lehigh-university-libraries/epub2zip/internal/models"
	"github.com/lehigh-university-libraries/epub2zip/internal/session"
)

const multipartMemory = 32 << 20

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, "Failed to read upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Unable to remove multipart temp files", "err", err)
		}
	}()

	headers := slices.Concat(r.MultipartForm.File["files"], r.MultipartForm.File["file"])
	if len(headers) == 0 {
		h.writeError(w, "No files provided", http.StatusBadRequest)
		return
	}

	var sess *session.Session
	if id := r.URL.Query().Get("session"); id != "" {
		var ok bool
		if sess, ok = h.getSessionOrError(w, id); !ok {
			return
		}
	} else {
		sess = h.createSession()
	}

	uploads := make([]session.Upload, 0, len(headers))
	var unreadable []session.Rejection
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			unreadable = append(unreadable, session.Rejection{Name: fh.Filename, Reason: err.Error()})
			continue
		}
		uploads = append(uploads, session.Upload{Name: fh.Filename, Data: data})
	}

	added, rejected := sess.AddFiles(uploads)
	rejected = append(unreadable, rejected...)
	if added == nil {
		added = []models.InputFile{}
	}
	if rejected == nil {
		rejected = []session.Rejection{}
	}
	slog.Info("Uploaded files", "session_id", sess.ID, "accepted", len(added), "rejected", len(rejected))

	h.writeJSON(w, map[string]any{
		"session_id": sess.ID,
		"message":    fmt.Sprintf("Accepted %d of %d files", len(added), len(headers)),
		"files":      added,
		"rejected":   rejected,
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}
