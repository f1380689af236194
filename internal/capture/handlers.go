package capture

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/casafin/expense-capture/internal/imaging"
)

// Parse multipart form (max 50MB to handle high-resolution phone photos)
const maxFormSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// readImageUpload pulls the uploaded image out of a multipart form.
func readImageUpload(r *http.Request) (imaging.CapturedImage, error) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		return imaging.CapturedImage{}, errors.New("error parsing form")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return imaging.CapturedImage{}, errors.New("no file provided")
	}
	defer f.Close()

	if header.Size > maxFormSize {
		return imaging.CapturedImage{}, errors.New("file is too large, maximum size is 50MB")
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return imaging.CapturedImage{}, errors.New("error reading file")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	return imaging.CapturedImage{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

// handleStartCapture opens a session from an uploaded receipt image
func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	captured, err := readImageUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.service.StartCapture(r.Context(), captured)
	if err != nil {
		slog.Error("Error starting capture", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	view := session.View()
	if view.State == StateReview {
		writeJSON(w, http.StatusCreated, view)
		return
	}
	// Extraction failed; session is back in Capturing with a recoverable
	// error and may be fed a new image or cancelled
	writeJSON(w, http.StatusUnprocessableEntity, view)
}

// handleStartManual opens a session in Review with a blank draft
func (s *Server) handleStartManual(w http.ResponseWriter, r *http.Request) {
	session := s.service.Manual()
	writeJSON(w, http.StatusCreated, session.View())
}

// handleGetSession returns the session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := s.service.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, session.View())
}

// handleUpdateDraft edits the staged draft while in review
func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var update DraftUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft update")
		return
	}

	session, err := s.service.UpdateDraft(id, update)
	if err != nil {
		var transitionErr *TransitionError
		if errors.As(err, &transitionErr) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, session.View())
}

// handleRescan feeds a new image to an existing session, discarding the draft
func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	captured, err := readImageUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.service.Rescan(r.Context(), id, captured)
	if err != nil {
		var transitionErr *TransitionError
		if errors.As(err, &transitionErr) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	view := session.View()
	if view.State == StateReview {
		writeJSON(w, http.StatusOK, view)
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, view)
}

// handleConfirm runs the two-phase commit. The response always carries the
// tagged outcome: callers can distinguish "money was recorded" from "nothing
// happened".
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	outcome, err := s.service.Confirm(r.Context(), id)
	if err != nil {
		var transitionErr *TransitionError
		switch {
		case errors.As(err, &transitionErr), errors.Is(err, ErrAlreadyCommitted):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidDraft):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusNotFound, "session not found")
		}
		return
	}

	session, _ := s.service.Get(id)
	view := session.View()
	switch outcome.Kind {
	case OutcomeFailure:
		writeJSON(w, http.StatusBadGateway, view)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

// handleCancel terminates the session with no backend side effects
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := s.service.Cancel(id); err != nil {
		var transitionErr *TransitionError
		if errors.As(err, &transitionErr) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
