package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gigsnap/internal/app/analysis"
	"gigsnap/internal/app/assignment"
	"gigsnap/internal/logging"
	"gigsnap/internal/models"
	"gigsnap/internal/store"
)

type registerMediaRequest struct {
	Kind       models.MediaKind `json:"kind"`
	StorageRef string           `json:"storageRef"`
	CapturedAt *time.Time       `json:"capturedAt,omitempty"`
	Location   *models.Location `json:"location,omitempty"`
}

type confirmRequest struct {
	ConcertID int64 `json:"concertId"`
}

func (s *Server) handleRegisterMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req registerMediaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Kind.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "kind must be image or video"})
		return
	}
	req.StorageRef = strings.TrimSpace(req.StorageRef)
	if req.StorageRef == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "storageRef is required"})
		return
	}

	item, err := s.media.CreateMediaItem(r.Context(), owner, &models.MediaItem{
		Kind:       req.Kind,
		StorageRef: req.StorageRef,
		CapturedAt: req.CapturedAt,
		Location:   req.Location,
	})
	if err != nil {
		writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := s.analysis.Status(r.Context(), owner, id)
	if err != nil {
		writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleAnalyzeMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.analysis.Submit(r.Context(), owner, id); err != nil {
		writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, struct{}{})
}

func (s *Server) handleConfirmMatch(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ConcertID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "concertId is required"})
		return
	}

	item, err := s.assignment.ConfirmMatch(r.Context(), owner, id, req.ConcertID)
	if err != nil {
		writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleSkipMatch(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := s.assignment.SkipMatch(r.Context(), owner, id)
	if err != nil {
		writeMediaError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func writeMediaError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrMediaNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "media item not found"})
	case errors.Is(err, store.ErrConcertNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "concert not found"})
	case errors.Is(err, analysis.ErrAlreadyAnalyzed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "media item already analyzed"})
	case errors.Is(err, store.ErrAlreadyAssigned):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "media item already assigned to another concert"})
	case errors.Is(err, assignment.ErrConcertNotEligible):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "concert is not eligible for this media item"})
	default:
		logging.WithContext(r.Context()).Error().Err(err).Msg("media request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
