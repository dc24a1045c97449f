package httpapi

import (
	"errors"
	"net/http"

	"gigsnap/internal/app/concerts"
	"gigsnap/internal/logging"
	"gigsnap/internal/models"
	"gigsnap/internal/store"
)

type createConcertRequest struct {
	Name     string       `json:"name"`
	VenueID  *int64       `json:"venueId,omitempty"`
	StartsOn *models.Date `json:"startsOn"`
	EndsOn   *models.Date `json:"endsOn,omitempty"`
}

type addArtistsRequest struct {
	Artists []models.LineupArtist `json:"artists"`
}

func (s *Server) handleCreateConcert(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req createConcertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	concert := &models.Concert{
		Name:    req.Name,
		VenueID: req.VenueID,
	}
	if req.StartsOn != nil {
		concert.StartsOn = *req.StartsOn
	}
	if req.EndsOn != nil {
		concert.EndsOn = *req.EndsOn
	}

	created, err := s.concerts.Create(r.Context(), owner, concert)
	if err != nil {
		writeConcertError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetConcert(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	concert, err := s.concerts.Get(r.Context(), owner, id)
	if err != nil {
		writeConcertError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, concert)
}

func (s *Server) handleAddLineupArtists(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req addArtistsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	outcome, err := s.assignment.AddLineupArtists(r.Context(), owner, id, req.Artists)
	if err != nil {
		writeConcertError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func writeConcertError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, concerts.ErrStartRequired), errors.Is(err, concerts.ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrConcertNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "concert not found"})
	case errors.Is(err, store.ErrVenueNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "venue not found"})
	case errors.Is(err, store.ErrLineupConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "lineup changed concurrently, retry"})
	default:
		logging.WithContext(r.Context()).Error().Err(err).Msg("concert request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
