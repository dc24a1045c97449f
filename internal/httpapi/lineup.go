package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"gigsnap/internal/app/lineup"
	"gigsnap/internal/app/venues"
	"gigsnap/internal/logging"
	"gigsnap/internal/models"
	"gigsnap/internal/store"
)

type upsertVenueRequest struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	City       string `json:"city"`
	VenueType  string `json:"venueType"`
}

func (s *Server) handleUpsertVenue(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerID(w, r); !ok {
		return
	}

	var req upsertVenueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	saved, err := s.venues.Upsert(r.Context(), &models.Venue{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		City:       req.City,
		VenueType:  req.VenueType,
	})
	switch {
	case errors.Is(err, venues.ErrNameRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	case err != nil:
		logging.WithContext(r.Context()).Error().Err(err).Msg("venue upsert failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleLineup answers GET /api/v1/lineup?venueId=&date= or
// ?venueExternalId=&date=.
func (s *Server) handleLineup(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerID(w, r); !ok {
		return
	}

	query := r.URL.Query()
	date, err := models.ParseDate(query.Get("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
		return
	}

	var result *models.LineupSuggestionResult
	if raw := query.Get("venueId"); raw != "" {
		venueID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || venueID <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid venueId"})
			return
		}
		result, err = s.lineup.ResolveVenue(r.Context(), venueID, date)
		if err != nil {
			writeLineupError(w, r, err)
			return
		}
	} else {
		result, err = s.lineup.Resolve(r.Context(), query.Get("venueExternalId"), date)
		if err != nil {
			writeLineupError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func writeLineupError(w http.ResponseWriter, r *http.Request, err error) {
	var resolverErr *lineup.ResolverError
	switch {
	case errors.As(err, &resolverErr):
		status := http.StatusBadGateway
		if resolverErr.Reason == lineup.ReasonTimeout {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, errorResponse{Error: resolverErr.Reason})
	case errors.Is(err, store.ErrVenueNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "venue not found"})
	default:
		logging.WithContext(r.Context()).Error().Err(err).Msg("lineup request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
