package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"gigsnap/internal/app/assignment"
	"gigsnap/internal/logging"
	"gigsnap/internal/models"
)

// MediaRegistry records uploaded assets handed over by the upload service.
type MediaRegistry interface {
	CreateMediaItem(ctx context.Context, ownerID int64, item *models.MediaItem) (*models.MediaItem, error)
}

// AnalysisService starts analysis runs and reports their state.
type AnalysisService interface {
	Submit(ctx context.Context, ownerID, mediaID int64) error
	Status(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
}

// AssignmentService commits match and lineup decisions.
type AssignmentService interface {
	ConfirmMatch(ctx context.Context, ownerID, mediaID, concertID int64) (*models.MediaItem, error)
	SkipMatch(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
	AddLineupArtists(ctx context.Context, ownerID, concertID int64, artists []models.LineupArtist) (assignment.Outcome, error)
}

// LineupService resolves who played a venue around a date.
type LineupService interface {
	Resolve(ctx context.Context, venueExternalID string, date models.Date) (*models.LineupSuggestionResult, error)
	ResolveVenue(ctx context.Context, venueID int64, date models.Date) (*models.LineupSuggestionResult, error)
}

// ConcertService creates and reads the owner's concerts.
type ConcertService interface {
	Create(ctx context.Context, ownerID int64, concert *models.Concert) (*models.Concert, error)
	Get(ctx context.Context, ownerID, concertID int64) (*models.Concert, error)
}

// VenueService maintains the shared venue registry.
type VenueService interface {
	Upsert(ctx context.Context, venue *models.Venue) (*models.Venue, error)
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	media      MediaRegistry
	analysis   AnalysisService
	assignment AssignmentService
	lineup     LineupService
	concerts   ConcertService
	venues     VenueService

	authenticate func(http.Handler) http.Handler
}

// New configures a Server. authenticate wraps every /api route; pass nil to
// leave the API open, which tests do.
func New(
	media MediaRegistry,
	analysis AnalysisService,
	assignment AssignmentService,
	lineup LineupService,
	concerts ConcertService,
	venues VenueService,
	authenticate func(http.Handler) http.Handler,
) *Server {
	if authenticate == nil {
		authenticate = func(next http.Handler) http.Handler { return next }
	}
	return &Server{
		media:        media,
		analysis:     analysis,
		assignment:   assignment,
		lineup:       lineup,
		concerts:     concerts,
		venues:       venues,
		authenticate: authenticate,
	}
}

// Routes exposes the HTTP handlers.
func (s *Server) Routes() http.Handler {
	api := http.NewServeMux()

	// Media routes
	api.HandleFunc("POST /api/v1/media", s.handleRegisterMedia)
	api.HandleFunc("GET /api/v1/media/{id}", s.handleGetMedia)
	api.HandleFunc("POST /api/v1/media/{id}/analyze", s.handleAnalyzeMedia)
	api.HandleFunc("POST /api/v1/media/{id}/confirm", s.handleConfirmMatch)
	api.HandleFunc("POST /api/v1/media/{id}/skip", s.handleSkipMatch)

	// Concert routes
	api.HandleFunc("POST /api/v1/concerts", s.handleCreateConcert)
	api.HandleFunc("GET /api/v1/concerts/{id}", s.handleGetConcert)
	api.HandleFunc("POST /api/v1/concerts/{id}/artists", s.handleAddLineupArtists)

	// Venue and lineup routes
	api.HandleFunc("POST /api/v1/venues", s.handleUpsertVenue)
	api.HandleFunc("GET /api/v1/lineup", s.handleLineup)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/api/", s.authenticate(api))
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

// ownerID reads the authenticated owner, answering 401 when there is none.
func ownerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := logging.OwnerID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid token"})
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
