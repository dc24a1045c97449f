package venues

import (
	"context"
	"errors"
	"strings"

	"gigsnap/internal/models"
)

// ErrNameRequired indicates a venue without a display name.
var ErrNameRequired = errors.New("venue name is required")

// Store defines persistence operations for the shared venue registry
type Store interface {
	UpsertVenue(ctx context.Context, venue *models.Venue) (*models.Venue, error)
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
}

// Service coordinates venue reference data
type Service interface {
	Upsert(ctx context.Context, venue *models.Venue) (*models.Venue, error)
	Get(ctx context.Context, id int64) (*models.Venue, error)
}

type service struct {
	store Store
}

// New constructs a venues Service backed by the provided Store
func New(store Store) Service {
	return &service{store: store}
}

// Upsert trims the incoming fields and records the venue, merging on external id.
func (s *service) Upsert(ctx context.Context, venue *models.Venue) (*models.Venue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	venue.ExternalID = strings.TrimSpace(venue.ExternalID)
	venue.Name = strings.TrimSpace(venue.Name)
	venue.City = strings.TrimSpace(venue.City)
	venue.VenueType = strings.TrimSpace(venue.VenueType)
	if venue.Name == "" {
		return nil, ErrNameRequired
	}
	return s.store.UpsertVenue(ctx, venue)
}

func (s *service) Get(ctx context.Context, id int64) (*models.Venue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GetVenue(ctx, id)
}
