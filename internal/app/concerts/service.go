package concerts

import (
	"context"
	"errors"
	"strings"

	"gigsnap/internal/models"
)

var (
	// ErrStartRequired indicates a concert without a first day.
	ErrStartRequired = errors.New("startsOn is required")
	// ErrInvalidRange indicates a concert ending before it starts.
	ErrInvalidRange = errors.New("endsOn must not be before startsOn")
)

// Store defines persistence operations for concerts
type Store interface {
	CreateConcert(ctx context.Context, ownerID int64, concert *models.Concert) (*models.Concert, error)
	GetConcert(ctx context.Context, ownerID, concertID int64) (*models.Concert, error)
}

// VenueService allows validating that venues exist before creating concerts
type VenueService interface {
	Get(ctx context.Context, id int64) (*models.Venue, error)
}

// Service coordinates concert-related operations
type Service interface {
	Create(ctx context.Context, ownerID int64, concert *models.Concert) (*models.Concert, error)
	Get(ctx context.Context, ownerID, concertID int64) (*models.Concert, error)
}

type service struct {
	store  Store
	venues VenueService
}

// New constructs a concerts Service. venues may be nil to skip the venue check.
func New(store Store, venues VenueService) Service {
	return &service{
		store:  store,
		venues: venues,
	}
}

func (s *service) Create(ctx context.Context, ownerID int64, concert *models.Concert) (*models.Concert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if concert.StartsOn.IsZero() {
		return nil, ErrStartRequired
	}
	if concert.EndsOn.IsZero() {
		concert.EndsOn = concert.StartsOn
	}
	if concert.EndsOn.Before(concert.StartsOn.Time) {
		return nil, ErrInvalidRange
	}
	concert.Name = strings.TrimSpace(concert.Name)

	if s.venues != nil && concert.VenueID != nil {
		venue, err := s.venues.Get(ctx, *concert.VenueID)
		if err != nil {
			return nil, err
		}
		concert.VenueName = venue.Name
	}

	return s.store.CreateConcert(ctx, ownerID, concert)
}

func (s *service) Get(ctx context.Context, ownerID, concertID int64) (*models.Concert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GetConcert(ctx, ownerID, concertID)
}
