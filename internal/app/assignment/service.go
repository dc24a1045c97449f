package assignment

import (
	"context"
	"errors"
	"strings"

	"gigsnap/internal/models"
	"gigsnap/internal/store"
)

// ErrConcertNotEligible is returned when confirming a concert that was neither
// suggested for the item nor belongs to its owner.
var ErrConcertNotEligible = errors.New("concert is not eligible for this media item")

// Store defines the persistence the workflow writes through.
type Store interface {
	GetMediaItem(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
	GetConcert(ctx context.Context, ownerID, concertID int64) (*models.Concert, error)
	AssignConcert(ctx context.Context, ownerID, mediaID, concertID int64) (*models.MediaItem, error)
	MarkReviewed(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
	ApplyLineup(ctx context.Context, ownerID, concertID int64, plan store.LineupPlan) (int, error)
}

// Outcome reports what AddLineupArtists did.
type Outcome struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// Service commits user decisions about media and lineups.
type Service interface {
	ConfirmMatch(ctx context.Context, ownerID, mediaID, concertID int64) (*models.MediaItem, error)
	SkipMatch(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error)
	AddLineupArtists(ctx context.Context, ownerID, concertID int64, artists []models.LineupArtist) (Outcome, error)
	AutoLink(ctx context.Context, ownerID, mediaID, concertID int64) error
}

type service struct {
	store Store
}

// New constructs an assignment Service.
func New(store Store) Service {
	return &service{store: store}
}

func (s *service) ConfirmMatch(ctx context.Context, ownerID, mediaID, concertID int64) (*models.MediaItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := s.store.GetMediaItem(ctx, ownerID, mediaID)
	if err != nil {
		return nil, err
	}
	if item.ConcertID != nil {
		if *item.ConcertID == concertID {
			return item, nil
		}
		return nil, store.ErrAlreadyAssigned
	}

	if !suggested(item, concertID) {
		if _, err := s.store.GetConcert(ctx, ownerID, concertID); err != nil {
			if errors.Is(err, store.ErrConcertNotFound) {
				return nil, ErrConcertNotEligible
			}
			return nil, err
		}
	}

	return s.assign(ctx, ownerID, mediaID, concertID)
}

func (s *service) SkipMatch(ctx context.Context, ownerID, mediaID int64) (*models.MediaItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.MarkReviewed(ctx, ownerID, mediaID)
}

// AutoLink assigns without the suggestion check; the caller has just ranked the item.
func (s *service) AutoLink(ctx context.Context, ownerID, mediaID, concertID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.assign(ctx, ownerID, mediaID, concertID)
	return err
}

func (s *service) assign(ctx context.Context, ownerID, mediaID, concertID int64) (*models.MediaItem, error) {
	item, err := s.store.AssignConcert(ctx, ownerID, mediaID, concertID)
	if errors.Is(err, store.ErrConcertNotFound) {
		return nil, ErrConcertNotEligible
	}
	return item, err
}

// AddLineupArtists attaches artists to a concert, skipping any already on it.
func (s *service) AddLineupArtists(ctx context.Context, ownerID, concertID int64, artists []models.LineupArtist) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if len(artists) == 0 {
		return Outcome{}, nil
	}

	plan := func(existing []models.ConcertArtist) []models.LineupArtist {
		return planAdditions(existing, artists)
	}

	added, err := s.store.ApplyLineup(ctx, ownerID, concertID, plan)
	if errors.Is(err, store.ErrLineupConflict) {
		// a concurrent writer created the same artist; the retry sees it
		added, err = s.store.ApplyLineup(ctx, ownerID, concertID, plan)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Added: added, Skipped: len(artists) - added}, nil
}

func suggested(item *models.MediaItem, concertID int64) bool {
	for _, sg := range item.MatchSuggestions {
		if sg.ConcertID == concertID {
			return true
		}
	}
	return false
}

// planAdditions drops incoming artists already on the concert or repeated in
// the batch. External ids decide when both sides have one; otherwise names
// are compared case-insensitively.
func planAdditions(existing []models.ConcertArtist, incoming []models.LineupArtist) []models.LineupArtist {
	known := newRoster()
	for _, a := range existing {
		known.add(a.ExternalID, a.Name)
	}

	out := make([]models.LineupArtist, 0, len(incoming))
	for _, a := range incoming {
		a.Name = strings.TrimSpace(a.Name)
		a.ExternalID = strings.TrimSpace(a.ExternalID)
		if a.Name == "" || known.has(a.ExternalID, a.Name) {
			continue
		}
		known.add(a.ExternalID, a.Name)
		out = append(out, a)
	}
	return out
}

type roster struct {
	ids   map[string]bool
	names map[string][]string
}

func newRoster() *roster {
	return &roster{ids: map[string]bool{}, names: map[string][]string{}}
}

func (r *roster) add(externalID, name string) {
	externalID = strings.TrimSpace(externalID)
	if externalID != "" {
		r.ids[externalID] = true
	}
	key := strings.ToLower(strings.TrimSpace(name))
	r.names[key] = append(r.names[key], externalID)
}

func (r *roster) has(externalID, name string) bool {
	if externalID != "" && r.ids[externalID] {
		return true
	}
	for _, other := range r.names[strings.ToLower(name)] {
		if externalID == "" || other == "" {
			return true
		}
	}
	return false
}
