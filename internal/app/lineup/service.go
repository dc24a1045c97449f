package lineup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"gigsnap/internal/models"
)

// Reason codes carried by ResolverError.
const (
	ReasonTimeout         = "timeout"
	ReasonCanceled        = "canceled"
	ReasonUnavailable     = "source_unavailable"
	ReasonRateLimited     = "rate_limited"
	ReasonInvalidResponse = "invalid_response"
)

// ResolverError means the setlist source could not be checked. It is distinct
// from an empty result, which means the source was checked and had nothing.
type ResolverError struct {
	Reason string
	Err    error
}

func (e *ResolverError) Error() string {
	if e.Err == nil {
		return "lineup resolver: " + e.Reason
	}
	return fmt.Sprintf("lineup resolver: %s: %v", e.Reason, e.Err)
}

func (e *ResolverError) Unwrap() error {
	return e.Err
}

// Source looks up performances at a venue between two days, inclusive.
type Source interface {
	LookupLineup(ctx context.Context, venueExternalID string, from, to models.Date) ([]models.Performance, error)
}

// VenueStore resolves internal venue ids to their external cross-reference.
type VenueStore interface {
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
}

// Config controls the lookup window and deadline.
type Config struct {
	WindowDays int
	Timeout    time.Duration
}

// Service resolves the lineup around a venue and date.
type Service interface {
	Resolve(ctx context.Context, venueExternalID string, date models.Date) (*models.LineupSuggestionResult, error)
	ResolveVenue(ctx context.Context, venueID int64, date models.Date) (*models.LineupSuggestionResult, error)
}

type service struct {
	source Source
	venues VenueStore
	cfg    Config
	log    zerolog.Logger
	group  singleflight.Group
}

// New constructs a lineup Service.
func New(source Source, venues VenueStore, cfg Config, log zerolog.Logger) Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.WindowDays < 0 {
		cfg.WindowDays = 0
	}
	return &service{source: source, venues: venues, cfg: cfg, log: log}
}

func (s *service) ResolveVenue(ctx context.Context, venueID int64, date models.Date) (*models.LineupSuggestionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	venue, err := s.venues.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, venue.ExternalID, date)
}

func (s *service) Resolve(ctx context.Context, venueExternalID string, date models.Date) (*models.LineupSuggestionResult, error) {
	venueExternalID = strings.TrimSpace(venueExternalID)
	if venueExternalID == "" {
		return emptyResult(date), nil
	}

	from := date.AddDays(-s.cfg.WindowDays)
	to := date.AddDays(s.cfg.WindowDays)
	key := venueExternalID + "|" + from.String() + "|" + to.String()

	// Identical concurrent lookups share one upstream call. The shared call is
	// detached from any single caller so one cancellation cannot fail the rest.
	ch := s.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
		defer cancel()
		return s.source.LookupLineup(lookupCtx, venueExternalID, from, to)
	})

	var (
		performances []models.Performance
		err          error
	)
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-ch:
		err = res.Err
		if err == nil {
			performances, _ = res.Val.([]models.Performance)
		}
	}
	if err != nil {
		resolverErr := classify(err)
		s.log.Warn().
			Err(err).
			Str("venue_external_id", venueExternalID).
			Str("date", date.String()).
			Str("reason", resolverErr.Reason).
			Msg("lineup lookup failed")
		return nil, resolverErr
	}

	return buildResult(date, performances), nil
}

func classify(err error) *ResolverError {
	var reasoned interface{ Reason() string }
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ResolverError{Reason: ReasonTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &ResolverError{Reason: ReasonCanceled, Err: err}
	case errors.As(err, &reasoned):
		return &ResolverError{Reason: reasoned.Reason(), Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ResolverError{Reason: ReasonTimeout, Err: err}
	default:
		return &ResolverError{Reason: ReasonUnavailable, Err: err}
	}
}

func emptyResult(date models.Date) *models.LineupSuggestionResult {
	return &models.LineupSuggestionResult{
		Artists:     []models.LineupArtist{},
		QueriedDate: date,
		EventDays:   []models.EventDay{},
	}
}

// buildResult keeps the unbroken run of days around the queried date, so an
// unrelated show at the same venue two days later is not merged into the event.
func buildResult(date models.Date, performances []models.Performance) *models.LineupSuggestionResult {
	date = models.DateOf(date.Time)
	byDay := make(map[models.Date][]models.Performance)
	for _, p := range performances {
		day := models.DateOf(p.Date.Time)
		byDay[day] = append(byDay[day], p)
	}
	if len(byDay[date]) == 0 {
		return emptyResult(date)
	}

	first, last := date, date
	for len(byDay[first.AddDays(-1)]) > 0 {
		first = first.AddDays(-1)
	}
	for len(byDay[last.AddDays(1)]) > 0 {
		last = last.AddDays(1)
	}

	result := emptyResult(date)
	multiDay := first != last
	index := make(map[string]int)

	dayNumber := 0
	for day := first; !day.After(last.Time); day = day.AddDays(1) {
		dayNumber++
		seenToday := make(map[string]bool)

		for _, p := range byDay[day] {
			key := artistKey(p)
			if key == "" {
				continue
			}
			if result.EventName == "" && p.EventName != "" {
				result.EventName = p.EventName
			}

			i, ok := index[key]
			if !ok {
				i = len(result.Artists)
				index[key] = i
				result.Artists = append(result.Artists, models.LineupArtist{
					ExternalID: p.ArtistExternalID,
					Name:       strings.TrimSpace(p.ArtistName),
				})
			}
			artist := &result.Artists[i]
			if p.IsHeadliner {
				artist.IsHeadliner = true
			}
			if artist.ExternalID == "" {
				artist.ExternalID = p.ArtistExternalID
			}
			if !seenToday[key] {
				seenToday[key] = true
				artist.PerformanceDates = append(artist.PerformanceDates, day)
			}
		}

		result.EventDays = append(result.EventDays, models.EventDay{
			Date:         day,
			DisplayLabel: dayLabel(day, dayNumber, multiDay),
			ArtistCount:  len(seenToday),
		})
	}

	result.IsMultiDay = len(result.EventDays) > 1
	return result
}

func artistKey(p models.Performance) string {
	if id := strings.TrimSpace(p.ArtistExternalID); id != "" {
		return "id:" + id
	}
	if name := strings.ToLower(strings.TrimSpace(p.ArtistName)); name != "" {
		return "name:" + name
	}
	return ""
}

func dayLabel(day models.Date, n int, multiDay bool) string {
	label := day.Format("Mon, Jan 2")
	if !multiDay {
		return label
	}
	return fmt.Sprintf("Day %d · %s", n, label)
}
