package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gigsnap/internal/models"
	"gigsnap/internal/textnorm"
)

// Store defines the persistence the ranker reads from.
type Store interface {
	CandidateConcerts(ctx context.Context, ownerID int64, from, to *models.Date, venueKey string) ([]*models.Concert, error)
}

// Config holds the tunable weights and thresholds.
type Config struct {
	ArtistWeight float64
	VenueWeight  float64
	DateWeight   float64

	// SuggestThreshold drops weaker candidates from the output.
	SuggestThreshold float64
	// AutoLinkThreshold is the bar a single candidate must clear to be linked automatically.
	AutoLinkThreshold float64
	// AutoLinkOverall is the classifier confidence required before auto-linking.
	AutoLinkOverall float64
	// DateToleranceDays widens the date window on both sides.
	DateToleranceDays int
	// StrongSignal is the sub-score at which a dimension counts towards matchedVia.
	StrongSignal float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ArtistWeight:      0.5,
		VenueWeight:       0.3,
		DateWeight:        0.2,
		SuggestThreshold:  0.4,
		AutoLinkThreshold: 0.85,
		AutoLinkOverall:   0.9,
		DateToleranceDays: 1,
		StrongSignal:      0.7,
	}
}

// Service ranks an owner's concerts against an analysis result.
type Service interface {
	Rank(ctx context.Context, result models.AnalysisResult, ownerID int64) ([]models.MatchSuggestion, error)
	AutoLinkTarget(result models.AnalysisResult, suggestions []models.MatchSuggestion) (int64, bool)
}

type service struct {
	store Store
	cfg   Config
}

// New constructs a matching Service.
func New(store Store, cfg Config) Service {
	if cfg.StrongSignal == 0 {
		cfg.StrongSignal = DefaultConfig().StrongSignal
	}
	return &service{store: store, cfg: cfg}
}

// scores holds the three independent sub-scores of one candidate.
type scores struct {
	artist float64
	venue  float64
	date   float64
}

func (s *service) Rank(ctx context.Context, result models.AnalysisResult, ownerID int64) ([]models.MatchSuggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var from, to *models.Date
	if result.EstimatedDate != nil {
		f := result.EstimatedDate.AddDays(-s.cfg.DateToleranceDays)
		t := result.EstimatedDate.AddDays(s.cfg.DateToleranceDays)
		from, to = &f, &t
	}
	venueKey := textnorm.Key(result.Venue.Name)

	candidates, err := s.store.CandidateConcerts(ctx, ownerID, from, to, venueKey)
	if err != nil {
		return nil, fmt.Errorf("load candidate concerts: %w", err)
	}

	type ranked struct {
		suggestion models.MatchSuggestion
		concert    *models.Concert
	}

	seen := make(map[int64]bool, len(candidates))
	out := make([]ranked, 0, len(candidates))
	for _, concert := range candidates {
		if seen[concert.ID] {
			continue
		}
		seen[concert.ID] = true

		sc := s.score(result, concert)
		confidence := roundScore(s.cfg.ArtistWeight*sc.artist + s.cfg.VenueWeight*sc.venue + s.cfg.DateWeight*sc.date)
		if confidence < s.cfg.SuggestThreshold {
			continue
		}

		out = append(out, ranked{
			concert: concert,
			suggestion: models.MatchSuggestion{
				ConcertID:  concert.ID,
				Confidence: confidence,
				MatchedVia: s.matchedVia(sc),
				Concert: models.ConcertSnapshot{
					StartsOn:    concert.StartsOn,
					EndsOn:      concert.EndsOn,
					VenueName:   concert.VenueName,
					ArtistNames: concert.ArtistNames(),
				},
			},
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.suggestion.Confidence != b.suggestion.Confidence {
			return a.suggestion.Confidence > b.suggestion.Confidence
		}
		if !a.concert.CreatedAt.Equal(b.concert.CreatedAt) {
			return a.concert.CreatedAt.After(b.concert.CreatedAt)
		}
		return a.concert.ID > b.concert.ID
	})

	suggestions := make([]models.MatchSuggestion, 0, len(out))
	for _, r := range out {
		suggestions = append(suggestions, r.suggestion)
	}
	return suggestions, nil
}

// AutoLinkTarget returns the concert to link without asking the user: the
// classifier must be very sure and exactly one candidate may clear the bar.
func (s *service) AutoLinkTarget(result models.AnalysisResult, suggestions []models.MatchSuggestion) (int64, bool) {
	if result.OverallConfidence < s.cfg.AutoLinkOverall {
		return 0, false
	}

	var (
		target int64
		strong int
	)
	for _, sg := range suggestions {
		if sg.Confidence >= s.cfg.AutoLinkThreshold {
			strong++
			target = sg.ConcertID
		}
	}
	if strong != 1 {
		return 0, false
	}
	return target, true
}

func (s *service) score(result models.AnalysisResult, concert *models.Concert) scores {
	return scores{
		artist: artistScore(result.Artist, concert.Artists),
		venue:  textnorm.Similarity(result.Venue.Name, concert.VenueName),
		date:   s.dateScore(result.EstimatedDate, concert),
	}
}

func artistScore(guess models.ArtistGuess, lineup []models.ConcertArtist) float64 {
	best := 0.0
	for _, a := range lineup {
		if guess.ExternalID != "" && a.ExternalID == guess.ExternalID {
			return 1
		}
		if sim := textnorm.Similarity(guess.Name, a.Name); sim > best {
			best = sim
		}
	}
	return best
}

// dateScore is 1 on any day of the concert and falls linearly to 0 at the
// tolerance boundary. A zero tolerance only credits the concert's own days.
func (s *service) dateScore(estimated *models.Date, concert *models.Concert) float64 {
	if estimated == nil {
		return 0
	}

	var distance int
	switch {
	case estimated.Before(concert.StartsOn.Time):
		distance = estimated.DaysUntil(concert.StartsOn)
	case estimated.After(concert.EndsOn.Time):
		distance = concert.EndsOn.DaysUntil(*estimated)
	}

	if distance == 0 {
		return 1
	}
	if s.cfg.DateToleranceDays <= 0 {
		return 0
	}
	score := 1 - float64(distance)/float64(s.cfg.DateToleranceDays)
	return math.Max(0, score)
}

func (s *service) matchedVia(sc scores) models.MatchedVia {
	dims := []struct {
		via      models.MatchedVia
		score    float64
		weighted float64
	}{
		{models.MatchedViaArtist, sc.artist, sc.artist * s.cfg.ArtistWeight},
		{models.MatchedViaVenue, sc.venue, sc.venue * s.cfg.VenueWeight},
		{models.MatchedViaDate, sc.date, sc.date * s.cfg.DateWeight},
	}

	strong := 0
	via := dims[0].via
	bestWeighted := -1.0
	for _, d := range dims {
		if d.score >= s.cfg.StrongSignal {
			strong++
		}
		if d.weighted > bestWeighted {
			bestWeighted = d.weighted
			via = d.via
		}
	}

	if strong >= 2 {
		return models.MatchedViaCombined
	}
	if strong == 1 {
		for _, d := range dims {
			if d.score >= s.cfg.StrongSignal {
				return d.via
			}
		}
	}
	return via
}

func roundScore(v float64) float64 {
	return math.Round(v*10000) / 10000
}
