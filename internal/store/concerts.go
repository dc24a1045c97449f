package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"gigsnap/internal/models"
)

const concertColumns = `
	c.id, c.owner_id, c.venue_id, COALESCE(v.name, ''), c.name, c.starts_on, c.ends_on,
	c.verified, c.confidence, c.created_at, c.updated_at`

// CreateConcert adds a concert for the owner. EndsOn defaults to StartsOn.
func (s *Store) CreateConcert(ctx context.Context, ownerID int64, concert *models.Concert) (*models.Concert, error) {
	if concert.EndsOn.IsZero() {
		concert.EndsOn = concert.StartsOn
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO concerts (owner_id, venue_id, name, starts_on, ends_on, verified, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		ownerID, concert.VenueID, concert.Name, concert.StartsOn.Time, concert.EndsOn.Time,
		concert.Verified, concert.Confidence,
	).Scan(&concert.ID, &concert.CreatedAt, &concert.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert concert: %w", err)
	}

	concert.OwnerID = ownerID
	if concert.Artists == nil {
		concert.Artists = []models.ConcertArtist{}
	}
	return concert, nil
}

// GetConcert retrieves one of the owner's concerts with its lineup.
func (s *Store) GetConcert(ctx context.Context, ownerID, concertID int64) (*models.Concert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+concertColumns+`
		FROM concerts c
		LEFT JOIN venues v ON v.id = c.venue_id
		WHERE c.id = $1 AND c.owner_id = $2
	`, concertID, ownerID)

	concert, err := scanConcert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConcertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select concert: %w", err)
	}

	concerts := []*models.Concert{concert}
	if err := s.attachArtists(ctx, concerts); err != nil {
		return nil, err
	}
	return concert, nil
}

// CandidateConcerts returns the owner's concerts whose date range overlaps
// [from, to], or whose venue folds to venueKey. A nil from skips the date
// clause and an empty venueKey skips the venue clause. Newest first.
func (s *Store) CandidateConcerts(ctx context.Context, ownerID int64, from, to *models.Date, venueKey string) ([]*models.Concert, error) {
	if from == nil && venueKey == "" {
		return nil, nil
	}

	var fromArg, toArg any
	if from != nil && to != nil {
		fromArg, toArg = from.Time, to.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+concertColumns+`
		FROM concerts c
		LEFT JOIN venues v ON v.id = c.venue_id
		WHERE c.owner_id = $1
		  AND (
		    ($2::date IS NOT NULL AND c.starts_on <= $3::date AND c.ends_on >= $2::date)
		    OR ($4 <> '' AND v.name_key = $4)
		  )
		ORDER BY c.created_at DESC, c.id DESC
	`, ownerID, fromArg, toArg, venueKey)
	if err != nil {
		return nil, fmt.Errorf("select candidate concerts: %w", err)
	}
	defer rows.Close()

	var concerts []*models.Concert
	for rows.Next() {
		concert, err := scanConcert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate concert: %w", err)
		}
		concerts = append(concerts, concert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate concerts: %w", err)
	}

	if err := s.attachArtists(ctx, concerts); err != nil {
		return nil, err
	}
	return concerts, nil
}

// attachArtists loads the lineups of several concerts in one round trip.
func (s *Store) attachArtists(ctx context.Context, concerts []*models.Concert) error {
	if len(concerts) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(concerts))
	byID := make(map[int64]*models.Concert, len(concerts))
	for _, c := range concerts {
		c.Artists = []models.ConcertArtist{}
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ca.concert_id, a.id, COALESCE(a.external_id, ''), a.name, ca.is_headliner, ca.set_order
		FROM concert_artists ca
		JOIN artists a ON a.id = ca.artist_id
		WHERE ca.concert_id = ANY($1)
		ORDER BY ca.concert_id, ca.set_order, a.id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("select concert artists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			concertID int64
			artist    models.ConcertArtist
		)
		if err := rows.Scan(&concertID, &artist.ArtistID, &artist.ExternalID, &artist.Name, &artist.IsHeadliner, &artist.SetOrder); err != nil {
			return fmt.Errorf("scan concert artist: %w", err)
		}
		if c, ok := byID[concertID]; ok {
			c.Artists = append(c.Artists, artist)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate concert artists: %w", err)
	}
	return nil
}

func scanConcert(row rowScanner) (*models.Concert, error) {
	var (
		c          models.Concert
		venueID    sql.NullInt64
		startsOn   time.Time
		endsOn     time.Time
		confidence sql.NullFloat64
	)
	if err := row.Scan(
		&c.ID, &c.OwnerID, &venueID, &c.VenueName, &c.Name, &startsOn, &endsOn,
		&c.Verified, &confidence, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if venueID.Valid {
		id := venueID.Int64
		c.VenueID = &id
	}
	if confidence.Valid {
		v := confidence.Float64
		c.Confidence = &v
	}
	c.StartsOn = models.DateOf(startsOn)
	c.EndsOn = models.DateOf(endsOn)
	return &c, nil
}
