package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gigsnap/internal/models"
	"gigsnap/internal/textnorm"
)

// UpsertVenue stores shared venue reference data. Venues with an external id
// are deduplicated on it; the stored name and city follow the latest write.
func (s *Store) UpsertVenue(ctx context.Context, venue *models.Venue) (*models.Venue, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO venues (external_id, name, name_key, city, venue_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE
		SET name = EXCLUDED.name,
		    name_key = EXCLUDED.name_key,
		    city = EXCLUDED.city,
		    venue_type = EXCLUDED.venue_type
		RETURNING id, created_at
	`,
		nullString(venue.ExternalID), venue.Name, textnorm.Key(venue.Name), venue.City, venue.VenueType,
	).Scan(&venue.ID, &venue.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert venue: %w", err)
	}
	return venue, nil
}

// GetVenue retrieves a single venue by ID.
func (s *Store) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	var (
		v          models.Venue
		externalID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, city, venue_type, created_at
		FROM venues
		WHERE id = $1
	`, id).Scan(&v.ID, &externalID, &v.Name, &v.City, &v.VenueType, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVenueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select venue: %w", err)
	}
	v.ExternalID = externalID.String
	return &v, nil
}
