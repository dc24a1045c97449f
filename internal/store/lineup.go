package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gigsnap/internal/models"
	"gigsnap/internal/textnorm"
)

// LineupPlan picks which incoming artists should be added given the concert's
// current lineup. It runs inside the transaction, after the concert row is locked.
type LineupPlan func(existing []models.ConcertArtist) []models.LineupArtist

// ApplyLineup adds artists to a concert in a single transaction. Each artist is
// resolved by external id, then by exact name, and created when neither
// matches. It returns how many relations were inserted; either all of them are
// committed or none are.
func (s *Store) ApplyLineup(ctx context.Context, ownerID, concertID int64, plan LineupPlan) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM concerts
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, concertID, ownerID).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConcertNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock concert: %w", err)
	}

	existing, err := concertArtistsTx(ctx, tx, concertID)
	if err != nil {
		return 0, err
	}

	nextOrder := 0
	for _, a := range existing {
		if a.SetOrder >= nextOrder {
			nextOrder = a.SetOrder + 1
		}
	}

	added := 0
	for _, artist := range plan(existing) {
		artistID, err := resolveArtistTx(ctx, tx, artist)
		if err != nil {
			return 0, err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO concert_artists (concert_id, artist_id, is_headliner, set_order)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (concert_id, artist_id) DO NOTHING
		`, concertID, artistID, artist.IsHeadliner, nextOrder)
		if err != nil {
			return 0, wrapConflict(fmt.Errorf("insert concert artist: %w", err))
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert concert artist: %w", err)
		}
		if rows == 1 {
			added++
			nextOrder++
		}
	}

	if added > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE concerts SET updated_at = NOW() WHERE id = $1
		`, concertID); err != nil {
			return 0, fmt.Errorf("touch concert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapConflict(fmt.Errorf("commit tx: %w", err))
	}
	tx = nil

	return added, nil
}

func concertArtistsTx(ctx context.Context, tx *sql.Tx, concertID int64) ([]models.ConcertArtist, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT a.id, COALESCE(a.external_id, ''), a.name, ca.is_headliner, ca.set_order
		FROM concert_artists ca
		JOIN artists a ON a.id = ca.artist_id
		WHERE ca.concert_id = $1
		ORDER BY ca.set_order, a.id
	`, concertID)
	if err != nil {
		return nil, fmt.Errorf("select concert artists: %w", err)
	}
	defer rows.Close()

	var artists []models.ConcertArtist
	for rows.Next() {
		var a models.ConcertArtist
		if err := rows.Scan(&a.ArtistID, &a.ExternalID, &a.Name, &a.IsHeadliner, &a.SetOrder); err != nil {
			return nil, fmt.Errorf("scan concert artist: %w", err)
		}
		artists = append(artists, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concert artists: %w", err)
	}
	return artists, nil
}

func resolveArtistTx(ctx context.Context, tx *sql.Tx, artist models.LineupArtist) (int64, error) {
	var id int64

	if artist.ExternalID != "" {
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM artists WHERE external_id = $1
		`, artist.ExternalID).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("lookup artist by external id: %w", err)
		}
	}

	// An exact-name match only counts when it cannot be a different catalogue entry.
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM artists
		WHERE name = $1 AND ($2 = '' OR external_id IS NULL)
		ORDER BY id
		LIMIT 1
	`, artist.Name, artist.ExternalID).Scan(&id)
	switch {
	case err == nil:
		if artist.ExternalID != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE artists SET external_id = $2 WHERE id = $1 AND external_id IS NULL
			`, id, artist.ExternalID); err != nil {
				return 0, wrapConflict(fmt.Errorf("backfill artist external id: %w", err))
			}
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("lookup artist by name: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO artists (external_id, name, name_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET name = artists.name
		RETURNING id
	`, nullString(artist.ExternalID), artist.Name, textnorm.Key(artist.Name)).Scan(&id)
	if err != nil {
		return 0, wrapConflict(fmt.Errorf("insert artist: %w", err))
	}
	return id, nil
}

// wrapConflict tags unique violations so callers can retry the whole batch.
func wrapConflict(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrLineupConflict, err)
	}
	return err
}
