package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrMediaNotFound is returned when a media item does not exist for the owner.
	ErrMediaNotFound = errors.New("media item not found")
	// ErrConcertNotFound is returned when a concert does not exist for the owner.
	ErrConcertNotFound = errors.New("concert not found")
	// ErrVenueNotFound is returned when a venue does not exist.
	ErrVenueNotFound = errors.New("venue not found")
	// ErrAlreadyAssigned means the media item is committed to a different concert.
	ErrAlreadyAssigned = errors.New("media item already assigned to another concert")
	// ErrLineupConflict means a concurrent writer created the same artist first.
	ErrLineupConflict = errors.New("concurrent lineup update")
	// ErrStaleRun means the analysis run no longer owns the media item.
	ErrStaleRun = errors.New("analysis run is no longer current")
)

// Store provides persistence backed by Postgres.
type Store struct {
	db *sql.DB
}

// New sets up a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
