package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"gigsnap/internal/models"
)

func TestUpsertVenueStoresNameKey(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (external_id) DO UPDATE`)).
		WithArgs(sqlmock.AnyArg(), "The Orpheum", "the orpheum", "Boston", "theatre").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), created))

	venue, err := s.UpsertVenue(context.Background(), &models.Venue{
		ExternalID: "6bd6ca6e",
		Name:       "The Orpheum",
		City:       "Boston",
		VenueType:  "theatre",
	})
	if err != nil {
		t.Fatalf("UpsertVenue returned error: %v", err)
	}
	if venue.ID != 3 || !venue.CreatedAt.Equal(created) {
		t.Fatalf("unexpected venue %+v", venue)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetVenueNullExternalID(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM venues`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name", "city", "venue_type", "created_at"}).
			AddRow(int64(3), nil, "Paradiso", "Amsterdam", "", created))

	venue, err := s.GetVenue(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetVenue returned error: %v", err)
	}
	if venue.ExternalID != "" || venue.Name != "Paradiso" {
		t.Fatalf("unexpected venue %+v", venue)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetVenueNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM venues`)).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	if _, err := s.GetVenue(context.Background(), 9); !errors.Is(err, ErrVenueNotFound) {
		t.Fatalf("expected ErrVenueNotFound, got %v", err)
	}
}
