package setlistfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gigsnap/internal/models"
)

const festivalDay = `{
  "type": "setlists", "itemsPerPage": 20, "page": 1, "total": 2,
  "setlist": [
    {"id": "1", "eventDate": "08-06-2024",
     "artist": {"mbid": "mbid-a", "name": "Arcade"},
     "tour": {"name": "Summer Fest"},
     "sets": {"set": [{"song": [{"name": "One"}, {"name": "Two"}, {"name": "Three"}]}]}},
    {"id": "2", "eventDate": "08-06-2024",
     "artist": {"mbid": "mbid-b", "name": "Bleachers"},
     "sets": {"set": [{"song": [{"name": "Four"}]}]}}
  ]
}`

func TestLookupLineupFansOutPerDay(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/search/setlists" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("unexpected api key %q", got)
		}
		if got := r.URL.Query().Get("venueId"); got != "venue-1" {
			t.Errorf("unexpected venue %q", got)
		}
		if r.URL.Query().Get("date") != "08-06-2024" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"message":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(festivalDay))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	performances, err := client.LookupLineup(context.Background(), "venue-1", models.NewDate(2024, 6, 7), models.NewDate(2024, 6, 9))
	if err != nil {
		t.Fatalf("LookupLineup returned error: %v", err)
	}
	if requests.Load() != 3 {
		t.Fatalf("expected one request per day, got %d", requests.Load())
	}
	if len(performances) != 2 {
		t.Fatalf("expected 2 performances, got %d", len(performances))
	}
	first := performances[0]
	if first.ArtistExternalID != "mbid-a" || first.EventName != "Summer Fest" || !first.IsHeadliner {
		t.Fatalf("unexpected first performance %+v", first)
	}
	if first.Date.String() != "2024-06-08" {
		t.Fatalf("unexpected date %s", first.Date)
	}
	if performances[1].IsHeadliner {
		t.Fatalf("support act should not be headliner")
	}
}

func TestLookupLineupStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reason string
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limited"},
		{"server error", http.StatusBadGateway, "source_unavailable"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
			day := models.NewDate(2024, 6, 8)
			_, err := client.LookupLineup(context.Background(), "venue-1", day, day)

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if statusErr.Reason() != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, statusErr.Reason())
			}
		})
	}
}

func TestLookupLineupInvalidPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	day := models.NewDate(2024, 6, 8)
	_, err := client.LookupLineup(context.Background(), "venue-1", day, day)

	var reasoned interface{ Reason() string }
	if !errors.As(err, &reasoned) || reasoned.Reason() != "invalid_response" {
		t.Fatalf("expected invalid_response, got %v", err)
	}
}

func TestLookupLineupWithoutVenue(t *testing.T) {
	client := NewClient(Config{APIKey: "secret", BaseURL: "http://127.0.0.1:0"})
	day := models.NewDate(2024, 6, 8)
	performances, err := client.LookupLineup(context.Background(), "", day, day)
	if err != nil || performances != nil {
		t.Fatalf("expected empty lookup, got %v, %v", performances, err)
	}
}

func TestToPerformancesTieHasNoHeadliner(t *testing.T) {
	var a, b setlist
	a.Artist.Name, b.Artist.Name = "A", "B"
	day := models.NewDate(2024, 6, 8)

	got := toPerformances(day, []setlist{a, b})
	for _, p := range got {
		if p.IsHeadliner {
			t.Fatalf("no setlist has songs, expected no headliner")
		}
		if p.Date != day {
			t.Fatalf("expected fallback to queried day")
		}
	}
}
