package lineup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsnap/internal/models"
)

type stubSource struct {
	performances []models.Performance
	err          error
	block        chan struct{}
	calls        atomic.Int32

	mu       sync.Mutex
	from, to models.Date
}

func (s *stubSource) LookupLineup(ctx context.Context, _ string, from, to models.Date) ([]models.Performance, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.from, s.to = from, to
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.performances, s.err
}

type stubVenues struct {
	venue *models.Venue
	err   error
}

func (s stubVenues) GetVenue(context.Context, int64) (*models.Venue, error) {
	return s.venue, s.err
}

type reasonErr string

func (e reasonErr) Error() string  { return "upstream: " + string(e) }
func (e reasonErr) Reason() string { return string(e) }

func day(m time.Month, d int) models.Date {
	return models.NewDate(2024, m, d)
}

func festival() []models.Performance {
	return []models.Performance{
		{ArtistExternalID: "mbid-a", ArtistName: "Arcade", Date: day(6, 7), IsHeadliner: true, EventName: "Summer Fest"},
		{ArtistExternalID: "mbid-b", ArtistName: "Bleachers", Date: day(6, 8), EventName: "Summer Fest"},
		{ArtistExternalID: "mbid-a", ArtistName: "Arcade", Date: day(6, 9), EventName: "Summer Fest"},
		{ArtistName: "Caroline Polachek", Date: day(6, 9), EventName: "Summer Fest"},
		// a separate show after a gap day
		{ArtistExternalID: "mbid-z", ArtistName: "Zola", Date: day(6, 11)},
	}
}

func newService(source Source) Service {
	return New(source, stubVenues{}, Config{WindowDays: 3, Timeout: time.Second}, zerolog.Nop())
}

func TestResolveMultiDayFestival(t *testing.T) {
	source := &stubSource{performances: festival()}
	svc := newService(source)

	result, err := svc.Resolve(context.Background(), "venue-1", day(6, 8))
	require.NoError(t, err)

	assert.Equal(t, "2024-06-05", source.from.String())
	assert.Equal(t, "2024-06-11", source.to.String())

	assert.True(t, result.IsMultiDay)
	assert.Equal(t, "Summer Fest", result.EventName)
	assert.Equal(t, "2024-06-08", result.QueriedDate.String())

	require.Len(t, result.EventDays, 3)
	assert.Equal(t, "Day 1 · Fri, Jun 7", result.EventDays[0].DisplayLabel)
	assert.Equal(t, "Day 3 · Sun, Jun 9", result.EventDays[2].DisplayLabel)
	assert.Equal(t, []int{1, 1, 2}, []int{
		result.EventDays[0].ArtistCount,
		result.EventDays[1].ArtistCount,
		result.EventDays[2].ArtistCount,
	})

	require.Len(t, result.Artists, 3)
	arcade := result.Artists[0]
	assert.Equal(t, "mbid-a", arcade.ExternalID)
	assert.True(t, arcade.IsHeadliner)
	require.Len(t, arcade.PerformanceDates, 2)
	assert.Equal(t, "2024-06-07", arcade.PerformanceDates[0].String())
	assert.Equal(t, "2024-06-09", arcade.PerformanceDates[1].String())

	eventDays := make(map[models.Date]bool)
	for _, d := range result.EventDays {
		eventDays[d.Date] = true
	}
	for _, a := range result.Artists {
		assert.NotEqual(t, "Zola", a.Name)
		for _, d := range a.PerformanceDates {
			assert.True(t, eventDays[d], "performance date %s outside event days", d)
		}
	}
}

func TestResolveSingleDay(t *testing.T) {
	svc := newService(&stubSource{performances: festival()})

	result, err := svc.Resolve(context.Background(), "venue-1", day(6, 11))
	require.NoError(t, err)

	assert.False(t, result.IsMultiDay)
	require.Len(t, result.EventDays, 1)
	assert.Equal(t, "Tue, Jun 11", result.EventDays[0].DisplayLabel)
	require.Len(t, result.Artists, 1)
	assert.Equal(t, "Zola", result.Artists[0].Name)
}

func TestResolveNothingOnQueriedDate(t *testing.T) {
	svc := newService(&stubSource{performances: festival()})

	result, err := svc.Resolve(context.Background(), "venue-1", day(6, 10))
	require.NoError(t, err)
	assert.NotNil(t, result.Artists)
	assert.Empty(t, result.Artists)
	assert.Empty(t, result.EventDays)
	assert.False(t, result.IsMultiDay)
}

func TestResolveWithoutVenueSkipsSource(t *testing.T) {
	source := &stubSource{performances: festival()}
	svc := newService(source)

	result, err := svc.Resolve(context.Background(), "  ", day(6, 8))
	require.NoError(t, err)
	assert.Empty(t, result.Artists)
	assert.Equal(t, int32(0), source.calls.Load())
}

func TestResolveErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"rate limited", reasonErr(ReasonRateLimited), ReasonRateLimited},
		{"bad payload", reasonErr(ReasonInvalidResponse), ReasonInvalidResponse},
		{"generic", errors.New("connection refused"), ReasonUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(&stubSource{err: tc.err})

			_, err := svc.Resolve(context.Background(), "venue-1", day(6, 8))
			var resolverErr *ResolverError
			require.ErrorAs(t, err, &resolverErr)
			assert.Equal(t, tc.reason, resolverErr.Reason)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	source := &stubSource{block: make(chan struct{})}
	svc := New(source, stubVenues{}, Config{WindowDays: 3, Timeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := svc.Resolve(context.Background(), "venue-1", day(6, 8))
	var resolverErr *ResolverError
	require.ErrorAs(t, err, &resolverErr)
	assert.Equal(t, ReasonTimeout, resolverErr.Reason)
}

func TestResolveSharesConcurrentLookups(t *testing.T) {
	source := &stubSource{performances: festival(), block: make(chan struct{})}
	svc := newService(source)

	var wg sync.WaitGroup
	results := make([]*models.LineupSuggestionResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Resolve(context.Background(), "venue-1", day(6, 8))
			if err == nil {
				results[i] = res
			}
		}(i)
	}

	require.Eventually(t, func() bool { return source.calls.Load() >= 1 }, time.Second, time.Millisecond)
	// let the other callers join the in-flight lookup before releasing it
	time.Sleep(20 * time.Millisecond)
	close(source.block)
	wg.Wait()

	assert.Equal(t, int32(1), source.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Len(t, res.Artists, 3)
	}
}

func TestResolveVenueUsesExternalID(t *testing.T) {
	source := &stubSource{performances: festival()}
	svc := New(source, stubVenues{venue: &models.Venue{ID: 3, ExternalID: "venue-1"}}, Config{WindowDays: 3, Timeout: time.Second}, zerolog.Nop())

	result, err := svc.ResolveVenue(context.Background(), 3, day(6, 8))
	require.NoError(t, err)
	assert.Len(t, result.Artists, 3)
}

func TestResolveVenueNotFound(t *testing.T) {
	notFound := errors.New("venue not found")
	svc := New(&stubSource{}, stubVenues{err: notFound}, Config{}, zerolog.Nop())

	_, err := svc.ResolveVenue(context.Background(), 3, day(6, 8))
	assert.ErrorIs(t, err, notFound)
}
