// Package setlistfm reads performed lineups from the setlist.fm REST API.
package setlistfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gigsnap/internal/models"
)

const (
	defaultBaseURL     = "https://api.setlist.fm/rest/1.0"
	defaultHTTPTimeout = 10 * time.Second
	defaultParallelism = 2
	defaultMaxPages    = 3

	// setlist.fm uses dd-MM-yyyy for both query parameters and payloads.
	dateLayout = "02-01-2006"
)

// Config captures the settings needed to talk to setlist.fm.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client queries setlist.fm for the setlists played at a venue.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	parallelism int
	maxPages    int
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithParallelism bounds how many days are fetched at once.
func WithParallelism(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithMaxPages caps pagination per day.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient constructs a setlist.fm client.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		},
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		parallelism: defaultParallelism,
		maxPages:    defaultMaxPages,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// StatusError is a non-success HTTP response from setlist.fm.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("setlistfm request: http %d: %s", e.StatusCode, e.Body)
}

// Reason maps the status onto the lineup resolver's failure codes.
func (e *StatusError) Reason() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	return "source_unavailable"
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("setlistfm request: decode response: %v", e.err)
}

func (e *decodeError) Unwrap() error  { return e.err }
func (e *decodeError) Reason() string { return "invalid_response" }

type searchResponse struct {
	Total        int       `json:"total"`
	Page         int       `json:"page"`
	ItemsPerPage int       `json:"itemsPerPage"`
	Setlists     []setlist `json:"setlist"`
}

type setlist struct {
	ID        string `json:"id"`
	EventDate string `json:"eventDate"`
	Artist    struct {
		MBID string `json:"mbid"`
		Name string `json:"name"`
	} `json:"artist"`
	Tour *struct {
		Name string `json:"name"`
	} `json:"tour"`
	Sets struct {
		Set []struct {
			Song []json.RawMessage `json:"song"`
		} `json:"set"`
	} `json:"sets"`
}

func (s setlist) songCount() int {
	n := 0
	for _, set := range s.Sets.Set {
		n += len(set.Song)
	}
	return n
}

// LookupLineup returns every performance at the venue between from and to,
// inclusive, ordered by day.
func (c *Client) LookupLineup(ctx context.Context, venueExternalID string, from, to models.Date) ([]models.Performance, error) {
	venueExternalID = strings.TrimSpace(venueExternalID)
	if venueExternalID == "" {
		return nil, nil
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("setlistfm lookup: api key required")
	}

	var days []models.Date
	for d := from; !d.After(to.Time); d = d.AddDays(1) {
		days = append(days, d)
	}

	perDay := make([][]models.Performance, len(days))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, day := range days {
		g.Go(func() error {
			setlists, err := c.searchDay(gctx, venueExternalID, day)
			if err != nil {
				return err
			}
			perDay[i] = toPerformances(day, setlists)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.Performance
	for _, p := range perDay {
		out = append(out, p...)
	}
	return out, nil
}

func (c *Client) searchDay(ctx context.Context, venueID string, day models.Date) ([]setlist, error) {
	var all []setlist
	for page := 1; page <= c.maxPages; page++ {
		resp, err := c.searchPage(ctx, venueID, day, page)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			break
		}
		all = append(all, resp.Setlists...)
		if len(resp.Setlists) == 0 || len(all) >= resp.Total {
			break
		}
	}
	return all, nil
}

func (c *Client) searchPage(ctx context.Context, venueID string, day models.Date, page int) (*searchResponse, error) {
	query := url.Values{}
	query.Set("venueId", venueID)
	query.Set("date", day.Format(dateLayout))
	query.Set("p", strconv.Itoa(page))
	endpoint := c.cfg.BaseURL + "/search/setlists?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("setlistfm request: new request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("setlistfm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("setlistfm request: read body: %w", err)
	}
	// setlist.fm answers an empty search with 404
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &decodeError{err: err}
	}
	return &parsed, nil
}

// toPerformances flattens a day's setlists. The artist with the longest set
// is treated as the headliner when that length is unique.
func toPerformances(day models.Date, setlists []setlist) []models.Performance {
	out := make([]models.Performance, 0, len(setlists))
	seen := make(map[string]bool)

	longest, longestCount, tie := -1, 0, false
	for _, s := range setlists {
		name := strings.TrimSpace(s.Artist.Name)
		if name == "" {
			continue
		}
		key := s.Artist.MBID
		if key == "" {
			key = strings.ToLower(name)
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		date := day
		if parsed, err := time.Parse(dateLayout, s.EventDate); err == nil {
			date = models.DateOf(parsed)
		}
		p := models.Performance{
			ArtistExternalID: strings.TrimSpace(s.Artist.MBID),
			ArtistName:       name,
			Date:             date,
		}
		if s.Tour != nil {
			p.EventName = strings.TrimSpace(s.Tour.Name)
		}
		out = append(out, p)

		if n := s.songCount(); n > longestCount {
			longest, longestCount, tie = len(out)-1, n, false
		} else if n > 0 && n == longestCount {
			tie = true
		}
	}
	if longest >= 0 && !tie {
		out[longest].IsHeadliner = true
	}
	return out
}
