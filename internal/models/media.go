package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MediaKind distinguishes photos from videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Valid reports whether k is a known kind.
func (k MediaKind) Valid() bool {
	return k == MediaImage || k == MediaVideo
}

// AnalysisStatus is the persisted discriminator of an AnalysisState.
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// AnalysisState is one of Pending, Processing, Completed or Failed.
type AnalysisState interface {
	Status() AnalysisStatus
	isAnalysisState()
}

// Pending is the state of a freshly uploaded item.
type Pending struct{}

// Processing means a worker owns the item for the given run.
type Processing struct {
	RunID     string
	StartedAt time.Time
}

// Completed carries the classifier result.
type Completed struct {
	Result      AnalysisResult
	CompletedAt time.Time
}

// Failed carries the structured failure of the last run.
type Failed struct {
	Error    AnalysisError
	FailedAt time.Time
}

func (Pending) Status() AnalysisStatus    { return StatusPending }
func (Processing) Status() AnalysisStatus { return StatusProcessing }
func (Completed) Status() AnalysisStatus  { return StatusCompleted }
func (Failed) Status() AnalysisStatus     { return StatusFailed }

func (Pending) isAnalysisState()    {}
func (Processing) isAnalysisState() {}
func (Completed) isAnalysisState()  {}
func (Failed) isAnalysisState()     {}

// ArtistGuess is the classifier's best guess at the performer.
type ArtistGuess struct {
	Name       string   `json:"name"`
	ExternalID string   `json:"externalId,omitempty"`
	Confidence float64  `json:"confidence"`
	Clues      []string `json:"clues,omitempty"`
}

// VenueGuess is the classifier's best guess at the location.
type VenueGuess struct {
	Name       string   `json:"name"`
	City       string   `json:"city,omitempty"`
	Type       string   `json:"type,omitempty"`
	Confidence float64  `json:"confidence"`
	Clues      []string `json:"clues,omitempty"`
}

// AnalysisResult is the structured output of the content classifier.
type AnalysisResult struct {
	Artist            ArtistGuess `json:"artist"`
	Venue             VenueGuess  `json:"venue"`
	EstimatedDate     *Date       `json:"estimatedDate,omitempty"`
	OverallConfidence float64     `json:"overallConfidence"`
	Reasoning         string      `json:"reasoning,omitempty"`
}

// AnalysisError describes why the last analysis run failed.
type AnalysisError struct {
	Reason    string `json:"reason"`
	Message   string `json:"message,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// Location is where the media was captured.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MediaItem is one uploaded photo or video.
type MediaItem struct {
	ID         int64
	OwnerID    int64
	Kind       MediaKind
	StorageRef string
	CapturedAt *time.Time
	Location   *Location
	Analysis   AnalysisState
	// MatchSuggestions is nil until ranking has run; an empty slice means no candidates.
	MatchSuggestions []MatchSuggestion
	ConcertID        *int64
	ReviewedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Status is shorthand for the status of the current analysis state.
func (m *MediaItem) Status() AnalysisStatus {
	if m.Analysis == nil {
		return StatusPending
	}
	return m.Analysis.Status()
}

type mediaItemJSON struct {
	ID               int64             `json:"id"`
	OwnerID          int64             `json:"ownerId"`
	Kind             MediaKind         `json:"kind"`
	StorageRef       string            `json:"storageRef"`
	CapturedAt       *time.Time        `json:"capturedAt,omitempty"`
	Location         *Location         `json:"location,omitempty"`
	AnalysisStatus   AnalysisStatus    `json:"analysisStatus"`
	AnalysisResult   *AnalysisResult   `json:"analysisResult,omitempty"`
	AnalysisError    *AnalysisError    `json:"analysisError,omitempty"`
	MatchSuggestions []MatchSuggestion `json:"matchSuggestions"`
	ConcertID        *int64            `json:"concertId,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// MarshalJSON flattens the analysis state into the wire shape the clients poll.
func (m MediaItem) MarshalJSON() ([]byte, error) {
	out := mediaItemJSON{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Kind:             m.Kind,
		StorageRef:       m.StorageRef,
		CapturedAt:       m.CapturedAt,
		Location:         m.Location,
		AnalysisStatus:   m.Status(),
		MatchSuggestions: m.MatchSuggestions,
		ConcertID:        m.ConcertID,
		ReviewedAt:       m.ReviewedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	switch st := m.Analysis.(type) {
	case Completed:
		result := st.Result
		out.AnalysisResult = &result
	case Failed:
		failure := st.Error
		out.AnalysisError = &failure
	}
	return json.Marshal(out)
}

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t, read in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the signed number of days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) > len(dateLayout) {
		// tolerate full timestamps from upstream services
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", raw, err)
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
