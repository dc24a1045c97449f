package models

// LineupArtist is one performer found by the lineup resolver.
type LineupArtist struct {
	ExternalID       string `json:"externalId,omitempty"`
	Name             string `json:"name"`
	IsHeadliner      bool   `json:"isHeadliner"`
	PerformanceDates []Date `json:"performanceDates,omitempty"`
}

// EventDay is one calendar day of an event at a venue.
type EventDay struct {
	Date         Date   `json:"date"`
	DisplayLabel string `json:"displayLabel"`
	ArtistCount  int    `json:"artistCount"`
}

// LineupSuggestionResult is the resolved lineup for a venue around a date.
type LineupSuggestionResult struct {
	Artists     []LineupArtist `json:"artists"`
	EventName   string         `json:"eventName,omitempty"`
	QueriedDate Date           `json:"queriedDate"`
	EventDays   []EventDay     `json:"eventDays"`
	IsMultiDay  bool           `json:"isMultiDay"`
}

// Performance is one artist playing a venue on a day, as reported by a setlist source.
type Performance struct {
	ArtistExternalID string `json:"artistExternalId,omitempty"`
	ArtistName       string `json:"artistName"`
	Date             Date   `json:"date"`
	IsHeadliner      bool   `json:"isHeadliner,omitempty"`
	EventName        string `json:"eventName,omitempty"`
}
