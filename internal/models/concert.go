package models

import "time"

// MatchedVia names the dimension that made a suggestion plausible.
type MatchedVia string

const (
	MatchedViaArtist   MatchedVia = "artist"
	MatchedViaVenue    MatchedVia = "venue"
	MatchedViaDate     MatchedVia = "date"
	MatchedViaCombined MatchedVia = "combined"
)

// ConcertSnapshot freezes what the candidate looked like when it was suggested.
type ConcertSnapshot struct {
	StartsOn    Date     `json:"startsOn"`
	EndsOn      Date     `json:"endsOn"`
	VenueName   string   `json:"venueName,omitempty"`
	ArtistNames []string `json:"artistNames"`
}

// MatchSuggestion is a ranked candidate concert for a media item.
type MatchSuggestion struct {
	ConcertID  int64           `json:"concertId"`
	Confidence float64         `json:"confidence"`
	MatchedVia MatchedVia      `json:"matchedVia"`
	Concert    ConcertSnapshot `json:"concert"`
}

// Artist is shared reference data, deduplicated by external id.
type Artist struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"externalId,omitempty"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Venue is shared reference data, deduplicated by external id.
type Venue struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"externalId,omitempty"`
	Name       string    `json:"name"`
	City       string    `json:"city,omitempty"`
	VenueType  string    `json:"venueType,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConcertArtist is one billed performer on a concert.
type ConcertArtist struct {
	ArtistID    int64  `json:"artistId"`
	ExternalID  string `json:"externalId,omitempty"`
	Name        string `json:"name"`
	IsHeadliner bool   `json:"isHeadliner"`
	SetOrder    int    `json:"setOrder"`
}

// Concert is a user-owned event spanning one or more days.
type Concert struct {
	ID         int64           `json:"id"`
	OwnerID    int64           `json:"ownerId"`
	VenueID    *int64          `json:"venueId,omitempty"`
	VenueName  string          `json:"venueName,omitempty"`
	Name       string          `json:"name"`
	StartsOn   Date            `json:"startsOn"`
	EndsOn     Date            `json:"endsOn"`
	Verified   bool            `json:"verified"`
	Confidence *float64        `json:"confidence,omitempty"`
	Artists    []ConcertArtist `json:"artists"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ArtistNames lists the billed artists in set order.
func (c *Concert) ArtistNames() []string {
	names := make([]string, 0, len(c.Artists))
	for _, a := range c.Artists {
		names = append(names, a.Name)
	}
	return names
}
