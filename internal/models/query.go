package models

import "fmt"

// Mode selects which entity kind a search or suggestion request targets.
type Mode string

const (
	ModeFiles    Mode = "files"
	ModeHeadings Mode = "headings"
	ModeCommands Mode = "commands"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFiles, ModeHeadings, ModeCommands:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown search mode: %q", s)
}

// SearchQuery is a search request against the coordinator.
type SearchQuery struct {
	Mode       Mode     `json:"mode"`
	Query      string   `json:"query"`
	Extensions []string `json:"extensions,omitempty"` // post-filter; empty = all
	Limit      int      `json:"limit,omitempty"`
}

// SearchHit is one ranked result. Exactly one of Document, Heading, Command
// is set, according to Mode.
type SearchHit struct {
	Mode     Mode      `json:"mode"`
	Score    float64   `json:"score"`
	Document *Document `json:"document,omitempty"`
	Heading  *Heading  `json:"heading,omitempty"`
	Command  *Command  `json:"command,omitempty"`
}

// SearchResponse is the full answer to one search request.
type SearchResponse struct {
	Results   []SearchHit `json:"results"`
	Total     int         `json:"total"`
	QueryTime int64       `json:"query_time_ms"`
	Query     string      `json:"query"`
	Engine    string      `json:"engine"`
}

// Suggestion is one entry of an unranked browse listing (empty-query state).
type Suggestion struct {
	Mode     Mode      `json:"mode"`
	Document *Document `json:"document,omitempty"`
	Heading  *Heading  `json:"heading,omitempty"`
	Command  *Command  `json:"command,omitempty"`
}
