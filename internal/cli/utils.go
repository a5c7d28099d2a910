// Package cli provides CLI utilities for Shirabe.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (engine: %s)\n\n",
		response.Total, response.QueryTime, response.Engine)
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
}

func writeOneResult(w io.Writer, rank int, result models.SearchHit) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", rank, result.Score)
	switch {
	case result.Document != nil:
		fmt.Fprintf(w, "File: %s\n", result.Document.Name)
		fmt.Fprintf(w, "Path: %s\n", result.Document.Path)
	case result.Heading != nil:
		fmt.Fprintf(w, "Heading: %s\n", utils.Truncate(result.Heading.Text, 120))
		fmt.Fprintf(w, "Path: %s:%d\n", result.Heading.Path, result.Heading.Line)
	case result.Command != nil:
		fmt.Fprintf(w, "Command: %s\n", result.Command.Name)
		fmt.Fprintf(w, "ID: %s\n", result.Command.ID)
	}
	fmt.Fprintln(w)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteSuggestions writes a browse listing to w, one entry per line.
func WriteSuggestions(w io.Writer, suggestions []models.Suggestion, format SearchOutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(suggestions)
	}
	for _, s := range suggestions {
		switch {
		case s.Document != nil:
			fmt.Fprintf(w, "%s\t%s\n", s.Document.Name, s.Document.Path)
		case s.Heading != nil:
			fmt.Fprintf(w, "%s\t%s:%d\n", utils.Truncate(s.Heading.Text, 120), s.Heading.Path, s.Heading.Line)
		case s.Command != nil:
			fmt.Fprintf(w, "%s\t%s\n", s.Command.Name, s.Command.ID)
		}
	}
	return nil
}
