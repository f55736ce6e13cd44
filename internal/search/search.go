package search

import (
	"encoding/json"
	"strings"

	"sheets/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Owner   int64  `json:"owner"`
	Status  int    `json:"status"`
}

// Query describes a search request. ViewerID 0 means anonymous.
type Query struct {
	Text     string
	ViewerID int64
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

var (
	_ Searcher = (*Meili)(nil)
	_ Searcher = (*PgFTS)(nil)
)

// SheetRecord is the data we index for a sheet.
type SheetRecord struct {
	ID     int64    `json:"id"`
	Title  string   `json:"title"`
	Refs   []string `json:"refs"`
	Notes  string   `json:"notes"`
	Owner  int64    `json:"owner"`
	Status int      `json:"status"`
	Group  string   `json:"group"`
}

// RecordFromSheet flattens the sheet's sources into searchable text. Sources
// that are not JSON objects are skipped.
func RecordFromSheet(sheet store.Sheet) SheetRecord {
	record := SheetRecord{
		ID:     sheet.ID,
		Title:  sheet.Title,
		Refs:   []string{},
		Owner:  sheet.Owner,
		Status: sheet.Status,
		Group:  sheet.Group,
	}
	var notes []string
	for _, raw := range sheet.Sources {
		var source struct {
			Ref     string `json:"ref"`
			Comment string `json:"comment"`
			Outside string `json:"outsideText"`
		}
		if err := json.Unmarshal(raw, &source); err != nil {
			continue
		}
		if source.Ref != "" {
			record.Refs = append(record.Refs, source.Ref)
		}
		for _, text := range []string{source.Comment, source.Outside} {
			if strings.TrimSpace(text) != "" {
				notes = append(notes, strings.TrimSpace(text))
			}
		}
	}
	record.Notes = strings.Join(notes, "\n")
	return record
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
