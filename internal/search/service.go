package search

import (
	"context"
	"log"
	"strings"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. Either backend may be nil.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text}
	if strings.TrimSpace(q.Text) == "" {
		return empty
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return empty
	}
	results, total, err := s.pgfts.SearchContext(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSheet pushes a sheet to Meilisearch in the background. PG FTS needs
// no indexing since the column is generated.
func (s *Service) IndexSheet(record SheetRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSheet(record); err != nil {
			log.Printf("search: index sheet %d: %v", record.ID, err)
		}
	}()
}

// ReindexAll pushes every record to Meilisearch synchronously and reports
// how many were sent.
func (s *Service) ReindexAll(records []SheetRecord) int {
	if s.meili == nil || !s.meili.Healthy() {
		return 0
	}
	if err := s.meili.IndexSheets(records); err != nil {
		log.Printf("search: reindex sheets: %v", err)
		return 0
	}
	return len(records)
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
