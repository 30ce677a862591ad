package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to ILIKE
// matching in Postgres.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBlock indexes a block (fire-and-forget to Meilisearch).
func (s *Service) IndexBlock(b BlockRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexBlock(b); err != nil {
			log.Printf("search: index block %d: %v", b.ID, err)
		}
	}()
}

// IndexList indexes a list (fire-and-forget to Meilisearch).
func (s *Service) IndexList(l ListRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexList(l); err != nil {
			log.Printf("search: index list %d: %v", l.ID, err)
		}
	}()
}

// IndexTag indexes a tag (fire-and-forget to Meilisearch).
func (s *Service) IndexTag(t TagRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTag(t); err != nil {
			log.Printf("search: index tag %d: %v", t.ID, err)
		}
	}()
}

// DeleteBlock removes a block from the search index (fire-and-forget).
func (s *Service) DeleteBlock(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBlock(id); err != nil {
			log.Printf("search: delete block %d: %v", id, err)
		}
	}()
}

// DeleteList removes a list from the search index (fire-and-forget).
func (s *Service) DeleteList(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteList(id); err != nil {
			log.Printf("search: delete list %d: %v", id, err)
		}
	}()
}

// DeleteTag removes a tag from the search index (fire-and-forget).
func (s *Service) DeleteTag(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTag(id); err != nil {
			log.Printf("search: delete tag %d: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	blocks, lists, tags, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexBlocks(blocks); err != nil {
		log.Printf("search: reindex blocks: %v", err)
	}
	if err := s.meili.IndexLists(lists); err != nil {
		log.Printf("search: reindex lists: %v", err)
	}
	if err := s.meili.IndexTags(tags); err != nil {
		log.Printf("search: reindex tags: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
