package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxBlocks = "blocknote_blocks"
	idxLists  = "blocknote_lists"
	idxTags   = "blocknote_tags"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns nil if the initial connection fails (caller should proceed without it).
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxBlocks,
			primaryKey: "id",
			filterable: []string{"userId", "blockType", "listId"},
			searchable: []string{"html"},
		},
		{
			uid:        idxLists,
			primaryKey: "id",
			filterable: []string{"userId"},
			searchable: []string{"title"},
		},
		{
			uid:        idxTags,
			primaryKey: "id",
			filterable: []string{"userId"},
			searchable: []string{"name"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
// Every sub-query carries the owner filter.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxBlocks, ResultBlock},
		{idxLists, ResultList},
		{idxTags, ResultTag},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			Filter:                []string{fmt.Sprintf("userId = %d", q.UserID)},
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxBlocks:
		return ResultBlock
	case idxLists:
		return ResultList
	case idxTags:
		return ResultTag
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeInt(hit, "id")

	switch rtyp {
	case ResultBlock:
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "html"), decodeString(hit, "html"))
		r.Title = decodeString(hit, "blockType")
		if listID := decodeInt(hit, "listId"); listID != 0 {
			r.ListID = &listID
		}
	case ResultList:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	case ResultTag:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexBlock adds or updates a block in the search index.
func (m *Meili) IndexBlock(b BlockRecord) error {
	_, err := m.client.Index(idxBlocks).AddDocuments([]BlockRecord{b}, nil)
	return err
}

// IndexList adds or updates a list in the search index.
func (m *Meili) IndexList(l ListRecord) error {
	_, err := m.client.Index(idxLists).AddDocuments([]ListRecord{l}, nil)
	return err
}

// IndexTag adds or updates a tag in the search index.
func (m *Meili) IndexTag(t TagRecord) error {
	_, err := m.client.Index(idxTags).AddDocuments([]TagRecord{t}, nil)
	return err
}

// DeleteBlock removes a block from the search index.
func (m *Meili) DeleteBlock(id int64) error {
	_, err := m.client.Index(idxBlocks).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// DeleteList removes a list from the search index.
func (m *Meili) DeleteList(id int64) error {
	_, err := m.client.Index(idxLists).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// DeleteTag removes a tag from the search index.
func (m *Meili) DeleteTag(id int64) error {
	_, err := m.client.Index(idxTags).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// IndexBlocks bulk-indexes blocks.
func (m *Meili) IndexBlocks(blocks []BlockRecord) error {
	if len(blocks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxBlocks).AddDocuments(blocks, nil)
	return err
}

// IndexLists bulk-indexes lists.
func (m *Meili) IndexLists(lists []ListRecord) error {
	if len(lists) == 0 {
		return nil
	}
	_, err := m.client.Index(idxLists).AddDocuments(lists, nil)
	return err
}

// IndexTags bulk-indexes tags.
func (m *Meili) IndexTags(tags []TagRecord) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTags).AddDocuments(tags, nil)
	return err
}
