package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgSearch implements Searcher using PostgreSQL ILIKE matching as a fallback.
type PgSearch struct {
	db *sql.DB
}

// NewPgSearch creates a PostgreSQL searcher.
func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across blocks, lists, and tags. Every
// sub-query is scoped to the requesting user.
func (p *PgSearch) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + q.Text + "%"
	args := []any{q.UserID, pattern}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultBlock {
		subQueries = append(subQueries, `
			SELECT 'block'::text AS type, b.id, b.type AS title, b.html AS snippet, b.list_id
			FROM blocks b
			WHERE b.user_id = $1 AND b.html ILIKE $2`)
	}

	if q.FilterType == "" || q.FilterType == ResultList {
		subQueries = append(subQueries, `
			SELECT 'list'::text AS type, l.id, l.title, ''::text AS snippet, NULL::bigint AS list_id
			FROM lists l
			WHERE l.user_id = $1 AND l.title ILIKE $2`)
	}

	if q.FilterType == "" || q.FilterType == ResultTag {
		subQueries = append(subQueries, `
			SELECT 'tag'::text AS type, t.id, t.name AS title, ''::text AS snippet, NULL::bigint AS list_id
			FROM tags t
			WHERE t.user_id = $1 AND t.name ILIKE $2`)
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	query := strings.Join(subQueries, "\nUNION ALL") +
		fmt.Sprintf("\nORDER BY type, id LIMIT %d OFFSET %d", limit, offset)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var rtyp string
		var listID sql.NullInt64
		if err := rows.Scan(&rtyp, &r.ID, &r.Title, &r.Snippet, &listID); err != nil {
			return nil, 0, fmt.Errorf("scan search row: %w", err)
		}
		r.Type = ResultType(rtyp)
		if listID.Valid {
			r.ListID = &listID.Int64
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return results, len(results), nil
}

// LoadAllRecords reads every searchable entity for reindexing into Meilisearch.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]BlockRecord, []ListRecord, []TagRecord, error) {
	blockRows, err := p.db.QueryContext(ctx, `SELECT id, user_id, html, type, list_id FROM blocks`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load blocks: %w", err)
	}
	defer blockRows.Close()

	var blocks []BlockRecord
	for blockRows.Next() {
		var b BlockRecord
		var listID sql.NullInt64
		if err := blockRows.Scan(&b.ID, &b.UserID, &b.HTML, &b.Type, &listID); err != nil {
			return nil, nil, nil, err
		}
		if listID.Valid {
			b.ListID = &listID.Int64
		}
		blocks = append(blocks, b)
	}
	if err := blockRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	listRows, err := p.db.QueryContext(ctx, `SELECT id, user_id, title FROM lists`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load lists: %w", err)
	}
	defer listRows.Close()

	var lists []ListRecord
	for listRows.Next() {
		var l ListRecord
		if err := listRows.Scan(&l.ID, &l.UserID, &l.Title); err != nil {
			return nil, nil, nil, err
		}
		lists = append(lists, l)
	}
	if err := listRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	tagRows, err := p.db.QueryContext(ctx, `SELECT id, user_id, name FROM tags`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load tags: %w", err)
	}
	defer tagRows.Close()

	var tags []TagRecord
	for tagRows.Next() {
		var t TagRecord
		if err := tagRows.Scan(&t.ID, &t.UserID, &t.Name); err != nil {
			return nil, nil, nil, err
		}
		tags = append(tags, t)
	}
	if err := tagRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	return blocks, lists, tags, nil
}
