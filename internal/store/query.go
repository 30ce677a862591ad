package store

import (
	"fmt"
	"strconv"
	"strings"
)

// BlockFilter carries the optional narrowing parameters for block queries.
// Parent distinguishes an absent parameter (nil) from an explicit empty value
// ("" selects top-level blocks only). ListID keeps the raw query value:
// "none" selects unfiled blocks, an integer selects one list, and anything
// else is dropped without error.
type BlockFilter struct {
	Type   string
	Parent *string
	ListID string
}

const blockColumns = `id, user_id, list_id, parent_block_id, html, type, "order", due_date, is_done, is_pinned, created_at, updated_at`

// buildBlockQuery renders the owner-scoped block SELECT. The owner predicate
// always comes first and cannot be omitted; each optional predicate either
// contributes one AND clause or nothing.
func buildBlockQuery(userID int64, f BlockFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + blockColumns + ` FROM blocks WHERE user_id = $1`)
	args := []any{userID}

	for _, apply := range []func([]any) (string, []any){
		f.typePredicate,
		f.parentPredicate,
		f.listPredicate,
	} {
		cond, next := apply(args)
		if cond == "" {
			continue
		}
		b.WriteString(" AND " + cond)
		args = next
	}

	b.WriteString(` ORDER BY "order", id`)
	return b.String(), args
}

func (f BlockFilter) typePredicate(args []any) (string, []any) {
	if f.Type == "" {
		return "", args
	}
	return fmt.Sprintf("type = $%d", len(args)+1), append(args, f.Type)
}

func (f BlockFilter) parentPredicate(args []any) (string, []any) {
	if f.Parent == nil {
		return "", args
	}
	if *f.Parent == "" {
		return "parent_block_id IS NULL", args
	}
	id, err := strconv.ParseInt(*f.Parent, 10, 64)
	if err != nil {
		return "", args
	}
	return fmt.Sprintf("parent_block_id = $%d", len(args)+1), append(args, id)
}

func (f BlockFilter) listPredicate(args []any) (string, []any) {
	switch f.ListID {
	case "":
		return "", args
	case "none":
		return "list_id IS NULL", args
	}
	id, err := strconv.ParseInt(f.ListID, 10, 64)
	if err != nil {
		// Filter parse failures are ignored, unlike write-path validation.
		return "", args
	}
	return fmt.Sprintf("list_id = $%d", len(args)+1), append(args, id)
}
