package app

import (
	"context"
	"net/http"
	"time"

	"blocknote/api/internal/search"
	"blocknote/api/internal/store"
)

const dateLayout = "2006-01-02"

type BlockView struct {
	ID          int64       `json:"id"`
	HTML        string      `json:"html"`
	Type        string      `json:"type"`
	Order       float64     `json:"order"`
	ListID      *int64      `json:"list_id"`
	ParentID    *int64      `json:"parent_block"`
	DueDate     *string     `json:"due_date"`
	IsDone      bool        `json:"is_done"`
	IsPinned    bool        `json:"is_pinned"`
	Tags        []TagView   `json:"tags"`
	ChildBlocks []BlockView `json:"child_blocks"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// blockArena holds one user's full block graph so recursive composition
// never issues per-node queries.
type blockArena struct {
	children map[int64][]store.Block
	tags     map[int64][]store.Tag
}

func (s *Service) loadArena(ctx context.Context, userID int64) (blockArena, error) {
	all, err := s.store.ListBlocks(ctx, userID, store.BlockFilter{})
	if err != nil {
		return blockArena{}, err
	}
	tags, err := s.store.ListBlockTags(ctx, userID)
	if err != nil {
		return blockArena{}, err
	}

	children := make(map[int64][]store.Block)
	for _, b := range all {
		if b.ParentID == nil {
			continue
		}
		// Query order is the sibling order, so child slices stay sorted.
		children[*b.ParentID] = append(children[*b.ParentID], b)
	}
	return blockArena{children: children, tags: tags}, nil
}

// composeBlock expands a block and its descendants into a view tree.
// visited guards against parent cycles in stored data.
func composeBlock(a blockArena, b store.Block, visited map[int64]bool) BlockView {
	visited[b.ID] = true
	view := blockView(b, a.tags[b.ID])
	for _, child := range a.children[b.ID] {
		if visited[child.ID] {
			continue
		}
		view.ChildBlocks = append(view.ChildBlocks, composeBlock(a, child, visited))
	}
	return view
}

func blockView(b store.Block, tags []store.Tag) BlockView {
	view := BlockView{
		ID:          b.ID,
		HTML:        b.HTML,
		Type:        b.Type,
		Order:       b.Order,
		ListID:      b.ListID,
		ParentID:    b.ParentID,
		IsDone:      b.IsDone,
		IsPinned:    b.IsPinned,
		Tags:        []TagView{},
		ChildBlocks: []BlockView{},
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	if b.DueDate != nil {
		due := b.DueDate.Format(dateLayout)
		view.DueDate = &due
	}
	for _, t := range tags {
		view.Tags = append(view.Tags, tagView(t))
	}
	return view
}

// ListBlocks returns the user's blocks matching the filter, each expanded
// into its full subtree. Children are expanded regardless of the filter.
func (s *Service) ListBlocks(ctx context.Context, session Session, filter store.BlockFilter) ([]BlockView, error) {
	blocks, err := s.store.ListBlocks(ctx, session.UserID, filter)
	if err != nil {
		return nil, err
	}
	arena, err := s.loadArena(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	views := make([]BlockView, 0, len(blocks))
	for _, b := range blocks {
		views = append(views, composeBlock(arena, b, map[int64]bool{}))
	}
	return views, nil
}

func (s *Service) GetBlock(ctx context.Context, session Session, blockID int64) (BlockView, error) {
	block, err := s.store.GetBlock(ctx, session.UserID, blockID)
	if err != nil {
		return BlockView{}, err
	}
	arena, err := s.loadArena(ctx, session.UserID)
	if err != nil {
		return BlockView{}, err
	}
	return composeBlock(arena, block, map[int64]bool{}), nil
}

type BlockInput struct {
	HTML     OptString    `json:"html"`
	Type     OptString    `json:"type"`
	Order    OptFloat64   `json:"order"`
	ListID   OptInt64     `json:"list_id"`
	ParentID OptInt64     `json:"parent_block"`
	DueDate  OptString    `json:"due_date"`
	IsDone   OptBool      `json:"is_done"`
	IsPinned OptBool      `json:"is_pinned"`
	TagIDs   OptInt64List `json:"tag_ids"`
}

func (s *Service) CreateBlock(ctx context.Context, session Session, input BlockInput) (BlockView, error) {
	item := store.Block{UserID: session.UserID, Type: "text"}

	if input.HTML.Set && input.HTML.Valid {
		item.HTML = input.HTML.Value
	}
	// The type is an open tag the client renders by; anything non-empty is
	// stored as-is.
	if input.Type.Set && input.Type.Valid && input.Type.Value != "" {
		item.Type = input.Type.Value
	}
	if input.ListID.Set && input.ListID.Valid {
		if _, err := s.store.GetList(ctx, session.UserID, input.ListID.Value); err != nil {
			return BlockView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown list", nil)
		}
		item.ListID = &input.ListID.Value
	}
	if input.ParentID.Set && input.ParentID.Valid {
		if _, err := s.store.GetBlock(ctx, session.UserID, input.ParentID.Value); err != nil {
			return BlockView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown parent block", nil)
		}
		item.ParentID = &input.ParentID.Value
	}
	if input.DueDate.Set && input.DueDate.Valid {
		due, err := time.Parse(dateLayout, input.DueDate.Value)
		if err != nil {
			return BlockView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "due_date must be YYYY-MM-DD", nil)
		}
		item.DueDate = &due
	}
	if input.IsDone.Set && input.IsDone.Valid {
		item.IsDone = input.IsDone.Value
	}
	if input.IsPinned.Set && input.IsPinned.Valid {
		item.IsPinned = input.IsPinned.Value
	}

	if input.Order.Set && input.Order.Valid {
		item.Order = input.Order.Value
	} else {
		// New blocks go after everything the user already has, across all
		// lists and nesting levels.
		max, err := s.store.MaxBlockOrder(ctx, session.UserID)
		if err != nil {
			return BlockView{}, err
		}
		item.Order = max + 1
	}

	block, err := s.store.InsertBlock(ctx, item)
	if err != nil {
		return BlockView{}, err
	}

	var tags []store.Tag
	if input.TagIDs.Set {
		tags, err = s.resolveTags(ctx, session.UserID, input.TagIDs.Value)
		if err != nil {
			return BlockView{}, err
		}
		if err := s.store.ReplaceBlockTags(ctx, block.ID, input.TagIDs.Value); err != nil {
			return BlockView{}, err
		}
	}

	s.indexBlock(block)
	return blockView(block, tags), nil
}

func (s *Service) UpdateBlock(ctx context.Context, session Session, blockID int64, input BlockInput) (BlockView, error) {
	item, err := s.store.GetBlock(ctx, session.UserID, blockID)
	if err != nil {
		return BlockView{}, err
	}

	if input.HTML.Set && input.HTML.Valid {
		item.HTML = input.HTML.Value
	}
	if input.Type.Set && input.Type.Valid && input.Type.Value != "" {
		item.Type = input.Type.Value
	}
	if input.Order.Set && input.Order.Valid {
		item.Order = input.Order.Value
	}
	if input.ListID.Set {
		if input.ListID.Valid {
			if _, err := s.store.GetList(ctx, session.UserID, input.ListID.Value); err != nil {
				return BlockView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown list", nil)
			}
			item.ListID = &input.ListID.Value
		} else {
			item.ListID = nil
		}
	}
	if input.ParentID.Set {
		if input.ParentID.Valid {
			if _, err := s.store.GetBlock(ctx, session.UserID, input.ParentID.Value); err != nil {
				return BlockView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown parent block", nil)
			}
			item.ParentID = &input.ParentID.Value
		} else {
			item.ParentID = nil
		}
	}
	if input.DueDate.Set {
		if input.DueDate.Valid {
			due, err := time.Parse(dateLayout, input.DueDate.Value)
			if err != nil {
				return BlockView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "due_date must be YYYY-MM-DD", nil)
			}
			item.DueDate = &due
		} else {
			item.DueDate = nil
		}
	}
	if input.IsDone.Set && input.IsDone.Valid {
		item.IsDone = input.IsDone.Value
	}
	if input.IsPinned.Set && input.IsPinned.Valid {
		item.IsPinned = input.IsPinned.Value
	}

	block, err := s.store.UpdateBlock(ctx, item)
	if err != nil {
		return BlockView{}, err
	}

	// tag_ids replaces the whole set when present, including an empty list.
	// An absent field leaves tags untouched.
	if input.TagIDs.Set {
		if _, err := s.resolveTags(ctx, session.UserID, input.TagIDs.Value); err != nil {
			return BlockView{}, err
		}
		if err := s.store.ReplaceBlockTags(ctx, block.ID, input.TagIDs.Value); err != nil {
			return BlockView{}, err
		}
	}

	s.indexBlock(block)
	return s.GetBlock(ctx, session, block.ID)
}

// DeleteBlock removes a block and, through the parent relation, its whole
// subtree.
func (s *Service) DeleteBlock(ctx context.Context, session Session, blockID int64) error {
	if err := s.store.DeleteBlock(ctx, session.UserID, blockID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteBlock(blockID)
	}
	return nil
}

// resolveTags checks that every requested tag exists and belongs to the
// session user. A miss anywhere rejects the whole request.
func (s *Service) resolveTags(ctx context.Context, userID int64, tagIDs []int64) ([]store.Tag, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	tags, err := s.store.GetTagsByIDs(ctx, userID, tagIDs)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(uniqueIDs(tagIDs)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown tag ids", nil)
	}
	return tags, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Service) indexBlock(b store.Block) {
	if s.search == nil {
		return
	}
	s.search.IndexBlock(search.BlockRecord{
		ID:     b.ID,
		UserID: b.UserID,
		HTML:   b.HTML,
		Type:   b.Type,
		ListID: b.ListID,
	})
}
