package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"blocknote/api/internal/store"
)

func TestCreateBlockAssignsNextOrder(t *testing.T) {
	var inserted store.Block
	fs := &fakeStore{
		maxBlockOrderFn: func(context.Context, int64) (float64, error) { return 41.5, nil },
		insertBlockFn: func(_ context.Context, item store.Block) (store.Block, error) {
			inserted = item
			item.ID = 9
			return item, nil
		},
	}
	svc := newTestService(fs)

	view, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
		HTML: OptString{Set: true, Valid: true, Value: "<p>hi</p>"},
	})
	if err != nil {
		t.Fatalf("CreateBlock failed: %v", err)
	}
	if inserted.Order != 42.5 {
		t.Fatalf("order = %v, want 42.5", inserted.Order)
	}
	if view.Type != "text" {
		t.Fatalf("type = %q, want default text", view.Type)
	}
}

func TestCreateBlockKeepsExplicitOrder(t *testing.T) {
	var inserted store.Block
	maxCalled := false
	fs := &fakeStore{
		maxBlockOrderFn: func(context.Context, int64) (float64, error) {
			maxCalled = true
			return 100, nil
		},
		insertBlockFn: func(_ context.Context, item store.Block) (store.Block, error) {
			inserted = item
			item.ID = 9
			return item, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
		Order: OptFloat64{Set: true, Valid: true, Value: 2.25},
	})
	if err != nil {
		t.Fatalf("CreateBlock failed: %v", err)
	}
	if inserted.Order != 2.25 {
		t.Fatalf("order = %v, want 2.25", inserted.Order)
	}
	if maxCalled {
		t.Fatal("explicit order should not consult the max")
	}
}

func TestCreateBlockStoresAnyTypeTag(t *testing.T) {
	var inserted store.Block
	fs := &fakeStore{
		insertBlockFn: func(_ context.Context, item store.Block) (store.Block, error) {
			inserted = item
			item.ID = 1
			return item, nil
		},
	}
	svc := newTestService(fs)

	for _, typ := range []string{"task-done", "heading2", "quote", "divider"} {
		_, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
			Type: OptString{Set: true, Valid: true, Value: typ},
		})
		if err != nil {
			t.Fatalf("CreateBlock(%q) failed: %v", typ, err)
		}
		if inserted.Type != typ {
			t.Fatalf("stored type = %q, want %q", inserted.Type, typ)
		}
	}
}

func TestUpdateBlockTogglesTaskType(t *testing.T) {
	var saved store.Block
	fs := &fakeStore{
		getBlockFn: func(context.Context, int64, int64) (store.Block, error) {
			return store.Block{ID: 4, UserID: 1, Type: "task"}, nil
		},
		updateBlockFn: func(_ context.Context, item store.Block) (store.Block, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateBlock(context.Background(), testSession(), 4, BlockInput{
		Type:   OptString{Set: true, Valid: true, Value: "task-done"},
		IsDone: OptBool{Set: true, Valid: true, Value: true},
	})
	if err != nil {
		t.Fatalf("UpdateBlock failed: %v", err)
	}
	if saved.Type != "task-done" || !saved.IsDone {
		t.Fatalf("saved block = %+v, want type task-done and done", saved)
	}
}

func TestCreateBlockRejectsUnknownList(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
		ListID: OptInt64{Set: true, Valid: true, Value: 3},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("CreateBlock error = %v, want validation error", err)
	}
}

func TestCreateBlockRejectsUnknownParent(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
		ParentID: OptInt64{Set: true, Valid: true, Value: 3},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("CreateBlock error = %v, want validation error", err)
	}
}

func TestCreateBlockRejectsUnknownTags(t *testing.T) {
	replaceCalled := false
	fs := &fakeStore{
		getTagsByIDsFn: func(context.Context, int64, []int64) ([]store.Tag, error) {
			return []store.Tag{{ID: 1, UserID: 1}}, nil
		},
		replaceBlockTagsFn: func(context.Context, int64, []int64) error {
			replaceCalled = true
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
		TagIDs: OptInt64List{Set: true, Valid: true, Value: []int64{1, 2}},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("CreateBlock error = %v, want validation error", err)
	}
	if replaceCalled {
		t.Fatal("tags must not be written when resolution fails")
	}
}

func TestCreateBlockRejectsBadDueDate(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateBlock(context.Background(), testSession(), BlockInput{
		DueDate: OptString{Set: true, Valid: true, Value: "next tuesday"},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("CreateBlock error = %v, want validation error", err)
	}
}

func existingBlock() store.Block {
	return store.Block{ID: 7, UserID: 1, HTML: "<p>old</p>", Type: "text", Order: 3}
}

func TestUpdateBlockTagOmitLeavesTagsUntouched(t *testing.T) {
	replaceCalled := false
	fs := &fakeStore{
		getBlockFn: func(context.Context, int64, int64) (store.Block, error) {
			return existingBlock(), nil
		},
		replaceBlockTagsFn: func(context.Context, int64, []int64) error {
			replaceCalled = true
			return nil
		},
	}
	svc := newTestService(fs)

	var input BlockInput
	if err := json.Unmarshal([]byte(`{"html":"<p>new</p>"}`), &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if _, err := svc.UpdateBlock(context.Background(), testSession(), 7, input); err != nil {
		t.Fatalf("UpdateBlock failed: %v", err)
	}
	if replaceCalled {
		t.Fatal("absent tag_ids must leave tags untouched")
	}
}

func TestUpdateBlockEmptyTagListClearsTags(t *testing.T) {
	var replacedWith []int64
	replaceCalled := false
	fs := &fakeStore{
		getBlockFn: func(context.Context, int64, int64) (store.Block, error) {
			return existingBlock(), nil
		},
		replaceBlockTagsFn: func(_ context.Context, _ int64, tagIDs []int64) error {
			replaceCalled = true
			replacedWith = tagIDs
			return nil
		},
	}
	svc := newTestService(fs)

	var input BlockInput
	if err := json.Unmarshal([]byte(`{"tag_ids":[]}`), &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if _, err := svc.UpdateBlock(context.Background(), testSession(), 7, input); err != nil {
		t.Fatalf("UpdateBlock failed: %v", err)
	}
	if !replaceCalled {
		t.Fatal("an explicit empty tag_ids must clear the set")
	}
	if len(replacedWith) != 0 {
		t.Fatalf("replaced with %v, want empty", replacedWith)
	}
}

func TestUpdateBlockClearsParentOnNull(t *testing.T) {
	parentID := int64(3)
	var saved store.Block
	fs := &fakeStore{
		getBlockFn: func(_ context.Context, _ int64, blockID int64) (store.Block, error) {
			b := existingBlock()
			b.ID = blockID
			b.ParentID = &parentID
			return b, nil
		},
		updateBlockFn: func(_ context.Context, item store.Block) (store.Block, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)

	var input BlockInput
	if err := json.Unmarshal([]byte(`{"parent_block":null}`), &input); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if _, err := svc.UpdateBlock(context.Background(), testSession(), 7, input); err != nil {
		t.Fatalf("UpdateBlock failed: %v", err)
	}
	if saved.ParentID != nil {
		t.Fatal("parent should have been cleared")
	}
}

func TestListBlocksComposesTree(t *testing.T) {
	rootID := int64(1)
	childID := int64(2)
	grandchildID := int64(3)
	child := store.Block{ID: childID, UserID: 1, HTML: "child", Type: "text", Order: 2, ParentID: &rootID}
	grandchild := store.Block{ID: grandchildID, UserID: 1, HTML: "grandchild", Type: "text", Order: 3, ParentID: &childID}
	root := store.Block{ID: rootID, UserID: 1, HTML: "root", Type: "text", Order: 1}

	fs := &fakeStore{
		listBlocksFn: func(_ context.Context, _ int64, filter store.BlockFilter) ([]store.Block, error) {
			if filter.Parent != nil && *filter.Parent == "" {
				return []store.Block{root}, nil
			}
			return []store.Block{root, child, grandchild}, nil
		},
		listBlockTagsFn: func(context.Context, int64) (map[int64][]store.Tag, error) {
			return map[int64][]store.Tag{
				childID: {{ID: 5, UserID: 1, Name: "urgent"}},
			}, nil
		},
	}
	svc := newTestService(fs)

	roots := ""
	views, err := svc.ListBlocks(context.Background(), testSession(), store.BlockFilter{Parent: &roots})
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 top-level block, got %d", len(views))
	}
	if len(views[0].ChildBlocks) != 1 || views[0].ChildBlocks[0].ID != childID {
		t.Fatalf("unexpected children: %+v", views[0].ChildBlocks)
	}
	nested := views[0].ChildBlocks[0]
	if len(nested.Tags) != 1 || nested.Tags[0].Name != "urgent" {
		t.Fatalf("child tags = %+v", nested.Tags)
	}
	if len(nested.ChildBlocks) != 1 || nested.ChildBlocks[0].ID != grandchildID {
		t.Fatalf("grandchildren = %+v", nested.ChildBlocks)
	}
}

func TestListBlocksSurvivesParentCycle(t *testing.T) {
	aID, bID := int64(1), int64(2)
	a := store.Block{ID: aID, UserID: 1, Type: "text", Order: 1, ParentID: &bID}
	b := store.Block{ID: bID, UserID: 1, Type: "text", Order: 2, ParentID: &aID}

	fs := &fakeStore{
		listBlocksFn: func(context.Context, int64, store.BlockFilter) ([]store.Block, error) {
			return []store.Block{a, b}, nil
		},
	}
	svc := newTestService(fs)

	views, err := svc.ListBlocks(context.Background(), testSession(), store.BlockFilter{})
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(views))
	}
	// Each traversal stops where it started instead of recursing forever.
	if len(views[0].ChildBlocks) != 1 || len(views[0].ChildBlocks[0].ChildBlocks) != 0 {
		t.Fatalf("cycle not cut off: %+v", views[0])
	}
}

func TestGetBlockUnknownIs404(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.GetBlock(context.Background(), testSession(), 404)
	status, _, _, _ := mapError(err)
	if status != 404 {
		t.Fatalf("status = %d, want 404", status)
	}
}
