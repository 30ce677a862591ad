package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"blocknote/api/internal/search"
	"blocknote/api/internal/store"
)

type TagView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FolderRef is the nested folder shape embedded in list reads. Writes keep
// addressing folders through the flat folder_id field.
type FolderRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type ListView struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	FolderID  *int64     `json:"folder_id"`
	Folder    *FolderRef `json:"folder"`
	SortOrder int        `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type FolderView struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Lists     []ListView `json:"lists"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func tagView(t store.Tag) TagView {
	return TagView{ID: t.ID, Name: t.Name}
}

func listView(l store.List, folders map[int64]store.Folder) ListView {
	view := ListView{
		ID:        l.ID,
		Title:     l.Title,
		FolderID:  l.FolderID,
		SortOrder: l.SortOrder,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	if l.FolderID != nil {
		if f, ok := folders[*l.FolderID]; ok {
			view.Folder = &FolderRef{ID: f.ID, Title: f.Title}
		}
	}
	return view
}

// folderIndex loads the user's folders keyed by id, for expanding the
// nested folder on list reads.
func (s *Service) folderIndex(ctx context.Context, userID int64) (map[int64]store.Folder, error) {
	folders, err := s.store.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	return byID, nil
}

func (s *Service) resolveListView(ctx context.Context, userID int64, l store.List) (ListView, error) {
	if l.FolderID == nil {
		return listView(l, nil), nil
	}
	folders, err := s.folderIndex(ctx, userID)
	if err != nil {
		return ListView{}, err
	}
	return listView(l, folders), nil
}

func folderView(f store.Folder, lists []ListView) FolderView {
	if lists == nil {
		lists = []ListView{}
	}
	return FolderView{
		ID:        f.ID,
		Title:     f.Title,
		Lists:     lists,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ListFolders returns the session user's folders with their lists nested.
func (s *Service) ListFolders(ctx context.Context, session Session) ([]FolderView, error) {
	folders, err := s.store.ListFolders(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	lists, err := s.store.ListLists(ctx, session.UserID, "")
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]store.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	byFolder := make(map[int64][]ListView)
	for _, l := range lists {
		if l.FolderID == nil {
			continue
		}
		byFolder[*l.FolderID] = append(byFolder[*l.FolderID], listView(l, byID))
	}

	views := make([]FolderView, 0, len(folders))
	for _, f := range folders {
		views = append(views, folderView(f, byFolder[f.ID]))
	}
	return views, nil
}

func (s *Service) GetFolder(ctx context.Context, session Session, folderID int64) (FolderView, error) {
	folder, err := s.store.GetFolder(ctx, session.UserID, folderID)
	if err != nil {
		return FolderView{}, err
	}
	lists, err := s.store.ListLists(ctx, session.UserID, "")
	if err != nil {
		return FolderView{}, err
	}
	byID := map[int64]store.Folder{folder.ID: folder}
	var nested []ListView
	for _, l := range lists {
		if l.FolderID != nil && *l.FolderID == folder.ID {
			nested = append(nested, listView(l, byID))
		}
	}
	return folderView(folder, nested), nil
}

type FolderInput struct {
	Title OptString `json:"title"`
}

func (s *Service) CreateFolder(ctx context.Context, session Session, input FolderInput) (FolderView, error) {
	title := strings.TrimSpace(input.Title.Value)
	if title == "" {
		return FolderView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	folder, err := s.store.InsertFolder(ctx, session.UserID, title)
	if err != nil {
		return FolderView{}, err
	}
	return folderView(folder, nil), nil
}

func (s *Service) UpdateFolder(ctx context.Context, session Session, folderID int64, input FolderInput) (FolderView, error) {
	if !input.Title.Set {
		return s.GetFolder(ctx, session, folderID)
	}
	title := strings.TrimSpace(input.Title.Value)
	if title == "" {
		return FolderView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	folder, err := s.store.UpdateFolder(ctx, session.UserID, folderID, title)
	if err != nil {
		return FolderView{}, err
	}
	return s.GetFolder(ctx, session, folder.ID)
}

// DeleteFolder removes a folder. Lists inside it survive and become unfiled.
func (s *Service) DeleteFolder(ctx context.Context, session Session, folderID int64) error {
	return s.store.DeleteFolder(ctx, session.UserID, folderID)
}

func (s *Service) ListLists(ctx context.Context, session Session, searchText string) ([]ListView, error) {
	lists, err := s.store.ListLists(ctx, session.UserID, searchText)
	if err != nil {
		return nil, err
	}
	folders, err := s.folderIndex(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]ListView, 0, len(lists))
	for _, l := range lists {
		views = append(views, listView(l, folders))
	}
	return views, nil
}

func (s *Service) GetList(ctx context.Context, session Session, listID int64) (ListView, error) {
	list, err := s.store.GetList(ctx, session.UserID, listID)
	if err != nil {
		return ListView{}, err
	}
	return s.resolveListView(ctx, session.UserID, list)
}

type ListInput struct {
	Title     OptString `json:"title"`
	FolderID  OptInt64  `json:"folder_id"`
	SortOrder OptInt64  `json:"sort_order"`
}

func (s *Service) CreateList(ctx context.Context, session Session, input ListInput) (ListView, error) {
	title := strings.TrimSpace(input.Title.Value)
	if title == "" {
		return ListView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	item := store.List{UserID: session.UserID, Title: title}
	if input.FolderID.Set && input.FolderID.Valid {
		if _, err := s.store.GetFolder(ctx, session.UserID, input.FolderID.Value); err != nil {
			return ListView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown folder", nil)
		}
		item.FolderID = &input.FolderID.Value
	}
	if input.SortOrder.Set && input.SortOrder.Valid {
		item.SortOrder = int(input.SortOrder.Value)
	}

	list, err := s.store.InsertList(ctx, item)
	if err != nil {
		return ListView{}, err
	}
	s.indexList(list)
	return s.resolveListView(ctx, session.UserID, list)
}

func (s *Service) UpdateList(ctx context.Context, session Session, listID int64, input ListInput) (ListView, error) {
	item, err := s.store.GetList(ctx, session.UserID, listID)
	if err != nil {
		return ListView{}, err
	}

	if input.Title.Set {
		title := strings.TrimSpace(input.Title.Value)
		if title == "" {
			return ListView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		}
		item.Title = title
	}
	if input.FolderID.Set {
		if input.FolderID.Valid {
			if _, err := s.store.GetFolder(ctx, session.UserID, input.FolderID.Value); err != nil {
				return ListView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown folder", nil)
			}
			item.FolderID = &input.FolderID.Value
		} else {
			item.FolderID = nil
		}
	}
	if input.SortOrder.Set && input.SortOrder.Valid {
		item.SortOrder = int(input.SortOrder.Value)
	}

	list, err := s.store.UpdateList(ctx, item)
	if err != nil {
		return ListView{}, err
	}
	s.indexList(list)
	return s.resolveListView(ctx, session.UserID, list)
}

// DeleteList removes a list together with every block in it.
func (s *Service) DeleteList(ctx context.Context, session Session, listID int64) error {
	if err := s.store.DeleteList(ctx, session.UserID, listID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteList(listID)
	}
	return nil
}

func (s *Service) ListTags(ctx context.Context, session Session, searchText string) ([]TagView, error) {
	tags, err := s.store.ListTags(ctx, session.UserID, searchText)
	if err != nil {
		return nil, err
	}
	views := make([]TagView, 0, len(tags))
	for _, t := range tags {
		views = append(views, tagView(t))
	}
	return views, nil
}

func (s *Service) GetTag(ctx context.Context, session Session, tagID int64) (TagView, error) {
	tag, err := s.store.GetTag(ctx, session.UserID, tagID)
	if err != nil {
		return TagView{}, err
	}
	return tagView(tag), nil
}

type TagInput struct {
	Name OptString `json:"name"`
}

func (s *Service) CreateTag(ctx context.Context, session Session, input TagInput) (TagView, error) {
	name := strings.TrimSpace(input.Name.Value)
	if name == "" {
		return TagView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	tag, err := s.store.InsertTag(ctx, session.UserID, name)
	if err != nil {
		return TagView{}, err
	}
	s.indexTag(tag)
	return tagView(tag), nil
}

func (s *Service) UpdateTag(ctx context.Context, session Session, tagID int64, input TagInput) (TagView, error) {
	if !input.Name.Set {
		tag, err := s.store.GetTag(ctx, session.UserID, tagID)
		if err != nil {
			return TagView{}, err
		}
		return tagView(tag), nil
	}
	name := strings.TrimSpace(input.Name.Value)
	if name == "" {
		return TagView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	tag, err := s.store.UpdateTag(ctx, session.UserID, tagID, name)
	if err != nil {
		return TagView{}, err
	}
	s.indexTag(tag)
	return tagView(tag), nil
}

// DeleteTag removes a tag. Blocks that carried it keep existing untagged.
func (s *Service) DeleteTag(ctx context.Context, session Session, tagID int64) error {
	if err := s.store.DeleteTag(ctx, session.UserID, tagID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteTag(tagID)
	}
	return nil
}

func (s *Service) indexList(l store.List) {
	if s.search == nil {
		return
	}
	s.search.IndexList(search.ListRecord{ID: l.ID, UserID: l.UserID, Title: l.Title})
}

func (s *Service) indexTag(t store.Tag) {
	if s.search == nil {
		return
	}
	s.search.IndexTag(search.TagRecord{ID: t.ID, UserID: t.UserID, Name: t.Name})
}
