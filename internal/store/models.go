package store

import "time"

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Folder struct {
	ID        int64
	UserID    int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type List struct {
	ID        int64
	UserID    int64
	Title     string
	FolderID  *int64
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Block is the primary content unit: a note, task, or heading line.
// ParentID points at another block owned by the same user; Order is the
// fractional sibling sort key.
type Block struct {
	ID        int64
	UserID    int64
	ListID    *int64
	ParentID  *int64
	HTML      string
	Type      string
	Order     float64
	DueDate   *time.Time
	IsDone    bool
	IsPinned  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Tag struct {
	ID     int64
	UserID int64
	Name   string
}
