package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate reports a unique-constraint violation (duplicate email, or a
// duplicate tag name for the same user).
var ErrDuplicate = errors.New("duplicate value")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at, updated_at
	`, email, passwordHash).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserEmail(ctx context.Context, userID int64, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET email=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING id, email, password_hash, created_at, updated_at
	`, userID, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ── Session revocation (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── Folders ──

func (s *PostgresStore) ListFolders(ctx context.Context, userID int64) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM folders
		WHERE user_id=$1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		var item Folder
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, userID, folderID int64) (Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM folders
		WHERE id=$1 AND user_id=$2
	`, folderID, userID).Scan(&item.ID, &item.UserID, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Folder{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertFolder(ctx context.Context, userID int64, title string) (Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO folders (user_id, title)
		VALUES ($1, $2)
		RETURNING id, user_id, title, created_at, updated_at
	`, userID, title).Scan(&item.ID, &item.UserID, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateFolder(ctx context.Context, userID, folderID int64, title string) (Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		UPDATE folders SET title=$3, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING id, user_id, title, created_at, updated_at
	`, folderID, userID, title).Scan(&item.ID, &item.UserID, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Folder{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteFolder(ctx context.Context, userID, folderID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id=$1 AND user_id=$2`, folderID, userID)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return requireRow(result)
}

// ── Lists ──

func (s *PostgresStore) ListLists(ctx context.Context, userID int64, search string) ([]List, error) {
	query := `
		SELECT id, user_id, title, folder_id, sort_order, created_at, updated_at
		FROM lists
		WHERE user_id=$1
	`
	args := []any{userID}
	if search != "" {
		query += ` AND title ILIKE $2`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY sort_order, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		var item List
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.FolderID, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetList(ctx context.Context, userID, listID int64) (List, error) {
	var item List
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, folder_id, sort_order, created_at, updated_at
		FROM lists
		WHERE id=$1 AND user_id=$2
	`, listID, userID).Scan(&item.ID, &item.UserID, &item.Title, &item.FolderID, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return List{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertList(ctx context.Context, item List) (List, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO lists (user_id, title, folder_id, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, item.UserID, item.Title, item.FolderID, item.SortOrder).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return List{}, fmt.Errorf("insert list: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateList(ctx context.Context, item List) (List, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE lists SET title=$3, folder_id=$4, sort_order=$5, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING created_at, updated_at
	`, item.ID, item.UserID, item.Title, item.FolderID, item.SortOrder).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return List{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteList(ctx context.Context, userID, listID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id=$1 AND user_id=$2`, listID, userID)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return requireRow(result)
}

// ── Blocks ──

func (s *PostgresStore) ListBlocks(ctx context.Context, userID int64, filter BlockFilter) ([]Block, error) {
	query, args := buildBlockQuery(userID, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	items := make([]Block, 0)
	for rows.Next() {
		item, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBlock(ctx context.Context, userID, blockID int64) (Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+blockColumns+` FROM blocks WHERE id=$1 AND user_id=$2
	`, blockID, userID)
	return scanBlock(row)
}

// MaxBlockOrder returns the highest order value across every block the user
// owns, zero when the user owns none. The auto-assignment policy deliberately
// spans all of the user's blocks, not just siblings.
func (s *PostgresStore) MaxBlockOrder(ctx context.Context, userID int64) (float64, error) {
	var max float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX("order"), 0) FROM blocks WHERE user_id=$1
	`, userID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max block order: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) InsertBlock(ctx context.Context, item Block) (Block, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO blocks (user_id, list_id, parent_block_id, html, type, "order", due_date, is_done, is_pinned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, item.UserID, item.ListID, item.ParentID, item.HTML, item.Type, item.Order, item.DueDate, item.IsDone, item.IsPinned).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Block{}, fmt.Errorf("insert block: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateBlock(ctx context.Context, item Block) (Block, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE blocks
		SET list_id=$3, parent_block_id=$4, html=$5, type=$6, "order"=$7, due_date=$8, is_done=$9, is_pinned=$10, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
		RETURNING created_at, updated_at
	`, item.ID, item.UserID, item.ListID, item.ParentID, item.HTML, item.Type, item.Order, item.DueDate, item.IsDone, item.IsPinned).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Block{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, userID, blockID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id=$1 AND user_id=$2`, blockID, userID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (Block, error) {
	var item Block
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.ListID,
		&item.ParentID,
		&item.HTML,
		&item.Type,
		&item.Order,
		&item.DueDate,
		&item.IsDone,
		&item.IsPinned,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Block{}, err
	}
	return item, nil
}

// ── Tags ──

func (s *PostgresStore) ListTags(ctx context.Context, userID int64, search string) ([]Tag, error) {
	query := `SELECT id, user_id, name FROM tags WHERE user_id=$1`
	args := []any{userID}
	if search != "" {
		query += ` AND name ILIKE $2`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTag(ctx context.Context, userID, tagID int64) (Tag, error) {
	var item Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name FROM tags WHERE id=$1 AND user_id=$2
	`, tagID, userID).Scan(&item.ID, &item.UserID, &item.Name)
	if err != nil {
		return Tag{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, userID int64, name string) (Tag, error) {
	var item Tag
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (user_id, name)
		VALUES ($1, $2)
		RETURNING id, user_id, name
	`, userID, name).Scan(&item.ID, &item.UserID, &item.Name)
	if isUniqueViolation(err) {
		return Tag{}, ErrDuplicate
	}
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateTag(ctx context.Context, userID, tagID int64, name string) (Tag, error) {
	var item Tag
	err := s.db.QueryRowContext(ctx, `
		UPDATE tags SET name=$3
		WHERE id=$1 AND user_id=$2
		RETURNING id, user_id, name
	`, tagID, userID, name).Scan(&item.ID, &item.UserID, &item.Name)
	if isUniqueViolation(err) {
		return Tag{}, ErrDuplicate
	}
	if err != nil {
		return Tag{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, userID, tagID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id=$1 AND user_id=$2`, tagID, userID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return requireRow(result)
}

// GetTagsByIDs resolves tag ids within the user's tag set. Ids that do not
// resolve are simply absent from the result; the caller decides whether that
// is an error.
func (s *PostgresStore) GetTagsByIDs(ctx context.Context, userID int64, tagIDs []int64) ([]Tag, error) {
	if len(tagIDs) == 0 {
		return []Tag{}, nil
	}
	placeholders := make([]string, len(tagIDs))
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, userID)
	for i, id := range tagIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := `SELECT id, user_id, name FROM tags WHERE user_id=$1 AND id IN (` + strings.Join(placeholders, ", ") + `) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get tags by ids: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0, len(tagIDs))
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

// ListBlockTags loads the tags attached to every block the user owns, keyed
// by block id.
func (s *PostgresStore) ListBlockTags(ctx context.Context, userID int64) (map[int64][]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bt.block_id, t.id, t.user_id, t.name
		FROM block_tags bt
		JOIN tags t ON t.id = bt.tag_id
		JOIN blocks b ON b.id = bt.block_id
		WHERE b.user_id=$1
		ORDER BY t.name, t.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list block tags: %w", err)
	}
	defer rows.Close()

	byBlock := make(map[int64][]Tag)
	for rows.Next() {
		var blockID int64
		var tag Tag
		if err := rows.Scan(&blockID, &tag.ID, &tag.UserID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan block tag: %w", err)
		}
		byBlock[blockID] = append(byBlock[blockID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block tags: %w", err)
	}
	return byBlock, nil
}

// ReplaceBlockTags swaps the full tag set of a block (set-replace, not
// additive). Tag ownership is the caller's responsibility; ids are expected
// to come from GetTagsByIDs.
func (s *PostgresStore) ReplaceBlockTags(ctx context.Context, blockID int64, tagIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tags: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM block_tags WHERE block_id=$1`, blockID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear block tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO block_tags (block_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, blockID, tagID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("attach tag %d: %w", tagID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tags: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
