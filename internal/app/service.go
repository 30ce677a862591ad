package app

import (
	"context"
	"net/http"
	"time"

	"blocknote/api/internal/accounts"
	"blocknote/api/internal/auth"
	"blocknote/api/internal/config"
	"blocknote/api/internal/search"
	"blocknote/api/internal/store"
	"blocknote/api/internal/util"
)

type Session struct {
	Token     string
	UserID    int64
	Email     string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, int64) (store.User, error)
	CreateUser(context.Context, string, string) (store.User, error)
	UpdateUserEmail(context.Context, int64, string) (store.User, error)
	ListFolders(context.Context, int64) ([]store.Folder, error)
	GetFolder(context.Context, int64, int64) (store.Folder, error)
	InsertFolder(context.Context, int64, string) (store.Folder, error)
	UpdateFolder(context.Context, int64, int64, string) (store.Folder, error)
	DeleteFolder(context.Context, int64, int64) error
	ListLists(context.Context, int64, string) ([]store.List, error)
	GetList(context.Context, int64, int64) (store.List, error)
	InsertList(context.Context, store.List) (store.List, error)
	UpdateList(context.Context, store.List) (store.List, error)
	DeleteList(context.Context, int64, int64) error
	ListBlocks(context.Context, int64, store.BlockFilter) ([]store.Block, error)
	GetBlock(context.Context, int64, int64) (store.Block, error)
	MaxBlockOrder(context.Context, int64) (float64, error)
	InsertBlock(context.Context, store.Block) (store.Block, error)
	UpdateBlock(context.Context, store.Block) (store.Block, error)
	DeleteBlock(context.Context, int64, int64) error
	ListTags(context.Context, int64, string) ([]store.Tag, error)
	GetTag(context.Context, int64, int64) (store.Tag, error)
	InsertTag(context.Context, int64, string) (store.Tag, error)
	UpdateTag(context.Context, int64, int64, string) (store.Tag, error)
	DeleteTag(context.Context, int64, int64) error
	GetTagsByIDs(context.Context, int64, []int64) ([]store.Tag, error)
	ListBlockTags(context.Context, int64) (map[int64][]store.Tag, error)
	ReplaceBlockTags(context.Context, int64, []int64) error
	Ping(ctx context.Context) error
}

type tokenStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	tokens   tokenStore
	accounts *accounts.Service
	search   *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, tokens tokenStore, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		tokens:   tokens,
		accounts: accounts.NewService(dataStore),
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Register(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.Register(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) issueSession(user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.SessionTTL)
	jti := util.NewJTI()

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.tokens.IsTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	return s.tokens.RevokeToken(ctx, session.JTI, session.ExpiresAt)
}

type UserView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func (s *Service) Profile(ctx context.Context, session Session) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return UserView{}, err
	}
	return UserView{ID: user.ID, Email: user.Email}, nil
}

type UpdateProfileInput struct {
	Email OptString `json:"email"`
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (UserView, error) {
	if !input.Email.Set {
		return s.Profile(ctx, session)
	}
	if !input.Email.Valid || input.Email.Value == "" {
		return UserView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email cannot be empty", nil)
	}
	user, err := s.accounts.UpdateEmail(ctx, session.UserID, input.Email.Value)
	if err != nil {
		return UserView{}, err
	}
	return UserView{ID: user.ID, Email: user.Email}, nil
}

// Search runs a cross-entity query scoped to the session's user.
func (s *Service) Search(session Session, text, filterType string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:       text,
		UserID:     session.UserID,
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	})
}
