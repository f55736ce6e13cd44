package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sheets/api/internal/auth"
	"sheets/api/internal/authpw"
	"sheets/api/internal/config"
	"sheets/api/internal/export"
	"sheets/api/internal/gitrepo"
	"sheets/api/internal/rbac"
	"sheets/api/internal/search"
	"sheets/api/internal/store"
	"sheets/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	UserName     string
	Groups       []string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Authenticated() bool {
	return s.UserID > 0
}

func (s Session) Viewer() rbac.Viewer {
	return rbac.Viewer{UserID: s.UserID, Groups: s.Groups}
}

type dataStore interface {
	GetUserByID(context.Context, int64) (store.User, error)
	GetGroupByName(context.Context, string) (store.Group, error)
	ListUserGroups(context.Context, int64) ([]store.Group, error)
	GetSheet(context.Context, int64) (store.Sheet, error)
	GetSheetByURL(context.Context, string, int) (store.Sheet, error)
	ListSheetsByStatus(context.Context, []int) ([]store.Sheet, error)
	ListSheetsByOwner(context.Context, int64, int) ([]store.Sheet, error)
	ListTopicSheets(context.Context, int, string) ([]store.Sheet, error)
	InsertSheet(context.Context, store.Sheet) (store.Sheet, error)
	UpdateSheet(context.Context, store.Sheet) (store.Sheet, error)
	AppendSource(context.Context, int64, json.RawMessage) (store.Sheet, error)
	Ping(context.Context) error
}

// sessionStore is implemented by both PostgresStore and session.RedisStore.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, int64, time.Time) error
	LookupRefreshSession(context.Context, string) (int64, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type passwordAuth interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.User, error)
	SignIn(context.Context, authpw.SignInRequest) (store.User, error)
}

type gitService interface {
	CommitSheet(int64, gitrepo.Snapshot, string, string) (store.CommitInfo, error)
	History(int64, int) ([]store.CommitInfo, error)
	Revision(int64, string) (gitrepo.Revision, error)
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexSheet(search.SheetRecord)
}

type exporter interface {
	Export(context.Context, export.Document, export.Format) (*export.Result, error)
}

type artifactStore interface {
	Put(ctx context.Context, sheetID int64, filename, contentType string, data []byte) (string, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords passwordAuth
	git       gitService
	search    searchService
	exporter  exporter
	artifacts artifactStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, gitService *gitrepo.Service, searchService *search.Service) *Service {
	return NewWithSessionStore(cfg, dataStore, dataStore, gitService, searchService)
}

// NewWithSessionStore keeps refresh tokens and revocations in sessions
// instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, gitService *gitrepo.Service, searchService *search.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: authpw.NewService(dataStore),
		git:       gitService,
		search:    searchService,
	}
}

// EnableExports turns on the export endpoint. Results are streamed back in
// the response unless UploadExportsTo is also called.
func (s *Service) EnableExports(exp *export.Service) {
	s.exporter = exp
}

// UploadExportsTo stores export artifacts in artifacts and returns links
// instead of file bodies.
func (s *Service) UploadExportsTo(artifacts artifactStore) {
	s.artifacts = artifacts
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.passwords.SignUp(ctx, req)
	switch {
	case errors.Is(err, authpw.ErrEmailTaken):
		return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrInvalidEmail), errors.Is(err, authpw.ErrWeakPassword):
		return Session{}, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
	case err != nil:
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName(),
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	groups, err := s.groupNames(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName(),
		Groups:       groups,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	groups, err := s.groupNames(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName(),
		Groups:    groups,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) groupNames(ctx context.Context, userID int64) ([]string, error) {
	groups, err := s.store.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, group := range groups {
		names = append(names, group.Name)
	}
	return names, nil
}
