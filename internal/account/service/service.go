package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"formalitys/internal/account/models"
	"formalitys/internal/account/store"
	"formalitys/internal/jwttoken"
	dErrors "formalitys/pkg/domain-errors"
	"formalitys/pkg/platform/sentinel"
	"formalitys/pkg/requestcontext"
	"formalitys/pkg/secrets"
)

const (
	accessTokenTTL    = 24 * time.Hour
	minPasswordLength = 8
)

// Service handles account registration and login.
type Service struct {
	users  store.Store
	tokens *jwttoken.Service
	logger *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(users store.Store, tokens *jwttoken.Service, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an owner account. Admin accounts are seeded at deploy time,
// never self-registered.
func (s *Service) Register(ctx context.Context, email string, password string) (*models.User, error) {
	if len(password) < minPasswordLength {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, err
	}
	user, err := models.NewUser(uuid.New(), email, hash, models.RoleOwner, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an account with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "account registered", "user_id", user.ID)
	}
	return user, nil
}

// LoginResult carries the signed access token and its subject.
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login verifies credentials and issues an access token. Unknown emails and
// wrong passwords both answer invalid credentials.
func (s *Service) Login(ctx context.Context, email string, password string) (*LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		return nil, err
	}
	token, err := s.tokens.GenerateAccessToken(user.ID, user.Role, accessTokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

// SeedAdmin ensures an admin account exists with the given credentials. Used
// at startup when FORMALITYS_ADMIN_EMAIL is configured; an existing account is
// left untouched.
func (s *Service) SeedAdmin(ctx context.Context, email string, password string) error {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up admin account")
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return err
	}
	admin, err := models.NewUser(uuid.New(), email, hash, models.RoleAdmin, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed admin account")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "admin account seeded", "user_id", admin.ID)
	}
	return nil
}
