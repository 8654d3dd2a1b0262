package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/auth"
	"github.com/recipebook/recipebook/internal/metrics"
	"github.com/recipebook/recipebook/internal/model"
	"github.com/recipebook/recipebook/internal/repository"
	"github.com/recipebook/recipebook/internal/validation"
)

// UserStore is the user persistence used by UserService.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context, page repository.Page) ([]*model.User, error)
}

// TokenSigner issues session tokens.
type TokenSigner interface {
	Sign(userID int64, username string) (string, *model.Identity, error)
}

// UserService handles registration, login and user lookups.
type UserService struct {
	users    UserStore
	hasher   auth.PasswordHasher
	tokens   TokenSigner
	validate *validation.Validator
	store    storeCaller
	metrics  metrics.Recorder
	logger   *slog.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

// NewUserService creates a new UserService.
func NewUserService(
	users UserStore,
	hasher auth.PasswordHasher,
	tokens TokenSigner,
	storeTimeout time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *UserService {
	store := newStoreCaller(storeTimeout, recorder)
	return &UserService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		validate: validation.New(),
		store:    store,
		metrics:  store.metrics,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=3,max=32,username"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,max=128,strongpassword"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginInput defines input for logging in.
type LoginInput struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
}

// Session is the result of a successful login.
type Session struct {
	Token    string
	Identity *model.Identity
}

// Register creates a new account.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:       input.Username,
		Email:          input.Email,
		PasswordDigest: digest,
	}

	err = s.store.call(ctx, metrics.StoreDatabase, "create_user", func(ctx context.Context) error {
		return s.users.CreateUser(ctx, user)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, apperror.New(apperror.KindUsernameTaken, "username is already taken")
		case errors.Is(err, repository.ErrEmailExists):
			return nil, apperror.New(apperror.KindEmailTaken, "email is already registered")
		default:
			return nil, storeError(apperror.KindDbFailure, "could not create account", err)
		}
	}

	s.metrics.IncUserRegistered()
	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login checks credentials and issues a session token. Unknown users and
// wrong passwords fail the same way.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*Session, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	var user *model.User
	err := s.store.call(ctx, metrics.StoreDatabase, "get_user_by_username", func(ctx context.Context) error {
		var err error
		user, err = s.users.GetUserByUsername(ctx, input.Username)
		return err
	})
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, storeError(apperror.KindDbFailure, "could not look up account", err)
		}
		// Spend the same hashing work as a real check.
		_, _ = s.hasher.Verify(input.Password, s.dummy())
		return nil, s.loginFailed(input.Username, "unknown_user")
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordDigest)
	if err != nil {
		s.metrics.IncLogin(metrics.StatusFailure)
		return nil, fmt.Errorf("verify password digest for user %d: %w", user.ID, err)
	}
	if !ok {
		return nil, s.loginFailed(input.Username, "wrong_password")
	}

	token, identity, err := s.tokens.Sign(user.ID, user.Username)
	if err != nil {
		s.metrics.IncLogin(metrics.StatusFailure)
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.IncLogin(metrics.StatusSuccess)
	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))

	return &Session{Token: token, Identity: identity}, nil
}

func (s *UserService) loginFailed(username, reason string) error {
	s.metrics.IncLogin(metrics.StatusFailure)
	s.logger.Warn("login failed",
		slog.String("username", username),
		slog.String("reason", reason),
	)
	return apperror.New(apperror.KindInvalidCredentials, "invalid username or password")
}

// dummy returns a digest used to equalize timing for unknown users.
func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

// GetUser returns a user by ID.
func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user *model.User
	err := s.store.call(ctx, metrics.StoreDatabase, "get_user", func(ctx context.Context) error {
		var err error
		user, err = s.users.GetUserByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "user not found")
		}
		return nil, storeError(apperror.KindDbFailure, "could not load user", err)
	}
	return user, nil
}

// ListUsers returns a page of users ordered by ID.
func (s *UserService) ListUsers(ctx context.Context, page repository.Page) ([]*model.User, error) {
	var users []*model.User
	err := s.store.call(ctx, metrics.StoreDatabase, "list_users", func(ctx context.Context) error {
		var err error
		users, err = s.users.ListUsers(ctx, page)
		return err
	})
	if err != nil {
		return nil, storeError(apperror.KindDbFailure, "could not list users", err)
	}
	return users, nil
}
