package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cosmetica/apiserver/internal/store"
	"github.com/cosmetica/apiserver/internal/token"
	"github.com/cosmetica/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingInput means a required credential field was absent. No
	// lookup is performed in that case.
	ErrMissingInput = errors.New("email and password are required")

	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated means no refresh token was presented or it failed
	// signature/expiry verification.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the refresh token was superseded, revoked, or its
	// identity does not match the account that holds it.
	ErrForbidden = errors.New("forbidden")
)

// AuthUserStore is the persistence surface the auth flows need.
type AuthUserStore interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (types.User, error)
	SetRefreshToken(ctx context.Context, id int, refreshToken string) error
	RotateRefreshToken(ctx context.Context, id int, current, next string) error
}

// LoginNotifier dispatches account notifications. Implementations must be
// fire-and-forget: they return immediately and never surface delivery
// failures to the auth flow.
type LoginNotifier interface {
	LoginAlert(user types.User)
	Welcome(user types.User)
}

// UserInfo is the identity payload returned alongside an access token.
type UserInfo struct {
	Username string `json:"username"`
	Roles    []int  `json:"roles"`
}

// LoginResult carries the token pair minted on successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	UserInfo     UserInfo
}

// RefreshResult carries the token pair minted on successful rotation.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// AuthService implements credential verification and refresh-token
// rotation over a user store and a token manager.
type AuthService struct {
	users    AuthUserStore
	tokens   *token.Manager
	notifier LoginNotifier
	logger   *zap.Logger
}

func NewAuthService(users AuthUserStore, tokens *token.Manager, notifier LoginNotifier, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// Login verifies an email/password pair and, on success, mints a token
// pair and persists the refresh token on the account. Persisting the new
// refresh token overwrites the previous one, which revokes any prior
// session.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrMissingInput
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	roles := user.RoleValues()

	accessToken, err := s.tokens.IssueAccess(user.Username, roles)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefresh(user.Username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return LoginResult{}, fmt.Errorf("persist refresh token: %w", err)
	}

	if s.notifier != nil {
		s.notifier.LoginAlert(user)
	}

	return LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserInfo:     UserInfo{Username: user.Username, Roles: roles},
	}, nil
}

// Refresh exchanges a previously issued refresh token for a new token
// pair. The account is looked up by the exact token value, so only the
// most recently issued refresh token can rotate; the final conditional
// update makes rotation single-use even under concurrent requests.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return RefreshResult{}, ErrUnauthenticated
	}

	user, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RefreshResult{}, ErrForbidden
		}
		return RefreshResult{}, fmt.Errorf("look up refresh token: %w", err)
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{}, ErrUnauthenticated
	}

	if claims.Username != user.Username {
		s.logger.Warn("refresh token identity mismatch",
			zap.String("account", user.Username),
			zap.String("claim", claims.Username),
		)
		return RefreshResult{}, ErrForbidden
	}

	// Roles come from the account record, never from refresh claims, so a
	// role change propagates within one rotation cycle.
	roles := user.RoleValues()

	accessToken, err := s.tokens.IssueAccess(user.Username, roles)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue access token: %w", err)
	}
	nextRefresh, err := s.tokens.IssueRefresh(user.Username)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, nextRefresh); err != nil {
		if errors.Is(err, store.ErrTokenSuperseded) {
			return RefreshResult{}, ErrForbidden
		}
		return RefreshResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
	}, nil
}
