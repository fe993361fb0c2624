package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cosmetica/apiserver/config"
	"github.com/cosmetica/apiserver/internal/store"
	"github.com/cosmetica/apiserver/internal/token"
	"github.com/cosmetica/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeUserStore is an in-memory AuthUserStore with the same conditional
// rotation semantics as the SQL repository.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[int]*types.User
}

func newFakeUserStore(users ...types.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[int]*types.User)}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) GetByRefreshToken(_ context.Context, refreshToken string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.RefreshToken != "" && u.RefreshToken == refreshToken {
			return *u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) SetRefreshToken(_ context.Context, id int, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.RefreshToken = refreshToken
	return nil
}

func (s *fakeUserStore) RotateRefreshToken(_ context.Context, id int, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if u.RefreshToken != current {
		return store.ErrTokenSuperseded
	}
	u.RefreshToken = next
	return nil
}

func (s *fakeUserStore) setRoles(id int, roles map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Roles = roles
}

func (s *fakeUserStore) setUsername(id int, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Username = username
}

func (s *fakeUserStore) storedToken(id int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].RefreshToken
}

type recordingNotifier struct {
	mu       sync.Mutex
	logins   []string
	welcomes []string
}

func (n *recordingNotifier) LoginAlert(user types.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logins = append(n.logins, user.Username)
}

func (n *recordingNotifier) Welcome(user types.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, user.Username)
}

const testPassword = "correct horse battery"

func newTestTokens(t *testing.T, refreshTTL time.Duration) *token.Manager {
	t.Helper()
	m, err := token.NewManager(config.AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    refreshTTL,
	})
	require.NoError(t, err)
	return m
}

func seedUser(t *testing.T, id int) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return types.User{
		ID:           id,
		Username:     "walter",
		Email:        "walter@example.com",
		Roles:        map[string]int{"User": 2001},
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeUserStore, *token.Manager) {
	t.Helper()
	users := newFakeUserStore(seedUser(t, 1))
	tokens := newTestTokens(t, 24*time.Hour)
	return NewAuthService(users, tokens, nil, nil), users, tokens
}

func TestLoginMissingInput(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), "", "password")
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.Login(context.Background(), "walter@example.com", "")
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.Login(context.Background(), "   ", "password")
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestLoginRejectionsAreIndistinguishable(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, unknownErr := svc.Login(context.Background(), "nobody@example.com", testPassword)
	_, wrongErr := svc.Login(context.Background(), "walter@example.com", "not the password")

	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr, wrongErr)
}

func TestLoginSuccess(t *testing.T) {
	svc, users, tokens := newAuthFixture(t)

	result, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	assert.Equal(t, "walter", result.UserInfo.Username)
	assert.ElementsMatch(t, []int{2001}, result.UserInfo.Roles)

	claims, err := tokens.ParseAccess(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "walter", claims.Username)
	assert.ElementsMatch(t, []int{2001}, claims.Roles)

	// The minted refresh token is the one stored on the account.
	assert.Equal(t, result.RefreshToken, users.storedToken(1))
}

func TestLoginNormalizesEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), "  WALTER@Example.COM  ", testPassword)
	require.NoError(t, err)
}

func TestLoginRevokesPreviousSession(t *testing.T) {
	svc, users, _ := newAuthFixture(t)

	first, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, second.RefreshToken, users.storedToken(1))

	// The first session's refresh token no longer rotates.
	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLoginNotifies(t *testing.T) {
	users := newFakeUserStore(seedUser(t, 1))
	tokens := newTestTokens(t, 24*time.Hour)
	notifier := &recordingNotifier{}
	svc := NewAuthService(users, tokens, notifier, nil)

	_, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"walter"}, notifier.logins)
}

func TestRefreshEmptyToken(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Refresh(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, tokens := newAuthFixture(t)

	// Well-formed and validly signed, but never stored on any account.
	stray, err := tokens.IssueRefresh("walter")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), stray)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRefreshRotates(t *testing.T) {
	svc, users, tokens := newAuthFixture(t)

	login, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	result, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)

	assert.NotEqual(t, login.RefreshToken, result.RefreshToken)
	assert.Equal(t, result.RefreshToken, users.storedToken(1))

	claims, err := tokens.ParseAccess(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "walter", claims.Username)
}

func TestRefreshIsSingleUse(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	first, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)

	// Replaying the consumed token must fail, and the session minted by
	// the first rotation must keep working.
	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshExpiredToken(t *testing.T) {
	users := newFakeUserStore(seedUser(t, 1))
	tokens := newTestTokens(t, time.Nanosecond)
	svc := NewAuthService(users, tokens, nil, nil)

	login, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshForeignSignature(t *testing.T) {
	svc, users, _ := newAuthFixture(t)

	// A token signed with someone else's secret that somehow ended up
	// stored on the account still fails verification.
	foreign := newTestTokens(t, 24*time.Hour)
	forged, err := foreign.IssueAccess("walter", nil)
	require.NoError(t, err)
	require.NoError(t, users.SetRefreshToken(context.Background(), 1, forged))

	_, err = svc.Refresh(context.Background(), forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRefreshIdentityMismatch(t *testing.T) {
	svc, users, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	// The account was renamed after the token was minted; the claimed
	// identity no longer matches the holder.
	users.setUsername(1, "heisenberg")

	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRefreshPicksUpRoleChanges(t *testing.T) {
	svc, users, tokens := newAuthFixture(t)

	login, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	users.setRoles(1, map[string]int{"User": 2001, "Admin": 5150})

	result, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)

	claims, err := tokens.ParseAccess(result.AccessToken)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2001, 5150}, claims.Roles)
}

func TestRefreshConcurrentRotationLosesCleanly(t *testing.T) {
	svc, users, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), "walter@example.com", testPassword)
	require.NoError(t, err)

	// Simulate a concurrent winner committing between this request's
	// lookup and its conditional update.
	winner, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)

	err = users.RotateRefreshToken(context.Background(), 1, login.RefreshToken, "anything")
	assert.ErrorIs(t, err, store.ErrTokenSuperseded)
	assert.Equal(t, winner.RefreshToken, users.storedToken(1))
}
