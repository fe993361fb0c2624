package token

import (
	"testing"
	"time"

	"github.com/cosmetica/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresSecrets(t *testing.T) {
	_, err := NewManager(config.AuthConfig{RefreshSecret: "refresh"})
	require.Error(t, err)

	_, err = NewManager(config.AuthConfig{AccessSecret: "access"})
	require.Error(t, err)

	_, err = NewManager(config.AuthConfig{AccessSecret: "  ", RefreshSecret: "refresh"})
	require.Error(t, err)
}

func TestNewManagerDefaultsTTLs(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
	})
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, m.AccessTTL())
	assert.Equal(t, 24*time.Hour, m.RefreshTTL())
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t)

	signed, err := m.IssueAccess("walter", []int{2001, 5150})
	require.NoError(t, err)

	claims, err := m.ParseAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "walter", claims.Username)
	assert.ElementsMatch(t, []int{2001, 5150}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshRoundTrip(t *testing.T) {
	m := newTestManager(t)

	signed, err := m.IssueRefresh("walter")
	require.NoError(t, err)

	claims, err := m.ParseRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, "walter", claims.Username)
}

func TestSecretsAreIndependent(t *testing.T) {
	m := newTestManager(t)

	access, err := m.IssueAccess("walter", []int{2001})
	require.NoError(t, err)
	refresh, err := m.IssueRefresh("walter")
	require.NoError(t, err)

	_, err = m.ParseRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager(config.AuthConfig{
		AccessSecret:  "other-access",
		RefreshSecret: "other-refresh",
	})
	require.NoError(t, err)

	refresh, err := m.IssueRefresh("walter")
	require.NoError(t, err)

	_, err = other.ParseRefresh(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Nanosecond,
		RefreshTTL:    time.Nanosecond,
	})
	require.NoError(t, err)

	access, err := m.IssueAccess("walter", []int{2001})
	require.NoError(t, err)
	refresh, err := m.IssueRefresh("walter")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = m.ParseAccess(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.ParseRefresh(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuedRefreshTokensAreUnique(t *testing.T) {
	m := newTestManager(t)

	first, err := m.IssueRefresh("walter")
	require.NoError(t, err)
	second, err := m.IssueRefresh("walter")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestRefreshClaimsCarryNoRoles(t *testing.T) {
	m := newTestManager(t)

	refresh, err := m.IssueRefresh("walter")
	require.NoError(t, err)

	// Parsing the refresh token as an access token with the refresh
	// secret would be a config error; here we just assert the payload
	// shape has no role codes to leak.
	claims, err := m.ParseRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "walter", claims.Subject)
}

func TestGarbageTokenRejected(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ParseAccess("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.ParseRefresh("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
