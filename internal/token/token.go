package token

import (
	"errors"
	"strings"
	"time"

	"github.com/cosmetica/apiserver/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token fails signature or expiry
	// verification, or carries an unexpected shape.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims are embedded in short-lived access tokens. They carry the
// identity and the numeric role codes current at issue time.
type AccessClaims struct {
	Username string `json:"username"`
	Roles    []int  `json:"roles"`
	jwt.RegisteredClaims
}

// RefreshClaims are embedded in long-lived refresh tokens. Roles are
// deliberately excluded: they are re-derived from the account record on
// every rotation so a role change takes effect within one rotation cycle.
type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager signs and verifies the two token kinds with independent secrets.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewManager constructs a Manager from auth configuration. Both secrets
// are required.
func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, errors.New("access token secret is required")
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("refresh token secret is required")
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 300 * time.Second
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// IssueAccess mints a short-lived access token for the given identity and
// role codes.
func (m *Manager) IssueAccess(username string, roles []int) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

// IssueRefresh mints a long-lived refresh token carrying identity only.
func (m *Manager) IssueRefresh(username string) (string, error) {
	now := time.Now()
	// The jti makes every issued token unique even within the same
	// second, so rotation always stores a fresh value.
	claims := RefreshClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenString string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := m.parse(tokenString, &claims, m.accessSecret); err != nil {
		return AccessClaims{}, err
	}
	if strings.TrimSpace(claims.Username) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenString string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	if err := m.parse(tokenString, &claims, m.refreshSecret); err != nil {
		return RefreshClaims{}, err
	}
	if strings.TrimSpace(claims.Username) == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
