package types

import "time"

// User represents an account in the system.
// It contains identity, role, and session metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user, stored lowercased.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address, stored lowercased.
	Email string `json:"email" db:"email"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name,omitempty" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name,omitempty" db:"last_name"`

	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Roles maps a role name to its numeric capability code
	// (e.g., "User" -> 2001). Token role claims are the values of this map.
	Roles map[string]int `json:"roles" db:"roles"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken is the single currently valid refresh token for this
	// account, or empty when no session is active. Overwriting it revokes
	// the previous session. Never exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// IsActive marks whether the account is enabled.
	IsActive bool `json:"is_active" db:"is_active"`

	// EmailVerified marks whether the email address has been confirmed.
	EmailVerified bool `json:"email_verified" db:"email_verified"`

	// LastLogin is the timestamp of the most recent successful login.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleValues returns the numeric capability codes of the user's roles.
// Order is not significant.
func (u User) RoleValues() []int {
	if len(u.Roles) == 0 {
		return nil
	}
	values := make([]int, 0, len(u.Roles))
	for _, code := range u.Roles {
		values = append(values, code)
	}
	return values
}
