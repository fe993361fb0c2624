package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/cosmetica/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, first_name, last_name, phone, roles, password_hash,
		refresh_token, is_active, email_verified, last_login, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByRefreshToken looks an account up by the exact stored token value.
// Only the most recently issued refresh token for an account can match.
func (r *UserRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE refresh_token = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, refreshToken))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	rolesJSON, err := json.Marshal(user.Roles)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (username, email, first_name, last_name, phone, roles, password_hash,
			is_active, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Phone,
		rolesJSON,
		user.PasswordHash,
		user.IsActive,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	rolesJSON, err := json.Marshal(user.Roles)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			first_name = $3,
			last_name = $4,
			phone = $5,
			roles = $6,
			password_hash = $7,
			is_active = $8,
			email_verified = $9,
			updated_at = $10
		WHERE id = $11`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Phone,
		rolesJSON,
		user.PasswordHash,
		user.IsActive,
		user.EmailVerified,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// SetRefreshToken unconditionally overwrites the stored refresh token,
// revoking whatever session held the previous value, and stamps the
// login time. Used by the login path.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id int, refreshToken string) error {
	const query = `
		UPDATE users
		SET refresh_token = $1,
			last_login = $2,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, refreshToken, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken replaces the stored refresh token only if it still
// equals current. A zero-row update means another rotation or login won
// the race and the caller's token is no longer the live one.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id int, current, next string) error {
	const query = `
		UPDATE users
		SET refresh_token = $1,
			updated_at = $2
		WHERE id = $3 AND refresh_token = $4`
	result, err := r.db.ExecContext(ctx, query, next, time.Now(), id, current)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenSuperseded
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var rolesJSON []byte
	var refreshToken sql.NullString
	var lastLogin sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&rolesJSON,
		&user.PasswordHash,
		&refreshToken,
		&user.IsActive,
		&user.EmailVerified,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	_ = json.Unmarshal(rolesJSON, &user.Roles)
	if refreshToken.Valid {
		user.RefreshToken = refreshToken.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}
