package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cosmetica/apiserver/config"
	"github.com/cosmetica/apiserver/internal/services"
	"github.com/cosmetica/apiserver/internal/store"
	"github.com/cosmetica/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// sessionCookieName is the cookie carrying the refresh token.
const sessionCookieName = "jwt"

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 8
)

var emailPattern = regexp.MustCompile(`^[\w-]+(?:\.[\w-]+)*@(?:[\w-]+\.)+[a-zA-Z]{2,7}$`)

// AuthHandler provides registration, login, and refresh endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	notifier    services.LoginNotifier
	cookieTTL   time.Duration
	logger      *zap.Logger
}

func NewAuthHandler(
	authService *services.AuthService,
	userService *services.UserService,
	notifier services.LoginNotifier,
	cookieTTL time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		userService: userService,
		notifier:    notifier,
		cookieTTL:   cookieTTL,
		logger:      logger,
	}
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginData is the success payload of the login endpoint.
type LoginData struct {
	AccessToken string            `json:"accessToken"`
	UserInfo    services.UserInfo `json:"userInfo"`
}

// RefreshData is the success payload of the refresh endpoint.
type RefreshData struct {
	AccessToken string `json:"accessToken"`
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if fieldErrors := validateRegistration(req); len(fieldErrors) > 0 {
		writeValidationError(w, "Validation failed", fieldErrors)
		return
	}

	if _, err := h.userService.GetByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, "This username already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("register: username lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user due to server error")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "This email already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("register: email lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user due to server error")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("register: password hashing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user due to server error")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Roles:        map[string]int{"User": config.DefaultUserRoleCode},
		PasswordHash: string(hashed),
	})
	if err != nil {
		h.logger.Error("register: create user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user due to server error")
		return
	}

	if h.notifier != nil {
		h.notifier.Welcome(user)
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: fmt.Sprintf("New user %s created", user.Username),
		Data:    user,
	})
}

// Login verifies credentials, sets the session cookie, and returns the
// access token with the user info.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingInput):
			writeError(w, http.StatusBadRequest, "Email and password are required.")
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials (email or password incorrect).")
		default:
			h.logger.Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred during login.")
		}
		return
	}

	h.setSessionCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("%s is successfully logged in.", result.UserInfo.Username),
		Data: LoginData{
			AccessToken: result.AccessToken,
			UserInfo:    result.UserInfo,
		},
	})
}

// Refresh exchanges the session cookie for a new access token, rotating
// the refresh token in the process.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	result, err := h.authService.Refresh(r.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "unauthenticated")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			h.logger.Error("refresh failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		}
		return
	}

	h.setSessionCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "New token generated",
		Data:    RefreshData{AccessToken: result.AccessToken},
	})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	username, err := usernameFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.logger.Error("me: load user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Data: user})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func validateRegistration(req RegisterRequest) map[string]string {
	fieldErrors := make(map[string]string)
	if len(req.Username) < minUsernameLen || len(req.Username) > maxUsernameLen {
		fieldErrors["username"] = "Username must be between 3 and 30 characters long."
	}
	if !emailPattern.MatchString(req.Email) {
		fieldErrors["email"] = "Please enter a valid email address."
	}
	if len(req.Password) < minPasswordLen {
		fieldErrors["password"] = "Password must be at least 8 characters long."
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}
