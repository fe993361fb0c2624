package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type contextKey string

const (
	contextUsernameKey contextKey = "username"
	contextRolesKey    contextKey = "roles"
)

// Response is the envelope every endpoint returns: a success flag, a
// human-readable message, and an optional data payload. Internal error
// detail never appears here.
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func usernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(contextUsernameKey).(string)
	if !ok || username == "" {
		return "", errors.New("missing username")
	}
	return username, nil
}

func rolesFromContext(ctx context.Context) []int {
	roles, _ := ctx.Value(contextRolesKey).([]int)
	return roles
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

func writeValidationError(w http.ResponseWriter, message string, fieldErrors map[string]string) {
	writeJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Message: message,
		Errors:  fieldErrors,
	})
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
}
