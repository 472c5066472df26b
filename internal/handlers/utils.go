package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/internal/store"
	"go.uber.org/zap"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type contextKey string

const contextClaimsKey contextKey = "claims"

func claimsFromContext(ctx context.Context) (*services.Claims, bool) {
	claims, ok := ctx.Value(contextClaimsKey).(*services.Claims)
	if !ok || claims == nil || claims.UserID < 1 {
		return nil, false
	}
	return claims, true
}

func userIDFromContext(ctx context.Context) (int, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return 0, errors.New("missing subject")
	}
	return claims.UserID, nil
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries per-field messages.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service and store errors onto HTTP responses.
// Anything unrecognised is logged and reported as fallback with a 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, notFound, fallback string) {
	var validationErr *services.ValidationError
	var constraintErr *store.ConstraintError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validationErr.Fields,
		})
	case errors.As(err, &constraintErr):
		field := constraintErr.Field
		if field == "" {
			field = "non_field_errors"
		}
		writeJSON(w, http.StatusConflict, ValidationErrorResponse{
			Error:  "constraint violation",
			Fields: map[string]string{field: constraintMessage(field)},
		})
	case errors.Is(err, store.ErrConstraintViolation):
		writeError(w, http.StatusConflict, "constraint violation")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	default:
		logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func constraintMessage(field string) string {
	switch field {
	case "email":
		return "user with this email already exists."
	case "full_name":
		return "user with this first name and last name already exists."
	default:
		return "already exists."
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	return nil
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

// parseID reads a positive id that fits the SERIAL primary keys.
func parseID(r *http.Request, param, label string) (int, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + label + " id")
	}
	return int(id), nil
}
