package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ustoz-edu/apiserver/internal/metrics"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
	"go.uber.org/zap"
)

// AuthHandler provides the token obtain and refresh endpoints.
type AuthHandler struct {
	identities *services.IdentityService
	tokens     *services.TokenService
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(identities *services.IdentityService, tokens *services.TokenService, m *metrics.Metrics, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		identities: identities,
		tokens:     tokens,
		metrics:    m,
		logger:     logger,
	}
}

// AuthRouter registers token routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/", handler.Obtain)
	r.Post("/refresh", handler.Refresh)
}

type TokenObtainRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

type TokenRefreshResponse struct {
	Access string `json:"access"`
}

// Obtain verifies credentials and returns an access/refresh pair.
func (h *AuthHandler) Obtain(w http.ResponseWriter, r *http.Request) {
	var req TokenObtainRequest
	if err := decodeJSON(r, &req); err != nil {
		h.count("obtain", "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		h.count("obtain", "invalid")
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	identity, err := h.identities.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrAuthenticationFailed) {
			h.count("obtain", "denied")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.count("obtain", "error")
		h.logger.Error("failed to authenticate", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	pair, err := h.tokens.Issue(r.Context(), identity)
	if err != nil {
		h.count("obtain", "error")
		h.logger.Error("failed to create token", zap.Int("identity_id", identity.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	h.count("obtain", "success")
	writeJSON(w, http.StatusOK, pair)
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req TokenRefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		h.count("refresh", "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		h.count("refresh", "invalid")
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	access, err := h.tokens.Refresh(r.Context(), strings.TrimSpace(req.Refresh))
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) || errors.Is(err, services.ErrAuthenticationFailed) {
			h.count("refresh", "denied")
			writeError(w, http.StatusUnauthorized, "token is invalid or expired")
			return
		}
		h.count("refresh", "error")
		h.logger.Error("failed to refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	h.count("refresh", "success")
	writeJSON(w, http.StatusOK, TokenRefreshResponse{Access: access})
}

func (h *AuthHandler) count(endpoint, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.TokenRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RequireAuth enforces bearer authentication and injects the access token
// claims into the request context.
func RequireAuth(tokens *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := tokens.ParseAccess(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth behaves like RequireAuth when an Authorization header is
// present and lets anonymous requests through otherwise.
func OptionalAuth(tokens *services.TokenService) func(http.Handler) http.Handler {
	required := RequireAuth(tokens)
	return func(next http.Handler) http.Handler {
		authenticated := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			authenticated.ServeHTTP(w, r)
		})
	}
}

// RequirePerm loads the caller and rejects it unless it holds perm. It must
// run after RequireAuth.
func RequirePerm(identities *services.IdentityService, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := loadCaller(w, r, identities)
			if !ok {
				return
			}
			if !caller.HasPerm(perm) {
				writeError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loadCaller resolves the authenticated identity, writing the error
// response itself when it cannot.
func loadCaller(w http.ResponseWriter, r *http.Request, identities *services.IdentityService) (types.Identity, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Identity{}, false
	}

	caller, err := identities.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.Identity{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return types.Identity{}, false
	}
	if !caller.IsActive {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Identity{}, false
	}
	return caller, true
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
