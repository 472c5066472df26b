package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/internal/storage"
	"github.com/ustoz-edu/apiserver/internal/store"
	"github.com/ustoz-edu/apiserver/types"
	"go.uber.org/zap"
)

const (
	permChangeUser = "users.change_user"
	permDeleteUser = "users.delete_user"
	permChangeRole = "users.change_role"

	maxProfileImageBytes = 5 << 20
	formFieldImage       = "image"
)

// UserHandler serves the identity resource.
type UserHandler struct {
	identities *services.IdentityService
	images     *storage.Storage
	present    presenter
	logger     *zap.Logger
}

// NewUserHandler constructs a UserHandler. images may be an unconfigured
// Storage, in which case uploads are rejected.
func NewUserHandler(identities *services.IdentityService, images *storage.Storage, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{
		identities: identities,
		images:     images,
		present:    presenter{images: images, logger: logger},
		logger:     logger,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(
	r chi.Router,
	handler *UserHandler,
	authMiddleware func(http.Handler) http.Handler,
	optionalAuth func(http.Handler) http.Handler,
) {
	r.With(authMiddleware).Get("/", handler.ListUsers)
	r.With(optionalAuth).Post("/", handler.CreateUser)
	r.With(authMiddleware).Get("/me", handler.Me)
	r.Route("/{userID}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.GetUser)
		r.Put("/", handler.ReplaceUser)
		r.Patch("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
		r.Put("/profile-image", handler.UploadProfileImage)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var filter store.IdentityFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role, ok := types.ParseRole(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		filter.Role = role
	}

	items, total, err := h.identities.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "user not found", "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, h.present.list(r.Context(), items, page, limit, total))
}

// CreateUser registers an identity. The requested role is only honoured
// when an authenticated caller holds the role permission.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := req.registration()
	if in.Role != "" && in.Role != types.RoleStudent {
		if _, authenticated := claimsFromContext(r.Context()); !authenticated {
			in.Role = types.RoleStudent
		} else {
			caller, ok := loadCaller(w, r, h.identities)
			if !ok {
				return
			}
			if !caller.HasPerm(permChangeRole) {
				in.Role = types.RoleStudent
			}
		}
	}

	identity, err := h.identities.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, "user not found", "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, h.present.identity(r.Context(), identity))
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := loadCaller(w, r, h.identities)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.present.identity(r.Context(), caller))
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.identities.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "user not found", "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, h.present.identity(r.Context(), identity))
}

func (h *UserHandler) ReplaceUser(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, full bool) {
	id, err := parseID(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, ok := h.authorizeSelfOrPerm(w, r, id, permChangeUser)
	if !ok {
		return
	}

	var req IdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if full {
		if err := req.requireFields(); err != nil {
			writeServiceError(w, h.logger, err, "user not found", "failed to update user")
			return
		}
	}
	if (req.Role != nil || req.IsActive != nil) && !caller.HasPerm(permChangeRole) {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	identity, err := h.identities.Update(r.Context(), id, req.patch())
	if err != nil {
		writeServiceError(w, h.logger, err, "user not found", "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, h.present.identity(r.Context(), identity))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := h.authorizeSelfOrPerm(w, r, id, permDeleteUser); !ok {
		return
	}

	if err := h.identities.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "user not found", "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadProfileImage stores a multipart "image" file as the profile image.
func (h *UserHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID", "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := h.authorizeSelfOrPerm(w, r, id, permChangeUser); !ok {
		return
	}

	if !h.images.Configured() {
		writeError(w, http.StatusServiceUnavailable, "profile image storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProfileImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxProfileImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	if header.Size > maxProfileImageBytes {
		writeError(w, http.StatusBadRequest, "uploaded file too large")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "image must be an image file")
		return
	}

	identity, err := h.identities.SetProfileImage(r.Context(), id, services.ProfileImageUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Data:        file,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "profile image storage is not configured")
			return
		}
		writeServiceError(w, h.logger, err, "user not found", "failed to upload profile image")
		return
	}

	writeJSON(w, http.StatusOK, h.present.identity(r.Context(), identity))
}

// authorizeSelfOrPerm lets callers act on their own identity, and on any
// identity when they hold perm.
func (h *UserHandler) authorizeSelfOrPerm(w http.ResponseWriter, r *http.Request, id int, perm string) (types.Identity, bool) {
	caller, ok := loadCaller(w, r, h.identities)
	if !ok {
		return types.Identity{}, false
	}
	if caller.ID != id && !caller.HasPerm(perm) {
		writeError(w, http.StatusForbidden, "permission denied")
		return types.Identity{}, false
	}
	return caller, true
}
