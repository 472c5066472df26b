package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ustoz-edu/apiserver/internal/services"
	"go.uber.org/zap"
)

// RoleHandler serves one role-scoped view of the identity resource.
type RoleHandler struct {
	view    *services.RoleScopedRepository
	present presenter
	logger  *zap.Logger
	label   string
}

// NewRoleHandler constructs a RoleHandler over view.
func NewRoleHandler(view *services.RoleScopedRepository, images services.ImageURLResolver, logger *zap.Logger) *RoleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleHandler{
		view:    view,
		present: presenter{images: images, logger: logger},
		logger:  logger,
		label:   view.Role().Label(),
	}
}

// RoleRouter registers the view routes. Every route requires
// authentication and the permission middleware.
func RoleRouter(
	r chi.Router,
	handler *RoleHandler,
	authMiddleware func(http.Handler) http.Handler,
	permMiddleware func(http.Handler) http.Handler,
) {
	r.Use(authMiddleware, permMiddleware)
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Route("/{identityID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Replace)
		r.Patch("/", handler.Update)
		r.Delete("/", handler.Delete)
	})
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.view.List(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, h.notFound(), "failed to list identities")
		return
	}

	writeJSON(w, http.StatusOK, h.present.list(r.Context(), items, page, limit, total))
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.view.Register(r.Context(), req.registration())
	if err != nil {
		writeServiceError(w, h.logger, err, h.notFound(), "failed to create identity")
		return
	}

	writeJSON(w, http.StatusCreated, h.present.identity(r.Context(), identity))
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "identityID", "identity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.view.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, h.notFound(), "failed to fetch identity")
		return
	}

	writeJSON(w, http.StatusOK, h.present.identity(r.Context(), identity))
}

func (h *RoleHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *RoleHandler) update(w http.ResponseWriter, r *http.Request, full bool) {
	id, err := parseID(r, "identityID", "identity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req IdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if full {
		if err := req.requireFields(); err != nil {
			writeServiceError(w, h.logger, err, h.notFound(), "failed to update identity")
			return
		}
	}

	identity, err := h.view.Update(r.Context(), id, req.patch())
	if err != nil {
		writeServiceError(w, h.logger, err, h.notFound(), "failed to update identity")
		return
	}

	writeJSON(w, http.StatusOK, h.present.identity(r.Context(), identity))
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "identityID", "identity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.view.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, h.notFound(), "failed to delete identity")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoleHandler) notFound() string {
	return h.label + " not found"
}
