package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/types"
	"go.uber.org/zap"
)

// SubjectHandler provides HTTP handlers for subjects.
type SubjectHandler struct {
	subjects *services.SubjectService
	logger   *zap.Logger
}

func NewSubjectHandler(subjects *services.SubjectService, logger *zap.Logger) *SubjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectHandler{subjects: subjects, logger: logger}
}

// SubjectRouter registers subject routes on the given router.
func SubjectRouter(r chi.Router, handler *SubjectHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Get("/", handler.ListSubjects)
	r.Post("/", handler.CreateSubject)
	r.Route("/{subjectID}", func(r chi.Router) {
		r.Get("/", handler.GetSubject)
		r.Put("/", handler.ReplaceSubject)
		r.Patch("/", handler.UpdateSubject)
		r.Delete("/", handler.DeleteSubject)
	})
}

type SubjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type SubjectListResponse struct {
	Items []types.Subject `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func (h *SubjectHandler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.subjects.List(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "subject not found", "failed to list subjects")
		return
	}

	writeJSON(w, http.StatusOK, SubjectListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *SubjectHandler) GetSubject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "subjectID", "subject")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subject, err := h.subjects.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "subject not found", "failed to fetch subject")
		return
	}

	writeJSON(w, http.StatusOK, subject)
}

func (h *SubjectHandler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subject, err := h.subjects.Create(r.Context(), types.Subject{
		Name:        deref(req.Name),
		Description: deref(req.Description),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "subject not found", "failed to create subject")
		return
	}

	writeJSON(w, http.StatusCreated, subject)
}

func (h *SubjectHandler) ReplaceSubject(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *SubjectHandler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *SubjectHandler) update(w http.ResponseWriter, r *http.Request, full bool) {
	id, err := parseID(r, "subjectID", "subject")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SubjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if full && req.Name == nil {
		writeJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: map[string]string{"name": "This field is required."},
		})
		return
	}
	if full && req.Description == nil {
		empty := ""
		req.Description = &empty
	}

	subject, err := h.subjects.Update(r.Context(), id, services.SubjectPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "subject not found", "failed to update subject")
		return
	}

	writeJSON(w, http.StatusOK, subject)
}

func (h *SubjectHandler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "subjectID", "subject")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.subjects.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "subject not found", "failed to delete subject")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
