package records

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

// Handler exposes the record CRUD endpoints.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	mw     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, mw: mw}
}

// MountRoutes registers record routes under the authenticated API group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.With(h.mw.Require("records:read")).Get("/", h.list)
		r.With(h.mw.Require("records:create")).Post("/", h.create)
		r.With(h.mw.Require("records:batch")).Post("/batch/delete", h.batchDelete)
		r.Route("/{recordID}", func(r chi.Router) {
			r.With(h.mw.Require("records:read")).Get("/", h.get)
			r.With(h.mw.Require("records:update")).Put("/", h.update)
			r.With(h.mw.Require("records:delete")).Delete("/", h.remove)
		})
	})
}

type recordRequest struct {
	CollectionType string          `json:"collection_type" validate:"required"`
	Payload        json.RawMessage `json:"payload" validate:"required"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	IsPublished    *bool           `json:"is_published"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope := rbac.ScopeFromRequest(r)
	if scope == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "app identifier required")
		return
	}
	var req recordRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	rec := &Record{
		AppIdentifier:  scope,
		CollectionType: req.CollectionType,
		Payload:        req.Payload,
		Title:          req.Title,
		Description:    req.Description,
		IsPublished:    req.IsPublished == nil || *req.IsPublished,
	}
	if principal := rbac.PrincipalFromContext(r.Context()); principal != nil {
		id := principal.GetID()
		rec.OwnerID = &id
	}
	if err := h.repo.Create(r.Context(), rec); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope := rbac.ScopeFromRequest(r)
	if scope == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "app identifier required")
		return
	}
	filter := Filter{
		AppIdentifier:  scope,
		CollectionType: r.URL.Query().Get("collection_type"),
	}
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed owner id")
			return
		}
		filter.OwnerID = &id
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed record id")
		return
	}
	rec, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed record id")
		return
	}
	var req recordRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.repo.Update(r.Context(), &Record{
		ID:          id,
		Payload:     req.Payload,
		Title:       req.Title,
		Description: req.Description,
		IsPublished: req.IsPublished == nil || *req.IsPublished,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed record id")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) batchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
	}
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	deleted, err := h.repo.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnavailable):
		w.Header().Set("Retry-After", "5")
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "record store unavailable")
	default:
		h.logger.Error("records handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
