package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

// Handler exposes the user endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers user routes under the authenticated API group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require("users:read"))
		r.Get("/users", h.list)
		r.Get("/users/{userID}", h.get)
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated user")
		return
	}
	user, err := h.service.Get(r.Context(), principal.GetID())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	users, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed user id")
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnavailable):
		w.Header().Set("Retry-After", "5")
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "user store unavailable")
	default:
		h.logger.Error("identity handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
