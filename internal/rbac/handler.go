package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
)

// Handler exposes the catalog administration and resolution API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	mw       Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver, mw: mw}
}

// MountRoutes registers the catalog routes. The caller mounts this under the
// authenticated API group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.mw.Require("permissions:read")).Get("/", h.listPermissions)
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("permissions:manage"))
			r.Post("/", h.createPermission)
			r.Post("/bulk", h.bulkCreatePermissions)
		})
		r.Route("/{permissionID}", func(r chi.Router) {
			r.With(h.mw.Require("permissions:read")).Get("/", h.getPermission)
			r.Group(func(r chi.Router) {
				r.Use(h.mw.Require("permissions:manage"))
				r.Put("/", h.updatePermission)
				r.Delete("/", h.deletePermission)
			})
		})
	})

	r.Route("/roles", func(r chi.Router) {
		r.With(h.mw.Require("roles:read")).Get("/", h.listRoles)
		r.With(h.mw.Require("roles:create")).Post("/", h.createRole)
		r.With(h.mw.Require("roles:create")).Post("/bulk", h.bulkCreateRoles)
		r.Route("/{roleID}", func(r chi.Router) {
			r.With(h.mw.Require("roles:read")).Get("/", h.getRole)
			r.With(h.mw.Require("roles:update")).Put("/", h.updateRole)
			r.With(h.mw.Require("roles:delete")).Delete("/", h.deleteRole)
			r.With(h.mw.Require("roles:update")).Put("/permissions", h.setRolePermissions)
		})
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Route("/roles", func(r chi.Router) {
			r.With(h.mw.Require("users:roles:read")).Get("/", h.listUserRoles)
			r.With(h.mw.Require("users:roles:assign")).Post("/", h.assignRole)
			r.With(h.mw.Require("users:roles:remove")).Delete("/{roleID}", h.removeRole)
		})
		r.Route("/permissions", func(r chi.Router) {
			r.With(h.mw.Require("users:permissions:read")).Get("/", h.resolvePermissions)
			r.With(h.mw.Require("users:permissions:read")).Post("/check", h.checkPermissions)
			r.With(h.mw.RequireSuperuser()).Post("/cache/clear", h.clearCache)
		})
	})
}

// respondErr maps package sentinels to HTTP problem responses.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, ErrSystemRecord):
		httpx.Problem(w, http.StatusForbidden, "System Record", err.Error())
	case errors.Is(err, ErrCatalogUnavailable):
		w.Header().Set("Retry-After", "5")
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "permission catalog unavailable")
	case errors.Is(err, ErrCacheUnavailable):
		w.Header().Set("Retry-After", "5")
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "permission cache unavailable")
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.Join(ErrInvalidInput, err)
	}
	return id, nil
}

type permissionRequest struct {
	Name          string `json:"name" validate:"required"`
	DisplayName   string `json:"display_name" validate:"required"`
	Description   string `json:"description"`
	ResourceType  string `json:"resource_type" validate:"required"`
	Action        string `json:"action" validate:"required"`
	AppIdentifier string `json:"app_identifier"`
}

func (req permissionRequest) input() PermissionInput {
	return PermissionInput{
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		ResourceType:  req.ResourceType,
		Action:        req.Action,
		AppIdentifier: req.AppIdentifier,
	}
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.input())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) bulkCreatePermissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permissions []permissionRequest `json:"permissions" validate:"required,min=1,dive"`
	}
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inputs := make([]PermissionInput, len(req.Permissions))
	for i, p := range req.Permissions {
		inputs[i] = p.input()
	}
	created, err := h.service.BulkCreatePermissions(r.Context(), inputs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"created": created,
		"count":   len(created),
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	filter := PermissionFilter{
		AppIdentifier: r.URL.Query().Get("app_identifier"),
		ResourceType:  r.URL.Query().Get("resource_type"),
	}
	perms, err := h.service.ListPermissions(r.Context(), filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "permissionID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "permissionID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var req struct {
		DisplayName *string `json:"display_name"`
		Description *string `json:"description"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), id, PermissionUpdate{
		DisplayName: req.DisplayName,
		Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "permissionID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.NoContent(w)
}

type roleRequest struct {
	Name          string      `json:"name" validate:"required"`
	DisplayName   string      `json:"display_name" validate:"required"`
	Description   string      `json:"description"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
	AppIdentifier string      `json:"app_identifier"`
	ExternalGroup string      `json:"external_group"`
	IsDefault     bool        `json:"is_default"`
}

func (req roleRequest) input() RoleInput {
	return RoleInput{
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
		AppIdentifier: req.AppIdentifier,
		ExternalGroup: req.ExternalGroup,
		IsDefault:     req.IsDefault,
	}
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.input())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) bulkCreateRoles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Roles []roleRequest `json:"roles" validate:"required,min=1,dive"`
	}
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inputs := make([]RoleInput, len(req.Roles))
	for i, role := range req.Roles {
		inputs[i] = role.input()
	}
	created, err := h.service.BulkCreateRoles(r.Context(), inputs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"created": created,
		"count":   len(created),
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), RoleFilter{
		AppIdentifier: r.URL.Query().Get("app_identifier"),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "roleID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "roleID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var req struct {
		Name          *string     `json:"name"`
		DisplayName   *string     `json:"display_name"`
		Description   *string     `json:"description"`
		PermissionIDs []uuid.UUID `json:"permission_ids"`
		IsDefault     *bool       `json:"is_default"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, RoleUpdate{
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
		IsDefault:     req.IsDefault,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "roleID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "roleID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var req struct {
		PermissionIDs []uuid.UUID `json:"permission_ids" validate:"required"`
	}
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var req struct {
		RoleID        uuid.UUID  `json:"role_id" validate:"required"`
		AppIdentifier string     `json:"app_identifier"`
		ExpiresAt     *time.Time `json:"expires_at"`
	}
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var assignedBy *uuid.UUID
	if principal := PrincipalFromContext(r.Context()); principal != nil {
		id := principal.GetID()
		assignedBy = &id
	}

	assignment, err := h.service.AssignRole(r.Context(), AssignRoleInput{
		UserID:        userID,
		RoleID:        req.RoleID,
		AppIdentifier: req.AppIdentifier,
		AssignedBy:    assignedBy,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	roleID, err := pathUUID(r, "roleID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID, ScopeFromRequest(r)); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	roles, err := h.service.ListUserRoles(r.Context(), userID, ScopeFromRequest(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) resolvePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	set, err := h.resolver.Resolve(r.Context(), userID, ScopeFromRequest(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) checkPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	var req struct {
		Permissions []string `json:"permissions" validate:"required,min=1"`
	}
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	results, err := h.resolver.CheckMany(r.Context(), userID, req.Permissions, ScopeFromRequest(r))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if err := h.resolver.Invalidate(r.Context(), userID, ScopeFromRequest(r)); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
