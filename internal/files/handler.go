package files

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

const maxUploadSize = 64 << 20 // 64 MiB

// Handler exposes the file endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers file routes under the authenticated API group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.With(h.mw.Require("files:upload")).Post("/", h.upload)
		r.With(h.mw.Require("files:download")).Get("/", h.list)
		r.With(h.mw.Require("files:download")).Get("/{fileID}", h.download)
		r.With(h.mw.Require("files:delete")).Delete("/{fileID}", h.remove)
	})
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	scope := rbac.ScopeFromRequest(r)
	if scope == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "app identifier required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed multipart body")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "missing file field")
		return
	}
	defer part.Close()

	in := UploadInput{
		AppIdentifier: scope,
		Filename:      header.Filename,
		Size:          header.Size,
		ContentType:   header.Header.Get("Content-Type"),
		Body:          part,
	}
	if principal := rbac.PrincipalFromContext(r.Context()); principal != nil {
		id := principal.GetID()
		in.OwnerID = &id
	}

	f, err := h.service.Upload(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope := rbac.ScopeFromRequest(r)
	if scope == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "app identifier required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.service.List(r.Context(), scope, limit, offset)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed file id")
		return
	}
	f, body, err := h.service.Open(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Debug("stream file", slog.String("file_id", f.ID.String()), slog.Any("error", err))
	}
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed file id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrStorage):
		w.Header().Set("Retry-After", "5")
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "file storage unavailable")
	default:
		h.logger.Error("files handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
