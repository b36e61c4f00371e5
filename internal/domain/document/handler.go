package document

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/auth"
	"github.com/bloksphere/stratosphere-patient-app/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, resolver *auth.Resolver) {
	g := api.Group("/documents", auth.RequireActive(resolver))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/download", h.Download)
}

func (h *Handler) List(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	var docType *string
	if v := c.QueryParam("type"); v != "" {
		docType = &v
	}

	items, total, err := h.svc.List(c.Request().Context(), actor.ID, docType, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.svc.Get(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load document")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Download(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	url, err := h.svc.DownloadURL(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate download link")
	}
	return c.JSON(http.StatusOK, map[string]string{"download_url": url})
}
