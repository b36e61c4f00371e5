package gdpr

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
	g := api.Group("/gdpr", auth.RequireActive(resolver))
	g.POST("/consents", h.GrantConsent)
	g.DELETE("/consents/:type", h.WithdrawConsent)
	g.GET("/consents", h.ListConsents)
	g.POST("/requests", h.CreateRequest)
	g.GET("/requests", h.ListRequests)
	g.GET("/requests/:id", h.GetRequest)
}

func (h *Handler) GrantConsent(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	var in ConsentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := h.svc.GrantConsent(c.Request().Context(), actor.ID, in, audit.MetaFromRequest(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) WithdrawConsent(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	in := ConsentInput{ConsentType: c.Param("type"), Version: c.QueryParam("version")}
	if in.Version == "" {
		in.Version = "withdrawal"
	}

	rec, err := h.svc.WithdrawConsent(c.Request().Context(), actor.ID, in, audit.MetaFromRequest(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListConsents(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	items, err := h.svc.ListConsents(c.Request().Context(), actor.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list consents")
	}
	return c.JSON(http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) CreateRequest(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	var in CreateRequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := h.svc.CreateRequest(c.Request().Context(), actor.ID, in, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) ListRequests(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListRequests(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list requests")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRequest(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.svc.GetRequest(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "request not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load request")
	}
	return c.JSON(http.StatusOK, view)
}
