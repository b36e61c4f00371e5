package health

import (
	"errors"
	"net/http"
	"time"

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
	g := api.Group("/health", auth.RequireActive(resolver))

	g.POST("/measurements", h.CreateMeasurement)
	g.GET("/measurements", h.ListMeasurements)
	g.GET("/measurements/:id", h.GetMeasurement)
	g.DELETE("/measurements/:id", h.DeleteMeasurement)

	g.POST("/symptoms", h.CreateSymptom)
	g.GET("/symptoms", h.ListSymptoms)
	g.GET("/symptoms/:id", h.GetSymptom)
	g.DELETE("/symptoms/:id", h.DeleteSymptom)
}

func (h *Handler) CreateMeasurement(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	var in CreateMeasurementInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := h.svc.CreateMeasurement(c.Request().Context(), actor.ID, in, audit.MetaFromRequest(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) ListMeasurements(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	var f MeasurementFilter
	if v := c.QueryParam("type"); v != "" {
		f.Type = &v
	}
	if v := c.QueryParam("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = &ts
	}
	if v := c.QueryParam("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = &ts
	}

	items, total, err := h.svc.ListMeasurements(c.Request().Context(), actor.ID, f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list measurements")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMeasurement(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.svc.GetMeasurement(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "measurement not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load measurement")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteMeasurement(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.DeleteMeasurement(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "measurement not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete measurement")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateSymptom(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	var in CreateSymptomInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := h.svc.CreateSymptom(c.Request().Context(), actor.ID, in, audit.MetaFromRequest(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) ListSymptoms(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListSymptoms(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list symptoms")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetSymptom(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	view, err := h.svc.GetSymptom(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "symptom not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load symptom")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteSymptom(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.svc.DeleteSymptom(c.Request().Context(), actor.ID, id, audit.MetaFromRequest(c)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "symptom not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete symptom")
	}
	return c.NoContent(http.StatusNoContent)
}
