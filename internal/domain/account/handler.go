package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth and user endpoints. Email verification only
// needs an authenticated account (it is what activates one), so it sits behind
// Require rather than RequireActive.
func (h *Handler) RegisterRoutes(api *echo.Group, resolver *auth.Resolver) {
	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", h.Logout)
	authGroup.POST("/verify-email", h.VerifyEmail, auth.Require(resolver))
	authGroup.POST("/change-password", h.ChangePassword, auth.RequireActive(resolver))

	users := api.Group("/users", auth.RequireActive(resolver))
	users.GET("/me", h.GetProfile)
	users.PUT("/me", h.UpdateProfile)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Register(c.Request().Context(), in, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		}
		if errors.Is(err, ErrWeakPassword) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, "registration failed")
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"id":     a.ID,
		"email":  a.Email,
		"status": a.Status,
	})
}

type loginRequest struct {
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	DeviceInfo *string `json:"device_info,omitempty"`
}

func (h *Handler) Login(c echo.Context) error {
	var in loginRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	pair, err := h.svc.Login(c.Request().Context(), in.Email, in.Password, in.DeviceInfo, audit.MetaFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, ErrAccountDisabled):
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
		}
	}
	return c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(c echo.Context) error {
	var in refreshRequest
	if err := c.Bind(&in); err != nil || in.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	pair, err := h.svc.Refresh(c.Request().Context(), in.RefreshToken, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed")
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c echo.Context) error {
	var in refreshRequest
	if err := c.Bind(&in); err != nil || in.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	if err := h.svc.Logout(c.Request().Context(), in.RefreshToken, audit.MetaFromRequest(c)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	err := h.svc.VerifyEmail(c.Request().Context(), actor.ID, audit.MetaFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			return echo.NewHTTPError(http.StatusConflict, "account is not pending verification")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "verification failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": StatusActive})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	var in changePasswordRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.svc.ChangePassword(c.Request().Context(), actor.ID, in.CurrentPassword, in.NewPassword, audit.MetaFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, ErrWeakPassword):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "password change failed")
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetProfile(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	profile, err := h.svc.Profile(c.Request().Context(), actor.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	actor := auth.AccountFromContext(c.Request().Context())

	var in UpdateProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	profile, err := h.svc.UpdateProfile(c.Request().Context(), actor.ID, in, audit.MetaFromRequest(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update profile")
	}
	return c.JSON(http.StatusOK, profile)
}
