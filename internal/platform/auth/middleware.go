package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const accountKey contextKey = "auth_account"

// Generic client-facing messages. Internal failure reasons are never sent to
// the client, so responses cannot be used to enumerate accounts or probe
// which verification step failed.
const (
	msgUnauthenticated = "not authenticated"
	msgForbidden       = "access denied"
)

// BearerFromHeader extracts the bearer token from the Authorization header.
// Absent or malformed headers yield the empty string, which the resolver
// treats as "no credentials presented".
func BearerFromHeader(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func failureToHTTPError(f *Failure) *echo.HTTPError {
	msg := msgForbidden
	if f.Unauthenticated() {
		msg = msgUnauthenticated
	}
	return echo.NewHTTPError(f.StatusCode, msg)
}

func withAccount(c echo.Context, account *Account) {
	ctx := context.WithValue(c.Request().Context(), accountKey, account)
	c.SetRequest(c.Request().WithContext(ctx))
}

// Require returns middleware that rejects requests without a resolvable
// account. Deleted accounts and invalid tokens get 401, suspended accounts
// get 403.
func Require(r *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account, failure := r.Resolve(c.Request().Context(), BearerFromHeader(c))
			if failure != nil {
				return failureToHTTPError(failure)
			}
			withAccount(c, account)
			return next(c)
		}
	}
}

// RequireActive is Require plus the active-only gate, used to block access
// until email verification completes.
func RequireActive(r *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account, failure := r.ResolveActive(c.Request().Context(), BearerFromHeader(c))
			if failure != nil {
				return failureToHTTPError(failure)
			}
			withAccount(c, account)
			return next(c)
		}
	}
}

// Optional resolves the caller when possible but never rejects the request.
// Handlers see a nil account for anonymous callers.
func Optional(r *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if account := r.ResolveOptional(c.Request().Context(), BearerFromHeader(c)); account != nil {
				withAccount(c, account)
			}
			return next(c)
		}
	}
}

// AccountFromContext returns the resolved account, or nil when the request
// was not authenticated.
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountKey).(*Account)
	return account
}
