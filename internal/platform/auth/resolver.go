// Package auth resolves bearer credentials to patient accounts and exposes
// the Echo middleware that gates routes on authentication and account status.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// Account lifecycle statuses. Transitions are driven by external events
// (email verification, moderation, erasure); the resolver only reads them.
const (
	StatusPendingVerification = "pending_verification"
	StatusActive              = "active"
	StatusSuspended           = "suspended"
	StatusDeleted             = "deleted"
)

// Failure reasons. These stay server-side: clients only ever see the status
// class and a generic message.
const (
	ReasonMissingCredentials = "missing_credentials"
	ReasonInvalidOrExpired   = "invalid_or_expired"
	ReasonInvalidSubject     = "invalid_subject"
	ReasonNotFound           = "not_found"
	ReasonDeleted            = "deleted"
	ReasonSuspended          = "suspended"
	ReasonInactive           = "inactive"
)

// Account is the resolver's view of an account: enough to identify the caller
// and apply status gating. Handlers that need the full profile load it from
// their own repository by ID.
type Account struct {
	ID     uuid.UUID
	Email  string
	Status string
}

// AccountLookup is the persistence capability the resolver needs. A nil
// account with a nil error means "no such account".
type AccountLookup interface {
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// Failure is the closed set of authentication outcomes short of success.
// StatusCode is either 401 or 403; Reason is one of the Reason* constants.
type Failure struct {
	StatusCode int
	Reason     string
}

func (f *Failure) Error() string {
	return "auth: " + f.Reason
}

// Unauthenticated reports whether the failure maps to 401.
func (f *Failure) Unauthenticated() bool {
	return f.StatusCode == http.StatusUnauthorized
}

func unauthenticated(reason string) *Failure {
	return &Failure{StatusCode: http.StatusUnauthorized, Reason: reason}
}

func forbidden(reason string) *Failure {
	return &Failure{StatusCode: http.StatusForbidden, Reason: reason}
}

// Resolver turns a bearer token into a validated account. It is stateless
// apart from immutable configuration and safe for concurrent use.
type Resolver struct {
	tokens   *security.TokenService
	accounts AccountLookup
}

func NewResolver(tokens *security.TokenService, accounts AccountLookup) *Resolver {
	return &Resolver{tokens: tokens, accounts: accounts}
}

// Resolve validates the bearer token and applies status gating. bearer is the
// raw token string, empty when no credentials were presented.
//
// Failure mapping: no credentials, an invalid/expired token, an unknown
// subject, and a deleted account are all unauthenticated (401, with distinct
// internal reasons); a suspended account is forbidden (403).
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*Account, *Failure) {
	if bearer == "" {
		return nil, unauthenticated(ReasonMissingCredentials)
	}

	claims, err := r.tokens.Verify(bearer, security.TokenTypeAccess)
	if err != nil {
		return nil, unauthenticated(ReasonInvalidOrExpired)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, unauthenticated(ReasonInvalidSubject)
	}

	account, err := r.accounts.FindAccountByID(ctx, accountID)
	if err != nil || account == nil {
		// Lookup errors are indistinguishable from "not found" to the caller;
		// leaking the difference would confirm account existence.
		return nil, unauthenticated(ReasonNotFound)
	}

	switch account.Status {
	case StatusDeleted:
		return nil, unauthenticated(ReasonDeleted)
	case StatusSuspended:
		return nil, forbidden(ReasonSuspended)
	}

	return account, nil
}

// ResolveActive is Resolve plus the active-only gate: any status other than
// active (e.g. pending_verification) is forbidden.
func (r *Resolver) ResolveActive(ctx context.Context, bearer string) (*Account, *Failure) {
	account, failure := r.Resolve(ctx, bearer)
	if failure != nil {
		return nil, failure
	}
	if account.Status != StatusActive {
		return nil, forbidden(ReasonInactive)
	}
	return account, nil
}

// ResolveOptional converts any failure into "no identity" for endpoints that
// serve anonymous callers but personalise responses for authenticated ones.
func (r *Resolver) ResolveOptional(ctx context.Context, bearer string) *Account {
	account, failure := r.Resolve(ctx, bearer)
	if failure != nil {
		return nil
	}
	return account
}
