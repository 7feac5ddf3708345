package router

import (
	"errors"

	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/clock"
	"github.com/nkiryanov/edps/internal/credstore"
	"github.com/nkiryanov/edps/internal/logger"
	"github.com/nkiryanov/edps/internal/models"
)

// Session state the guard consults
type Session interface {
	IsAuthenticated() bool
	IsAdmin() bool
	Logout()
}

// Credentials gives persisted token with its expiry
type Credentials interface {
	Load() (models.Credential, credstore.Scope, error)
}

// Decision of the guard for one transition. Empty Redirect means allowed
type Decision struct {
	Redirect string
	Reason   string
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Guard runs before every navigation
type Guard struct {
	session Session
	creds   Credentials
	clock   clock.Clock
	logger  logger.Logger
}

func NewGuard(session Session, creds Credentials, c clock.Clock, l logger.Logger) *Guard {
	return &Guard{session: session, creds: creds, clock: c, logger: l}
}

// Check decides whether navigation to the route may proceed
func (g *Guard) Check(to Route) Decision {
	if g.persistedExpired() {
		g.session.Logout()
		return Decision{Redirect: LoginPath, Reason: apperrors.ErrSessionExpired.Error()}
	}

	if to.RequiresAuth && !g.session.IsAuthenticated() {
		return Decision{Redirect: LoginPath, Reason: apperrors.ErrNotAuthenticated.Error()}
	}

	if to.RequiresAdmin && !g.session.IsAdmin() {
		return Decision{Redirect: HomePath, Reason: "admin role required"}
	}

	return Decision{}
}

// Unreadable persisted credential counts as expired
func (g *Guard) persistedExpired() bool {
	cred, scope, err := g.creds.Load()
	switch {
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		return false
	case err != nil:
		g.logger.Warn("Persisted credential is unreadable", "error", err)
		return true
	}

	if cred.Expired(g.clock.Now()) {
		g.logger.Debug("Persisted token expired", "scope", scope, "expired_at", cred.ExpiresAt)
		return true
	}
	return false
}
