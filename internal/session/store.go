package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nkiryanov/edps/internal/apiclient"
	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/clock"
	"github.com/nkiryanov/edps/internal/credstore"
	"github.com/nkiryanov/edps/internal/logger"
	"github.com/nkiryanov/edps/internal/models"
)

const (
	// Refresh is scheduled this long before token expiry
	RefreshLeadTime = 60 * time.Second

	PathRefresh = "/auth/refresh"
	PathMe      = "/auth/me"
	PathLogout  = "/auth/logout"

	defaultRefreshTimeout = 30 * time.Second
)

var errRefreshSuperseded = errors.New("session changed during refresh")

// API is the part of HTTP client the session needs
type API interface {
	Do(ctx context.Context, method string, path string, body any, out any) error
	PostForm(ctx context.Context, path string, form url.Values, out any) error

	// Default bearer credential for every following request
	SetBearer(token string)
	ClearBearer()
}

// Store is the sole owner of authentication state
// Construct one per process with New and change it only with its methods
type Store struct {
	api    API
	creds  *credstore.Store
	clock  clock.Clock
	logger logger.Logger

	refreshTimeout time.Duration

	mu      sync.Mutex
	token   string
	user    *models.User
	expiry  time.Time
	refresh clock.Timer

	// Bumped on every token install and logout. Scheduled refresh fires only if it still matches
	generation uint64
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithRefreshTimeout limits scheduled refresh request duration
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.refreshTimeout = d
	}
}

func New(api API, creds *credstore.Store, opts ...Option) (*Store, error) {
	if api == nil || creds == nil {
		return nil, errors.New("api and credential store must not be nil")
	}

	s := &Store{
		api:            api,
		creds:          creds,
		clock:          clock.System{},
		logger:         logger.NewNoOpLogger(),
		refreshTimeout: defaultRefreshTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Login exchanges credentials for a token and loads user profile
// On any failure session is left empty and apperrors.ErrAuthenticationFailed returned; the cause is only logged
func (s *Store) Login(ctx context.Context, identifier string, secret string, remember bool) error {
	form := url.Values{}
	form.Set("username", identifier)
	form.Set("password", secret)

	var resp models.AccessToken
	if err := s.api.PostForm(ctx, apiclient.LoginPath, form, &resp); err != nil {
		return s.failLogin(identifier, err)
	}

	if err := s.SetToken(resp.Value, remember); err != nil {
		return s.failLogin(identifier, err)
	}

	if err := s.FetchMe(ctx); err != nil {
		return s.failLogin(identifier, err)
	}

	s.logger.Info("Logged in", "user", identifier, "scope", credstore.ScopeFor(remember))
	return nil
}

func (s *Store) failLogin(identifier string, cause error) error {
	s.logger.Warn("Login failed", "user", identifier, "error", cause)
	s.Logout()
	return apperrors.ErrAuthenticationFailed
}

// SetToken installs token as active credential
// Persists it to durable tier if remember, else to ephemeral tier, and schedules refresh RefreshLeadTime before expiry
// If the lead time already passed nothing is scheduled
func (s *Store) SetToken(token string, remember bool) error {
	return s.setToken(token, remember, nil)
}

// setToken installs token. With generation set, token is installed only if session was not
// logged out or replaced since that generation
func (s *Store) setToken(token string, remember bool, generation *uint64) error {
	claims, err := DecodeClaims(token)
	if err != nil {
		return err
	}
	expiry := claims.ExpiresAt.Time
	scope := credstore.ScopeFor(remember)

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != nil && (*generation != s.generation || s.token == "") {
		return errRefreshSuperseded
	}

	if err := s.creds.Save(scope, models.Credential{Token: token, ExpiresAt: expiry}); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	s.token = token
	s.expiry = expiry
	s.api.SetBearer(token)
	s.scheduleRefreshLocked(expiry)

	return nil
}

// RefreshToken asks backend for a new token using current credential
// Keeps the tier previously used. Any failure logs out, there is no retry
func (s *Store) RefreshToken(ctx context.Context) error {
	err := s.refreshToken(ctx)
	switch {
	case errors.Is(err, errRefreshSuperseded):
		s.logger.Debug("Refreshed token dropped, session changed while request was in flight")
		return fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, apperrors.ErrNotAuthenticated)
	case err != nil:
		s.logger.Warn("Token refresh failed", "error", err)
		s.Logout()
		return fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}

	return nil
}

func (s *Store) refreshToken(ctx context.Context) error {
	s.mu.Lock()
	generation := s.generation
	authenticated := s.token != ""
	s.mu.Unlock()

	if !authenticated {
		return apperrors.ErrNotAuthenticated
	}

	scope, err := s.creds.Scope()
	if err != nil {
		return fmt.Errorf("read credential scope: %w", err)
	}

	var resp models.AccessToken
	if err := s.api.Do(ctx, http.MethodPost, PathRefresh, nil, &resp); err != nil {
		return err
	}

	if err := s.setToken(resp.Value, scope.Remember(), &generation); err != nil {
		return err
	}

	s.logger.Debug("Token refreshed", "scope", scope)
	return nil
}

// FetchMe loads user profile. Failure is treated as invalid session and logs out
func (s *Store) FetchMe(ctx context.Context) error {
	var user models.User
	err := s.api.Do(ctx, http.MethodGet, PathMe, nil, &user)
	if err == nil && user.Role == "" {
		err = errors.New("profile has no role")
	}
	if err != nil {
		s.logger.Warn("Failed to fetch user profile", "error", err)
		s.Logout()
		return fmt.Errorf("%w: %w", apperrors.ErrProfileUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Logout happened while request was in flight
	if s.token == "" {
		return fmt.Errorf("%w: %w", apperrors.ErrProfileUnavailable, apperrors.ErrNotAuthenticated)
	}
	s.user = &user

	return nil
}

// Logout clears token, profile, both persisted tiers and default bearer, and cancels pending refresh
// Safe to call on empty session
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasAuthenticated := s.token != ""

	s.token = ""
	s.user = nil
	s.expiry = time.Time{}
	s.generation++
	s.stopRefreshLocked()

	if err := s.creds.Clear(); err != nil {
		s.logger.Error("Failed to clear persisted credential", "error", err)
	}
	s.api.ClearBearer()

	if wasAuthenticated {
		s.logger.Info("Logged out")
	}
}

// SignOut tells backend to invalidate issued tokens and logs out locally
// Backend failure is logged only: local logout always happens
func (s *Store) SignOut(ctx context.Context) {
	if s.IsAuthenticated() {
		if err := s.api.Do(ctx, http.MethodPost, PathLogout, nil, nil); err != nil {
			s.logger.Warn("Backend logout failed", "error", err)
		}
	}

	s.Logout()
}

// CheckTokenExpiration logs out if persisted expiry (any tier) is in the past
// Reports whether the session was torn down
func (s *Store) CheckTokenExpiration() bool {
	expiry, ok, err := s.creds.Expiry()
	if err != nil {
		s.logger.Warn("Persisted credential is unreadable", "error", err)
		s.Logout()
		return true
	}

	if ok && s.clock.Now().After(expiry) {
		s.logger.Info("Session expired", "reason", apperrors.ErrSessionExpired, "expired_at", expiry)
		s.Logout()
		return true
	}

	return false
}

// TryAutoLogin restores session from persisted credential
// Expired credential is refreshed, valid one installed as is (tier kept). Profile is fetched in both cases
func (s *Store) TryAutoLogin(ctx context.Context) error {
	cred, scope, err := s.creds.Load()
	switch {
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		return nil
	case err != nil:
		s.logger.Warn("Persisted credential is unreadable", "error", err)
		s.Logout()
		return nil
	}

	if cred.Expired(s.clock.Now()) {
		s.logger.Debug("Persisted token expired, trying refresh", "scope", scope, "expired_at", cred.ExpiresAt)
		s.installStale(cred)
		if err := s.RefreshToken(ctx); err != nil {
			return err
		}
		return s.FetchMe(ctx)
	}

	if err := s.SetToken(cred.Token, scope.Remember()); err != nil {
		s.logger.Warn("Persisted token rejected", "error", err)
		s.Logout()
		return err
	}

	return s.FetchMe(ctx)
}

// installStale makes expired token the credential context for refresh request. Nothing is scheduled
func (s *Store) installStale(cred models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = cred.Token
	s.expiry = cred.ExpiresAt
	s.api.SetBearer(cred.Token)
}

// UpdateUser replaces cached profile
func (s *Store) UpdateUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" {
		return
	}
	s.user = &user
}

// Close cancels pending refresh but keeps persisted credential. Call when the process stops
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.stopRefreshLocked()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Expiry of the active token; zero if none
func (s *Store) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

// User returns a copy of profile and false if not loaded
func (s *Store) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *Store) Roles() string {
	user, _ := s.User()
	return user.Role
}

func (s *Store) IsAdmin() bool {
	user, ok := s.User()
	return ok && user.IsAdmin()
}

func (s *Store) IsAdvisor() bool {
	user, ok := s.User()
	return ok && user.IsAdvisor()
}

func (s *Store) scheduleRefreshLocked(expiry time.Time) {
	s.stopRefreshLocked()
	s.generation++

	delay := expiry.Sub(s.clock.Now()) - RefreshLeadTime
	if delay <= 0 {
		s.logger.Debug("Refresh lead time passed, relying on expiry checks", "expires_at", expiry)
		return
	}

	generation := s.generation
	s.refresh = s.clock.AfterFunc(delay, func() {
		s.onRefreshTimer(generation)
	})
	s.logger.Debug("Token refresh scheduled", "in", delay)
}

func (s *Store) stopRefreshLocked() {
	if s.refresh != nil {
		s.refresh.Stop()
		s.refresh = nil
	}
}

func (s *Store) onRefreshTimer(generation uint64) {
	s.mu.Lock()
	if generation != s.generation || s.token == "" {
		s.mu.Unlock()
		return
	}
	s.refresh = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	// Failure already logged and the session is empty now
	_ = s.RefreshToken(ctx)
}
