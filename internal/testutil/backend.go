package testutil

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/edps/internal/models"
)

const (
	// Prefix every backend endpoint is mounted on
	APIPrefix = "/api"

	defaultBackendSecret   = "test-secret-key"
	defaultBackendTokenTTL = 15 * time.Minute
)

type backendUser struct {
	user models.User
	hash []byte
}

// Backend is in-memory dashboard API for tests
// Issues HS256 access tokens; refresh accepts expired but correctly signed ones
type Backend struct {
	Server *httptest.Server

	mux    *http.ServeMux
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu          sync.Mutex
	users       map[string]backendUser
	revoked     map[string]bool
	calls       map[string]int
	auth        map[string]string
	failRefresh bool
	failMe      bool
}

type BackendOption func(*Backend)

// WithBackendClock makes backend issue and check tokens against the clock time
func WithBackendClock(now func() time.Time) BackendOption {
	return func(b *Backend) {
		b.now = now
	}
}

func WithTokenTTL(ttl time.Duration) BackendOption {
	return func(b *Backend) {
		b.ttl = ttl
	}
}

// Start backend and stop it when test finishes
func NewBackend(t *testing.T, opts ...BackendOption) *Backend {
	t.Helper()

	b := &Backend{
		mux:     http.NewServeMux(),
		secret:  []byte(defaultBackendSecret),
		ttl:     defaultBackendTokenTTL,
		now:     time.Now,
		users:   make(map[string]backendUser),
		revoked: make(map[string]bool),
		calls:   make(map[string]int),
		auth:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.mux.HandleFunc("POST "+APIPrefix+"/auth/login", b.login)
	b.mux.HandleFunc("POST "+APIPrefix+"/auth/refresh", b.refresh)
	b.mux.HandleFunc("GET "+APIPrefix+"/auth/me", b.me)
	b.mux.HandleFunc("POST "+APIPrefix+"/auth/logout", b.logout)

	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Server.Close)

	return b
}

// URL the API client should use as base
func (b *Backend) URL() string {
	return b.Server.URL + APIPrefix
}

// Handle adds extra endpoint. Pattern path is relative to APIPrefix, e.g. "GET /students/summary"
func (b *Backend) Handle(pattern string, h http.HandlerFunc) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		method, path = "", pattern
	}
	b.mux.HandleFunc(strings.TrimSpace(method+" "+APIPrefix+path), h)
}

// AddUser registers user that may log in with the password
func (b *Backend) AddUser(t *testing.T, user models.User, password string) {
	t.Helper()

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[user.Email] = backendUser{user: user, hash: hash}
}

// IssueToken signs access token for the user email that expires at the time
func (b *Backend) IssueToken(t *testing.T, email string, expiresAt time.Time) string {
	t.Helper()

	token, err := b.issue(email, expiresAt)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// Calls returns how many requests the path received. Path is relative to APIPrefix
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// Authorization returns the header of the last request to the path
func (b *Backend) Authorization(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[path]
}

func (b *Backend) SetFailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = fail
}

func (b *Backend) SetFailMe(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failMe = fail
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)

	b.mu.Lock()
	b.calls[path]++
	b.auth[path] = r.Header.Get("Authorization")
	b.mu.Unlock()

	b.mux.ServeHTTP(w, r)
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" {
		WriteDetail(w, http.StatusUnprocessableEntity, "form body expected")
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	email := r.PostForm.Get("username")
	sum := sha256.Sum256([]byte(r.PostForm.Get("password")))

	b.mu.Lock()
	u, ok := b.users[email]
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.hash, sum[:]) != nil {
		WriteDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	b.writeToken(w, email)
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fail := b.failRefresh
	b.mu.Unlock()
	if fail {
		WriteDetail(w, http.StatusUnauthorized, "Could not refresh token")
		return
	}

	// Expired token may still be exchanged
	claims, err := b.parse(r, jwt.WithoutClaimsValidation())
	if err != nil {
		WriteDetail(w, http.StatusUnauthorized, err.Error())
		return
	}

	b.writeToken(w, claims.Subject)
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fail := b.failMe
	b.mu.Unlock()
	if fail {
		WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	claims, err := b.parse(r)
	if err != nil {
		WriteDetail(w, http.StatusUnauthorized, err.Error())
		return
	}

	b.mu.Lock()
	u, ok := b.users[claims.Subject]
	b.mu.Unlock()
	if !ok {
		WriteDetail(w, http.StatusNotFound, "User not found")
		return
	}

	WriteJSON(w, http.StatusOK, u.user)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	claims, err := b.parse(r, jwt.WithoutClaimsValidation())
	if err != nil {
		WriteDetail(w, http.StatusUnauthorized, err.Error())
		return
	}

	b.mu.Lock()
	b.revoked[claims.ID] = true
	b.mu.Unlock()

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (b *Backend) writeToken(w http.ResponseWriter, email string) {
	token, err := b.issue(email, b.now().Add(b.ttl))
	if err != nil {
		WriteDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, models.AccessToken{Value: token, Type: "bearer"})
}

func (b *Backend) issue(email string, expiresAt time.Time) (string, error) {
	now := b.now().Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("error while signing access token. Err: %w", err)
	}
	return signed, nil
}

func (b *Backend) parse(r *http.Request, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, errors.New("not authenticated")
	}

	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not validate credentials: %w", err)
	}

	b.mu.Lock()
	revoked := b.revoked[claims.ID]
	b.mu.Unlock()
	if revoked {
		return nil, errors.New("token has been revoked")
	}

	return claims, nil
}

// WriteJSON writes v as JSON response
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteDetail writes error body the way dashboard backend does
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]string{"detail": detail})
}
