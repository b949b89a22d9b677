// Package session owns the operator's authenticated identity.
//
// A Store is the process-wide session: one instance is built in main and
// handed to everything that needs to know who is logged in. Initialize,
// Login and Logout are its only mutators, apart from the transport client's
// 401 side-channel which can drop the session at any time.
// Callers must not overlap Login calls.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/fleetdesk/console/internal/apiclient"
	"github.com/fleetdesk/console/internal/navigation"
	"github.com/fleetdesk/console/internal/storage"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Authenticator is the slice of the transport client the store needs.
type Authenticator interface {
	Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

type Navigator interface {
	Navigate(path string)
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger.Named("session")
	}
}

// WithKeySet makes the store check token signatures before trusting their claims.
func WithKeySet(keySet oidc.KeySet) Option {
	return func(s *Store) {
		s.decoder = newDecoder(keySet)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	client  Authenticator
	storage storage.Store
	nav     Navigator
	decoder *decoder
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State
	user  *User
}

// NewStore builds an uninitialized session. If client can report 401s (like *apiclient.Client does),
// the store subscribes and drops the session whenever the backend rejects it.
func NewStore(client Authenticator, store storage.Store, nav Navigator, opts ...Option) *Store {
	s := &Store{
		client:  client,
		storage: store,
		nav:     nav,
		decoder: newDecoder(nil),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if notifier, ok := client.(interface{ OnUnauthorized(func()) }); ok {
		notifier.OnUnauthorized(s.invalidate)
	}

	return s
}

// Initialize restores the session from storage. No network call is made: a stored token that
// decodes and hasn't expired is trusted as is. It only does work the first time it is called.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLoading
	s.mu.Unlock()

	user, err := s.restore(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Someone logged in or out while we were reading storage, their outcome stands
	if s.state != StateLoading {
		return err
	}

	if user != nil {
		s.user = user
		s.state = StateAuthenticated
	} else {
		s.state = StateUnauthenticated
	}

	return err
}

func (s *Store) restore(ctx context.Context) (*User, error) {
	tok, err := storage.Token(ctx, s.storage)
	if err != nil {
		s.logger.Error("couldn't read persisted token", zap.Error(err))
		return nil, err
	}
	if tok == "" {
		return nil, nil
	}

	claims, err := s.decoder.decode(ctx, tok)
	if err != nil || claims.Expired(s.now()) {
		if err != nil {
			s.logger.Info("discarding undecodable token", zap.Error(err))
		} else {
			s.logger.Info("discarding expired token", zap.String("username", claims.Subject))
		}
		return nil, storage.ClearSession(ctx, s.storage)
	}

	user := userFromClaims(claims)

	cached, ok, err := s.storage.Get(ctx, storage.KeyUserProfile)
	if err != nil {
		s.logger.Warn("couldn't read cached profile", zap.Error(err))
	} else if ok {
		if err := user.mergeProfile(cached); err != nil {
			s.logger.Warn("ignoring corrupt cached profile", zap.Error(err))
		}
	}

	return user, nil
}

// Login authenticates against the backend and persists the token. The raw login result is returned
// so callers can read fields beyond the token. Nothing is persisted when it fails.
func (s *Store) Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.LoginResult, error) {
	res, err := s.client.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	tok := res.BearerToken()
	if tok == "" {
		s.logger.Error("login succeeded without a token", zap.String("username", creds.Username))
		return nil, apiclient.NewError(http.StatusInternalServerError, 0, "No token received from server", ErrMissingToken)
	}

	// An authenticated session always has a readable, unexpired token behind it
	claims, err := s.decoder.decode(ctx, tok)
	if err == nil && claims.Expired(s.now()) {
		err = ErrInvalidToken
	}
	if err != nil {
		s.logger.Error("login returned an unusable token", zap.String("username", creds.Username), zap.Error(err))
		return nil, apiclient.NewError(http.StatusInternalServerError, 0, "Invalid token received from server", err)
	}

	user := userFromClaims(claims)
	if err := s.persist(ctx, tok, user); err != nil {
		return nil, apiclient.NewError(http.StatusInternalServerError, 0, "Couldn't save the session", err)
	}

	s.mu.Lock()
	s.user = user
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.logger.Info("logged in", zap.String("username", user.Username), zap.Strings("roles", user.Roles))

	return res, nil
}

func (s *Store) persist(ctx context.Context, tok string, user *User) error {
	profile, err := user.profileJSON()
	if err != nil {
		return err
	}

	if err := s.storage.Set(ctx, storage.KeyAccessToken, tok); err != nil {
		return err
	}
	if err := s.storage.Set(ctx, storage.KeyUserProfile, profile); err != nil {
		// Never leave a token behind without its profile
		return errors.Join(err, storage.ClearSession(ctx, s.storage))
	}
	return nil
}

// Logout always ends the local session, then tells the backend on a best-effort basis.
// Calling it again is harmless.
func (s *Store) Logout(ctx context.Context) error {
	tok, readErr := storage.Token(ctx, s.storage)
	if readErr != nil {
		s.logger.Warn("couldn't read token for logout", zap.Error(readErr))
	}

	clearErr := storage.ClearSession(ctx, s.storage)

	s.mu.Lock()
	s.user = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if s.nav != nil {
		s.nav.Navigate(navigation.LoginPath)
	}

	if tok != "" {
		if err := s.client.Logout(ctx, tok); err != nil {
			s.logger.Debug("backend logout failed, ignoring", zap.Error(err))
		}
	}

	return clearErr
}

// Validate reports whether the session is still authenticated, expiring it if its token ran out.
func (s *Store) Validate(ctx context.Context) bool {
	s.mu.RLock()
	state, user := s.state, s.user
	s.mu.RUnlock()

	if state != StateAuthenticated {
		return false
	}
	if user.TokenExp > s.now().Unix() {
		return true
	}

	s.logger.Info("token expired", zap.String("username", user.Username))

	if err := storage.ClearSession(ctx, s.storage); err != nil {
		s.logger.Error("couldn't wipe expired session", zap.Error(err))
	}
	s.invalidate()

	return false
}

// invalidate drops an authenticated or still loading session. Storage is handled by whoever noticed.
// A restore in progress then finds the state moved on and leaves it alone.
func (s *Store) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAuthenticated || s.state == StateLoading {
		s.state = StateUnauthenticated
		s.user = nil
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) IsLoading() bool {
	state := s.State()
	return state == StateUninitialized || state == StateLoading
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAuthenticated && s.user != nil && s.user.TokenExp > s.now().Unix()
}

// User returns a copy of the current user, or nil when logged out.
func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return nil
	}
	return s.user.clone()
}
