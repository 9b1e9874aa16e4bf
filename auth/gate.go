// Package auth implements the application's single authentication gate:
// anonymous sign-in for the public site and credentialed sign-in for the
// admin dashboard. Subscriptions must not open until the gate yields a
// non-nil user; the sync manager observes the gate for exactly that.
package auth

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned for a failed credentialed sign-in.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// User is the gate's current identity.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
	Admin     bool   `json:"admin"`
}

// Credentials is the single admin account the gate validates against.
type Credentials struct {
	Email    string
	Password string
}

// Gate holds the current user and notifies observers on every transition.
// Observers registered while a user is present fire immediately, so late
// binders converge on the current state.
type Gate struct {
	credentials Credentials
	logger      *zap.Logger

	mu        sync.Mutex
	user      *User
	observers map[int]func(signedIn bool)
	nextID    int
}

// NewGate creates a signed-out Gate validating against the given admin
// credentials. A nil logger falls back to a no-op logger.
func NewGate(credentials Credentials, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		credentials: credentials,
		logger:      logger,
		observers:   make(map[int]func(signedIn bool)),
	}
}

// CurrentUser returns the signed-in user, or nil.
func (g *Gate) CurrentUser() *User {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.user == nil {
		return nil
	}
	u := *g.user
	return &u
}

// SignInAnonymously establishes an anonymous session. The public site signs
// in this way before opening any subscription.
func (g *Gate) SignInAnonymously() *User {
	user := &User{ID: uuid.New().String(), Anonymous: true}
	g.setUser(user)
	g.logger.Info("anonymous sign-in", zap.String("user", user.ID))
	return user
}

// SignInWithCredentials establishes an admin session when the credentials
// match, or returns ErrInvalidCredentials.
func (g *Gate) SignInWithCredentials(email, password string) (*User, error) {
	if email != g.credentials.Email || password != g.credentials.Password {
		g.logger.Warn("failed credentialed sign-in", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}
	user := &User{ID: uuid.New().String(), Email: email, Admin: true}
	g.setUser(user)
	g.logger.Info("admin sign-in", zap.String("email", email))
	return user, nil
}

// SignOut clears the current user. Observers fire with signedIn=false.
func (g *Gate) SignOut() {
	g.setUser(nil)
}

func (g *Gate) setUser(user *User) {
	g.mu.Lock()
	g.user = user
	observers := make([]func(bool), 0, len(g.observers))
	for _, fn := range g.observers {
		observers = append(observers, fn)
	}
	g.mu.Unlock()

	for _, fn := range observers {
		fn(user != nil)
	}
}

// OnSignedIn registers an observer for sign-in state transitions. It fires
// immediately with the current state and returns an idempotent unsubscribe
// function.
func (g *Gate) OnSignedIn(fn func(signedIn bool)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.observers[id] = fn
	signedIn := g.user != nil
	g.mu.Unlock()

	fn(signedIn)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.observers, id)
			g.mu.Unlock()
		})
	}
}
