// Package navigation tracks where the operator currently is in the console
// and performs forced moves to the login screen.
package navigation

import (
	"strings"
	"sync"
)

const (
	LoginPath     = "/login"
	HomePath      = "/"
	DashboardPath = "/dashboard"
)

type Router struct {
	mu        sync.Mutex
	location  string
	redirects int
}

func NewRouter() *Router {
	return &Router{location: HomePath}
}

func (r *Router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// Visit records a location the operator reached on their own.
func (r *Router) Visit(path string) {
	r.mu.Lock()
	r.location = path
	r.mu.Unlock()
}

// Navigate forces a move, even to the current location.
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	r.location = path
	r.redirects++
	r.mu.Unlock()
}

// RedirectToLogin moves to the login screen unless already there. Concurrent callers
// race on one lock, so only the first of them actually moves.
func (r *Router) RedirectToLogin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if IsLoginPath(r.location) {
		return false
	}
	r.location = LoginPath
	r.redirects++
	return true
}

// Number of forced navigations so far
func (r *Router) Redirects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redirects
}

func IsLoginPath(path string) bool {
	return strings.Contains(path, LoginPath)
}
