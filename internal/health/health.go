// Package health serves the liveness and readiness probes of the Kojo admin
// HTTP listener.
//
//   - /healthz: liveness, always 200 while the process can serve HTTP.
//   - /readyz: readiness, 200 only when every registered [Checker] passes.
//     Kojo registers the Discord gateway and the classifier breakers here.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kojo/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named health check.
type Checker struct {
	// Name appears as a key in the JSON response.
	Name string

	// Check returns nil when the dependency is healthy. It must respect
	// context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers concurrently on
// each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each
// checker gets its own [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
		g      errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ErrGatewayDown is reported by [Gateway] while the Discord session is not
// connected.
var ErrGatewayDown = errors.New("discord gateway not connected")

// Gateway reports ready while connected returns true.
func Gateway(connected func() bool) Checker {
	return Checker{Name: "discord", Check: func(context.Context) error {
		if !connected() {
			return ErrGatewayDown
		}
		return nil
	}}
}

// Breakers fails when every breaker in a provider chain is open, which
// means the chain can only answer with its fail-closed fallback.
func Breakers(name string, breakers []*resilience.CircuitBreaker) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if len(breakers) == 0 {
			return nil
		}
		for _, cb := range breakers {
			if cb.State() != resilience.StateOpen {
				return nil
			}
		}
		return fmt.Errorf("all %d backends have open circuit breakers", len(breakers))
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
