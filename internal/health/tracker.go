// Package health tracks per-model upstream health so routing can skip
// backends that are known to be dead.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// CheckResult is one observed invocation outcome.
type CheckResult struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Status is the current view of one model backend.
type Status struct {
	ID                  string        `json:"id"`
	Healthy             bool          `json:"healthy"`
	Disabled            bool          `json:"disabled"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	History             []CheckResult `json:"history"`
}

// Tracker records invocation outcomes per descriptor id. A backend goes
// unhealthy after consecutive failures and comes back on the next success.
// Disable is one way for the process lifetime: it marks credentials bad.
type Tracker struct {
	mu          sync.RWMutex
	statuses    map[string]*Status
	threshold   int
	historySize int
	logger      *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		statuses:    make(map[string]*Status),
		threshold:   3,
		historySize: 10,
		logger:      logger,
	}
}

func (t *Tracker) status(id string) *Status {
	s, ok := t.statuses[id]
	if !ok {
		s = &Status{ID: id, Healthy: true}
		t.statuses[id] = s
	}
	return s
}

// MarkSuccess records a successful invocation.
func (t *Tracker) MarkSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status(id)
	s.Healthy = true
	s.ConsecutiveFailures = 0
	s.LastError = ""
	t.appendHistory(s, CheckResult{Timestamp: time.Now(), Success: true})
}

// MarkFailure records a failed invocation.
func (t *Tracker) MarkFailure(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status(id)
	s.ConsecutiveFailures++
	s.LastError = err.Error()
	if s.ConsecutiveFailures >= t.threshold {
		s.Healthy = false
	}
	t.appendHistory(s, CheckResult{Timestamp: time.Now(), Success: false, Error: err.Error()})
	t.logger.Debug("model failure recorded", "model", id,
		"consecutive", s.ConsecutiveFailures, "healthy", s.Healthy)
}

// Disable takes a backend out of rotation for the rest of the process.
// Used when the upstream rejects our credentials.
func (t *Tracker) Disable(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status(id)
	s.Disabled = true
	s.Healthy = false
	s.LastError = err.Error()
	t.appendHistory(s, CheckResult{Timestamp: time.Now(), Success: false, Error: err.Error()})
	t.logger.Warn("model disabled", "model", id, "error", err.Error())
}

func (t *Tracker) appendHistory(s *Status, res CheckResult) {
	s.History = append(s.History, res)
	if len(s.History) > t.historySize {
		s.History = s.History[1:]
	}
}

// Available reports whether routing may still offer this backend.
func (t *Tracker) Available(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[id]
	if !ok {
		return true
	}
	return !s.Disabled
}

// Snapshot copies the current statuses.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.statuses))
	for id, s := range t.statuses {
		cp := *s
		cp.History = append([]CheckResult(nil), s.History...)
		out[id] = cp
	}
	return out
}

// Handler serves the status snapshot as JSON.
func (t *Tracker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(t.Snapshot()); err != nil {
			http.Error(w, "Encode error", http.StatusInternalServerError)
		}
	}
}
