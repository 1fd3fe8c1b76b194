// Package alerts implements the alert pipeline (C7): construction,
// de-duplication, dismiss-suppression, and durable JSON persistence of
// the Alert list described in spec section 3.
package alerts

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

const (
	dedupWindow    = 120 * time.Second
	suppressWindow = 300 * time.Second
)

// Store holds the in-memory alert list and the dismissed-signature
// suppression set, persisting the full alert list to a JSON file on
// every mutation (mirroring the original agent's write-through model).
type Store struct {
	mu        sync.RWMutex
	path      string
	alerts    []model.Alert
	dismissed map[string]time.Time
}

// NewStore loads path if it exists, or starts empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, dismissed: make(map[string]time.Time)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("alerts: reading store %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.alerts); err != nil {
		log.Printf("[Sentry:alerts] discarding unreadable alert store %s: %v", path, err)
		s.alerts = nil
	}
	return s, nil
}

func signature(alertType model.AlertType, pid *uint32, title string, severity model.AlertSeverity) string {
	pidValue := uint32(0)
	if pid != nil {
		pidValue = *pid
	}
	return fmt.Sprintf("%s:%d:%s:%s", alertType, pidValue, strings.ToLower(title), strings.ToLower(string(severity)))
}

// Push constructs and stores an Alert if it survives de-duplication
// (matching pid+type+title within 120s) and suppression (matching
// signature present in dismissed within 300s). Returns the accepted
// alert, or nil if rejected.
func (s *Store) Push(alertType model.AlertType, severity model.AlertSeverity, pid *uint32, title, description string, evidence []string, now time.Time) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.alerts {
		if existing.AlertType != alertType || existing.Title != title {
			continue
		}
		if samePID(existing.PID, pid) && now.Sub(existing.Timestamp) < dedupWindow {
			return nil, nil
		}
	}

	sig := signature(alertType, pid, title, severity)
	s.pruneDismissedLocked(now)
	if dismissedAt, ok := s.dismissed[sig]; ok && now.Sub(dismissedAt) < suppressWindow {
		return nil, nil
	}

	alert := model.Alert{
		ID:          uuid.NewString(),
		AlertType:   alertType,
		Severity:    severity,
		PID:         pid,
		Title:       title,
		Description: description,
		Evidence:    evidence,
		Timestamp:   now,
		Status:      model.AlertStatusActive,
	}
	s.alerts = append(s.alerts, alert)
	if err := s.persistLocked(); err != nil {
		return &alert, err
	}
	return &alert, nil
}

func samePID(a, b *uint32) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func (s *Store) pruneDismissedLocked(now time.Time) {
	for sig, at := range s.dismissed {
		if now.Sub(at) >= suppressWindow {
			delete(s.dismissed, sig)
		}
	}
}

// Acknowledge transitions an active alert to acknowledged.
func (s *Store) Acknowledge(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id && s.alerts[i].Status == model.AlertStatusActive {
			s.alerts[i].Status = model.AlertStatusAcknowledged
			return true, s.persistLocked()
		}
	}
	return false, nil
}

// Delete removes an alert by id and, if it was active, writes its
// signature to the dismissed set so an identical alert is suppressed
// for the next 300 seconds.
func (s *Store) Delete(id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.alerts {
		if a.ID != id {
			continue
		}
		if a.Status == model.AlertStatusActive {
			s.dismissed[signature(a.AlertType, a.PID, a.Title, a.Severity)] = now
		}
		s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
		return true, s.persistLocked()
	}
	return false, nil
}

// DeleteAllActive removes every currently active alert, suppressing
// each of their signatures, and returns the count removed.
func (s *Store) DeleteAllActive(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []model.Alert
	removed := 0
	for _, a := range s.alerts {
		if a.Status == model.AlertStatusActive {
			s.dismissed[signature(a.AlertType, a.PID, a.Title, a.Severity)] = now
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	if removed > 0 {
		return removed, s.persistLocked()
	}
	return 0, nil
}

// Active returns active alerts, newest first.
func (s *Store) Active() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []model.Alert
	for _, a := range s.alerts {
		if a.Status == model.AlertStatusActive {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.After(list[j].Timestamp) })
	return list
}

// History returns every alert, newest first.
func (s *Store) History() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := append([]model.Alert(nil), s.alerts...)
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.After(list[j].Timestamp) })
	return list
}

func (s *Store) persistLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("alerts: creating store directory %s: %w", dir, err)
		}
	}
	payload, err := json.MarshalIndent(s.alerts, "", "  ")
	if err != nil {
		return fmt.Errorf("alerts: serializing store: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("alerts: writing store %s: %w", s.path, err)
	}
	return nil
}
