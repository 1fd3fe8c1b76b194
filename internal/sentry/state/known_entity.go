package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// KnownEntityStore persists user-maintained trust overrides keyed by
// (kind, key), matching §6's known_entities.json layout.
type KnownEntityStore struct {
	mu       sync.RWMutex
	path     string
	entities []model.KnownEntity
}

// NewKnownEntityStore loads path if present, or starts empty.
func NewKnownEntityStore(path string) (*KnownEntityStore, error) {
	s := &KnownEntityStore{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("state: reading known entity store %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.entities); err != nil {
		s.entities = nil
	}
	return s, nil
}

// Upsert inserts or updates the override for (kind, key), bumping
// created_at whenever the label or trust level actually changes.
func (s *KnownEntityStore) Upsert(kind model.KnownEntityKind, key string, trustLevel *model.TrustLevel, label *string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entities {
		if s.entities[i].Kind != kind || s.entities[i].Key != key {
			continue
		}
		if trustLevelEqual(s.entities[i].TrustLevel, trustLevel) && stringPtrEqual(s.entities[i].Label, label) {
			return false, nil
		}
		s.entities[i].TrustLevel = trustLevel
		s.entities[i].Label = label
		s.entities[i].CreatedAt = now
		return true, s.persistLocked()
	}

	s.entities = append(s.entities, model.KnownEntity{
		Kind:       kind,
		Key:        key,
		Label:      label,
		TrustLevel: trustLevel,
		CreatedAt:  now,
	})
	return true, s.persistLocked()
}

// Find returns the most-recently-created entity matching any of keys
// for kind, since multiple normalized keys (exe_path, install
// location, name) may each carry their own override.
func (s *KnownEntityStore) Find(kind model.KnownEntityKind, keys []string) (model.KnownEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best model.KnownEntity
	found := false
	for _, entity := range s.entities {
		if entity.Kind != kind {
			continue
		}
		matched := false
		for _, key := range keys {
			if entity.Key == key {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !found || entity.CreatedAt.After(best.CreatedAt) {
			best = entity
			found = true
		}
	}
	return best, found
}

// All returns every stored entity.
func (s *KnownEntityStore) All() []model.KnownEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.KnownEntity(nil), s.entities...)
}

func (s *KnownEntityStore) persistLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state: creating known entity directory %s: %w", dir, err)
		}
	}
	payload, err := json.MarshalIndent(s.entities, "", "  ")
	if err != nil {
		return fmt.Errorf("state: serializing known entities: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("state: writing known entity store %s: %w", s.path, err)
	}
	return nil
}

func trustLevelEqual(a, b *model.TrustLevel) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
