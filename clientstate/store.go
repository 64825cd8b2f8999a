// Package clientstate persists per-user dashboard state (favorites and price
// alerts) in a local JSON file. It is deliberately server-free: the file
// belongs to one user on one machine.
package clientstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"carscout/models"
)

// schemaVersion is bumped whenever the on-disk layout changes; Open migrates
// older files forward before use.
const schemaVersion = 2

// Alert conditions.
const (
	ConditionBelow = "below"
	ConditionAbove = "above"
)

var (
	// ErrAlertNotFound is returned for operations on unknown alert ids.
	ErrAlertNotFound = errors.New("clientstate: alert not found")
	// ErrBadCondition is returned when an alert condition is neither
	// "below" nor "above".
	ErrBadCondition = errors.New("clientstate: condition must be below or above")
)

// Alert is a price watch on one car.
type Alert struct {
	ID          string    `json:"id"`
	CarID       string    `json:"carId"`
	TargetPrice int       `json:"targetPrice"`
	Condition   string    `json:"condition"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Triggered reports whether the alert fires for the given price. An unpriced
// listing never triggers. Prices exactly at the target trigger on both sides.
func (a Alert) Triggered(price *int) bool {
	if !a.IsActive || price == nil {
		return false
	}
	switch a.Condition {
	case ConditionBelow:
		return *price <= a.TargetPrice
	case ConditionAbove:
		return *price >= a.TargetPrice
	}
	return false
}

type fileState struct {
	SchemaVersion int      `json:"schema_version"`
	Favorites     []string `json:"favorites"`
	Alerts        []Alert  `json:"alerts"`
}

// Store is the file-backed state holder. All mutations write through to disk.
type Store struct {
	path  string
	mu    sync.Mutex
	state fileState
}

// Open loads the state file, creating an empty one if absent and migrating
// older schema versions forward.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		state: fileState{SchemaVersion: schemaVersion},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clientstate: read %s: %w", path, err)
	}

	// Older layouts are not field-compatible, so check the version before
	// decoding the whole file.
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("clientstate: parse %s: %w", path, err)
	}
	if probe.SchemaVersion > schemaVersion {
		return nil, fmt.Errorf("clientstate: file version %d is newer than supported %d", probe.SchemaVersion, schemaVersion)
	}

	if probe.SchemaVersion < schemaVersion {
		if err := s.migrate(probe.SchemaVersion, data); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("clientstate: parse %s: %w", path, err)
	}
	return s, nil
}

// migrate upgrades older on-disk layouts. Version 1 stored favorites as an
// id → bool map; later versions use an ordered list.
func (s *Store) migrate(fromVersion int, raw []byte) error {
	if fromVersion <= 1 {
		var v1 struct {
			Favorites map[string]bool `json:"favorites"`
			Alerts    []Alert         `json:"alerts"`
		}
		if err := json.Unmarshal(raw, &v1); err != nil {
			return fmt.Errorf("clientstate: migrate v1 file: %w", err)
		}
		s.state.Favorites = nil
		for id, on := range v1.Favorites {
			if on {
				s.state.Favorites = append(s.state.Favorites, id)
			}
		}
		s.state.Alerts = v1.Alerts
	}

	s.state.SchemaVersion = schemaVersion
	return s.save()
}

// save writes the state atomically via a temp file rename.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("clientstate: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("clientstate: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("clientstate: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("clientstate: rename: %w", err)
	}
	return nil
}

// ToggleFavorite flips a car's favorite status and returns whether it is now
// favorited. Toggling twice is a no-op overall.
func (s *Store) ToggleFavorite(carID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.state.Favorites {
		if id == carID {
			s.state.Favorites = append(s.state.Favorites[:i], s.state.Favorites[i+1:]...)
			return false, s.save()
		}
	}
	s.state.Favorites = append(s.state.Favorites, carID)
	return true, s.save()
}

// IsFavorite reports whether a car is currently favorited.
func (s *Store) IsFavorite(carID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.state.Favorites {
		if id == carID {
			return true
		}
	}
	return false
}

// Favorites returns the favorited car ids in the order they were added.
func (s *Store) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.state.Favorites...)
}

// CreateAlert registers a price watch on a car. The alert starts active.
func (s *Store) CreateAlert(carID string, targetPrice int, condition string) (*Alert, error) {
	if condition != ConditionBelow && condition != ConditionAbove {
		return nil, ErrBadCondition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := Alert{
		ID:          uuid.NewString(),
		CarID:       carID,
		TargetPrice: targetPrice,
		Condition:   condition,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	s.state.Alerts = append(s.state.Alerts, a)
	if err := s.save(); err != nil {
		return nil, err
	}
	return &a, nil
}

// ToggleAlert flips an alert's active flag and returns its new state.
func (s *Store) ToggleAlert(id string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.Alerts {
		if s.state.Alerts[i].ID == id {
			s.state.Alerts[i].IsActive = !s.state.Alerts[i].IsActive
			a := s.state.Alerts[i]
			return &a, s.save()
		}
	}
	return nil, ErrAlertNotFound
}

// DeleteAlert removes an alert permanently.
func (s *Store) DeleteAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.Alerts {
		if s.state.Alerts[i].ID == id {
			s.state.Alerts = append(s.state.Alerts[:i], s.state.Alerts[i+1:]...)
			return s.save()
		}
	}
	return ErrAlertNotFound
}

// Alerts returns all alerts in creation order.
func (s *Store) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.state.Alerts...)
}

// TriggeredAlerts evaluates every active alert against the given listings and
// returns those that fire.
func (s *Store) TriggeredAlerts(listings []*models.Listing) []Alert {
	byID := make(map[string]*models.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []Alert
	for _, a := range s.state.Alerts {
		l, ok := byID[a.CarID]
		if ok && a.Triggered(l.Price) {
			fired = append(fired, a)
		}
	}
	return fired
}

// FilterFavorites keeps the favorited listings whose title or description
// contains the query, case-insensitively. An empty query keeps all favorites.
// Order follows the favorites list, not the input.
func (s *Store) FilterFavorites(listings []*models.Listing, query string) []*models.Listing {
	byID := make(map[string]*models.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Listing
	for _, id := range s.state.Favorites {
		l, ok := byID[id]
		if !ok {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(l.Title), q) ||
			strings.Contains(strings.ToLower(l.Description), q) {
			out = append(out, l)
		}
	}
	return out
}
