package storage

import (
	"sort"
	"sync"
	"time"

	"carscout/models"
)

// MemoryStore is an in-memory ListingStore implementing the same contract as
// the Postgres store. It backs tests and ephemeral local runs where no
// database is available.
type MemoryStore struct {
	mu       sync.RWMutex
	cars     map[string]*models.Listing
	analyses map[string]*models.Analysis
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cars:     make(map[string]*models.Listing),
		analyses: make(map[string]*models.Analysis),
	}
}

// Upsert inserts or refreshes a listing, preserving id and first_seen.
func (s *MemoryStore) Upsert(l *models.Listing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cars[l.ID]
	if !ok {
		cp := *l
		s.cars[l.ID] = &cp
		return true, nil
	}

	existing.Price = l.Price
	existing.Description = l.Description
	existing.Images = l.Images
	existing.LastSeen = l.LastSeen
	existing.IsActive = true
	return false, nil
}

// Query filters, sorts and paginates active listings.
func (s *MemoryStore) Query(f models.ListingFilter) ([]*models.Listing, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Listing
	for _, l := range s.cars {
		if l.IsActive && matchesFilter(f, l) {
			matched = append(matched, l)
		}
	}

	sortListings(matched, f.Sort)
	total := len(matched)

	if f.Skip >= len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Skip:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	out := make([]*models.Listing, len(matched))
	for i, l := range matched {
		cp := *l
		out[i] = &cp
	}
	return out, total, nil
}

// Get returns a listing by id, active or not.
func (s *MemoryStore) Get(id string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.cars[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// MarkInactive flags listings last seen before cutoff.
func (s *MemoryStore) MarkInactive(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.cars {
		if l.IsActive && l.LastSeen.Before(cutoff) {
			l.IsActive = false
			n++
		}
	}
	return n, nil
}

// Status reports total/active/recent counters.
func (s *MemoryStore) Status(recentWindow time.Duration) (*models.ScrapeStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &models.ScrapeStatus{}
	since := time.Now().Add(-recentWindow)
	for _, l := range s.cars {
		st.TotalCars++
		if l.IsActive {
			st.ActiveCars++
		}
		if l.FirstSeen.After(since) {
			st.RecentlyAdded++
		}
	}
	st.Healthy = st.ActiveCars > 0
	return st, nil
}

// FetchActive returns all active listings ordered by recency.
func (s *MemoryStore) FetchActive() ([]*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.Listing
	for _, l := range s.cars {
		if l.IsActive {
			cp := *l
			active = append(active, &cp)
		}
	}
	sortListings(active, models.SortRecency)
	return active, nil
}

// SaveAnalysis caches an analysis result per (car, feature).
func (s *MemoryStore) SaveAnalysis(a *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.analyses[a.CarID+"|"+a.Feature] = &cp
	return nil
}

// GetAnalysis returns a cached result newer than notBefore.
func (s *MemoryStore) GetAnalysis(carID, feature string, notBefore time.Time) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.analyses[carID+"|"+feature]
	if !ok || a.CreatedAt.Before(notBefore) {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }

// matchesFilter checks a listing against every supplied filter condition.
func matchesFilter(f models.ListingFilter, l *models.Listing) bool {
	if f.MinPrice != nil && (l.Price == nil || *l.Price < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (l.Price == nil || *l.Price > *f.MaxPrice) {
		return false
	}
	if f.MinYear != nil && (l.Year == nil || *l.Year < *f.MinYear) {
		return false
	}
	if f.MaxYear != nil && (l.Year == nil || *l.Year > *f.MaxYear) {
		return false
	}
	if f.MinMileage != nil && (l.Mileage == nil || *l.Mileage < *f.MinMileage) {
		return false
	}
	if f.MaxMileage != nil && (l.Mileage == nil || *l.Mileage > *f.MaxMileage) {
		return false
	}
	if f.Department != "" && l.Department != f.Department {
		return false
	}
	if len(f.FuelTypes) > 0 && !containsString(f.FuelTypes, l.FuelType) {
		return false
	}
	if len(f.SellerTypes) > 0 && !containsString(f.SellerTypes, l.SellerType) {
		return false
	}
	return true
}

func containsString(vals []string, v string) bool {
	for _, s := range vals {
		if s == v {
			return true
		}
	}
	return false
}

// sortListings orders listings the same way the SQL order clauses do, with id
// as tiebreaker and missing numeric fields last.
func sortListings(listings []*models.Listing, sortKey string) {
	less := func(i, j *models.Listing) bool {
		return i.LastSeen.After(j.LastSeen)
	}

	switch sortKey {
	case models.SortPriceAsc:
		less = func(i, j *models.Listing) bool { return intLess(i.Price, j.Price, false) }
	case models.SortPriceDesc:
		less = func(i, j *models.Listing) bool { return intLess(i.Price, j.Price, true) }
	case models.SortYearDesc:
		less = func(i, j *models.Listing) bool { return intLess(i.Year, j.Year, true) }
	case models.SortMileageAsc:
		less = func(i, j *models.Listing) bool { return intLess(i.Mileage, j.Mileage, false) }
	}

	sort.SliceStable(listings, func(a, b int) bool {
		i, j := listings[a], listings[b]
		if less(i, j) {
			return true
		}
		if less(j, i) {
			return false
		}
		return i.ID < j.ID
	})
}

// intLess compares optional ints, nil always sorting last.
func intLess(a, b *int, desc bool) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	if desc {
		return *a > *b
	}
	return *a < *b
}
