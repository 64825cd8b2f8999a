package storage

import (
	"testing"
	"time"

	"carscout/models"
)

func listing(id string, price *int, department string, lastSeen time.Time) *models.Listing {
	return &models.Listing{
		ID:         id,
		Source:     "leboncoin",
		Title:      "car " + id,
		Price:      price,
		Department: department,
		FirstSeen:  lastSeen,
		LastSeen:   lastSeen,
		IsActive:   true,
	}
}

func TestUpsertPreservesIdentityFields(t *testing.T) {
	s := NewMemoryStore()
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	created, err := s.Upsert(listing("A1", intp(12000), "69", t0))
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v; want true, nil", created, err)
	}

	// Re-ingest the same external id with a lower price a day later.
	updated := listing("A1", intp(11000), "69", t0.Add(24*time.Hour))
	updated.Description = "prix baissé"
	updated.FirstSeen = t0.Add(24 * time.Hour)

	created, err = s.Upsert(updated)
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v; want false, nil", created, err)
	}

	got, err := s.Get("A1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Price == nil || *got.Price != 11000 {
		t.Errorf("Price = %v; want 11000", got.Price)
	}
	if got.Description != "prix baissé" {
		t.Errorf("Description = %q; want updated value", got.Description)
	}
	if !got.FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen = %v; must keep the original timestamp", got.FirstSeen)
	}
	if !got.LastSeen.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("LastSeen = %v; want refreshed timestamp", got.LastSeen)
	}

	st, _ := s.Status(time.Hour)
	if st.TotalCars != 1 {
		t.Errorf("TotalCars = %d; repeated ingestion must not duplicate", st.TotalCars)
	}
}

func TestQueryConjunctiveFilters(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	s.Upsert(listing("A1", intp(12000), "69", now))
	s.Upsert(listing("B2", intp(18000), "69", now))
	s.Upsert(listing("C3", intp(12000), "75", now))
	s.Upsert(listing("D4", nil, "69", now))

	results, total, err := s.Query(models.ListingFilter{
		MaxPrice:   intp(15000),
		Department: "69",
		Limit:      20,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d; want 1 (conjunction of price and department)", total)
	}
	if len(results) != 1 || results[0].ID != "A1" {
		t.Errorf("results = %v; want just A1", ids(results))
	}
}

func TestQueryIgnoresInactive(t *testing.T) {
	s := NewMemoryStore()
	old := time.Now().UTC().Add(-2 * time.Hour)

	s.Upsert(listing("A1", intp(9000), "69", old))
	n, err := s.MarkInactive(time.Now().UTC().Add(-time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("MarkInactive = %d, %v; want 1, nil", n, err)
	}

	_, total, _ := s.Query(models.ListingFilter{Limit: 20})
	if total != 0 {
		t.Errorf("total = %d; inactive listings must not be listed", total)
	}

	// ...but stay reachable by id for history and alerts.
	got, err := s.Get("A1")
	if err != nil {
		t.Fatalf("Get after mark-inactive: %v", err)
	}
	if got.IsActive {
		t.Error("IsActive = true; want false")
	}
}

func TestQueryPaginationDisjointSlices(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		id := string(rune('a' + i))
		s.Upsert(listing(id, intp(1000*(i+1)), "69", base.Add(time.Duration(i)*time.Minute)))
	}

	var union []string
	for skip := 0; skip < 7; skip += 3 {
		page, total, err := s.Query(models.ListingFilter{Skip: skip, Limit: 3})
		if err != nil {
			t.Fatalf("Query skip=%d: %v", skip, err)
		}
		if total != 7 {
			t.Errorf("total = %d; want 7 regardless of pagination", total)
		}
		union = append(union, ids(page)...)
	}

	if len(union) != 7 {
		t.Fatalf("union has %d entries; want 7 disjoint contiguous slices", len(union))
	}
	seen := map[string]bool{}
	for _, id := range union {
		if seen[id] {
			t.Errorf("id %s appeared in two pages", id)
		}
		seen[id] = true
	}
}

func TestQueryZeroLimitUnbounded(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	s.Upsert(listing("A1", intp(9000), "69", now))
	s.Upsert(listing("B2", intp(11000), "69", now))
	s.Upsert(listing("C3", intp(13000), "69", now))

	// Limit <= 0 imposes no bound, same as the SQL page clause omitting LIMIT.
	results, total, err := s.Query(models.ListingFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 3 || len(results) != 3 {
		t.Errorf("results/total = %d/%d; want 3/3", len(results), total)
	}
}

func TestQuerySortOrder(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	s.Upsert(listing("A1", intp(18000), "69", now))
	s.Upsert(listing("B2", intp(9000), "69", now))
	s.Upsert(listing("C3", nil, "69", now))

	results, _, err := s.Query(models.ListingFilter{Sort: models.SortPriceAsc, Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	want := []string{"B2", "A1", "C3"}
	got := ids(results)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("price_asc order = %v; want %v (missing price last)", got, want)
		}
	}
}

func TestAnalysisCacheTTL(t *testing.T) {
	s := NewMemoryStore()

	a := &models.Analysis{
		ID:        "an-1",
		CarID:     "A1",
		Feature:   "gem_score",
		Data:      []byte(`{"gem_score": 82}`),
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	if err := s.SaveAnalysis(a); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	if _, err := s.GetAnalysis("A1", "gem_score", time.Now().UTC().Add(-72*time.Hour)); err != nil {
		t.Errorf("fresh-enough cache entry not returned: %v", err)
	}
	if _, err := s.GetAnalysis("A1", "gem_score", time.Now().UTC().Add(-time.Hour)); err != ErrNotFound {
		t.Errorf("stale cache entry returned; want ErrNotFound, got %v", err)
	}
	if _, err := s.GetAnalysis("A1", "negotiation", time.Time{}); err != ErrNotFound {
		t.Errorf("missing feature returned; want ErrNotFound, got %v", err)
	}
}

func ids(listings []*models.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}
