package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"carscout/models"
	"carscout/storage"
)

// pagedProvider serves canned pages keyed by offset.
type pagedProvider struct {
	pages map[int][]models.RawAd
	calls int
}

func (p *pagedProvider) FetchPage(_ context.Context, offset int) ([]models.RawAd, error) {
	p.calls++
	return p.pages[offset], nil
}

type failingProvider struct {
	firstPage []models.RawAd
}

func (p *failingProvider) FetchPage(_ context.Context, offset int) ([]models.RawAd, error) {
	if offset == 0 {
		return p.firstPage, nil
	}
	return nil, errors.New("marketplace returned status 403")
}

func rawAd(id string, price int) models.RawAd {
	return models.RawAd{
		ListID:  id,
		Subject: "Car " + id,
		Price:   []int{price},
		URL:     "https://www.leboncoin.fr/ad/" + id,
	}
}

func newTestIngestor(store storage.ListingStore, maxCars int) *Ingestor {
	return NewIngestor(store, NewNormalizer("69", newTestLogger()), IngestorConfig{
		MaxCars:       maxCars,
		RateLimit:     0,
		InactiveAfter: time.Hour,
	}, newTestLogger())
}

func TestRunIngestsAcrossPages(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := &pagedProvider{pages: map[int][]models.RawAd{
		0: {rawAd("1", 10000), rawAd("2", 11000)},
		2: {rawAd("3", 12000), rawAd("2", 11000)}, // "2" repeats across pages
		4: {},
	}}

	result, err := newTestIngestor(store, 100).Run(context.Background(), provider)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Fetched != 3 {
		t.Errorf("Fetched = %d; want 3 (cross-page duplicate skipped)", result.Fetched)
	}
	if result.Saved != 3 || result.Updated != 0 {
		t.Errorf("Saved/Updated = %d/%d; want 3/0", result.Saved, result.Updated)
	}

	st, _ := store.Status(time.Hour)
	if st.TotalCars != 3 {
		t.Errorf("TotalCars = %d; want 3", st.TotalCars)
	}
}

func TestRunStopsAtMaxCars(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := &pagedProvider{pages: map[int][]models.RawAd{
		0: {rawAd("1", 1), rawAd("2", 2), rawAd("3", 3)},
	}}

	result, err := newTestIngestor(store, 2).Run(context.Background(), provider)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Fetched != 2 {
		t.Errorf("Fetched = %d; want the max record bound of 2", result.Fetched)
	}
}

func TestRunKeepsPartialResultsOnFetchFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	provider := &failingProvider{firstPage: []models.RawAd{rawAd("1", 9000)}}

	result, err := newTestIngestor(store, 100).Run(context.Background(), provider)
	if err != nil {
		t.Fatalf("Run should absorb the page failure, got: %v", err)
	}

	if result.Saved != 1 {
		t.Errorf("Saved = %d; want the pre-failure record kept", result.Saved)
	}
	if _, err := store.Get("1"); err != nil {
		t.Errorf("record from the successful page missing: %v", err)
	}
}

func TestRunSecondIngestionUpdates(t *testing.T) {
	store := storage.NewMemoryStore()
	ing := newTestIngestor(store, 100)

	first := &pagedProvider{pages: map[int][]models.RawAd{0: {rawAd("A1", 12000)}}}
	if _, err := ing.Run(context.Background(), first); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := &pagedProvider{pages: map[int][]models.RawAd{0: {rawAd("A1", 11000)}}}
	result, err := ing.Run(context.Background(), second)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.Saved != 0 || result.Updated != 1 {
		t.Errorf("Saved/Updated = %d/%d; want 0/1", result.Saved, result.Updated)
	}

	got, err := store.Get("A1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Price == nil || *got.Price != 11000 {
		t.Errorf("Price = %v; want refreshed 11000", got.Price)
	}
}

func TestRunSeedsFromFallbackWhenEmpty(t *testing.T) {
	store := storage.NewMemoryStore()
	ing := newTestIngestor(store, 100)
	ing.SetFallback(&pagedProvider{pages: map[int][]models.RawAd{
		0: {rawAd("s1", 5000), rawAd("s2", 6000)},
	}})

	empty := &pagedProvider{pages: map[int][]models.RawAd{}}
	result, err := ing.Run(context.Background(), empty)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Saved != 2 {
		t.Errorf("Saved = %d; want fallback seed of 2", result.Saved)
	}
}

func TestRunCancelCutsInterPageDelay(t *testing.T) {
	store := storage.NewMemoryStore()
	ing := NewIngestor(store, NewNormalizer("69", newTestLogger()), IngestorConfig{
		MaxCars:       100,
		RateLimit:     5 * time.Second,
		InactiveAfter: time.Hour,
	}, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	provider := fetchFunc(func(_ context.Context, offset int) ([]models.RawAd, error) {
		if offset == 0 {
			cancel()
			return []models.RawAd{rawAd("1", 9000)}, nil
		}
		return nil, nil
	})

	start := time.Now()
	result, err := ing.Run(ctx, provider)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run held the inter-page delay for %v after cancellation", elapsed)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d; want the pre-cancel record kept", result.Saved)
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	store := storage.NewMemoryStore()
	ing := newTestIngestor(store, 100)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := fetchFunc(func(ctx context.Context, offset int) ([]models.RawAd, error) {
		if offset == 0 {
			close(started)
			<-release
			return []models.RawAd{rawAd("1", 1000)}, nil
		}
		return nil, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := ing.Run(context.Background(), slow)
		done <- err
	}()

	<-started
	if _, err := ing.Run(context.Background(), slow); err != ErrRunInProgress {
		t.Errorf("concurrent run error = %v; want ErrRunInProgress", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

type fetchFunc func(ctx context.Context, offset int) ([]models.RawAd, error)

func (f fetchFunc) FetchPage(ctx context.Context, offset int) ([]models.RawAd, error) {
	return f(ctx, offset)
}
