package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"carscout/models"
	"carscout/storage"
	"carscout/utils"
)

// ErrRunInProgress is returned when an ingestion run is requested while one is
// already underway. The store assumes a single ingestion process at a time.
var ErrRunInProgress = errors.New("ingest: a run is already in progress")

// FetchProvider is implemented by marketplace fetch backends. An empty batch
// signals that no further pages exist.
type FetchProvider interface {
	FetchPage(ctx context.Context, offset int) ([]models.RawAd, error)
}

// IngestorConfig bounds one ingestion run.
type IngestorConfig struct {
	MaxCars       int
	RateLimit     time.Duration
	InactiveAfter time.Duration
}

// Ingestor drives the fetch → normalize → upsert pipeline. A page-fetch
// failure stops the run gracefully; partial results are kept.
type Ingestor struct {
	store      storage.ListingStore
	normalizer *Normalizer
	logger     *utils.Logger
	cfg        IngestorConfig

	// fallback, when set, seeds the store if a live run comes back empty
	// against an empty database.
	fallback FetchProvider

	mu      sync.Mutex
	running bool
	lastRun *models.RunResult
}

// NewIngestor creates an ingestion worker over the given store.
func NewIngestor(store storage.ListingStore, normalizer *Normalizer, cfg IngestorConfig, logger *utils.Logger) *Ingestor {
	return &Ingestor{
		store:      store,
		normalizer: normalizer,
		logger:     logger,
		cfg:        cfg,
	}
}

// SetFallback installs the provider used to seed an empty store when a live
// run finds nothing.
func (ing *Ingestor) SetFallback(p FetchProvider) {
	ing.fallback = p
}

// Run executes one ingestion run against the given provider.
func (ing *Ingestor) Run(ctx context.Context, provider FetchProvider) (*models.RunResult, error) {
	ing.mu.Lock()
	if ing.running {
		ing.mu.Unlock()
		return nil, ErrRunInProgress
	}
	ing.running = true
	ing.mu.Unlock()

	defer func() {
		ing.mu.Lock()
		ing.running = false
		ing.mu.Unlock()
	}()

	result := &models.RunResult{StartedAt: time.Now().UTC()}
	ing.logger.Info("[ingest] Starting run — department scope, max %d cars", ing.cfg.MaxCars)

	ing.fetchAndStore(ctx, provider, result)

	if result.Fetched == 0 && ing.fallback != nil {
		if st, err := ing.store.Status(24 * time.Hour); err == nil && st.TotalCars == 0 {
			ing.logger.Warn("[ingest] Live run empty against empty store — seeding from sample provider")
			ing.fetchAndStore(ctx, ing.fallback, result)
		}
	}

	cutoff := time.Now().UTC().Add(-ing.cfg.InactiveAfter)
	marked, err := ing.store.MarkInactive(cutoff)
	if err != nil {
		ing.logger.Error("[ingest] Mark-inactive pass failed: %v", err)
	} else {
		result.MarkedInactive = marked
	}

	result.FinishedAt = time.Now().UTC()

	ing.mu.Lock()
	ing.lastRun = result
	ing.mu.Unlock()

	ing.logger.Info("[ingest] Run complete — fetched %d, saved %d, updated %d, dropped %d, inactive %d",
		result.Fetched, result.Saved, result.Updated, result.Dropped, result.MarkedInactive)
	return result, nil
}

// fetchAndStore pages through the provider until the max record count is
// reached or the provider runs dry. A fetch error logs and stops; per-record
// upserts are atomic so partial results stand.
func (ing *Ingestor) fetchAndStore(ctx context.Context, provider FetchProvider, result *models.RunResult) {
	seen := utils.NewStringSet()
	offset := 0

	for result.Fetched < ing.cfg.MaxCars {
		if ctx.Err() != nil {
			ing.logger.Warn("[ingest] Run cancelled at offset %d", offset)
			return
		}

		ads, err := provider.FetchPage(ctx, offset)
		if err != nil {
			ing.logger.Error("[ingest] Page fetch failed at offset %d — stopping run: %v", offset, err)
			return
		}
		if len(ads) == 0 {
			ing.logger.Info("[ingest] No further pages at offset %d", offset)
			return
		}
		offset += len(ads)

		fresh := ads[:0:0]
		for _, ad := range ads {
			if result.Fetched+len(fresh) >= ing.cfg.MaxCars {
				break
			}
			if !seen.Add(ad.ListID) {
				continue
			}
			fresh = append(fresh, ad)
		}

		listings := ing.normalizer.Normalize(fresh)
		result.Fetched += len(fresh)
		result.Dropped += len(fresh) - len(listings)

		for _, l := range listings {
			created, err := ing.store.Upsert(l)
			if err != nil {
				ing.logger.Error("[ingest] Upsert %s failed: %v", l.ID, err)
				result.Dropped++
				continue
			}
			if created {
				result.Saved++
			} else {
				result.Updated++
			}
		}

		// No pacing needed once the record bound is reached.
		if result.Fetched >= ing.cfg.MaxCars {
			return
		}
		select {
		case <-ctx.Done():
			ing.logger.Warn("[ingest] Run cancelled during inter-page delay")
			return
		case <-time.After(ing.cfg.RateLimit):
		}
	}
}

// Running reports whether a run is currently underway.
func (ing *Ingestor) Running() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.running
}

// LastRun returns the most recent run summary, or nil before the first run.
func (ing *Ingestor) LastRun() *models.RunResult {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.lastRun
}

// Status reports store counters for the scraper status endpoint.
func (ing *Ingestor) Status() (*models.ScrapeStatus, error) {
	return ing.store.Status(24 * time.Hour)
}
