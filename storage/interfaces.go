package storage

import (
	"errors"
	"time"

	"carscout/models"
)

// ErrNotFound is returned when a listing or cached analysis does not exist.
var ErrNotFound = errors.New("storage: not found")

// ListingStore is the interface any listing storage backend must satisfy.
// It is the only shared surface between the ingestion worker and the API.
type ListingStore interface {
	// Upsert inserts the listing if its id is unseen, otherwise updates the
	// mutable fields (price, description, images, last_seen, is_active).
	// first_seen and id are never changed. Returns true when a new row was
	// created.
	Upsert(l *models.Listing) (bool, error)

	// Query returns active listings matching every supplied filter, paginated
	// by Skip/Limit, along with the total match count before pagination.
	// Limit <= 0 imposes no bound.
	Query(f models.ListingFilter) ([]*models.Listing, int, error)

	// Get returns a single listing by id, active or not, or ErrNotFound.
	Get(id string) (*models.Listing, error)

	// MarkInactive flags listings not refreshed since cutoff and returns how
	// many were flagged. Rows are never deleted.
	MarkInactive(cutoff time.Time) (int, error)

	// Status reports the counters for the scraper status endpoint. A listing
	// counts as recently added when first seen within recentWindow.
	Status(recentWindow time.Duration) (*models.ScrapeStatus, error)

	// FetchActive returns all active listings, used by the stats generator.
	FetchActive() ([]*models.Listing, error)

	SaveAnalysis(a *models.Analysis) error

	// GetAnalysis returns the cached analysis for (carID, feature) created at
	// or after notBefore, or ErrNotFound.
	GetAnalysis(carID, feature string, notBefore time.Time) (*models.Analysis, error)

	Close() error
}
