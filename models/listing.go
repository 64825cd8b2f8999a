package models

import "time"

// RawAd holds an unprocessed marketplace record as returned by a fetch
// provider, before any field coercion.
type RawAd struct {
	ListID     string
	Subject    string
	Body       string
	Price      []int
	Attributes map[string]string
	ImageURLs  []string
	URL        string
	OwnerType  string
}

// Listing is the normalized, persisted car record. Price, Year and Mileage are
// pointers because the marketplace omits them often enough that zero would be
// ambiguous.
type Listing struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Price       *int      `json:"price"`
	Year        *int      `json:"year"`
	Mileage     *int      `json:"mileage"`
	FuelType    string    `json:"fuel_type"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	URL         string    `json:"url"`
	SellerType  string    `json:"seller_type"`
	Department  string    `json:"department"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IsActive    bool      `json:"is_active"`
}

// Sort keys accepted by the listing query. Anything else falls back to
// SortRecency so pagination stays stable.
const (
	SortRecency    = "recency"
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortYearDesc   = "year_desc"
	SortMileageAsc = "mileage_asc"
)

// ListingFilter carries the conjunctive query filters. Nil / empty fields
// impose no constraint.
type ListingFilter struct {
	MinPrice    *int
	MaxPrice    *int
	MinYear     *int
	MaxYear     *int
	MinMileage  *int
	MaxMileage  *int
	Department  string
	FuelTypes   []string
	SellerTypes []string
	Sort        string
	Skip        int
	Limit       int
}

// RunResult summarizes one ingestion run.
type RunResult struct {
	Fetched        int       `json:"fetched"`
	Saved          int       `json:"saved"`
	Updated        int       `json:"updated"`
	Dropped        int       `json:"dropped"`
	MarkedInactive int       `json:"marked_inactive"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// ScrapeStatus holds the counters exposed by the scraper status endpoint.
type ScrapeStatus struct {
	TotalCars     int  `json:"total_cars"`
	ActiveCars    int  `json:"active_cars"`
	RecentlyAdded int  `json:"recently_added"`
	Healthy       bool `json:"healthy"`
}

// MarketStats is the aggregate report computed over stored listings.
type MarketStats struct {
	TotalListings int            `json:"total_listings"`
	WithPrice     int            `json:"with_price"`
	AveragePrice  float64        `json:"average_price"`
	MinPrice      int            `json:"min_price"`
	MaxPrice      int            `json:"max_price"`
	ByFuelType    map[string]int `json:"by_fuel_type"`
	ByDepartment  map[string]int `json:"by_department"`
}
