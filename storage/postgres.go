package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"carscout/models"
	"carscout/utils"
)

// PostgresStore persists listings and cached analyses in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to become
// reachable, runs schema migrations, and returns a ready-to-use store.
func NewPostgresStore(dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 2 * time.Second, Logger: logger}
	if err := retry.Do("postgres-ping", db.Ping); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cars (
			id          TEXT PRIMARY KEY,
			source      VARCHAR(50)  NOT NULL DEFAULT 'leboncoin',
			title       TEXT         NOT NULL,
			price       INTEGER,
			year        INTEGER,
			mileage     INTEGER,
			fuel_type   TEXT         NOT NULL DEFAULT '',
			description TEXT         NOT NULL DEFAULT '',
			images      TEXT         NOT NULL DEFAULT '[]',
			url         TEXT         NOT NULL DEFAULT '',
			seller_type TEXT         NOT NULL DEFAULT '',
			department  TEXT         NOT NULL DEFAULT '',
			first_seen  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_seen   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			is_active   BOOLEAN      NOT NULL DEFAULT TRUE
		);

		CREATE INDEX IF NOT EXISTS idx_cars_price      ON cars(price);
		CREATE INDEX IF NOT EXISTS idx_cars_department ON cars(department);
		CREATE INDEX IF NOT EXISTS idx_cars_last_seen  ON cars(last_seen);
		CREATE INDEX IF NOT EXISTS idx_cars_is_active  ON cars(is_active);

		CREATE TABLE IF NOT EXISTS analyses (
			id            TEXT PRIMARY KEY,
			car_id        TEXT        NOT NULL,
			feature       TEXT        NOT NULL,
			analysis_data TEXT        NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (car_id, feature)
		);
	`)
	return err
}

// Upsert inserts or refreshes a listing. The store assumes a single ingestion
// process at a time, so a read-then-write is sufficient.
func (s *PostgresStore) Upsert(l *models.Listing) (bool, error) {
	images, err := json.Marshal(l.Images)
	if err != nil {
		return false, fmt.Errorf("postgres: marshal images: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM cars WHERE id = $1)`, l.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: upsert lookup: %w", err)
	}

	if exists {
		_, err := s.db.Exec(`
			UPDATE cars
			SET price = $2, description = $3, images = $4, last_seen = $5, is_active = TRUE
			WHERE id = $1
		`, l.ID, nullableInt(l.Price), l.Description, string(images), l.LastSeen)
		if err != nil {
			return false, fmt.Errorf("postgres: update %s: %w", l.ID, err)
		}
		return false, nil
	}

	_, err = s.db.Exec(`
		INSERT INTO cars (id, source, title, price, year, mileage, fuel_type,
		                  description, images, url, seller_type, department,
		                  first_seen, last_seen, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE)
	`, l.ID, l.Source, l.Title, nullableInt(l.Price), nullableInt(l.Year),
		nullableInt(l.Mileage), l.FuelType, l.Description, string(images),
		l.URL, l.SellerType, l.Department, l.FirstSeen, l.LastSeen)
	if err != nil {
		return false, fmt.Errorf("postgres: insert %s: %w", l.ID, err)
	}
	return true, nil
}

const listingColumns = `id, source, title, price, year, mileage, fuel_type,
	description, images, url, seller_type, department, first_seen, last_seen, is_active`

// Query returns matching active listings plus the total count before
// pagination.
func (s *PostgresStore) Query(f models.ListingFilter) ([]*models.Listing, int, error) {
	where, args := buildListingWhere(f)

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cars "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count: %w", err)
	}

	page, pageArgs := pageClause(f, len(args))
	query := fmt.Sprintf("SELECT %s FROM cars %s %s %s",
		listingColumns, where, orderClause(f.Sort), page)
	args = append(args, pageArgs...)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		listings = append(listings, l)
	}
	return listings, total, rows.Err()
}

// Get returns a listing by id regardless of liveness; inactive listings are
// retained for history and alerts.
func (s *PostgresStore) Get(id string) (*models.Listing, error) {
	row := s.db.QueryRow("SELECT "+listingColumns+" FROM cars WHERE id = $1", id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// MarkInactive flags listings last seen before cutoff.
func (s *PostgresStore) MarkInactive(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE cars SET is_active = FALSE
		WHERE last_seen < $1 AND is_active = TRUE
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark inactive: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Status reports total/active/recent counters.
func (s *PostgresStore) Status(recentWindow time.Duration) (*models.ScrapeStatus, error) {
	st := &models.ScrapeStatus{}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE first_seen > $1)
		FROM cars
	`, time.Now().Add(-recentWindow)).Scan(&st.TotalCars, &st.ActiveCars, &st.RecentlyAdded)
	if err != nil {
		return nil, fmt.Errorf("postgres: status: %w", err)
	}
	st.Healthy = st.ActiveCars > 0
	return st, nil
}

// FetchActive retrieves all active listings for the stats generator.
func (s *PostgresStore) FetchActive() ([]*models.Listing, error) {
	rows, err := s.db.Query("SELECT " + listingColumns + " FROM cars WHERE is_active = TRUE ORDER BY last_seen DESC, id")
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch active: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// SaveAnalysis caches an analysis result, replacing any previous result for
// the same listing and feature.
func (s *PostgresStore) SaveAnalysis(a *models.Analysis) error {
	_, err := s.db.Exec(`
		INSERT INTO analyses (id, car_id, feature, analysis_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (car_id, feature) DO UPDATE
		SET id = EXCLUDED.id,
		    analysis_data = EXCLUDED.analysis_data,
		    created_at = EXCLUDED.created_at
	`, a.ID, a.CarID, a.Feature, string(a.Data), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns a cached result newer than notBefore, or ErrNotFound.
func (s *PostgresStore) GetAnalysis(carID, feature string, notBefore time.Time) (*models.Analysis, error) {
	a := &models.Analysis{}
	var data string
	err := s.db.QueryRow(`
		SELECT id, car_id, feature, analysis_data, created_at
		FROM analyses
		WHERE car_id = $1 AND feature = $2 AND created_at >= $3
	`, carID, feature, notBefore).Scan(&a.ID, &a.CarID, &a.Feature, &data, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get analysis: %w", err)
	}
	a.Data = json.RawMessage(data)
	return a, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row scanner) (*models.Listing, error) {
	l := &models.Listing{}
	var price, year, mileage sql.NullInt64
	var images string

	if err := row.Scan(
		&l.ID, &l.Source, &l.Title, &price, &year, &mileage, &l.FuelType,
		&l.Description, &images, &l.URL, &l.SellerType, &l.Department,
		&l.FirstSeen, &l.LastSeen, &l.IsActive,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scan row: %w", err)
	}

	l.Price = fromNullInt(price)
	l.Year = fromNullInt(year)
	l.Mileage = fromNullInt(mileage)

	if images != "" {
		if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
			// A corrupt images blob should not sink the whole row.
			l.Images = nil
		}
	}
	return l, nil
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
