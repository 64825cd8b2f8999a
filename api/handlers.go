package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"carscout/llm"
	"carscout/models"
	"carscout/services"
	"carscout/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListCars serves the filtered, sorted, paginated listing query.
func (s *Server) handleListCars(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cars, total, err := s.store.Query(filter)
	if err != nil {
		s.logger.Error("[api] Listing query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if cars == nil {
		cars = []*models.Listing{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cars":  cars,
		"total": total,
	})
}

func (s *Server) handleGetCar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	car, err := s.store.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "car not found")
		return
	}
	if err != nil {
		s.logger.Error("[api] Get %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, car)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := s.analysis.Analyze(r.Context(), id)
	if err != nil {
		s.writeAnalysisError(w, id, services.FeatureAnalysis, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"car_id":   id,
		"analysis": json.RawMessage(data),
	})
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, feature := vars["id"], vars["feature"]

	data, err := s.analysis.AnalyzeFeature(r.Context(), id, feature)
	if err != nil {
		s.writeAnalysisError(w, id, feature, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"car_id":  id,
		"feature": feature,
		"result":  json.RawMessage(data),
	})
}

// handleAnalyzeAll dispatches every catalog feature in the background and
// returns immediately; results land in the insights endpoints.
func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.store.Get(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "car not found")
			return
		}
		s.logger.Error("[api] Get %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	dispatched := s.analysis.DispatchAll(id)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"car_id":     id,
		"dispatched": dispatched,
	})
}

func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, feature := vars["id"], vars["feature"]

	a, err := s.analysis.CachedInsight(id, feature)
	if errors.Is(err, services.ErrUnknownFeature) {
		writeError(w, http.StatusNotFound, "unknown feature")
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no insight available yet")
		return
	}
	if err != nil {
		s.logger.Error("[api] Insight %s/%s failed: %v", id, feature, err)
		writeError(w, http.StatusInternalServerError, "insight lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"car_id":     a.CarID,
		"feature":    a.Feature,
		"result":     a.Data,
		"created_at": a.CreatedAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.insights.MarketStats()
	if err != nil {
		s.logger.Error("[api] Stats failed: %v", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleScraperStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ingestor.Status()
	if err != nil {
		s.logger.Error("[api] Scraper status failed: %v", err)
		writeError(w, http.StatusInternalServerError, "status failed")
		return
	}

	resp := map[string]interface{}{
		"status":  status,
		"running": s.ingestor.Running(),
	}
	if last := s.ingestor.LastRun(); last != nil {
		resp["last_run"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScraperRun starts an ingestion run in the background.
func (s *Server) handleScraperRun(w http.ResponseWriter, r *http.Request) {
	if s.ingestor.Running() {
		writeError(w, http.StatusConflict, "a scraper run is already in progress")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if _, err := s.ingestor.Run(ctx, s.provider); err != nil {
			s.logger.Error("[api] Background run failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleScraperTest runs a synchronous ingestion against the sample provider.
// It exercises the whole normalize/upsert path without touching the live
// marketplace.
func (s *Server) handleScraperTest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := s.ingestor.Run(ctx, s.sample)
	if errors.Is(err, services.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "a scraper run is already in progress")
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

// parseListingFilter reads the query parameters into a filter. Unknown sort
// keys are passed through; the store falls back to recency ordering.
func parseListingFilter(r *http.Request) (models.ListingFilter, error) {
	q := r.URL.Query()
	f := models.ListingFilter{
		Department:  q.Get("department"),
		FuelTypes:   q["fuel_type"],
		SellerTypes: q["seller_type"],
		Sort:        q.Get("sort"),
		Limit:       defaultPageSize,
	}

	var err error
	if f.Skip, err = parseBoundedInt(q.Get("skip"), 0, 0, 0); err != nil {
		return f, fmt.Errorf("invalid skip: %w", err)
	}
	if f.Limit, err = parseBoundedInt(q.Get("limit"), defaultPageSize, 1, maxPageSize); err != nil {
		return f, fmt.Errorf("invalid limit: %w", err)
	}

	for _, p := range []struct {
		key  string
		dest **int
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
		{"min_year", &f.MinYear},
		{"max_year", &f.MaxYear},
		{"min_mileage", &f.MinMileage},
		{"max_mileage", &f.MaxMileage},
	} {
		v, err := parseOptionalInt(q.Get(p.key))
		if err != nil {
			return f, fmt.Errorf("invalid %s: %w", p.key, err)
		}
		*p.dest = v
	}

	return f, nil
}

func parseOptionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseBoundedInt parses an int, applying a default when absent, a lower
// bound, and an upper cap when max > 0.
func parseBoundedInt(raw string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < min {
		return 0, fmt.Errorf("must be at least %d", min)
	}
	if max > 0 && v > max {
		v = max
	}
	return v, nil
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, id, feature string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "car not found")
	case errors.Is(err, services.ErrUnknownFeature):
		writeError(w, http.StatusNotFound, "unknown feature")
	case errors.Is(err, llm.ErrNoAPIKey):
		writeError(w, http.StatusServiceUnavailable, "analysis backend not configured")
	default:
		s.logger.Error("[api] Analysis %s/%s failed: %v", id, feature, err)
		writeError(w, http.StatusBadGateway, "analysis failed")
	}
}
