// Package api exposes the HTTP surface: listing queries, analysis endpoints
// and scraper control.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"carscout/services"
	"carscout/storage"
	"carscout/utils"
)

// Server wires the services behind the HTTP routes.
type Server struct {
	store    storage.ListingStore
	ingestor *services.Ingestor
	provider services.FetchProvider
	sample   services.FetchProvider
	insights *services.InsightService
	analysis *services.AnalysisService
	logger   *utils.Logger
}

// NewServer builds the API server over the given services. provider backs the
// scraper run endpoint; sample backs the test-ingestion endpoint.
func NewServer(store storage.ListingStore, ingestor *services.Ingestor, provider, sample services.FetchProvider, insights *services.InsightService, analysis *services.AnalysisService, logger *utils.Logger) *Server {
	return &Server{
		store:    store,
		ingestor: ingestor,
		provider: provider,
		sample:   sample,
		insights: insights,
		analysis: analysis,
		logger:   logger,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cars", s.handleListCars).Methods(http.MethodGet)
	api.HandleFunc("/cars/{id}", s.handleGetCar).Methods(http.MethodGet)
	api.HandleFunc("/cars/{id}/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/cars/{id}/analyze-all", s.handleAnalyzeAll).Methods(http.MethodPost)
	api.HandleFunc("/cars/{id}/features/{feature}", s.handleFeature).Methods(http.MethodPost)
	api.HandleFunc("/cars/{id}/insights/{feature}", s.handleInsight).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/scraper/status", s.handleScraperStatus).Methods(http.MethodGet)
	api.HandleFunc("/scraper/run", s.handleScraperRun).Methods(http.MethodPost)
	api.HandleFunc("/scraper/test", s.handleScraperTest).Methods(http.MethodGet)

	return r
}

// ListenAndServe starts the server on the given port and blocks.
func (s *Server) ListenAndServe(port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	s.logger.Info("[api] Listening on :%s", port)
	return srv.ListenAndServe()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("[api] %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
