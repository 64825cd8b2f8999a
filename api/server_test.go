package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carscout/llm"
	"carscout/models"
	"carscout/services"
	"carscout/storage"
	"carscout/utils"
)

type stubProvider struct {
	ads []models.RawAd
	err error
}

func (p *stubProvider) FetchPage(ctx context.Context, offset int) ([]models.RawAd, error) {
	if p.err != nil {
		return nil, p.err
	}
	if offset > 0 {
		return nil, nil
	}
	return p.ads, nil
}

type testEnv struct {
	srv   *httptest.Server
	store *storage.MemoryStore
}

func newTestEnv(t *testing.T, provider services.FetchProvider, llmResponse string) *testEnv {
	t.Helper()

	logger := utils.NewLogger()
	store := storage.NewMemoryStore()

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(llmResponse))
	}))
	t.Cleanup(llmSrv.Close)

	features := []services.Feature{
		{ID: "gem_score", Name: "Gem Score", Instruction: "Évaluez l'annonce."},
	}

	normalizer := services.NewNormalizer("69", logger)
	ingestor := services.NewIngestor(store, normalizer, services.IngestorConfig{
		MaxCars:       50,
		RateLimit:     time.Millisecond,
		InactiveAfter: time.Hour,
	}, logger)

	analysis := services.NewAnalysisService(store, llm.NewClient("test-key", "m", llmSrv.URL), features, time.Hour, logger)
	insights := services.NewInsightService(store, logger)

	sample := &stubProvider{ads: []models.RawAd{
		{ListID: "9001", Subject: "Citroën C3 échantillon", Price: []int{7500}},
	}}
	api := NewServer(store, ingestor, provider, sample, insights, analysis, logger)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: store}
}

func seedListing(t *testing.T, store *storage.MemoryStore, id string, price *int, year *int, fuel string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := store.Upsert(&models.Listing{
		ID:         id,
		Source:     "leboncoin",
		Title:      "car " + id,
		Price:      price,
		Year:       year,
		FuelType:   fuel,
		Department: "69",
		FirstSeen:  now,
		LastSeen:   now,
		IsActive:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s = %d; want %d", url, resp.StatusCode, wantStatus)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func postJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s = %d; want %d", url, resp.StatusCode, wantStatus)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func intp(v int) *int { return &v }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubProvider{}, `{}`)
	body := getJSON(t, env.srv.URL+"/health", http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestListCarsFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t, &stubProvider{}, `{}`)
	seedListing(t, env.store, "a", intp(8000), intp(2015), "diesel")
	seedListing(t, env.store, "b", intp(15000), intp(2019), "essence")
	seedListing(t, env.store, "c", intp(22000), intp(2021), "diesel")
	seedListing(t, env.store, "d", nil, nil, "diesel")

	body := getJSON(t, env.srv.URL+"/api/cars?min_price=10000&fuel_type=diesel", http.StatusOK)
	cars := body["cars"].([]interface{})
	if len(cars) != 1 || int(body["total"].(float64)) != 1 {
		t.Fatalf("cars = %d, total = %v; want 1/1", len(cars), body["total"])
	}
	if id := cars[0].(map[string]interface{})["id"]; id != "c" {
		t.Errorf("id = %v; want c", id)
	}

	// Pagination with an explicit sort keeps pages disjoint.
	page1 := getJSON(t, env.srv.URL+"/api/cars?sort=price_asc&limit=2", http.StatusOK)
	page2 := getJSON(t, env.srv.URL+"/api/cars?sort=price_asc&limit=2&skip=2", http.StatusOK)
	ids := map[string]bool{}
	for _, page := range []map[string]interface{}{page1, page2} {
		for _, c := range page["cars"].([]interface{}) {
			id := c.(map[string]interface{})["id"].(string)
			if ids[id] {
				t.Errorf("id %s appears on both pages", id)
			}
			ids[id] = true
		}
	}
	if len(ids) != 4 {
		t.Errorf("paged ids = %d; want 4", len(ids))
	}
}

func TestListCarsRejectsBadParams(t *testing.T) {
	env := newTestEnv(t, &stubProvider{}, `{}`)

	for _, query := range []string{"min_price=abc", "limit=0", "limit=-1", "skip=-1"} {
		resp, err := http.Get(env.srv.URL + "/api/cars?" + query)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d; want 400", query, resp.StatusCode)
		}
	}
}

func TestGetCar(t *testing.T) {
	env := newTestEnv(t, &stubProvider{}, `{}`)
	seedListing(t, env.store, "lbc-1", intp(12000), intp(2018), "diesel")

	body := getJSON(t, env.srv.URL+"/api/cars/lbc-1", http.StatusOK)
	if body["id"] != "lbc-1" || body["fuel_type"] != "diesel" {
		t.Errorf("body = %v", body)
	}

	getJSON(t, env.srv.URL+"/api/cars/missing", http.StatusNotFound)
}

func TestAnalyzeEndpoint(t *testing.T) {
	response := `{"content": [{"type": "text", "text": "{\"overall_score\": 8}"}]}`
	env := newTestEnv(t, &stubProvider{}, response)
	seedListing(t, env.store, "lbc-1", intp(12000), intp(2018), "diesel")

	body := postJSON(t, env.srv.URL+"/api/cars/lbc-1/analyze", http.StatusOK)
	analysis := body["analysis"].(map[string]interface{})
	if analysis["overall_score"] != float64(8) {
		t.Errorf("analysis = %v", analysis)
	}

	postJSON(t, env.srv.URL+"/api/cars/missing/analyze", http.StatusNotFound)
}

func TestFeatureAndInsightEndpoints(t *testing.T) {
	response := `{"content": [{"type": "text", "text": "{\"gem_score\": 91}"}]}`
	env := newTestEnv(t, &stubProvider{}, response)
	seedListing(t, env.store, "lbc-1", intp(12000), intp(2018), "diesel")

	body := postJSON(t, env.srv.URL+"/api/cars/lbc-1/features/gem_score", http.StatusOK)
	result := body["result"].(map[string]interface{})
	if result["gem_score"] != float64(91) {
		t.Errorf("result = %v", result)
	}

	postJSON(t, env.srv.URL+"/api/cars/lbc-1/features/horoscope", http.StatusNotFound)

	insight := getJSON(t, env.srv.URL+"/api/cars/lbc-1/insights/gem_score", http.StatusOK)
	if insight["feature"] != "gem_score" {
		t.Errorf("insight = %v", insight)
	}

	getJSON(t, env.srv.URL+"/api/cars/lbc-1/insights/market_pulse", http.StatusNotFound)
}

func TestAnalyzeAllEndpoint(t *testing.T) {
	response := `{"content": [{"type": "text", "text": "{\"gem_score\": 91}"}]}`
	env := newTestEnv(t, &stubProvider{}, response)
	seedListing(t, env.store, "lbc-1", intp(12000), intp(2018), "diesel")

	body := postJSON(t, env.srv.URL+"/api/cars/lbc-1/analyze-all", http.StatusAccepted)
	if body["dispatched"] != float64(1) {
		t.Errorf("dispatched = %v; want 1", body["dispatched"])
	}

	postJSON(t, env.srv.URL+"/api/cars/missing/analyze-all", http.StatusNotFound)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubProvider{}, `{}`)
	seedListing(t, env.store, "a", intp(10000), nil, "diesel")
	seedListing(t, env.store, "b", intp(20000), nil, "essence")

	body := getJSON(t, env.srv.URL+"/api/stats", http.StatusOK)
	if body["total_listings"] != float64(2) || body["average_price"] != float64(15000) {
		t.Errorf("stats = %v", body)
	}
}

func TestScraperRunAndStatus(t *testing.T) {
	provider := &stubProvider{ads: []models.RawAd{
		{ListID: "501", Subject: "Peugeot 208", Price: []int{11000}},
		{ListID: "502", Subject: "Renault Clio", Price: []int{9500}},
	}}
	env := newTestEnv(t, provider, `{}`)

	postJSON(t, env.srv.URL+"/api/scraper/run", http.StatusAccepted)

	deadline := time.Now().Add(5 * time.Second)
	for {
		body := getJSON(t, env.srv.URL+"/api/scraper/status", http.StatusOK)
		status := body["status"].(map[string]interface{})
		if status["total_cars"] == float64(2) && body["running"] == false {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not complete; status = %v", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScraperTestIngestsSampleData(t *testing.T) {
	env := newTestEnv(t, &stubProvider{err: fmt.Errorf("live backend down")}, `{}`)

	body := getJSON(t, env.srv.URL+"/api/scraper/test", http.StatusOK)
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
	result := body["result"].(map[string]interface{})
	if result["saved"] != float64(1) {
		t.Errorf("result = %v; want one saved sample record", result)
	}

	// The sample record lands in the same store the query API reads.
	cars := getJSON(t, env.srv.URL+"/api/cars", http.StatusOK)
	if cars["total"] != float64(1) {
		t.Errorf("total = %v; want 1", cars["total"])
	}
}
