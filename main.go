package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"carscout/api"
	"carscout/config"
	"carscout/llm"
	"carscout/scraper/leboncoin"
	"carscout/services"
	"carscout/storage"
	"carscout/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("[main] Starting carscout — department %s, provider %s", cfg.Department, cfg.ScrapeProvider)

	store, err := storage.NewPostgresStore(cfg.DSN(), logger)
	if err != nil {
		logger.Error("[main] Database unavailable: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		logger.Error("[main] %v", err)
		os.Exit(1)
	}

	normalizer := services.NewNormalizer(cfg.Department, logger)
	ingestor := services.NewIngestor(store, normalizer, services.IngestorConfig{
		MaxCars:       cfg.MaxCars,
		RateLimit:     time.Duration(cfg.RateLimitMs) * time.Millisecond,
		InactiveAfter: time.Duration(cfg.InactiveAfterMin) * time.Minute,
	}, logger)
	sample := leboncoin.NewSampleProvider(cfg.Department)
	ingestor.SetFallback(sample)

	features, err := services.LoadFeatures(cfg.FeatureCatalog)
	if err != nil {
		logger.Error("[main] %v", err)
		os.Exit(1)
	}
	logger.Info("[main] Loaded %d analysis features from %s", len(features), cfg.FeatureCatalog)

	llmClient := llm.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
	if !llmClient.Configured() {
		logger.Warn("[main] ANTHROPIC_API_KEY not set — analysis endpoints will return 503")
	}

	analysis := services.NewAnalysisService(store, llmClient, features,
		time.Duration(cfg.AnalysisTTLHours)*time.Hour, logger)
	insights := services.NewInsightService(store, logger)

	server := api.NewServer(store, ingestor, provider, sample, insights, analysis, logger)
	if err := server.ListenAndServe(strconv.Itoa(cfg.ServerPort)); err != nil {
		logger.Error("[main] Server stopped: %v", err)
		os.Exit(1)
	}
}

// buildProvider selects the fetch backend. The JSON API is the default; the
// browser provider survives API blocks at the cost of a local Chrome.
func buildProvider(cfg *config.Config, logger *utils.Logger) (services.FetchProvider, error) {
	switch cfg.ScrapeProvider {
	case "api":
		return leboncoin.NewClient(cfg.Department, logger), nil
	case "browser":
		return leboncoin.NewBrowserProvider(cfg.Department, cfg.ChromeBin, logger), nil
	case "sample":
		return leboncoin.NewSampleProvider(cfg.Department), nil
	default:
		return nil, fmt.Errorf("unknown SCRAPE_PROVIDER %q (want api, browser or sample)", cfg.ScrapeProvider)
	}
}
