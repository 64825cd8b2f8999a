package services

import (
	"carscout/models"
	"carscout/storage"
	"carscout/utils"
)

// InsightService computes aggregate market statistics over stored listings.
type InsightService struct {
	store  storage.ListingStore
	logger *utils.Logger
}

func NewInsightService(store storage.ListingStore, logger *utils.Logger) *InsightService {
	return &InsightService{store: store, logger: logger}
}

// MarketStats aggregates the active listings into a market report.
func (s *InsightService) MarketStats() (*models.MarketStats, error) {
	listings, err := s.store.FetchActive()
	if err != nil {
		return nil, err
	}

	stats := &models.MarketStats{
		TotalListings: len(listings),
		ByFuelType:    make(map[string]int),
		ByDepartment:  make(map[string]int),
	}

	var total int
	for _, l := range listings {
		if l.FuelType != "" {
			stats.ByFuelType[l.FuelType]++
		}
		if l.Department != "" {
			stats.ByDepartment[l.Department]++
		}

		if l.Price == nil {
			continue
		}
		price := *l.Price
		if stats.WithPrice == 0 {
			stats.MinPrice = price
			stats.MaxPrice = price
		}
		if price < stats.MinPrice {
			stats.MinPrice = price
		}
		if price > stats.MaxPrice {
			stats.MaxPrice = price
		}
		total += price
		stats.WithPrice++
	}

	if stats.WithPrice > 0 {
		stats.AveragePrice = round2(float64(total) / float64(stats.WithPrice))
	}

	return stats, nil
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
