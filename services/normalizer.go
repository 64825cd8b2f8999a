package services

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"carscout/models"
	"carscout/utils"
)

const sourceName = "leboncoin"

// Normalizer transforms RawAds into normalized Listings ready for the store.
// Absent or unparseable numeric fields become nil rather than dropping the
// record.
type Normalizer struct {
	department string
	logger     *utils.Logger
}

// NewNormalizer creates a Normalizer stamping listings with the given
// department code.
func NewNormalizer(department string, logger *utils.Logger) *Normalizer {
	return &Normalizer{department: department, logger: logger}
}

// Normalize processes raw ads and returns normalized listings. Ads without an
// external id are dropped; duplicate ids within the batch keep the first
// occurrence.
func (n *Normalizer) Normalize(ads []models.RawAd) []*models.Listing {
	seen := make(map[string]struct{})
	result := make([]*models.Listing, 0, len(ads))
	now := time.Now().UTC()

	for _, ad := range ads {
		id := strings.TrimSpace(ad.ListID)
		if id == "" {
			n.logger.Warn("[normalizer] Dropping ad with empty list id: %s", ad.Subject)
			continue
		}

		if _, dup := seen[id]; dup {
			n.logger.Debug("[normalizer] Duplicate id skipped: %s", id)
			continue
		}
		seen[id] = struct{}{}

		listing := &models.Listing{
			ID:          id,
			Source:      sourceName,
			Title:       normalizeText(ad.Subject),
			Price:       firstPrice(ad.Price),
			Year:        parseIntAttr(ad.Attributes["regdate"]),
			Mileage:     parseIntAttr(ad.Attributes["mileage"]),
			FuelType:    strings.ToLower(strings.TrimSpace(ad.Attributes["fuel"])),
			Description: normalizeText(ad.Body),
			Images:      ad.ImageURLs,
			URL:         strings.TrimSpace(ad.URL),
			SellerType:  strings.ToLower(strings.TrimSpace(ad.OwnerType)),
			Department:  n.department,
			FirstSeen:   now,
			LastSeen:    now,
			IsActive:    true,
		}

		result = append(result, listing)
	}

	n.logger.Info("[normalizer] Normalized %d → %d listings (dropped %d)",
		len(ads), len(result), len(ads)-len(result))
	return result
}

// firstPrice takes the leading element of the marketplace price array, which
// is absent when the seller did not publish a price.
func firstPrice(prices []int) *int {
	if len(prices) == 0 {
		return nil
	}
	v := prices[0]
	return &v
}

// parseIntAttr coerces a numeric attribute, returning nil for anything absent
// or unparseable.
func parseIntAttr(raw string) *int {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.Atoi(cleaned)
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

// normalizeText strips leading/trailing whitespace and collapses internal
// whitespace.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
