package leboncoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"carscout/models"
	"carscout/utils"
)

const (
	defaultBaseURL = "https://api.leboncoin.fr/finder/classified"
	// PageSize is the batch size the marketplace finder API serves per call.
	PageSize = 35

	carsCategory = "2"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client fetches car ads from the marketplace finder JSON API.
type Client struct {
	// BaseURL may be overridden in tests.
	BaseURL string

	department string
	httpClient *http.Client
	logger     *utils.Logger
}

// NewClient creates a finder API client scoped to one department.
func NewClient(department string, logger *utils.Logger) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		department: department,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// searchPayload mirrors the finder API request body.
type searchPayload struct {
	Limit    int           `json:"limit"`
	LimitAlu int           `json:"limit_alu"`
	Offset   int           `json:"offset"`
	Filters  searchFilters `json:"filters"`
	Owner    string        `json:"owner_type"`
	SortBy   string        `json:"sort_by"`
	SortOrd  string        `json:"sort_order"`
}

type searchFilters struct {
	Category struct {
		ID string `json:"id"`
	} `json:"category"`
	Enums struct {
		AdType []string `json:"ad_type"`
	} `json:"enums"`
	Location struct {
		Departments []string `json:"departments"`
	} `json:"location"`
	Keywords struct{} `json:"keywords"`
}

type apiAd struct {
	ListID     int64  `json:"list_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Price      []int  `json:"price"`
	Attributes []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"attributes"`
	Images struct {
		URLsLarge []string `json:"urls_large"`
	} `json:"images"`
	URL   string `json:"url"`
	Owner struct {
		Type string `json:"type"`
	} `json:"owner"`
}

type searchResponse struct {
	Ads []apiAd `json:"ads"`
}

// FetchPage requests one batch of ads at the given offset. An empty result
// means the marketplace has no further pages.
func (c *Client) FetchPage(ctx context.Context, offset int) ([]models.RawAd, error) {
	payload := searchPayload{
		Limit:    PageSize,
		LimitAlu: 3,
		Offset:   offset,
		Owner:    "all",
		SortBy:   "time",
		SortOrd:  "desc",
	}
	payload.Filters.Category.ID = carsCategory
	payload.Filters.Enums.AdType = []string{"offer"}
	payload.Filters.Location.Departments = []string{c.department}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("leboncoin: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("leboncoin: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.8")
	req.Header.Set("Origin", "https://www.leboncoin.fr")
	req.Header.Set("Referer", "https://www.leboncoin.fr/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("leboncoin: fetch offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("leboncoin: finder API returned status %d: %s", resp.StatusCode, snippet)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("leboncoin: decode response: %w", err)
	}

	c.logger.Debug("[leboncoin] Offset %d — %d ads in batch", offset, len(sr.Ads))

	ads := make([]models.RawAd, 0, len(sr.Ads))
	for _, ad := range sr.Ads {
		ads = append(ads, convertAd(ad))
	}
	return ads, nil
}

func convertAd(ad apiAd) models.RawAd {
	attrs := make(map[string]string, len(ad.Attributes))
	for _, a := range ad.Attributes {
		attrs[a.Key] = a.Value
	}

	return models.RawAd{
		ListID:     strconv.FormatInt(ad.ListID, 10),
		Subject:    ad.Subject,
		Body:       ad.Body,
		Price:      ad.Price,
		Attributes: attrs,
		ImageURLs:  ad.Images.URLsLarge,
		URL:        ad.URL,
		OwnerType:  ad.Owner.Type,
	}
}
