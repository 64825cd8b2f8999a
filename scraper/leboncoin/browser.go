package leboncoin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"carscout/models"
	"carscout/utils"
)

const searchURLFormat = "https://www.leboncoin.fr/recherche?category=2&locations=d_%s&page=%d"

var (
	listIDRegexp = regexp.MustCompile(`/(\d+)(?:\.htm)?/?$`)
	digitsRegexp = regexp.MustCompile(`[\d\s\x{00a0}]+`)
	yearRegexp   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	kmRegexp     = regexp.MustCompile(`([\d\s\x{00a0}]+)\s*km`)
)

// BrowserProvider renders marketplace search pages in headless Chrome and
// extracts ad cards from the resulting HTML. It is the fallback path for when
// the finder JSON API rejects non-browser traffic.
type BrowserProvider struct {
	department string
	chromeBin  string
	logger     *utils.Logger
}

// NewBrowserProvider creates a browser-backed fetch provider.
func NewBrowserProvider(department, chromeBin string, logger *utils.Logger) *BrowserProvider {
	return &BrowserProvider{
		department: department,
		chromeBin:  chromeBin,
		logger:     logger,
	}
}

// FetchPage renders the search page covering the given offset and parses its
// ad cards. Offsets map onto pages of PageSize records.
func (p *BrowserProvider) FetchPage(ctx context.Context, offset int) ([]models.RawAd, error) {
	page := offset/PageSize + 1
	pageURL := fmt.Sprintf(searchURLFormat, p.department, page)

	html, err := p.renderPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	ads, err := parseSearchHTML(html)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("[leboncoin] Browser page %d — %d cards", page, len(ads))
	return ads, nil
}

func (p *BrowserProvider) renderPage(ctx context.Context, pageURL string) (string, error) {
	chromeBin := p.chromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 90*time.Second)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(5*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("leboncoin: render %s: %w", pageURL, err)
	}
	return html, nil
}

// parseSearchHTML extracts ad cards from a rendered search results page.
func parseSearchHTML(html string) ([]models.RawAd, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("leboncoin: parse HTML: %w", err)
	}

	var ads []models.RawAd
	doc.Find(`a[data-qa-id="aditem_container"], a[href*="/voitures/"]`).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}

		idMatch := listIDRegexp.FindStringSubmatch(href)
		if idMatch == nil {
			return
		}

		if strings.HasPrefix(href, "/") {
			href = "https://www.leboncoin.fr" + href
		}

		title := strings.TrimSpace(s.Find(`[data-qa-id="aditem_title"]`).First().Text())
		if title == "" {
			title = strings.TrimSpace(s.AttrOr("title", ""))
		}

		priceText := s.Find(`[data-qa-id="aditem_price"]`).First().Text()
		paramsText := s.Find(`[data-qa-id="aditem_params"]`).First().Text()

		ad := models.RawAd{
			ListID:     idMatch[1],
			Subject:    title,
			URL:        href,
			Attributes: map[string]string{},
		}
		if price, ok := parseEuroAmount(priceText); ok {
			ad.Price = []int{price}
		}
		if m := yearRegexp.FindString(paramsText); m != "" {
			ad.Attributes["regdate"] = m
		}
		if m := kmRegexp.FindStringSubmatch(paramsText); m != nil {
			ad.Attributes["mileage"] = strings.Map(keepDigit, m[1])
		}
		if fuel := detectFuel(paramsText); fuel != "" {
			ad.Attributes["fuel"] = fuel
		}

		ads = append(ads, ad)
	})

	return ads, nil
}

// parseEuroAmount pulls the first integer amount out of a price label such as
// "12 500 €".
func parseEuroAmount(text string) (int, bool) {
	m := digitsRegexp.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.Map(keepDigit, m))
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

func detectFuel(text string) string {
	lower := strings.ToLower(text)
	for _, fuel := range []string{"essence", "diesel", "électrique", "hybride", "gpl"} {
		if strings.Contains(lower, fuel) {
			return fuel
		}
	}
	return ""
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
