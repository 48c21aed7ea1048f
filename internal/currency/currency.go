package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"minimart/backend/internal/cache"
)

const DefaultBaseURL = "https://economia.awesomeapi.com.br/json/last"

// quote is one entry of the upstream response, keyed like "USDBRL".
type quote struct {
	Code   string `json:"code"`
	CodeIn string `json:"codein"`
	Bid    string `json:"bid"`
}

// Client resolves display exchange rates relative to USD. Rates never affect
// stored amounts, which are always USD, so every failure path degrades to a
// rate of 1.0 instead of surfacing an error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	views      cache.ViewCache
	ttl        time.Duration
}

func New(baseURL string, views cache.ViewCache, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if views == nil {
		views = cache.NoopViewCache{}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 8 * time.Second},
		views:      views,
		ttl:        ttl,
	}
}

// Rates returns a rate for every requested code. USD is always 1.0; any code
// the upstream cannot resolve defaults to 1.0.
func (c *Client) Rates(ctx context.Context, codes []string) map[string]float64 {
	rates := map[string]float64{"USD": 1.0}

	wanted := normalizeCodes(codes)
	if len(wanted) == 0 {
		return rates
	}

	cacheKey := "currency:rates:" + strings.Join(wanted, ",")
	if payload, ok, err := c.views.Get(ctx, cacheKey); err == nil && ok {
		var cached map[string]float64
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached
		}
	}

	fetched, err := c.fetch(ctx, wanted)
	if err != nil {
		log.Printf("[currency] WARN: rate lookup failed, defaulting to 1.0: %v", err)
		for _, code := range wanted {
			rates[code] = 1.0
		}
		return rates
	}

	for _, code := range wanted {
		rate, ok := fetched[code]
		if !ok || rate <= 0 {
			log.Printf("[currency] WARN: no rate for %s, defaulting to 1.0", code)
			rate = 1.0
		}
		rates[code] = rate
	}

	if payload, err := json.Marshal(rates); err == nil {
		if err := c.views.Set(ctx, cacheKey, payload, c.ttl); err != nil {
			log.Printf("[currency] WARN: failed to cache rates: %v", err)
		}
	}
	return rates
}

func (c *Client) fetch(ctx context.Context, codes []string) (map[string]float64, error) {
	pairs := make([]string, 0, len(codes))
	for _, code := range codes {
		pairs = append(pairs, "USD-"+code)
	}

	url := c.baseURL + "/" + strings.Join(pairs, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var quotes map[string]quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		if q.Code != "USD" || q.CodeIn == "" {
			continue
		}
		bid, err := strconv.ParseFloat(q.Bid, 64)
		if err != nil {
			continue
		}
		rates[q.CodeIn] = bid
	}
	return rates, nil
}

// normalizeCodes upper-cases, dedupes and sorts the requested codes,
// dropping USD and blanks. Sorting keeps the cache key stable.
func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || code == "USD" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
