package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mockstreet/paperbroker/internal/domain"
)

const (
	yahooChartURL        = "https://query2.finance.yahoo.com/v8/finance/chart/%s?interval=1m&range=1d"
	defaultHTTPTimeout   = 8 * time.Second
	defaultQuoteCacheTTL = time.Minute
)

type cachedQuote struct {
	quote   domain.Quote
	fetched time.Time
}

// YahooPricer fetches live quotes from the Yahoo Finance chart endpoint.
// Successful lookups are cached for a short TTL to keep dashboard listings
// from hammering the API.
type YahooPricer struct {
	client *http.Client
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

// NewYahooPricer creates a live pricer with its own HTTP client.
func NewYahooPricer(ttl time.Duration) *YahooPricer {
	if ttl <= 0 {
		ttl = defaultQuoteCacheTTL
	}
	return &YahooPricer{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		ttl:    ttl,
		cache:  make(map[string]cachedQuote),
	}
}

// GetQuote fetches the current market quote for the symbol.
func (p *YahooPricer) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	p.mu.RLock()
	if c, ok := p.cache[symbol]; ok && time.Since(c.fetched) < p.ttl {
		p.mu.RUnlock()
		return c.quote, nil
	}
	p.mu.RUnlock()

	url := fmt.Sprintf(yahooChartURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Quote{}, errors.Wrap(err, "build quote request")
	}
	req.Header.Set("User-Agent", "paperbroker/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, errors.Wrapf(err, "fetch quote for %s", symbol)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, errors.Errorf("quote lookup for %s returned http %d", symbol, resp.StatusCode)
	}

	var raw struct {
		Chart struct {
			Result []struct {
				Meta struct {
					LongName           string  `json:"longName"`
					ShortName          string  `json:"shortName"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Quote{}, errors.Wrapf(err, "decode quote for %s", symbol)
	}
	if len(raw.Chart.Result) == 0 {
		return domain.Quote{}, errors.Errorf("quote lookup for %s returned no result", symbol)
	}

	meta := raw.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return domain.Quote{}, errors.Errorf("quote lookup for %s returned no price", symbol)
	}

	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	if name == "" {
		if fallback, ok := domain.FallbackQuote(symbol); ok {
			name = fallback.DisplayName
		} else {
			name = symbol
		}
	}

	quote := domain.Quote{
		Symbol:      symbol,
		DisplayName: name,
		Price:       decimal.NewFromFloat(meta.RegularMarketPrice),
	}

	p.mu.Lock()
	p.cache[symbol] = cachedQuote{quote: quote, fetched: time.Now()}
	p.mu.Unlock()

	return quote, nil
}
