package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/tradesim/engine/internal/contract"
	"github.com/tradesim/engine/internal/metrics"
)

// HTTPGateway fetches quotes from a Yahoo-style quote endpoint:
//
//	GET {baseURL}?symbol=AAPL
//	{"quoteResponse":{"result":[{"ask":148.2,"bid":148.1,
//	  "lastPrice":148.15,"regularMarketPrice":148.11}]}}
//
// A quoted ask/bid of exactly zero means the market is closed, so the
// gateway substitutes the last traded price and then the regular
// session price; zero is never returned as an executable price. A
// missing or null field means the symbol is not currently traded.
// Option contract identifiers are quoted per contract: the per-share
// price is multiplied by the 100-share contract multiplier.
type HTTPGateway struct {
	client  *http.Client
	baseURL string
}

// NewHTTPGateway creates a gateway against baseURL. A nil client uses
// a default with a 10s timeout so a dead upstream reports an error
// instead of hanging a trade.
func NewHTTPGateway(client *http.Client, baseURL string) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{client: client, baseURL: baseURL}
}

func (g *HTTPGateway) AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return g.price(ctx, symbol, "ask")
}

func (g *HTTPGateway) BidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return g.price(ctx, symbol, "bid")
}

func (g *HTTPGateway) price(ctx context.Context, symbol, side string) (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		metrics.QuoteLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	}()

	doc, err := g.fetch(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	p, ok := field(doc, "$.quoteResponse.result[0]."+side)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}

	// Zero ask/bid outside market hours: fall back to the last traded
	// price, then the regular session price.
	if p.IsZero() {
		if last, ok := field(doc, "$.quoteResponse.result[0].lastPrice"); ok && !last.IsZero() {
			p = last
		} else if reg, ok := field(doc, "$.quoteResponse.result[0].regularMarketPrice"); ok && !reg.IsZero() {
			p = reg
		} else {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
		}
	}

	if contract.IsOption(symbol) {
		p = p.Mul(decimal.NewFromInt(100))
	}
	return p, nil
}

func (g *HTTPGateway) fetch(ctx context.Context, symbol string) (any, error) {
	addr := g.baseURL + "?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote fetch %q: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote fetch %q: unexpected status %s", symbol, resp.Status)
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("quote fetch %q: %w", symbol, err)
	}
	return doc, nil
}

// field extracts a numeric field by JSONPath. Returns false when the
// path is absent, null, or not a number — all of which mean the quote
// is unavailable.
func field(doc any, path string) (decimal.Decimal, bool) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return decimal.Zero, false
	}
	// jsonpath is not always clear about whether it returns a list of
	// one answer or a single answer; keep the first one if any.
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return decimal.Zero, false
		}
		v = list[0]
	}
	f, ok := v.(float64)
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}
