package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CachedGateway wraps a primary Gateway with a Redis read-through
// cache. Quotes are cached per (side, symbol) with a short TTL so a
// burst of trades and leaderboard recomputes does not hammer the
// upstream; unavailability is not cached, the next read retries the
// primary.
type CachedGateway struct {
	primary Gateway
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedGateway creates a cached wrapper around a primary gateway.
func NewCachedGateway(primary Gateway, rdb *redis.Client, ttl time.Duration) *CachedGateway {
	return &CachedGateway{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (g *CachedGateway) AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return g.price(ctx, symbol, "ask", g.primary.AskPrice)
}

func (g *CachedGateway) BidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return g.price(ctx, symbol, "bid", g.primary.BidPrice)
}

func (g *CachedGateway) price(
	ctx context.Context,
	symbol, side string,
	resolve func(context.Context, string) (decimal.Decimal, error),
) (decimal.Decimal, error) {
	key := quoteKey(side, symbol)

	// Try cache. A corrupt entry is treated as a miss.
	if raw, err := g.rdb.Get(ctx, key).Result(); err == nil {
		if p, err := decimal.NewFromString(raw); err == nil {
			return p, nil
		}
	}

	p, err := resolve(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	g.rdb.Set(ctx, key, p.String(), g.ttl)
	return p, nil
}

func quoteKey(side, symbol string) string {
	return fmt.Sprintf("quote:%s:%s", side, symbol)
}
