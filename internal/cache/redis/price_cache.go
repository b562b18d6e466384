package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avelichko/scorebot/internal/domain"
)

// PriceCache keeps the last observed tick per instrument. Price and
// observation time are encoded into a single value, so a reader can never
// see a price without the timestamp that makes staleness checks possible.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache on the shared client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.rdb}
}

func tickKey(instrument string) string {
	return "pipeline:tick:" + instrument
}

func encodeTick(price float64, ts time.Time) string {
	return strconv.FormatFloat(price, 'f', -1, 64) + "@" + strconv.FormatInt(ts.UnixNano(), 10)
}

func decodeTick(raw string) (float64, time.Time, error) {
	i := strings.LastIndexByte(raw, '@')
	if i < 0 {
		return 0, time.Time{}, fmt.Errorf("malformed tick %q", raw)
	}
	price, err := strconv.ParseFloat(raw[:i], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed tick price %q: %w", raw, err)
	}
	nanos, err := strconv.ParseInt(raw[i+1:], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("malformed tick timestamp %q: %w", raw, err)
	}
	return price, time.Unix(0, nanos).UTC(), nil
}

// SetPrice records the latest tick for an instrument.
func (pc *PriceCache) SetPrice(ctx context.Context, instrument string, price float64, ts time.Time) error {
	if err := pc.rdb.Set(ctx, tickKey(instrument), encodeTick(price, ts), 0).Err(); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", instrument, err)
	}
	return nil
}

// GetPrice returns the last tick for an instrument, or domain.ErrNotFound
// when none was ever recorded.
func (pc *PriceCache) GetPrice(ctx context.Context, instrument string) (float64, time.Time, error) {
	raw, err := pc.rdb.Get(ctx, tickKey(instrument)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("redis: get tick %s: %w", instrument, err)
	}
	price, ts, err := decodeTick(raw)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: tick %s: %w", instrument, err)
	}
	return price, ts, nil
}

// GetPrices fetches the last prices for several instruments in one MGET.
// Instruments without a recorded tick are left out of the result.
func (pc *PriceCache) GetPrices(ctx context.Context, instruments []string) (map[string]float64, error) {
	if len(instruments) == 0 {
		return map[string]float64{}, nil
	}

	keys := make([]string, len(instruments))
	for i, in := range instruments {
		keys[i] = tickKey(in)
	}
	vals, err := pc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get ticks: %w", err)
	}

	result := make(map[string]float64, len(instruments))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		price, _, err := decodeTick(raw)
		if err != nil {
			continue
		}
		result[instruments[i]] = price
	}
	return result, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
