package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	pharmacyx "github.com/tanpawarit/pharmacy-concierge/pkg/pharmacy"
)

const snapshotKey = "directory:snapshot"

type CacheKind string

const (
	CacheMemory  CacheKind = "memory"
	CacheUpstash CacheKind = "upstash"
	CacheRedis   CacheKind = "redis"
	CacheNone    CacheKind = "none"
)

// Config is read with the PHARMACY prefix. The transport settings live in
// pharmacy.Config under the same prefix.
type Config struct {
	MatchDigits int           `envconfig:"MATCH_DIGITS" split_words:"true" default:"10"`
	Cache       CacheKind     `envconfig:"CACHE" split_words:"true" default:"memory"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" split_words:"true" default:"5m"`
}

func (c Config) Validate() error {
	if c.MatchDigits < 0 {
		return fmt.Errorf("%w: match digits must be >= 0", contractx.ErrValidation)
	}
	switch c.Cache {
	case CacheMemory, CacheUpstash, CacheRedis, CacheNone, "":
	default:
		return fmt.Errorf("%w: unknown directory cache %q", contractx.ErrValidation, c.Cache)
	}
	return nil
}

// Fetcher returns the full directory.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]pharmacyx.Record, error)
}

type Option func(*Client)

// WithCache enables the snapshot cache.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.ttl = ttl
	}
}

func WithMatchDigits(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.matchDigits = n
		}
	}
}

// Client resolves caller phone numbers against the pharmacy directory.
type Client struct {
	fetcher     Fetcher
	cache       Cache
	ttl         time.Duration
	matchDigits int
}

var _ contractx.Directory = (*Client)(nil)

func NewClient(fetcher Fetcher, opts ...Option) *Client {
	c := &Client{fetcher: fetcher, matchDigits: DefaultMatchDigits}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Lookup returns nil, nil when the number is not in the directory. Transport
// and decoding failures come back as *contract.DirectoryUnavailableError.
// When several records share a match key the first one in directory order
// wins.
func (c *Client) Lookup(ctx context.Context, phone string) (*contractx.CustomerRecord, error) {
	if NormalizePhone(phone) == "" {
		return nil, nil
	}

	records, err := c.snapshot(ctx)
	if err != nil {
		return nil, &contractx.DirectoryUnavailableError{Phone: phone, Err: err}
	}

	for _, r := range records {
		if SamePhone(phone, r.Phone, c.matchDigits) {
			rec := toCustomerRecord(r)
			return &rec, nil
		}
	}
	return nil, nil
}

func (c *Client) snapshot(ctx context.Context) ([]pharmacyx.Record, error) {
	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, snapshotKey)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("directory cache read failed, fetching")
		case ok:
			records, err := pharmacyx.Decode(raw)
			if err == nil {
				return records, nil
			}
			log.Warn().Err(err).Msg("directory cache entry unreadable, fetching")
		}
	}

	if c.fetcher == nil {
		return nil, fmt.Errorf("no directory fetcher configured")
	}
	records, err := c.fetcher.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		raw, err := pharmacyx.Encode(records)
		if err == nil {
			err = c.cache.Set(ctx, snapshotKey, raw, c.ttl)
		}
		if err != nil {
			log.Warn().Err(err).Msg("directory cache write failed")
		}
	}
	return records, nil
}

// Metadata keys set on every CustomerRecord built from the directory.
const (
	MetaID            = "id"
	MetaEmail         = "email"
	MetaCity          = "city"
	MetaState         = "state"
	MetaLocation      = "location"
	MetaTotalRxVolume = "total_rx_volume"
	MetaHighVolume    = "high_volume"
	MetaTopDrugs      = "top_drugs"
)

func toCustomerRecord(r pharmacyx.Record) contractx.CustomerRecord {
	tier := contractx.Tier(strings.ToLower(strings.TrimSpace(r.Tier)))
	if !tier.Valid() {
		tier = contractx.TierReturning
	}

	top := r.TopDrugs(3)
	drugs := make([]string, 0, len(top))
	for _, p := range top {
		drugs = append(drugs, fmt.Sprintf("%s (%d)", p.Drug, p.Count))
	}

	return contractx.CustomerRecord{
		PhoneNumber:  r.Phone,
		PharmacyName: r.DisplayName(),
		Tier:         tier,
		Metadata: map[string]string{
			MetaID:            r.IDString(),
			MetaEmail:         strings.TrimSpace(r.Email),
			MetaCity:          r.City,
			MetaState:         r.State,
			MetaLocation:      r.Location(),
			MetaTotalRxVolume: strconv.Itoa(r.TotalRxVolume()),
			MetaHighVolume:    strconv.FormatBool(r.IsHighVolume()),
			MetaTopDrugs:      strings.Join(drugs, ", "),
		},
	}
}
