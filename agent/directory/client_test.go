package directory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	pharmacyx "github.com/tanpawarit/pharmacy-concierge/pkg/pharmacy"
)

type fakeFetcher struct {
	records []pharmacyx.Record
	err     error
	calls   atomic.Int32
}

func (f *fakeFetcher) FetchAll(context.Context) ([]pharmacyx.Record, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func sampleDirectory() *fakeFetcher {
	return &fakeFetcher{records: []pharmacyx.Record{
		{
			ID: "1", Name: "HealthFirst Pharmacy", Phone: "+1-555-123-4567", Email: "contact@healthfirst.com",
			City: "New York", State: "NY",
			Prescriptions: []pharmacyx.Prescription{{Drug: "Lisinopril", Count: 42}, {Drug: "Atorvastatin", Count: 61}},
		},
		{ID: "2", PharmacyName: "MediCare Plus", Phone: "(555) 666-7777", Tier: "Regular"},
	}}
}

func TestSamePhoneAcrossFormats(t *testing.T) {
	t.Parallel()

	formats := []string{"+1-555-123-4567", "15551234567", "555.123.4567", "(555) 123-4567", "+1 (555) 123 4567"}
	for _, a := range formats {
		for _, b := range formats {
			assert.Truef(t, SamePhone(a, b, 10), "%q vs %q", a, b)
		}
	}

	assert.False(t, SamePhone("+1-555-123-4567", "+1-555-123-4568", 10))
	assert.False(t, SamePhone("+1-555-UNKNOWN", "+1-555-123-4567", 10), "short numbers compare in full")
	assert.True(t, SamePhone("1555", "1-555", 10))
	assert.False(t, SamePhone("", "", 10), "no digits never match")
	assert.False(t, SamePhone("n/a", "none", 10))
}

func TestMatchKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5551234567", MatchKey("+1-555-123-4567", 10))
	assert.Equal(t, "1555", MatchKey("+1-555", 10))
}

func TestLookupKnownCaller(t *testing.T) {
	t.Parallel()

	c := NewClient(sampleDirectory())
	rec, err := c.Lookup(context.Background(), "+1-555-123-4567")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "HealthFirst Pharmacy", rec.PharmacyName)
	assert.Equal(t, contractx.TierReturning, rec.Tier)
	assert.Equal(t, "+1-555-123-4567", rec.PhoneNumber)
	assert.Equal(t, "1", rec.Meta(MetaID))
	assert.Equal(t, "contact@healthfirst.com", rec.Meta(MetaEmail))
	assert.Equal(t, "New York, NY", rec.Meta(MetaLocation))
	assert.Equal(t, "103", rec.Meta(MetaTotalRxVolume))
	assert.Equal(t, "true", rec.Meta(MetaHighVolume))
	assert.Equal(t, "Atorvastatin (61), Lisinopril (42)", rec.Meta(MetaTopDrugs))
}

func TestLookupIsFormatInsensitive(t *testing.T) {
	t.Parallel()

	c := NewClient(sampleDirectory())
	for _, phone := range []string{"15551234567", "555-123-4567", "+1 (555) 123-4567"} {
		rec, err := c.Lookup(context.Background(), phone)
		require.NoError(t, err)
		require.NotNil(t, rec, phone)
		assert.Equal(t, "HealthFirst Pharmacy", rec.PharmacyName)
	}
}

func TestLookupExplicitTier(t *testing.T) {
	t.Parallel()

	c := NewClient(sampleDirectory())
	rec, err := c.Lookup(context.Background(), "+1-555-666-7777")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, contractx.TierRegular, rec.Tier)
	assert.Equal(t, "MediCare Plus", rec.PharmacyName)
}

func TestLookupUnknownCallerIsNotAnError(t *testing.T) {
	t.Parallel()

	c := NewClient(sampleDirectory())
	for _, phone := range []string{"+1-555-999-0000", "+1-555-UNKNOWN", ""} {
		rec, err := c.Lookup(context.Background(), phone)
		require.NoError(t, err)
		assert.Nil(t, rec, phone)
	}
}

func TestLookupTransportFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: connection refused")
	c := NewClient(&fakeFetcher{err: boom})

	rec, err := c.Lookup(context.Background(), "+1-555-123-4567")
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, contractx.ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, boom)

	var due *contractx.DirectoryUnavailableError
	require.ErrorAs(t, err, &due)
	assert.Equal(t, "+1-555-123-4567", due.Phone)
}

func TestLookupUsesSnapshotCache(t *testing.T) {
	t.Parallel()

	fetcher := sampleDirectory()
	c := NewClient(fetcher, WithCache(NewMemoryCache(), time.Minute))

	for i := 0; i < 3; i++ {
		rec, err := c.Lookup(context.Background(), "+1-555-123-4567")
		require.NoError(t, err)
		require.NotNil(t, rec)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestLookupBypassesBrokenCache(t *testing.T) {
	t.Parallel()

	fetcher := sampleDirectory()
	c := NewClient(fetcher, WithCache(failingCache{}, time.Minute))

	rec, err := c.Lookup(context.Background(), "+1-555-123-4567")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestMemoryCacheExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryCache()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(context.Background(), "k", []byte("v"), time.Minute))
	got, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(got))

	now = now.Add(time.Minute)
	_, ok, err = m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Config{MatchDigits: 10, Cache: CacheRedis}.Validate())
	assert.ErrorIs(t, Config{Cache: "memcached"}.Validate(), contractx.ErrValidation)
	assert.ErrorIs(t, Config{MatchDigits: -1}.Validate(), contractx.ErrValidation)
}
