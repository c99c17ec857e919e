package crm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpdateCRMCreatesEntry(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	ref, err := s.UpdateCRM(ctx, "lead:5559990000", map[string]string{"pharmacy_name": "Sunrise Pharmacy", "status": "qualified"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "CRM-"), ref)

	entry, err := s.Get(ctx, "lead:5559990000")
	require.NoError(t, err)
	assert.Equal(t, ref, entry.Reference)
	assert.Equal(t, 1, entry.Updates)
	assert.Equal(t, "Sunrise Pharmacy", entry.Fields["pharmacy_name"])
	assert.Equal(t, "qualified", entry.Fields["status"])
}

func TestUpdateCRMMergesLastWriteWins(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }

	_, err := s.UpdateCRM(ctx, "1", map[string]string{"request": "refill", "urgency": "low"})
	require.NoError(t, err)

	s.now = func() time.Time { return first.Add(time.Hour) }
	ref, err := s.UpdateCRM(ctx, "1", map[string]string{"urgency": "high"})
	require.NoError(t, err)

	entry, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, ref, entry.Reference)
	assert.Equal(t, 2, entry.Updates)
	assert.Equal(t, "refill", entry.Fields["request"])
	assert.Equal(t, "high", entry.Fields["urgency"])
	assert.True(t, entry.UpdatedAt.After(entry.CreatedAt))
}

func TestUpdateCRMRequiresCustomerID(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	_, err := s.UpdateCRM(context.Background(), " ", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, ErrEmptyCustomerID)
	assert.ErrorIs(t, err, contractx.ErrActionFailed)
}

func TestGetMissingEntry(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(context.Background(), Config{Driver: DriverPostgres})
	assert.ErrorIs(t, err, contractx.ErrValidation)
}
