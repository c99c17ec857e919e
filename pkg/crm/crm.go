package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultDBFile = "pharmacy-concierge/crm.db"
)

var (
	ErrUnknownDriver   = errors.New("unknown crm driver")
	ErrEmptyCustomerID = errors.New("crm customer id is empty")
	ErrEntryNotFound   = errors.New("crm entry not found")
)

type Config struct {
	Driver string `split_words:"true" default:"sqlite"`
	// DSN is a file path or sqlite DSN for sqlite, a postgres:// url otherwise.
	// Empty means the default data file for sqlite.
	DSN string `envconfig:"DSN"`
}

// Entry is the CRM view of one customer or lead. Fields accumulate across
// updates; a later value for the same key replaces the earlier one.
type Entry struct {
	bun.BaseModel `bun:"table:crm_entries,alias:ce"`

	ID         string            `bun:"id,pk"`
	CustomerID string            `bun:"customer_id,notnull,unique"`
	Reference  string            `bun:"reference,notnull"`
	Fields     map[string]string `bun:"fields"`
	Updates    int               `bun:"updates,notnull"`
	CreatedAt  time.Time         `bun:"created_at,notnull"`
	UpdatedAt  time.Time         `bun:"updated_at,notnull"`
}

type Store struct {
	db  *bun.DB
	now func() time.Time
}

var _ contractx.CRMUpdater = (*Store)(nil)

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("crm migrate: %w", err)
	}
	return s, nil
}

func openDB(cfg Config) (*bun.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)

	switch driver {
	case "", DriverSQLite:
		if dsn == "" {
			path, err := xdg.DataFile(defaultDBFile)
			if err != nil {
				return nil, fmt.Errorf("crm data path: %w", err)
			}
			dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// single writer, and ":memory:" databases are per connection
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("%w: postgres requires CRM_DSN", contractx.ErrValidation)
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// UpdateCRM merges fields into the customer's entry, creating it when
// needed, and returns a reference for this update.
func (s *Store) UpdateCRM(ctx context.Context, customerID string, fields map[string]string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", fmt.Errorf("%w: %w", contractx.ErrActionFailed, ErrEmptyCustomerID)
	}

	ref := "CRM-" + ulid.Make().String()
	now := s.now().UTC()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		entry := new(Entry)
		err := tx.NewSelect().Model(entry).Where("customer_id = ?", customerID).Limit(1).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			entry = &Entry{
				ID:         ulid.Make().String(),
				CustomerID: customerID,
				Fields:     map[string]string{},
				CreatedAt:  now,
			}
		case err != nil:
			return err
		}

		if entry.Fields == nil {
			entry.Fields = map[string]string{}
		}
		maps.Copy(entry.Fields, fields)
		entry.Reference = ref
		entry.Updates++
		entry.UpdatedAt = now

		_, err = tx.NewInsert().
			Model(entry).
			On("CONFLICT (customer_id) DO UPDATE").
			Set("fields = EXCLUDED.fields").
			Set("reference = EXCLUDED.reference").
			Set("updates = EXCLUDED.updates").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("crm update %s: %w", customerID, err)
	}

	log.Info().
		Str("reference", ref).
		Str("customer_id", customerID).
		Int("fields", len(fields)).
		Msg("crm entry updated")
	return ref, nil
}

func (s *Store) Get(ctx context.Context, customerID string) (*Entry, error) {
	entry := new(Entry)
	err := s.db.NewSelect().Model(entry).Where("customer_id = ?", customerID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, customerID)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
