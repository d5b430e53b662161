package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/containerd/log"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS pkgrelay_packages (
	package      TEXT        NOT NULL,
	chain_id     BIGINT      NOT NULL,
	url          TEXT        NOT NULL,
	meta_url     TEXT        NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (package, chain_id)
)`

const upsert = `
INSERT INTO pkgrelay_packages (package, chain_id, url, meta_url, published_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (package, chain_id)
DO UPDATE SET url = EXCLUDED.url, meta_url = EXCLUDED.meta_url, published_at = EXCLUDED.published_at`

// Postgres is a registry shared through a PostgreSQL table. Lookups are
// cached in memory and the cache entry is dropped on every write.
type Postgres struct {
	db    *sql.DB
	label string

	schemaOnce sync.Once
	schemaErr  error

	cache *lru.Cache[entryKey, Entry]
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string, cacheSize int) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to registry database: %w", err)
	}
	return newPostgres(db, cacheSize, "postgres")
}

func newPostgres(db *sql.DB, cacheSize int, label string) (*Postgres, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[entryKey, Entry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db, label: label, cache: cache}, nil
}

func (p *Postgres) Label() string { return p.label }

// Close releases the database handle.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	p.schemaOnce.Do(func() {
		_, p.schemaErr = p.db.ExecContext(ctx, schema)
	})
	return p.schemaErr
}

func (p *Postgres) GetURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	e, ok, err := p.get(ctx, fullRef, chainID)
	if err != nil || !ok {
		return "", err
	}
	return e.URL, nil
}

func (p *Postgres) GetMetaURL(ctx context.Context, fullRef string, chainID int64) (string, error) {
	e, ok, err := p.get(ctx, fullRef, chainID)
	if err != nil || !ok {
		return "", err
	}
	return e.MetaURL, nil
}

func (p *Postgres) get(ctx context.Context, ref string, chainID int64) (Entry, bool, error) {
	key, err := Key(ref)
	if err != nil {
		return Entry{}, false, err
	}
	ek := entryKey{key, chainID}
	if e, ok := p.cache.Get(ek); ok {
		return e, true, nil
	}
	if err := p.ensureSchema(ctx); err != nil {
		return Entry{}, false, fmt.Errorf("ensure schema: %w", err)
	}

	e := Entry{Package: key, ChainID: chainID}
	err = p.db.QueryRowContext(ctx,
		`SELECT url, meta_url, published_at FROM pkgrelay_packages WHERE package = $1 AND chain_id = $2`,
		key, chainID,
	).Scan(&e.URL, &e.MetaURL, &e.Published)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("querying %s on chain %d: %w", key, chainID, err)
	}
	p.cache.Add(ek, e)
	return e, true, nil
}

func (p *Postgres) Publish(ctx context.Context, names []string, chainID int64, url, metaURL string) ([]string, error) {
	return p.PublishMany(ctx, []PublishCall{{PackagesNames: names, ChainID: chainID, URL: url, MetaURL: metaURL}})
}

// PublishMany writes every call in one transaction.
func (p *Postgres) PublishMany(ctx context.Context, calls []PublishCall) ([]string, error) {
	keys := make([][]string, len(calls))
	for i, c := range calls {
		k, err := validateCall(c)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning publish: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var receipts []string
	for i, c := range calls {
		for _, key := range keys[i] {
			if _, err := tx.ExecContext(ctx, upsert, key, c.ChainID, c.URL, c.MetaURL); err != nil {
				return nil, fmt.Errorf("publishing %s on chain %d: %w", key, c.ChainID, err)
			}
			receipts = append(receipts, Receipt(key, c.ChainID))
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing publish: %w", err)
	}
	// Lookups between the upsert and the commit may have cached the old
	// row, so invalidate only once the new one is visible.
	for i, c := range calls {
		for _, key := range keys[i] {
			p.cache.Remove(entryKey{key, c.ChainID})
		}
	}
	log.G(ctx).WithField("entries", len(receipts)).Debug("updated postgres registry")
	return receipts, nil
}

func (p *Postgres) List(ctx context.Context) ([]Entry, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT package, chain_id, url, meta_url, published_at FROM pkgrelay_packages ORDER BY package, chain_id`)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Package, &e.ChainID, &e.URL, &e.MetaURL, &e.Published); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Remove(ctx context.Context, fullRef string, chainID int64) error {
	key, err := Key(fullRef)
	if err != nil {
		return err
	}
	if err := p.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `DELETE FROM pkgrelay_packages WHERE package = $1 AND chain_id = $2`, key, chainID)
	p.cache.Remove(entryKey{key, chainID})
	return err
}
