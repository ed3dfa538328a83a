// Package postgres implements durable.RawStore over a Postgres table with
// a jsonb data column, using jackc/pgx/v5. One physical table holds every
// tenant's documents; when the Core is configured for
// useTenantPerStorage, the tenant column is populated and every query
// filters on it — "tenant" here is a partition key, not a Postgres role.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lattice-run/grainstore/durable"
)

// Store is a pgx-backed durable.RawStore.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

var _ durable.RawStore = (*Store)(nil)

// Config configures a Store.
type Config struct {
	Pool *pgxpool.Pool
	// Table is the fully-qualified table name, default "grain_documents".
	Table string
}

// New returns a Store backed by cfg.Pool. It does not create the table;
// see Schema for the DDL to run once during provisioning.
func New(cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, errors.New("postgres: pool is required")
	}
	table := cfg.Table
	if table == "" {
		table = "grain_documents"
	}
	return &Store{pool: cfg.Pool, table: table}, nil
}

// Schema returns the DDL for the documents table. Callers run this once
// during provisioning; the package does not run migrations itself.
func (s *Store) Schema() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text NOT NULL,
	tenant text NOT NULL DEFAULT '',
	data jsonb NOT NULL,
	last_modified timestamptz NOT NULL,
	PRIMARY KEY (tenant, id)
)`, s.table)
}

func (s *Store) Load(ctx context.Context, id string, tenant string) (durable.RawDocument, bool, error) {
	q := fmt.Sprintf(`SELECT id, data, last_modified FROM %s WHERE tenant = $1 AND id = $2`, s.table)
	row := s.pool.QueryRow(ctx, q, tenant, id)

	var doc durable.RawDocument
	var lastModified time.Time
	if err := row.Scan(&doc.ID, &doc.Data, &lastModified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return durable.RawDocument{}, false, nil
		}
		return durable.RawDocument{}, false, fmt.Errorf("postgres: load %q: %w", id, err)
	}
	doc.LastModified = lastModified
	return doc, true, nil
}

func (s *Store) Upsert(ctx context.Context, doc durable.RawDocument, tenant string) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, tenant, data, last_modified)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant, id) DO UPDATE
		SET data = EXCLUDED.data, last_modified = EXCLUDED.last_modified`, s.table)
	if _, err := s.pool.Exec(ctx, q, doc.ID, tenant, doc.Data, doc.LastModified); err != nil {
		return fmt.Errorf("postgres: upsert %q: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string, tenant string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE tenant = $1 AND id = $2`, s.table)
	if _, err := s.pool.Exec(ctx, q, tenant, id); err != nil {
		return fmt.Errorf("postgres: delete %q: %w", id, err)
	}
	return nil
}
