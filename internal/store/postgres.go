package store

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"orgterm/internal/hierarchy"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS settings (
	id         TEXT PRIMARY KEY,
	tree       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresRemote stores the hierarchy as a jsonb row in settings.
type PostgresRemote struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*PostgresRemote, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create settings table")
	}
	return &PostgresRemote{pool: pool}, nil
}

func (r *PostgresRemote) Load(ctx context.Context) ([]hierarchy.CompactNode, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT tree FROM settings WHERE id = $1`, hierarchyDocID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "load hierarchy row")
	}
	var tree []hierarchy.CompactNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, false, errors.Wrap(err, "decode hierarchy row")
	}
	return tree, true, nil
}

func (r *PostgresRemote) Save(ctx context.Context, tree []hierarchy.CompactNode) error {
	raw, err := hierarchy.MarshalCompact(tree)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO settings (id, tree, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET tree = EXCLUDED.tree, updated_at = EXCLUDED.updated_at`,
		hierarchyDocID, raw)
	return errors.Wrap(err, "save hierarchy row")
}

func (r *PostgresRemote) Delete(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE id = $1`, hierarchyDocID)
	return errors.Wrap(err, "delete hierarchy row")
}

func (r *PostgresRemote) Close(context.Context) error {
	r.pool.Close()
	return nil
}
