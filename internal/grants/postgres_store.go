package grants

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists grants in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS wallet_grants (
    account TEXT PRIMARY KEY,
    granted_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, account string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `
SELECT account, granted_at, expires_at
FROM wallet_grants
WHERE account = $1
`, normalize(account))

	var (
		rec     Record
		expires *time.Time
	)
	if err := row.Scan(&rec.Account, &rec.GrantedAt, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if expires != nil {
		rec.ExpiresAt = *expires
	}

	if rec.Expired(time.Now()) {
		go func() { _ = p.Delete(context.Background(), rec.Account) }()
		return nil, nil
	}
	return &rec, nil
}

func (p *PostgresStore) Save(ctx context.Context, record Record) error {
	var expires *time.Time
	if !record.ExpiresAt.IsZero() {
		expires = &record.ExpiresAt
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO wallet_grants (account, granted_at, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (account) DO UPDATE
SET granted_at = EXCLUDED.granted_at,
    expires_at = EXCLUDED.expires_at
`, normalize(record.Account), record.GrantedAt, expires)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, account string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM wallet_grants WHERE account = $1`, normalize(account))
	return err
}
