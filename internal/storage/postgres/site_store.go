// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitegen/internal/site"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "sites"

// SiteStoreConfig controls the Postgres connection pool used for site rows.
type SiteStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// SiteStore implements site.Repository on Postgres.
type SiteStore struct {
	pool  pool
	table string
}

// NewSiteStore connects a pool using the provided config.
func NewSiteStore(ctx context.Context, cfg SiteStoreConfig) (*SiteStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSiteStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewSiteStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSiteStoreWithPool(p pool, table string) (*SiteStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SiteStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SiteStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *SiteStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the sites table when missing.
func (s *SiteStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL,
	html_stored_at TIMESTAMPTZ,
	screenshot_stored_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Create inserts a site and returns the stored row.
func (s *SiteStore) Create(ctx context.Context, title, prompt string) (site.Site, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (title, prompt)
VALUES ($1, $2)
RETURNING %s`, s.table, siteColumns)
	rec, err := scanSite(s.pool.QueryRow(ctx, query, title, prompt))
	if err != nil {
		return site.Site{}, fmt.Errorf("insert site: %w", err)
	}
	return rec, nil
}

// Get fetches a site by ID.
func (s *SiteStore) Get(ctx context.Context, id int64) (site.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, siteColumns, s.table)
	rec, err := scanSite(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return site.Site{}, site.ErrNotFound
	}
	if err != nil {
		return site.Site{}, fmt.Errorf("get site %d: %w", id, err)
	}
	return rec, nil
}

// List returns all sites ordered by ID.
func (s *SiteStore) List(ctx context.Context) ([]site.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, siteColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []site.Site
	for rows.Next() {
		rec, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

// MarkHTMLStored records the HTML upload time and fills in an empty title.
func (s *SiteStore) MarkHTMLStored(ctx context.Context, id int64, title string, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET html_stored_at = $2,
	updated_at = $2,
	title = CASE WHEN title = '' THEN $3 ELSE title END
WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, at, title)
	if err != nil {
		return fmt.Errorf("mark html stored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return site.ErrNotFound
	}
	return nil
}

// MarkScreenshotStored records the screenshot upload time.
func (s *SiteStore) MarkScreenshotStored(ctx context.Context, id int64, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET screenshot_stored_at = $2,
	updated_at = $2
WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark screenshot stored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return site.ErrNotFound
	}
	return nil
}

const siteColumns = "id, title, prompt, html_stored_at, screenshot_stored_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (site.Site, error) {
	var (
		rec        site.Site
		html, shot pgtype.Timestamptz
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Prompt, &html, &shot, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return site.Site{}, err //nolint:wrapcheck // callers wrap with operation context
	}
	if html.Valid {
		t := html.Time
		rec.HTMLStoredAt = &t
	}
	if shot.Valid {
		t := shot.Time
		rec.ScreenshotStoredAt = &t
	}
	return rec, nil
}
