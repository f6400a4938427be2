package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/qrlinks/internal/links"
	"github.com/serroba/qrlinks/internal/scans"
)

//go:embed schema.sql
var schema string

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const linkColumns = "id, short_code, destination_url, title, owner_id, created_at, updated_at"

// PostgresStore is a PostgreSQL implementation of links.Repository and scans.Store.
type PostgresStore struct {
	pool *pgxpool.Pool
	psql sq.StatementBuilderType
	now  func() time.Time
}

// NewPostgresStore creates a new PostgreSQL-backed link store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  time.Now,
	}
}

// Migrate creates the tables and indexes if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (p *PostgresStore) Create(ctx context.Context, link *links.DynamicLink) error {
	query := `
		INSERT INTO dynamic_links (id, short_code, destination_url, title, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.pool.Exec(ctx, query,
		link.ID,
		string(link.Code),
		link.DestinationURL,
		nullableString(link.Title),
		string(link.OwnerID),
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return links.ErrDuplicateCode
		}

		return err
	}

	return nil
}

func (p *PostgresStore) GetByCode(ctx context.Context, code links.Code) (*links.DynamicLink, error) {
	query := `SELECT ` + linkColumns + ` FROM dynamic_links WHERE short_code = $1`

	link, err := scanLink(p.pool.QueryRow(ctx, query, string(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, links.ErrNotFound
		}

		return nil, err
	}

	return link, nil
}

func (p *PostgresStore) ListByOwner(ctx context.Context, owner links.OwnerID) ([]*links.DynamicLink, error) {
	query := `SELECT ` + linkColumns + ` FROM dynamic_links WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := p.pool.Query(ctx, query, string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*links.DynamicLink, 0)

	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, link)
	}

	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, code links.Code, patch links.Patch) (*links.DynamicLink, error) {
	if patch.IsEmpty() {
		return p.GetByCode(ctx, code)
	}

	builder := p.psql.Update("dynamic_links").
		Set("updated_at", p.now()).
		Where(sq.Eq{"short_code": string(code)}).
		Suffix("RETURNING " + linkColumns)

	if patch.DestinationURL != nil {
		builder = builder.Set("destination_url", *patch.DestinationURL)
	}

	if patch.Title != nil {
		builder = builder.Set("title", nullableString(*patch.Title))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	link, err := scanLink(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, links.ErrNotFound
		}

		return nil, err
	}

	return link, nil
}

// Delete removes the link; its scans go with it through ON DELETE CASCADE.
func (p *PostgresStore) Delete(ctx context.Context, code links.Code) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM dynamic_links WHERE short_code = $1`, string(code))
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return links.ErrNotFound
	}

	return nil
}

func (p *PostgresStore) SaveScan(ctx context.Context, event *scans.Event) error {
	query := `
		INSERT INTO link_scans
			(id, link_id, short_code, scanned_at, ip, country, region, city, user_agent, device, os, browser, referrer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.LinkID,
		event.Code,
		event.ScannedAt,
		nullableString(event.IP),
		nullableString(event.Country),
		nullableString(event.Region),
		nullableString(event.City),
		nullableString(event.UserAgent),
		nullableString(event.Device),
		nullableString(event.OS),
		nullableString(event.Browser),
		nullableString(event.Referrer),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case foreignKeyViolation:
				return scans.ErrUnknownLink
			case uniqueViolation:
				return scans.ErrDuplicateScan
			}
		}

		return fmt.Errorf("insert scan: %w", err)
	}

	return nil
}

func (p *PostgresStore) ListScans(ctx context.Context, linkID uuid.UUID) ([]*scans.Event, error) {
	query := `
		SELECT id, link_id, short_code, scanned_at, ip, country, region, city, user_agent, device, os, browser, referrer
		FROM link_scans
		WHERE link_id = $1
		ORDER BY scanned_at
	`

	rows, err := p.pool.Query(ctx, query, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*scans.Event, 0)

	for rows.Next() {
		var event scans.Event

		var ip, country, region, city, userAgent, device, os, browser, referrer *string

		err := rows.Scan(
			&event.ID, &event.LinkID, &event.Code, &event.ScannedAt,
			&ip, &country, &region, &city, &userAgent, &device, &os, &browser, &referrer,
		)
		if err != nil {
			return nil, err
		}

		event.IP = deref(ip)
		event.Country = deref(country)
		event.Region = deref(region)
		event.City = deref(city)
		event.UserAgent = deref(userAgent)
		event.Device = deref(device)
		event.OS = deref(os)
		event.Browser = deref(browser)
		event.Referrer = deref(referrer)

		out = append(out, &event)
	}

	return out, rows.Err()
}

func scanLink(row pgx.Row) (*links.DynamicLink, error) {
	var (
		link  links.DynamicLink
		title *string
	)

	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.DestinationURL,
		&title,
		&link.OwnerID,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.Title = deref(title)

	return &link, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// Compile-time checks.
var (
	_ links.Repository = (*PostgresStore)(nil)
	_ scans.Store      = (*PostgresStore)(nil)
)
