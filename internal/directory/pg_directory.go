package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the directory needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgDirectory struct {
	db DB
}

func NewPgDirectory(db DB) *PgDirectory {
	return &PgDirectory{db: db}
}

func (d *PgDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := d.db.QueryRow(ctx, `
		SELECT id, name, specialization, is_verified, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (d *PgDirectory) ListBookable(ctx context.Context) ([]Provider, error) {
	rows, err := d.db.Query(ctx, `
		SELECT id, name, specialization, is_verified, created_at, updated_at
		FROM providers
		WHERE is_verified
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialization *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialization,
		&p.IsVerified,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialization = specialization
	return &p, nil
}
