// Package tenant exposes a read-only view of tenant profiles. The profiles
// themselves are owned by the back-office CRUD, outside this subsystem; the
// auth flow only needs names to decorate login responses.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no tenant profile exists for the id.
var ErrNotFound = errors.New("tenant not found")

// Profile is the slice of the tenant record the auth responses carry.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Directory looks up tenant profiles.
type Directory interface {
	FindByID(ctx context.Context, tenantID string) (Profile, error)
}

// PostgresDirectory implements Directory over the platform's tenants table.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

// NewPostgresDirectory builds a Postgres-backed tenant directory.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// FindByID fetches a tenant profile.
func (d *PostgresDirectory) FindByID(ctx context.Context, tenantID string) (Profile, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return Profile{}, ErrNotFound
	}
	row := d.db.QueryRow(ctx, `SELECT id, first_name, last_name FROM tenants WHERE id = $1`, id)
	var p Profile
	var pid uuid.UUID
	if err := row.Scan(&pid, &p.FirstName, &p.LastName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	p.ID = pid.String()
	return p, nil
}
