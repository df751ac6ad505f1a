package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no credential record exists for the lookup key.
	ErrNotFound = errors.New("credential record not found")
	// ErrStaleRefreshToken indicates a compare-and-swap lost against a newer
	// stored refresh token.
	ErrStaleRefreshToken = errors.New("refresh token superseded")
)

// Repository persists credential records. Updates are atomic at the
// single-record granularity.
type Repository interface {
	FindByPhone(ctx context.Context, phone string) (Record, error)
	FindByTenant(ctx context.Context, tenantID string) (Record, error)
	Update(ctx context.Context, tenantID string, upd Update) error
	// SwapRefreshToken replaces the stored refresh token only if the stored
	// value still equals current. A concurrent rotation that already ran wins
	// and this call returns ErrStaleRefreshToken.
	SwapRefreshToken(ctx context.Context, tenantID, current, next string, expiresAt time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed credential repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `tenant_id, phone, passcode_hash, temp_code_hash, temp_code_expires_at,
        is_activated, biometric_enabled, refresh_token, refresh_token_expires_at, created_at, updated_at`

// FindByPhone fetches the credential record for a phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Record, error) {
	row := r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM mobile_credentials WHERE phone = $1`, phone)
	return scanRecord(row)
}

// FindByTenant fetches the credential record for a tenant id.
func (r *PostgresRepository) FindByTenant(ctx context.Context, tenantID string) (Record, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return Record{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM mobile_credentials WHERE tenant_id = $1`, id)
	return scanRecord(row)
}

// Update applies a partial mutation to one record.
func (r *PostgresRepository) Update(ctx context.Context, tenantID string, upd Update) error {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return ErrNotFound
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.PasscodeHash != nil {
		add("passcode_hash", upd.PasscodeHash)
	}
	if upd.ClearTempCode {
		sets = append(sets, "temp_code_hash = NULL", "temp_code_expires_at = NULL")
	} else {
		if upd.TempCodeHash != nil {
			add("temp_code_hash", upd.TempCodeHash)
		}
		if upd.TempCodeExpiresAt != nil {
			add("temp_code_expires_at", upd.TempCodeExpiresAt.UTC())
		}
	}
	if upd.IsActivated != nil {
		add("is_activated", *upd.IsActivated)
	}
	if upd.BiometricEnabled != nil {
		add("biometric_enabled", *upd.BiometricEnabled)
	}
	if upd.RefreshToken != nil {
		add("refresh_token", *upd.RefreshToken)
	}
	if upd.RefreshTokenExpiresAt != nil {
		add("refresh_token_expires_at", upd.RefreshTokenExpiresAt.UTC())
	}

	query := `UPDATE mobile_credentials SET ` + strings.Join(sets, ", ") + ` WHERE tenant_id = $1`
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRefreshToken performs the rotate compare-and-swap as a single UPDATE so
// two rotations presenting the same stale token can never both succeed.
func (r *PostgresRepository) SwapRefreshToken(ctx context.Context, tenantID, current, next string, expiresAt time.Time) error {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE mobile_credentials
        SET refresh_token = $3, refresh_token_expires_at = $4, updated_at = now()
        WHERE tenant_id = $1 AND refresh_token = $2`, id, current, next, expiresAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleRefreshToken
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		id           uuid.UUID
		rec          Record
		tempExpires  *time.Time
		refresh      *string
		refreshExp   *time.Time
		passcodeHash []byte
		tempHash     []byte
	)
	err := row.Scan(&id, &rec.Phone, &passcodeHash, &tempHash, &tempExpires,
		&rec.IsActivated, &rec.BiometricEnabled, &refresh, &refreshExp, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.TenantID = id.String()
	rec.PasscodeHash = passcodeHash
	rec.TempCodeHash = tempHash
	rec.TempCodeExpiresAt = tempExpires
	if refresh != nil {
		rec.RefreshToken = *refresh
	}
	rec.RefreshTokenExpiresAt = refreshExp
	return rec, nil
}
