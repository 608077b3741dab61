package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the devices table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS devices (
	id           TEXT PRIMARY KEY,
	install_id   TEXT        NOT NULL UNIQUE,
	platform     TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	last_seen_at TIMESTAMPTZ NOT NULL
);
`

// PostgresDeviceRepository is a PostgreSQL implementation of DeviceRepository.
type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository.
func NewPostgresDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

// Migrate creates the devices table if it does not exist.
func (r *PostgresDeviceRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, PostgresSchema)
	return err
}

// FindByInstallID finds a device by its install id.
func (r *PostgresDeviceRepository) FindByInstallID(ctx context.Context, installID string) (*Device, error) {
	query := `
		SELECT id, install_id, platform, created_at, last_seen_at
		FROM devices
		WHERE install_id = $1
	`

	var d Device
	err := r.pool.QueryRow(ctx, query, installID).Scan(
		&d.ID,
		&d.InstallID,
		&d.Platform,
		&d.CreatedAt,
		&d.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return &d, nil
}

// Create registers a new device.
func (r *PostgresDeviceRepository) Create(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, install_id, platform, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID,
		device.InstallID,
		device.Platform,
		device.CreatedAt,
		device.LastSeenAt,
	)
	return err
}

// Touch records that a device registered again.
func (r *PostgresDeviceRepository) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Ensure PostgresDeviceRepository implements DeviceRepository interface.
var _ DeviceRepository = (*PostgresDeviceRepository)(nil)
