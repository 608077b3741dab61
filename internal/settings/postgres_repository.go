package settings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the settings tables.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS preferences (
	owner      TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner, key)
);

CREATE TABLE IF NOT EXISTS recent_items (
	owner    TEXT        NOT NULL,
	list     TEXT        NOT NULL,
	item_key TEXT        NOT NULL,
	title    TEXT        NOT NULL,
	subtitle TEXT        NOT NULL DEFAULT '',
	ref      TEXT        NOT NULL DEFAULT '',
	added_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner, list, item_key)
);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL settings repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the settings tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, PostgresSchema)
	return err
}

// GetPreference retrieves one of an owner's preferences.
func (r *PostgresRepository) GetPreference(ctx context.Context, owner, key string) (*Preference, error) {
	query := `
		SELECT key, value, updated_at
		FROM preferences
		WHERE owner = $1 AND key = $2
	`

	var (
		pref      = Preference{Owner: owner}
		valueJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, owner, key).Scan(&pref.Key, &valueJSON, &pref.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreferenceNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(valueJSON, &pref.Value); err != nil {
		return nil, err
	}
	return &pref, nil
}

// ListPreferences retrieves all of an owner's stored preferences.
func (r *PostgresRepository) ListPreferences(ctx context.Context, owner string) (map[string]*Preference, error) {
	query := `
		SELECT key, value, updated_at
		FROM preferences
		WHERE owner = $1
		ORDER BY key
	`

	rows, err := r.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make(map[string]*Preference)
	for rows.Next() {
		var (
			pref      = Preference{Owner: owner}
			valueJSON []byte
		)
		if err := rows.Scan(&pref.Key, &valueJSON, &pref.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(valueJSON, &pref.Value); err != nil {
			return nil, err
		}
		prefs[pref.Key] = &pref
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prefs, nil
}

// PutPreference creates or updates a preference.
func (r *PostgresRepository) PutPreference(ctx context.Context, pref *Preference) error {
	query := `
		INSERT INTO preferences (owner, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	valueJSON, err := json.Marshal(pref.Value)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query, pref.Owner, pref.Key, valueJSON, pref.UpdatedAt)
	return err
}

// DeletePreference removes a preference.
func (r *PostgresRepository) DeletePreference(ctx context.Context, owner, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM preferences WHERE owner = $1 AND key = $2`, owner, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPreferenceNotFound
	}
	return nil
}

// ListRecents returns a recents list, most recent first.
func (r *PostgresRepository) ListRecents(ctx context.Context, owner, list string) ([]RecentItem, error) {
	return listRecents(ctx, r.pool, owner, list)
}

// PushRecent adds item to the front of a recents list.
func (r *PostgresRepository) PushRecent(ctx context.Context, owner, list string, item RecentItem, capacity int) ([]RecentItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	upsert := `
		INSERT INTO recent_items (owner, list, item_key, title, subtitle, ref, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner, list, item_key) DO UPDATE SET
			title = EXCLUDED.title,
			subtitle = EXCLUDED.subtitle,
			ref = EXCLUDED.ref,
			added_at = EXCLUDED.added_at
	`
	if _, err := tx.Exec(ctx, upsert, owner, list, item.Key, item.Title, item.Subtitle, item.Ref, item.AddedAt); err != nil {
		return nil, err
	}

	trim := `
		DELETE FROM recent_items
		WHERE owner = $1 AND list = $2 AND item_key NOT IN (
			SELECT item_key FROM recent_items
			WHERE owner = $1 AND list = $2
			ORDER BY added_at DESC
			LIMIT $3
		)
	`
	if _, err := tx.Exec(ctx, trim, owner, list, capacity); err != nil {
		return nil, err
	}

	items, err := listRecents(ctx, tx, owner, list)
	if err != nil {
		return nil, err
	}
	return items, tx.Commit(ctx)
}

// ClearRecents empties a recents list.
func (r *PostgresRepository) ClearRecents(ctx context.Context, owner, list string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recent_items WHERE owner = $1 AND list = $2`, owner, list)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listRecents(ctx context.Context, q querier, owner, list string) ([]RecentItem, error) {
	query := `
		SELECT item_key, title, subtitle, ref, added_at
		FROM recent_items
		WHERE owner = $1 AND list = $2
		ORDER BY added_at DESC
	`

	rows, err := q.Query(ctx, query, owner, list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RecentItem
	for rows.Next() {
		var it RecentItem
		if err := rows.Scan(&it.Key, &it.Title, &it.Subtitle, &it.Ref, &it.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
