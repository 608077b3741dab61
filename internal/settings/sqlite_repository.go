package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS preferences (
	owner      TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner, key)
);

CREATE TABLE IF NOT EXISTS recent_items (
	owner    TEXT    NOT NULL,
	list     TEXT    NOT NULL,
	item_key TEXT    NOT NULL,
	title    TEXT    NOT NULL,
	subtitle TEXT    NOT NULL DEFAULT '',
	ref      TEXT    NOT NULL DEFAULT '',
	added_at INTEGER NOT NULL,
	PRIMARY KEY (owner, list, item_key)
);
`

// SQLiteRepository is a SQLite implementation of Repository for local use.
// Timestamps are stored as Unix nanoseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a settings database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// GetPreference retrieves one of an owner's preferences.
func (r *SQLiteRepository) GetPreference(ctx context.Context, owner, key string) (*Preference, error) {
	var (
		valueJSON string
		updated   int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM preferences WHERE owner = ? AND key = ?`,
		owner, key,
	).Scan(&valueJSON, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPreferenceNotFound
		}
		return nil, err
	}

	pref := &Preference{Owner: owner, Key: key, UpdatedAt: time.Unix(0, updated).UTC()}
	if err := json.Unmarshal([]byte(valueJSON), &pref.Value); err != nil {
		return nil, err
	}
	return pref, nil
}

// ListPreferences retrieves all of an owner's stored preferences.
func (r *SQLiteRepository) ListPreferences(ctx context.Context, owner string) (map[string]*Preference, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM preferences WHERE owner = ? ORDER BY key`,
		owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs := make(map[string]*Preference)
	for rows.Next() {
		var (
			pref      = Preference{Owner: owner}
			valueJSON string
			updated   int64
		)
		if err := rows.Scan(&pref.Key, &valueJSON, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(valueJSON), &pref.Value); err != nil {
			return nil, err
		}
		pref.UpdatedAt = time.Unix(0, updated).UTC()
		prefs[pref.Key] = &pref
	}
	return prefs, rows.Err()
}

// PutPreference creates or updates a preference.
func (r *SQLiteRepository) PutPreference(ctx context.Context, pref *Preference) error {
	valueJSON, err := json.Marshal(pref.Value)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO preferences (owner, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, pref.Owner, pref.Key, string(valueJSON), pref.UpdatedAt.UnixNano())
	return err
}

// DeletePreference removes a preference.
func (r *SQLiteRepository) DeletePreference(ctx context.Context, owner, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM preferences WHERE owner = ? AND key = ?`, owner, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPreferenceNotFound
	}
	return nil
}

// ListRecents returns a recents list, most recent first.
func (r *SQLiteRepository) ListRecents(ctx context.Context, owner, list string) ([]RecentItem, error) {
	return sqliteRecents(ctx, r.db, owner, list)
}

// PushRecent adds item to the front of a recents list.
func (r *SQLiteRepository) PushRecent(ctx context.Context, owner, list string, item RecentItem, capacity int) ([]RecentItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recent_items (owner, list, item_key, title, subtitle, ref, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, list, item_key) DO UPDATE SET
			title = excluded.title,
			subtitle = excluded.subtitle,
			ref = excluded.ref,
			added_at = excluded.added_at
	`, owner, list, item.Key, item.Title, item.Subtitle, item.Ref, item.AddedAt.UnixNano())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM recent_items
		WHERE owner = ? AND list = ? AND item_key NOT IN (
			SELECT item_key FROM recent_items
			WHERE owner = ? AND list = ?
			ORDER BY added_at DESC
			LIMIT ?
		)
	`, owner, list, owner, list, capacity)
	if err != nil {
		return nil, err
	}

	items, err := sqliteRecents(ctx, tx, owner, list)
	if err != nil {
		return nil, err
	}
	return items, tx.Commit()
}

// ClearRecents empties a recents list.
func (r *SQLiteRepository) ClearRecents(ctx context.Context, owner, list string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recent_items WHERE owner = ? AND list = ?`, owner, list)
	return err
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func sqliteRecents(ctx context.Context, q sqlQuerier, owner, list string) ([]RecentItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_key, title, subtitle, ref, added_at
		FROM recent_items
		WHERE owner = ? AND list = ?
		ORDER BY added_at DESC
	`, owner, list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RecentItem
	for rows.Next() {
		var (
			it    RecentItem
			added int64
		)
		if err := rows.Scan(&it.Key, &it.Title, &it.Subtitle, &it.Ref, &added); err != nil {
			return nil, err
		}
		it.AddedAt = time.Unix(0, added).UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
