// Package cache persists issue headers and per-folder sync stamps in a local
// sqlite database, so a restarted client resumes incremental sync from its
// last watermark instead of refetching every folder from stamp zero.
//
// The cache is an optional supplement: the in-memory Environment remains the
// source of truth for one session.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/webissues/webissues-go/internal/cache/migrations"
	"github.com/webissues/webissues-go/internal/dbx"
	"github.com/webissues/webissues-go/internal/models"

	_ "modernc.org/sqlite"
)

// metadata key for the owning server, used to detect a cache that belongs to
// a different server instance.
const serverUUIDKey = "server_uuid"

type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at dsn and applies
// pending migrations.
func Open(ctx context.Context, dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (c *Cache) Close() error { return c.db.Close() }

// BindServer records the server UUID the cache belongs to. When the cache
// already belongs to a different server, all cached data is wiped first.
func (c *Cache) BindServer(ctx context.Context, uuid string) error {
	var stored []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, serverUUIDKey).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading cache owner: %w", err)
	}
	if string(stored) == uuid {
		return nil
	}

	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, q := range []string{`DELETE FROM issues`, `DELETE FROM stamps`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, serverUUIDKey, []byte(uuid))
		if err != nil {
			return fmt.Errorf("binding cache: %w", err)
		}
		return nil
	})
}

// Stamps returns the persisted per-folder stamp map.
func (c *Cache) Stamps(ctx context.Context) (map[int]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT folder_id, stamp FROM stamps`)
	if err != nil {
		return nil, fmt.Errorf("reading stamps: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var folderID, stamp int
		if err := rows.Scan(&folderID, &stamp); err != nil {
			return nil, fmt.Errorf("scanning stamp row: %w", err)
		}
		out[folderID] = stamp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stamp rows: %w", err)
	}
	return out, nil
}

// PutIssues upserts issue headers and the advanced stamp map in a single
// transaction.
func (c *Cache) PutIssues(ctx context.Context, issues []*models.Issue, stamps map[int]int) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, i := range issues {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO issues (id, folder_id, name, stamp, created_date, created_user, modified_date, modified_user, read)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					folder_id = excluded.folder_id,
					name = excluded.name,
					stamp = excluded.stamp,
					modified_date = excluded.modified_date,
					modified_user = excluded.modified_user
			`, i.ID, i.FolderID, i.Name, i.Stamp,
				formatDate(i.CreatedDate), i.CreatedUser,
				formatDate(i.ModifiedDate), i.ModifiedUser,
				boolToInt(i.Read))
			if err != nil {
				return fmt.Errorf("upserting issue %d: %w", i.ID, err)
			}
		}

		for folderID, stamp := range stamps {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stamps (folder_id, stamp) VALUES (?, ?)
				ON CONFLICT(folder_id) DO UPDATE SET stamp = excluded.stamp
				WHERE excluded.stamp > stamps.stamp
			`, folderID, stamp)
			if err != nil {
				return fmt.Errorf("upserting stamp for folder %d: %w", folderID, err)
			}
		}
		return nil
	})
}

// IssuesByFolder returns the cached issue headers of one folder, ordered by
// id.
func (c *Cache) IssuesByFolder(ctx context.Context, folderID int) ([]*models.Issue, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, folder_id, name, stamp, created_date, created_user, modified_date, modified_user, read
		FROM issues WHERE folder_id = ? ORDER BY id
	`, folderID)
	if err != nil {
		return nil, fmt.Errorf("reading issues: %w", err)
	}
	defer rows.Close()

	var out []*models.Issue
	for rows.Next() {
		var (
			i        models.Issue
			created  string
			modified string
			read     int
		)
		if err := rows.Scan(&i.ID, &i.FolderID, &i.Name, &i.Stamp,
			&created, &i.CreatedUser, &modified, &i.ModifiedUser, &read); err != nil {
			return nil, fmt.Errorf("scanning issue row: %w", err)
		}
		i.CreatedDate = parseDate(created)
		i.ModifiedDate = parseDate(modified)
		i.Read = read == 1
		out = append(out, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issue rows: %w", err)
	}
	return out, nil
}

// DeleteIssue removes one issue header.
func (c *Cache) DeleteIssue(ctx context.Context, id int) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting issue %d: %w", id, err)
	}
	return nil
}

// Clear wipes every cached issue and stamp, keeping the server binding.
func (c *Cache) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, q := range []string{`DELETE FROM issues`, `DELETE FROM stamps`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
		}
		return nil
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.FormatDateTime(t, false)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := models.ParseDateTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
