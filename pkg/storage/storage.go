// Package storage keeps the file host's upload journal in SQLite.
package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS uploads (
  id           INTEGER PRIMARY KEY,
  received_at  DATETIME NOT NULL,
  client       TEXT,
  row_count    INTEGER NOT NULL,
  byte_count   INTEGER NOT NULL,
  backup       TEXT
);
CREATE INDEX IF NOT EXISTS idx_uploads_time ON uploads(received_at);
CREATE TABLE IF NOT EXISTS record_changes (
  id           INTEGER PRIMARY KEY,
  upload_id    INTEGER NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
  occurred_at  DATETIME NOT NULL,
  row_index    INTEGER NOT NULL,
  title        TEXT NOT NULL,
  change_type  TEXT NOT NULL CHECK (change_type IN ('added','updated','removed')),
  columns      TEXT
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON record_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_title ON record_changes(title, occurred_at);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// LogUpload records an upload and its changes in one transaction. The
// returned Upload carries the assigned ID and per-type change counts.
func (d *DB) LogUpload(ctx context.Context, u Upload, changes []Change) (Upload, error) {
	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = time.Now()
	}
	u.ReceivedAt = u.ReceivedAt.UTC().Truncate(time.Second)
	stamp := u.ReceivedAt.Format(timeLayout)

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Upload{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := sq.Insert("uploads").
		Columns("received_at", "client", "row_count", "byte_count", "backup").
		Values(stamp, nullIfEmpty(u.Client), u.Rows, u.Bytes, nullIfEmpty(u.Backup)).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return Upload{}, err
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return Upload{}, err
	}

	u.Added, u.Updated, u.Removed = 0, 0, 0
	if len(changes) > 0 {
		ins := sq.Insert("record_changes").
			Columns("upload_id", "occurred_at", "row_index", "title", "change_type", "columns")
		for _, c := range changes {
			ins = ins.Values(u.ID, stamp, c.RowIndex, c.Title, c.ChangeType, nullIfEmpty(strings.Join(c.Columns, ",")))
			switch c.ChangeType {
			case ChangeAdded:
				u.Added++
			case ChangeUpdated:
				u.Updated++
			case ChangeRemoved:
				u.Removed++
			}
		}
		if _, err = ins.RunWith(tx).ExecContext(ctx); err != nil {
			return Upload{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Upload{}, err
	}
	return u, nil
}

// ListChanges returns the most recent changes matching q, newest first.
func (d *DB) ListChanges(ctx context.Context, q ChangeQuery) ([]Change, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	sel := sq.Select("upload_id", "occurred_at", "row_index", "title", "change_type", "columns").
		From("record_changes").
		OrderBy("id DESC").
		Limit(uint64(limit))
	if q.Title != "" {
		sel = sel.Where(sq.Like{"title": "%" + q.Title + "%"})
	}
	if q.ChangeType != "" {
		sel = sel.Where(sq.Eq{"change_type": q.ChangeType})
	}
	if !q.Since.IsZero() {
		sel = sel.Where(sq.GtOrEq{"occurred_at": q.Since.UTC().Format(timeLayout)})
	}

	rows, err := sel.RunWith(d.sql).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c          Change
			occurredAt string
			columns    sql.NullString
		)
		if err := rows.Scan(&c.UploadID, &occurredAt, &c.RowIndex, &c.Title, &c.ChangeType, &columns); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTime(occurredAt)
		if columns.Valid && columns.String != "" {
			c.Columns = strings.Split(columns.String, ",")
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListUploads returns the most recent uploads with their change counts.
func (d *DB) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := sq.Select(
		"u.id", "u.received_at", "u.client", "u.row_count", "u.byte_count", "u.backup",
		"COALESCE(SUM(CASE WHEN c.change_type = 'added' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN c.change_type = 'updated' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN c.change_type = 'removed' THEN 1 ELSE 0 END), 0)",
	).
		From("uploads u").
		LeftJoin("record_changes c ON c.upload_id = u.id").
		GroupBy("u.id").
		OrderBy("u.id DESC").
		Limit(uint64(limit)).
		RunWith(d.sql).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var (
			u              Upload
			receivedAt     string
			client, backup sql.NullString
		)
		if err := rows.Scan(&u.ID, &receivedAt, &client, &u.Rows, &u.Bytes, &backup, &u.Added, &u.Updated, &u.Removed); err != nil {
			return nil, err
		}
		u.ReceivedAt = parseTime(receivedAt)
		u.Client = client.String
		u.Backup = backup.String
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// parseTime accepts the stored layout and RFC3339, which the driver may hand
// back for DATETIME columns.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
