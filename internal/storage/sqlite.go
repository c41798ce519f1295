package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "vknotify/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sortable, fixed-width timestamps so ORDER BY on TEXT is chronological
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, app, api_id, started_at, finished_at, total, complete, chunks, retries, status, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.App, r.APIID, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Total, r.Complete, r.Chunks, r.Retries, r.Status, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app, api_id, started_at, finished_at, total, complete, chunks, retries, status, err
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished string
			errText           sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.App, &r.APIID, &started, &finished,
			&r.Total, &r.Complete, &r.Chunks, &r.Retries, &r.Status, &errText); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(sqliteTimeFormat, started); err != nil {
			return nil, fmt.Errorf("runs %s: started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(sqliteTimeFormat, finished); err != nil {
			return nil, fmt.Errorf("runs %s: finished_at: %w", r.ID, err)
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
