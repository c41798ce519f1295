package storage

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	logx "vknotify/pkg/logx"
)

func sampleRuns(now time.Time) []RunRecord {
	return []RunRecord{
		{ID: "r1", App: "game", APIID: 1, StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2*time.Hour + time.Minute), Total: 250, Complete: 250, Chunks: 3, Status: StatusDone},
		{ID: "r2", App: "game", APIID: 1, StartedAt: now.Add(-time.Hour), FinishedAt: now.Add(-time.Hour + time.Second), Total: 250, Complete: 100, Chunks: 2, Retries: 4, Status: StatusFailed, Error: "blocked"},
		{ID: "r3", App: "other", APIID: 2, StartedAt: now, FinishedAt: now.Add(time.Second), Total: 1, Complete: 1, Chunks: 1, Status: StatusDone},
	}
}

func checkNewestFirst(t *testing.T, got []RunRecord, want []RunRecord) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.App != w.App || g.Complete != w.Complete || g.Retries != w.Retries || g.Status != w.Status || g.Error != w.Error {
			t.Fatalf("record %d = %+v, want %+v", i, g, w)
		}
		if !g.StartedAt.Equal(w.StartedAt) || !g.FinishedAt.Equal(w.FinishedAt) {
			t.Fatalf("record %d times = %v/%v, want %v/%v", i, g.StartedAt, g.FinishedAt, w.StartedAt, w.FinishedAt)
		}
	}
}

func roundTrip(t *testing.T, cfg Config) {
	t.Helper()
	ctx := context.Background()
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })

	runs := sampleRuns(time.Now())
	for _, r := range runs {
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	all, err := st.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	checkNewestFirst(t, all, []RunRecord{runs[2], runs[1], runs[0]})

	two, err := st.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(2): %v", err)
	}
	checkNewestFirst(t, two, []RunRecord{runs[2], runs[1]})
}

func TestFileStoreRoundTrip(t *testing.T) {
	roundTrip(t, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "runs", "runs.jsonl")})
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	roundTrip(t, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db"), BusyTimeout: time.Second})
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestSQLiteStoreQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	st := &sqliteStore{db: db, log: logx.Nop()}

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	rec := RunRecord{ID: "abc", App: "game", APIID: 7, StartedAt: started, FinishedAt: finished, Total: 5, Complete: 5, Chunks: 1, Status: StatusDone}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs(")).
		WithArgs("abc", "game", int64(7), "2024-05-01T10:00:00.000000000Z", "2024-05-01T10:01:00.000000000Z", 5, 5, 1, 0, StatusDone, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := st.AppendRun(context.Background(), rec); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "app", "api_id", "started_at", "finished_at", "total", "complete", "chunks", "retries", "status", "err"}).
		AddRow("abc", "game", int64(7), "2024-05-01T10:00:00.000000000Z", "2024-05-01T10:01:00.000000000Z", 5, 2, 1, 3, StatusFailed, "blocked")
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs ORDER BY started_at DESC LIMIT ?")).
		WithArgs(10).
		WillReturnRows(rows)

	got, err := st.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 1 || got[0].Error != "blocked" || got[0].Retries != 3 || !got[0].StartedAt.Equal(started) {
		t.Fatalf("unexpected rows: %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
