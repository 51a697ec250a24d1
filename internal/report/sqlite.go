package report

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started     DATETIME NOT NULL,
    finished    DATETIME NOT NULL,
    duration_s  REAL NOT NULL,
    stop_reason TEXT NOT NULL,
    source      TEXT NOT NULL,
    protocol    TEXT NOT NULL,
    host        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS devices (
    run_id  INTEGER NOT NULL REFERENCES runs(id),
    device  TEXT NOT NULL,
    state   TEXT NOT NULL,
    reason  TEXT NOT NULL,
    samples INTEGER NOT NULL,
    PRIMARY KEY (run_id, device)
);
CREATE TABLE IF NOT EXISTS samples (
    run_id   INTEGER NOT NULL REFERENCES runs(id),
    device   TEXT NOT NULL,
    idx      INTEGER NOT NULL,
    elapsed  REAL NOT NULL,
    metric   TEXT NOT NULL,
    value    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_device_metric ON samples(run_id, device, metric, idx);
CREATE TABLE IF NOT EXISTS crossings (
    run_id      INTEGER NOT NULL REFERENCES runs(id),
    device      TEXT NOT NULL,
    family      TEXT NOT NULL,
    metric      TEXT NOT NULL,
    direction   TEXT NOT NULL,
    start_value REAL NOT NULL,
    end_value   REAL NOT NULL,
    found       INTEGER NOT NULL,
    start_time  REAL,
    end_time    REAL,
    elapsed_s   REAL,
    rate        REAL,
    error       TEXT NOT NULL
);
`

// SQLiteSink exports one run into a fresh sqlite file.
// Params: output dir, file prefix and logger.
// Returns: sqlite sink instance.
type SQLiteSink struct {
	dir    string
	prefix string
	logger *slog.Logger
}

// NewSQLiteSink creates sqlite export sink.
// Params: dir output directory; prefix file name prefix; logger for written path.
// Returns: sink implementation.
func NewSQLiteSink(dir, prefix string, logger *slog.Logger) *SQLiteSink {
	return &SQLiteSink{dir: dir, prefix: prefix, logger: logger}
}

// Write stores run, device status, samples and crossings in one transaction.
// Params: ctx write context; rep report.
// Returns: error on open, migration or insert failure.
func (s *SQLiteSink) Write(ctx context.Context, rep Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	path := ArtifactPath(s.dir, s.prefix, rep.Run, "db")

	db, err := openSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := insertReport(ctx, tx, rep); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Info("sqlite export written", slog.String("path", path))
	return nil
}

// openSQLite opens the database file and applies the schema.
// Params: ctx open context; path database file.
// Returns: ready database handle.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return db, nil
}

// insertReport writes every table row inside tx.
// Params: ctx write context; tx open transaction; rep report.
// Returns: first insert error.
func insertReport(ctx context.Context, tx *sql.Tx, rep Report) error {
	run := rep.Run
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started, finished, duration_s, stop_reason, source, protocol, host) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Started.UTC(), run.Finished.UTC(), run.Duration.Seconds(), string(run.Stop), rep.Source, rep.Protocol, rep.Host.String(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read run id: %w", err)
	}

	deviceStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO devices (run_id, device, state, reason, samples) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare device insert: %w", err)
	}
	defer deviceStmt.Close()

	sampleStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, device, idx, elapsed, metric, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	for _, device := range run.Devices() {
		status, _ := run.Status(device)
		set, _ := run.Series(device)
		if _, err := deviceStmt.ExecContext(ctx, runID, device, status.State.String(), status.Reason, set.Len()); err != nil {
			return fmt.Errorf("insert device %s: %w", device, err)
		}

		elapsed := set.Elapsed()
		for _, key := range set.Keys() {
			values, _ := set.Values(key)
			metric := key.String()
			for idx, value := range values {
				if _, err := sampleStmt.ExecContext(ctx, runID, device, idx, elapsed[idx], metric, value); err != nil {
					return fmt.Errorf("insert sample %s/%s: %w", device, metric, err)
				}
			}
		}
	}

	crossingStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO crossings (run_id, device, family, metric, direction, start_value, end_value, found, start_time, end_time, elapsed_s, rate, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare crossing insert: %w", err)
	}
	defer crossingStmt.Close()

	for _, finding := range rep.Findings {
		var startTime, endTime, elapsed, rate sql.NullFloat64
		errText := ""
		found := 0
		if finding.Found() {
			found = 1
			startTime = sql.NullFloat64{Float64: finding.Result.StartTime, Valid: true}
			endTime = sql.NullFloat64{Float64: finding.Result.EndTime, Valid: true}
			elapsed = sql.NullFloat64{Float64: finding.Result.Elapsed, Valid: true}
			rate = sql.NullFloat64{Float64: finding.Result.Rate, Valid: true}
		} else {
			errText = finding.Err.Error()
		}
		if _, err := crossingStmt.ExecContext(ctx,
			runID, finding.Device, finding.Family, finding.Key.String(), string(finding.Threshold.Direction()),
			finding.Threshold.Start, finding.Threshold.End, found, startTime, endTime, elapsed, rate, errText,
		); err != nil {
			return fmt.Errorf("insert crossing %s/%s: %w", finding.Device, finding.Family, err)
		}
	}
	return nil
}
