package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema defines the telemetry tables. Version is tracked in the
// schema_versions table. Timestamps are stored as REAL seconds since the
// Unix epoch.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS system_stats (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp           REAL NOT NULL,
    cpu_percent         REAL NOT NULL DEFAULT 0,
    memory_percent      REAL NOT NULL DEFAULT 0,
    memory_used_gb      REAL NOT NULL DEFAULT 0,
    memory_total_gb     REAL NOT NULL DEFAULT 0,
    disk_percent        REAL NOT NULL DEFAULT 0,
    disk_used_gb        REAL NOT NULL DEFAULT 0,
    disk_total_gb       REAL NOT NULL DEFAULT 0,
    network_bytes_sent  INTEGER NOT NULL DEFAULT 0,
    network_bytes_recv  INTEGER NOT NULL DEFAULT 0,
    uptime_hours        REAL NOT NULL DEFAULT 0,
    cpu_count           INTEGER NOT NULL DEFAULT 0,
    cpu_freq            REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_system_stats_timestamp ON system_stats(timestamp DESC);

CREATE TABLE IF NOT EXISTS processes (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       REAL NOT NULL,
    pid             INTEGER NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    cpu_percent     REAL NOT NULL DEFAULT 0,
    memory_percent  REAL NOT NULL DEFAULT 0,
    memory_mb       REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_processes_timestamp ON processes(timestamp DESC);
`,
	},
	// Migration 2: predictions audit trail.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS predictions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       REAL NOT NULL,
    prediction_type TEXT NOT NULL,
    value           REAL NOT NULL DEFAULT 0,
    confidence      REAL NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_type ON predictions(prediction_type);
`,
	},
}

// Options tunes the SQLite store. Zero values fall back to defaults.
type Options struct {
	// BusyTimeoutMS is how long a writer waits for the file lock before
	// failing with SQLITE_BUSY. Default 5000.
	BusyTimeoutMS int

	// MaxProcesses caps the process rows kept per tick (top by CPU).
	// Default 10.
	MaxProcesses int
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB

	// mu serializes writes. SQLite allows a single writer at a time, so
	// concurrent sampling and purge ticks would otherwise burn the busy
	// timeout contending for the file lock.
	mu sync.Mutex

	maxProcs int
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string, opts Options) (Store, error) {
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = 5000
	}
	if opts.MaxProcesses <= 0 {
		opts.MaxProcesses = 10
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// A pooled second connection would open its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA busy_timeout=%d`, opts.BusyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db, maxProcs: opts.MaxProcesses}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Snapshots ────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendSample(ctx context.Context, sys *SystemRecord, procs []ProcessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(procs) > s.maxProcs {
		procs = topByCPU(procs, s.maxProcs)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
        INSERT INTO system_stats(timestamp, cpu_percent, memory_percent, memory_used_gb, memory_total_gb,
            disk_percent, disk_used_gb, disk_total_gb, network_bytes_sent, network_bytes_recv,
            uptime_hours, cpu_count, cpu_freq)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		toEpoch(sys.Timestamp), sys.CPUPercent, sys.MemoryPercent, sys.MemoryUsedGB, sys.MemoryTotalGB,
		sys.DiskPercent, sys.DiskUsedGB, sys.DiskTotalGB, int64(sys.NetworkBytesSent), int64(sys.NetworkBytesRecv),
		sys.UptimeHours, sys.CPUCount, sys.CPUFreqMHz,
	)
	if err != nil {
		return fmt.Errorf("insert system row: %w", err)
	}

	for _, p := range procs {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = sys.Timestamp
		}
		_, err := tx.ExecContext(ctx, `
            INSERT INTO processes(timestamp, pid, name, cpu_percent, memory_percent, memory_mb)
            VALUES(?,?,?,?,?,?)
        `, toEpoch(ts), p.PID, p.Name, p.CPUPercent, p.MemoryPercent, p.MemoryMB)
		if err != nil {
			return fmt.Errorf("insert process row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	sys.ID = id
	return nil
}

func (s *sqliteStore) RecentSystem(ctx context.Context, n int) ([]*SystemRecord, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,timestamp,cpu_percent,memory_percent,memory_used_gb,memory_total_gb,
               disk_percent,disk_used_gb,disk_total_gb,network_bytes_sent,network_bytes_recv,
               uptime_hours,cpu_count,cpu_freq
        FROM system_stats ORDER BY timestamp DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := collectSystem(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the index, oldest-first for callers.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (s *sqliteStore) SystemSince(ctx context.Context, since time.Time) ([]*SystemRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,timestamp,cpu_percent,memory_percent,memory_used_gb,memory_total_gb,
               disk_percent,disk_used_gb,disk_total_gb,network_bytes_sent,network_bytes_recv,
               uptime_hours,cpu_count,cpu_freq
        FROM system_stats WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC`, sinceEpoch(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSystem(rows)
}

func (s *sqliteStore) SystemCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM system_stats`).Scan(&n)
	return n, err
}

func (s *sqliteStore) LatestProcesses(ctx context.Context) ([]*ProcessRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,timestamp,pid,name,cpu_percent,memory_percent,memory_mb
        FROM processes
        WHERE timestamp = (SELECT MAX(timestamp) FROM processes)
        ORDER BY cpu_percent DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProcesses(rows)
}

func (s *sqliteStore) ProcessHistory(ctx context.Context, since time.Time) ([]*ProcessRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,timestamp,pid,name,cpu_percent,memory_percent,memory_mb
        FROM processes WHERE timestamp >= ?
        ORDER BY timestamp ASC, cpu_percent DESC`, sinceEpoch(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProcesses(rows)
}

// ─── Predictions ──────────────────────────────────────────────────────────────

func (s *sqliteStore) RecordPrediction(ctx context.Context, rec *PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata := rec.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions(timestamp, prediction_type, value, confidence, metadata)
        VALUES(?,?,?,?,?)
    `, toEpoch(rec.Timestamp), rec.Type, rec.Value, rec.Confidence, metadata)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) PredictionHistory(ctx context.Context, since time.Time) ([]*PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,timestamp,prediction_type,value,confidence,metadata
        FROM predictions WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC`, sinceEpoch(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*PredictionRecord
	for rows.Next() {
		rec := &PredictionRecord{}
		var ts float64
		if err := rows.Scan(&rec.ID, &ts, &rec.Type, &rec.Value, &rec.Confidence, &rec.Metadata); err != nil {
			return nil, err
		}
		rec.Timestamp = fromEpoch(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Maintenance ──────────────────────────────────────────────────────────────

func (s *sqliteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PurgeResult
	cut := toEpoch(cutoff)
	for _, t := range []struct {
		table string
		dst   *int64
	}{
		{"system_stats", &res.SystemRows},
		{"processes", &res.ProcessRows},
		{"predictions", &res.PredictionRows},
	} {
		r, err := s.db.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE timestamp < ?`, cut)
		if err != nil {
			return res, fmt.Errorf("purge %s: %w", t.table, err)
		}
		*t.dst, _ = r.RowsAffected()
	}

	if res.Total() > 0 {
		// VACUUM cannot run inside a transaction; each Exec above is its own.
		if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
			return res, fmt.Errorf("vacuum: %w", err)
		}
	}
	return res, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{}
	for _, t := range []struct {
		table string
		dst   *int64
	}{
		{"system_stats", &st.SystemRows},
		{"processes", &st.ProcessRows},
		{"predictions", &st.PredictionRows},
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(t.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.table, err)
		}
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("page_size: %w", err)
	}
	st.SizeBytes = pageCount * pageSize

	var oldest, newest sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM system_stats`).Scan(&oldest, &newest); err != nil {
		return nil, fmt.Errorf("time range: %w", err)
	}
	if oldest.Valid {
		st.Oldest = fromEpoch(oldest.Float64)
	}
	if newest.Valid {
		st.Newest = fromEpoch(newest.Float64)
	}
	return st, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystem(row rowScanner) (*SystemRecord, error) {
	rec := &SystemRecord{}
	var ts float64
	var sent, recv int64
	err := row.Scan(&rec.ID, &ts, &rec.CPUPercent, &rec.MemoryPercent, &rec.MemoryUsedGB, &rec.MemoryTotalGB,
		&rec.DiskPercent, &rec.DiskUsedGB, &rec.DiskTotalGB, &sent, &recv,
		&rec.UptimeHours, &rec.CPUCount, &rec.CPUFreqMHz)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = fromEpoch(ts)
	rec.NetworkBytesSent = uint64(sent)
	rec.NetworkBytesRecv = uint64(recv)
	return rec, nil
}

func collectSystem(rows *sql.Rows) ([]*SystemRecord, error) {
	var result []*SystemRecord
	for rows.Next() {
		rec, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func collectProcesses(rows *sql.Rows) ([]*ProcessRecord, error) {
	var result []*ProcessRecord
	for rows.Next() {
		rec := &ProcessRecord{}
		var ts float64
		if err := rows.Scan(&rec.ID, &ts, &rec.PID, &rec.Name, &rec.CPUPercent, &rec.MemoryPercent, &rec.MemoryMB); err != nil {
			return nil, err
		}
		rec.Timestamp = fromEpoch(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// topByCPU returns the n heaviest processes without reordering the input.
func topByCPU(procs []ProcessRecord, n int) []ProcessRecord {
	sorted := make([]ProcessRecord, len(procs))
	copy(sorted, procs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CPUPercent > sorted[j].CPUPercent })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// toEpoch converts to the stored REAL seconds-since-epoch form. Sub-second
// precision survives to roughly the microsecond at current dates.
func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second))).UTC()
}

// sinceEpoch maps a zero time to the start of the representable range so
// "since zero" reads the full table.
func sinceEpoch(since time.Time) float64 {
	if since.IsZero() {
		return 0
	}
	return toEpoch(since)
}
