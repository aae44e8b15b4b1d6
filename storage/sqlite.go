package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"habitat_scrooper/models"
)

// SQLiteStore keeps the local history of search runs: one row per run, one
// per source outcome, and free-form run logs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_runs (
		id TEXT PRIMARY KEY,
		search_name TEXT,
		criteria_json JSON,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		total INTEGER DEFAULT 0,
		sources_failed INTEGER DEFAULT 0,
		execution_time_ms INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS source_runs (
		id INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		started_at DATETIME,
		status TEXT,
		count INTEGER,
		raw INTEGER,
		pages INTEGER,
		skipped INTEGER,
		rejected INTEGER,
		post_filtered JSON,
		error TEXT,
		duration_ms INTEGER,
		FOREIGN KEY (run_id) REFERENCES search_runs(id)
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		source_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON search_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_source_runs_run ON source_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_source_runs_source ON source_runs(source_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.SearchRun) error {
	_, err := s.db.Exec(`
		INSERT INTO search_runs (id, search_name, criteria_json, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SearchName, run.CriteriaJSON, run.StartedAt, run.Status)
	return err
}

func (s *SQLiteStore) FinishRun(run *models.SearchRun) error {
	_, err := s.db.Exec(`
		UPDATE search_runs SET finished_at = ?, status = ?, total = ?,
			sources_failed = ?, execution_time_ms = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Total, run.SourcesFailed, run.ExecutionTimeMs, run.ID)
	return err
}

func (s *SQLiteStore) RecordSource(runID string, startedAt time.Time, rep models.SourceReport) error {
	postFiltered, err := json.Marshal(rep.PostFiltered)
	if err != nil {
		return fmt.Errorf("encode post filtered: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO source_runs (run_id, source_id, started_at, status, count, raw, pages,
			skipped, rejected, post_filtered, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rep.Source, startedAt, rep.Status, rep.Count, rep.Raw, rep.Pages,
		rep.Skipped, rep.Rejected, string(postFiltered), rep.Error, rep.DurationMs)
	return err
}

func (s *SQLiteStore) Log(runID string, level models.LogLevel, message, sourceID string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, source_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, sourceID)
	return err
}

func (s *SQLiteStore) GetRun(id string) (*models.SearchRun, error) {
	row := s.db.QueryRow(`
		SELECT id, search_name, criteria_json, started_at, finished_at, status,
			total, sources_failed, execution_time_ms
		FROM search_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// RecentRuns returns the newest runs first.
func (s *SQLiteStore) RecentRuns(limit int) ([]models.SearchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, search_name, criteria_json, started_at, finished_at, status,
			total, sources_failed, execution_time_ms
		FROM search_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.SearchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.SearchRun, error) {
	var run models.SearchRun
	var name, criteria sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &name, &criteria, &run.StartedAt, &finished, &run.Status,
		&run.Total, &run.SourcesFailed, &run.ExecutionTimeMs); err != nil {
		return nil, err
	}
	run.SearchName = name.String
	run.CriteriaJSON = criteria.String
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLiteStore) SourceRuns(runID string) ([]models.SourceRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, source_id, status, count, raw, pages, skipped, rejected,
			post_filtered, error, duration_ms
		FROM source_runs WHERE run_id = ? ORDER BY source_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SourceRun
	for rows.Next() {
		var sr models.SourceRun
		var postFiltered, errText sql.NullString
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.SourceID, &sr.Report.Status, &sr.Report.Count,
			&sr.Report.Raw, &sr.Report.Pages, &sr.Report.Skipped, &sr.Report.Rejected,
			&postFiltered, &errText, &sr.Report.DurationMs); err != nil {
			return nil, err
		}
		sr.Report.Source = sr.SourceID
		sr.Report.Error = errText.String
		if postFiltered.Valid && postFiltered.String != "null" {
			if err := json.Unmarshal([]byte(postFiltered.String), &sr.Report.PostFiltered); err != nil {
				return nil, fmt.Errorf("decode post filtered for %s: %w", sr.SourceID, err)
			}
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RunLogs(runID string) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, source_id
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		var sourceID sql.NullString
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &sourceID); err != nil {
			return nil, err
		}
		l.SourceID = sourceID.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SourceStats summarizes every recorded outcome of one source. A source
// with no history yields zero stats and a nil LastRunAt.
func (s *SQLiteStore) SourceStats(sourceID string) (*models.SourceStats, error) {
	stats := &models.SourceStats{SourceID: sourceID}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(CAST(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END) AS REAL) / NULLIF(COUNT(*), 0), 0),
			CAST(COALESCE(AVG(duration_ms), 0) AS INTEGER)
		FROM source_runs WHERE source_id = ?`, sourceID).
		Scan(&stats.Runs, &stats.SuccessRate, &stats.AvgDurationMs)
	if err != nil {
		return nil, err
	}
	if stats.Runs == 0 {
		return stats, nil
	}

	var last time.Time
	err = s.db.QueryRow(`
		SELECT started_at, status FROM source_runs
		WHERE source_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, sourceID).
		Scan(&last, &stats.LastStatus)
	if err != nil {
		return nil, err
	}
	stats.LastRunAt = &last
	return stats, nil
}
