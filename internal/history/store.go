// Package history persists episodes in SQLite. The store is
// append-only: triples are inserted exactly once and never updated or
// deleted, and an episode's status can only move out of "running"
// once. Each append is a single transaction, so a crash mid-run
// leaves a fully consistent partial episode.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pcastell/mend/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id  TEXT PRIMARY KEY,
	task_name   TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	final_code  TEXT
);

CREATE TABLE IF NOT EXISTS triples (
	episode_id    TEXT NOT NULL,
	iteration     INTEGER NOT NULL,
	code          TEXT NOT NULL,
	rationale     TEXT NOT NULL,
	stdout        TEXT NOT NULL,
	stderr        TEXT NOT NULL,
	exit_status   INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	trace         TEXT NOT NULL DEFAULT '',
	timed_out     INTEGER NOT NULL DEFAULT 0,
	setup_failure TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL,
	feedback      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (episode_id, iteration),
	FOREIGN KEY (episode_id) REFERENCES episodes(episode_id)
);
`

// Store manages episodes in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at path and runs
// migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// dsn carries the per-connection settings in the URI so every pooled
// connection gets them: a busy timeout so parallel episode writers
// wait for the lock instead of failing with SQLITE_BUSY, and
// foreign-key enforcement, which is off by default and connection
// scoped.
func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin creates a new running episode for the task and returns its ID.
func (s *Store) Begin(taskName string, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO episodes (episode_id, task_name, status, started_at)
		 VALUES (?, ?, ?, ?)`,
		id, taskName, string(models.StatusRunning), startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert episode: %w", err)
	}
	return id, nil
}

// Append writes one completed triple. The (episode, iteration) primary
// key rejects duplicates, and the single INSERT means a reader never
// observes a partial triple.
func (s *Store) Append(episodeID string, t models.Triple) error {
	_, err := s.db.Exec(
		`INSERT INTO triples (
			episode_id, iteration, code, rationale,
			stdout, stderr, exit_status, duration_ms,
			trace, timed_out, setup_failure,
			category, feedback, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		episodeID, t.Attempt.Iteration, t.Attempt.Code, t.Attempt.Rationale,
		t.Result.Stdout, t.Result.Stderr, t.Result.ExitStatus, t.Result.Duration.Milliseconds(),
		t.Result.Trace, boolToInt(t.Result.TimedOut), t.Result.SetupFailure,
		string(t.Diagnosis.Category), t.Diagnosis.Feedback,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append triple %d: %w", t.Attempt.Iteration, err)
	}
	return nil
}

// Finish records the terminal status. The guard on the current status
// makes the transition one-way: finishing an already-terminal episode
// is an error.
func (s *Store) Finish(episodeID string, status models.RunStatus, endedAt time.Time, finalCode string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish with non-terminal status %q", status)
	}
	res, err := s.db.Exec(
		`UPDATE episodes SET status = ?, ended_at = ?, final_code = ?
		 WHERE episode_id = ? AND status = ?`,
		string(status), endedAt.UTC().Format(time.RFC3339Nano), finalCode,
		episodeID, string(models.StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finish episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish episode: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("episode %s is not running", episodeID)
	}
	return nil
}

// Read reconstructs an episode, triples ordered by iteration.
func (s *Store) Read(episodeID string) (*models.Episode, error) {
	ep := &models.Episode{ID: episodeID}

	var status, startedStr string
	var endedStr, finalCode sql.NullString
	err := s.db.QueryRow(
		`SELECT task_name, status, started_at, ended_at, final_code
		 FROM episodes WHERE episode_id = ?`, episodeID,
	).Scan(&ep.TaskName, &status, &startedStr, &endedStr, &finalCode)
	if err != nil {
		return nil, fmt.Errorf("read episode %s: %w", episodeID, err)
	}
	ep.Status = models.RunStatus(status)
	ep.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	if endedStr.Valid {
		ep.EndedAt, _ = time.Parse(time.RFC3339Nano, endedStr.String)
	}
	if finalCode.Valid {
		ep.FinalCode = finalCode.String
	}

	rows, err := s.db.Query(
		`SELECT iteration, code, rationale,
			stdout, stderr, exit_status, duration_ms,
			trace, timed_out, setup_failure,
			category, feedback
		 FROM triples WHERE episode_id = ? ORDER BY iteration`, episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("read triples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Triple
		var durationMs int64
		var timedOut int
		if err := rows.Scan(
			&t.Attempt.Iteration, &t.Attempt.Code, &t.Attempt.Rationale,
			&t.Result.Stdout, &t.Result.Stderr, &t.Result.ExitStatus, &durationMs,
			&t.Result.Trace, &timedOut, &t.Result.SetupFailure,
			&t.Diagnosis.Category, &t.Diagnosis.Feedback,
		); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		t.Result.Duration = time.Duration(durationMs) * time.Millisecond
		t.Result.TimedOut = timedOut != 0
		ep.Triples = append(ep.Triples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read triples: %w", err)
	}

	return ep, nil
}

// ListEpisodes returns the most recent episode IDs with task name and
// status, newest first.
func (s *Store) ListEpisodes(limit int) ([]models.Episode, error) {
	rows, err := s.db.Query(
		`SELECT episode_id, task_name, status, started_at
		 FROM episodes ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var eps []models.Episode
	for rows.Next() {
		var ep models.Episode
		var status, startedStr string
		if err := rows.Scan(&ep.ID, &ep.TaskName, &status, &startedStr); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.Status = models.RunStatus(status)
		ep.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
