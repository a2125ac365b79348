// Package store keeps the daemon's job history in SQLite.
//
// Open applies the usual pragmas (WAL, busy timeout, synchronous=NORMAL)
// through Exec so it works with any database/sql SQLite driver; the package
// registers modernc.org/sqlite under the name "sqlite".
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrJobNotFound = errors.New("job not found")

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	rule_pack  TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	files      INTEGER NOT NULL DEFAULT 0,
	complete   INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT '',
	artifact   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS jobs_created ON jobs(created_at);
`

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	mkdirAll    bool
}

func defaults() config {
	return config{driver: "sqlite", busyTimeout: 10_000, synchronous: "NORMAL"}
}

type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates the parent directories of the database path.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// Job is one daemon request that touched files.
type Job struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	RulePack string    `json:"rulePack,omitempty"`
	Created  time.Time `json:"created"`
	Finished time.Time `json:"finished,omitempty"`
	Files    int       `json:"files"`
	Complete int       `json:"complete"`
	Failed   int       `json:"failed"`
	Status   string    `json:"status,omitempty"`
	Artifact string    `json:"artifact,omitempty"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the job database at path. ":memory:" gives
// a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	memory := path == ":memory:"
	if cfg.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if memory {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record inserts or replaces a job.
func (s *Store) Record(ctx context.Context, j Job) error {
	if j.ID == "" {
		return errors.New("store: job id required")
	}
	if j.Created.IsZero() {
		j.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, rule_pack, created_at, finished_at, files, complete, failed, status, artifact)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	rule_pack = excluded.rule_pack,
	finished_at = excluded.finished_at,
	files = excluded.files,
	complete = excluded.complete,
	failed = excluded.failed,
	status = excluded.status,
	artifact = excluded.artifact`,
		j.ID, j.Kind, j.RulePack, formatTime(j.Created), formatTime(j.Finished),
		j.Files, j.Complete, j.Failed, j.Status, j.Artifact)
	if err != nil {
		return fmt.Errorf("store: record %s: %w", j.ID, err)
	}
	return nil
}

// List returns up to limit jobs, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	q := `SELECT id, kind, rule_pack, created_at, finished_at, files, complete, failed, status, artifact
FROM jobs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, rule_pack, created_at, finished_at, files, complete, failed, status, artifact
FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (Job, error) {
	var j Job
	var created, finished string
	if err := sc.Scan(&j.ID, &j.Kind, &j.RulePack, &created, &finished,
		&j.Files, &j.Complete, &j.Failed, &j.Status, &j.Artifact); err != nil {
		return Job{}, err
	}
	var err error
	if j.Created, err = parseTime(created); err != nil {
		return Job{}, fmt.Errorf("store: job %s created: %w", j.ID, err)
	}
	if j.Finished, err = parseTime(finished); err != nil {
		return Job{}, fmt.Errorf("store: job %s finished: %w", j.ID, err)
	}
	return j, nil
}

// fixed width so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
