package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/josefbacik/fsperf/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ulid     TEXT NOT NULL UNIQUE,
	kernel   TEXT NOT NULL,
	hostname TEXT NOT NULL,
	config   TEXT NOT NULL,
	name     TEXT NOT NULL,
	purpose  TEXT NOT NULL,
	time     INTEGER NOT NULL,
	failed   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_lookup ON runs (name, config, purpose, time);
CREATE TABLE IF NOT EXISTS samples (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   INTEGER NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	grp      INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	function TEXT NOT NULL DEFAULT '',
	metric   TEXT NOT NULL,
	value    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_run ON samples (run_id);
`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and ensures the schema.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Append(ctx context.Context, run *metrics.Run) (err error) {
	if run == nil {
		return errors.New("append nil run")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (ulid, kernel, hostname, config, name, purpose, time, failed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ULID, run.Kernel, run.Hostname, run.Config, run.Name, run.Purpose, run.Time.UTC().UnixNano(), run.Failed)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, grp, kind, function, metric, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare samples: %w", err)
	}
	defer stmt.Close()
	for i, g := range run.Groups {
		for metric, v := range g.Values {
			if _, err := stmt.ExecContext(ctx, id, i, string(g.Kind), g.Function, metric, v); err != nil {
				return fmt.Errorf("insert sample %s: %w", metric, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	run.ID = id
	return nil
}

func (s *SQLite) Query(ctx context.Context, f Filter) ([]*metrics.Run, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.Name != "" {
		add("name = ?", f.Name)
	}
	if f.Config != "" {
		add("config = ?", f.Config)
	}
	if f.Purpose != "" {
		add("purpose = ?", f.Purpose)
	}
	if !f.Since.IsZero() {
		add("time >= ?", f.Since.UTC().UnixNano())
	}
	if !f.IncludeFailed {
		where = append(where, "failed = 0")
	}
	q := `SELECT id, ulid, kernel, hostname, config, name, purpose, time, failed FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []*metrics.Run
	for rows.Next() {
		var (
			r  metrics.Run
			ns int64
		)
		if err := rows.Scan(&r.ID, &r.ULID, &r.Kernel, &r.Hostname, &r.Config, &r.Name, &r.Purpose, &ns, &r.Failed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Time = time.Unix(0, ns).UTC()
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("query runs: %w", err)
	}
	rows.Close()

	for _, r := range runs {
		if err := s.loadGroups(ctx, r); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *SQLite) loadGroups(ctx context.Context, r *metrics.Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT grp, kind, function, metric, value FROM samples WHERE run_id = ? ORDER BY grp, id`, r.ID)
	if err != nil {
		return fmt.Errorf("query samples for run %d: %w", r.ID, err)
	}
	defer rows.Close()

	current := -1
	for rows.Next() {
		var (
			grp                    int
			kind, function, metric string
			value                  float64
		)
		if err := rows.Scan(&grp, &kind, &function, &metric, &value); err != nil {
			return fmt.Errorf("scan sample: %w", err)
		}
		if grp != current {
			r.Groups = append(r.Groups, metrics.SampleGroup{
				Kind:     metrics.Kind(kind),
				Function: function,
				Values:   make(map[string]float64),
			})
			current = grp
		}
		r.Groups[len(r.Groups)-1].Values[metric] = value
	}
	return rows.Err()
}

func (s *SQLite) DeleteByPurpose(ctx context.Context, purposes ...string) (int64, error) {
	if len(purposes) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(purposes)), ",")
	args := make([]any, len(purposes))
	for i, p := range purposes {
		args[i] = p
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE purpose IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return res.RowsAffected()
}
