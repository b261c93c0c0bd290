package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

const bookingConflictMessage = "booking conflict"

const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		is_milestone INTEGER NOT NULL DEFAULT 0,
		schedule_timing REAL NOT NULL,
		schedule_unit TEXT NOT NULL,
		schedule_model TEXT NOT NULL,
		schedule_constraint TEXT NOT NULL,
		start_ns INTEGER NOT NULL,
		end_ns INTEGER NOT NULL,
		schedule_seconds REAL NOT NULL,
		total_logged_seconds REAL NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL,
		review_number INTEGER NOT NULL DEFAULT 0,
		resources TEXT,
		alternative_resources TEXT,
		computed_resources TEXT,
		responsible TEXT
	);

	CREATE TABLE IF NOT EXISTS dependencies (
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		target TEXT NOT NULL,
		gap_timing REAL NOT NULL DEFAULT 0,
		gap_unit TEXT NOT NULL,
		gap_model TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on_id)
	);

	CREATE TABLE IF NOT EXISTS time_logs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		start_ns INTEGER NOT NULL,
		end_ns INTEGER NOT NULL,
		CHECK (end_ns > start_ns)
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		reviewer TEXT NOT NULL,
		review_number INTEGER NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		schedule_timing REAL NOT NULL DEFAULT 0,
		schedule_unit TEXT,
		created_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_logs_resource ON time_logs(resource, start_ns);
	CREATE INDEX IF NOT EXISTS idx_reviews_task ON reviews(task_id);

	CREATE TRIGGER IF NOT EXISTS time_logs_no_overlap_insert
	BEFORE INSERT ON time_logs
	WHEN EXISTS (
		SELECT 1 FROM time_logs
		WHERE resource = NEW.resource AND id != NEW.id
		  AND start_ns < NEW.end_ns AND NEW.start_ns < end_ns
	)
	BEGIN
		SELECT RAISE(ABORT, 'booking conflict');
	END;

	CREATE TRIGGER IF NOT EXISTS time_logs_no_overlap_update
	BEFORE UPDATE ON time_logs
	WHEN EXISTS (
		SELECT 1 FROM time_logs
		WHERE resource = NEW.resource AND id != NEW.id
		  AND start_ns < NEW.end_ns AND NEW.start_ns < end_ns
	)
	BEGIN
		SELECT RAISE(ABORT, 'booking conflict');
	END;
`

const upsertTimeLog = `
	INSERT INTO time_logs (id, task_id, resource, start_ns, end_ns) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		task_id = excluded.task_id,
		resource = excluded.resource,
		start_ns = excluded.start_ns,
		end_ns = excluded.end_ns`

// SQLiteStore keeps a production in a SQLite database. A trigger on
// time_logs rejects overlapping bookings of a resource even when they are
// written by another process.
type SQLiteStore struct {
	db   *sql.DB
	path string
	name string
	opts []task.Option
}

func OpenSQLite(path, name string, opts ...task.Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	// immediate transactions take the write lock up front so concurrent
	// updates queue instead of failing on commit
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &SQLiteStore{db: db, path: path, name: name, opts: opts}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate %s: %w", s.path, err)
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?), ('name', ?)`,
		strconv.Itoa(task.SnapshotSchemaVersion), s.name)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", s.path, err)
	}
	return nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (*task.Production, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return nil, err
	}
	return task.Restore(snap, s.opts...)
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(*task.Production) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return err
	}
	opts := append(append([]task.Option(nil), s.opts...), task.WithBackstop(&txBackstop{ctx: ctx, tx: tx}))
	p, err := task.Restore(snap, opts...)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	if err := writeSnapshot(ctx, tx, p.Snapshot()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// txBackstop writes bookings into the open transaction as the engine
// accepts them, so the overlap trigger sees every one.
type txBackstop struct {
	ctx context.Context
	tx  *sql.Tx
}

func (b *txBackstop) Reserve(tl task.TimeLog) error {
	_, err := b.tx.ExecContext(b.ctx, upsertTimeLog,
		tl.ID, tl.TaskID, tl.Resource, tl.Start.UnixNano(), tl.End.UnixNano())
	return translate(err)
}

func (b *txBackstop) Release(id string) error {
	_, err := b.tx.ExecContext(b.ctx, `DELETE FROM time_logs WHERE id = ?`, id)
	return err
}

// translate maps the overlap trigger's abort to task.ErrBookingConflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint &&
		strings.Contains(sqlErr.Error(), bookingConflictMessage) {
		return fmt.Errorf("%w: %v", task.ErrBookingConflict, err)
	}
	return err
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func encodeList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeList(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(v.String), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}

func readSnapshot(ctx context.Context, tx *sql.Tx) (task.Snapshot, error) {
	snap := task.Snapshot{FileType: task.SnapshotFileType}
	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return snap, fmt.Errorf("read meta: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan meta: %w", err)
		}
		switch key {
		case "name":
			snap.Name = value
		case "schema_version":
			snap.SchemaVersion, _ = strconv.Atoi(value)
		}
	}
	rows.Close()

	if snap.Tasks, err = readTasks(ctx, tx); err != nil {
		return snap, err
	}
	if snap.Dependencies, err = readDependencies(ctx, tx); err != nil {
		return snap, err
	}
	if snap.TimeLogs, err = readTimeLogs(ctx, tx); err != nil {
		return snap, err
	}
	if snap.Reviews, err = readReviews(ctx, tx); err != nil {
		return snap, err
	}
	return snap, nil
}

func readTasks(ctx context.Context, tx *sql.Tx) ([]task.TaskRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, parent_id, is_milestone, schedule_timing, schedule_unit, schedule_model,
		       schedule_constraint, start_ns, end_ns, schedule_seconds, total_logged_seconds,
		       status, priority, review_number, resources, alternative_resources,
		       computed_resources, responsible
		FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	defer rows.Close()

	var out []task.TaskRecord
	for rows.Next() {
		var r task.TaskRecord
		var parent, resources, alternatives, computed, responsible sql.NullString
		var startNs, endNs int64
		err := rows.Scan(&r.ID, &r.Name, &parent, &r.IsMilestone, &r.ScheduleTiming, &r.ScheduleUnit,
			&r.ScheduleModel, &r.ScheduleConstraint, &startNs, &endNs, &r.ScheduleSeconds,
			&r.TotalLoggedSeconds, &r.Status, &r.Priority, &r.ReviewNumber, &resources, &alternatives,
			&computed, &responsible)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		r.ParentID = parent.String
		r.Start, r.End = fromNanos(startNs), fromNanos(endNs)
		for _, l := range []struct {
			dst *[]string
			src sql.NullString
		}{
			{&r.Resources, resources},
			{&r.AlternativeResources, alternatives},
			{&r.ComputedResources, computed},
			{&r.Responsible, responsible},
		} {
			if *l.dst, err = decodeList(l.src); err != nil {
				return nil, fmt.Errorf("task %s: decode list: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func readDependencies(ctx context.Context, tx *sql.Tx) ([]task.Dependency, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT task_id, depends_on_id, target, gap_timing, gap_unit, gap_model
		FROM dependencies ORDER BY task_id, depends_on_id`)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	defer rows.Close()

	out := []task.Dependency{}
	for rows.Next() {
		var d task.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &d.Target, &d.GapTiming, &d.GapUnit, &d.GapModel); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func readTimeLogs(ctx context.Context, tx *sql.Tx) ([]task.TimeLog, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, task_id, resource, start_ns, end_ns FROM time_logs ORDER BY start_ns, id`)
	if err != nil {
		return nil, fmt.Errorf("read time logs: %w", err)
	}
	defer rows.Close()

	out := []task.TimeLog{}
	for rows.Next() {
		var tl task.TimeLog
		var startNs, endNs int64
		if err := rows.Scan(&tl.ID, &tl.TaskID, &tl.Resource, &startNs, &endNs); err != nil {
			return nil, fmt.Errorf("scan time log: %w", err)
		}
		tl.Start, tl.End = fromNanos(startNs), fromNanos(endNs)
		out = append(out, tl)
	}
	return out, rows.Err()
}

func readReviews(ctx context.Context, tx *sql.Tx) ([]task.Review, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, task_id, reviewer, review_number, status, description, schedule_timing,
		       schedule_unit, created_ns
		FROM reviews ORDER BY created_ns, rowid`)
	if err != nil {
		return nil, fmt.Errorf("read reviews: %w", err)
	}
	defer rows.Close()

	var out []task.Review
	for rows.Next() {
		var r task.Review
		var description, unit sql.NullString
		var createdNs int64
		err := rows.Scan(&r.ID, &r.TaskID, &r.Reviewer, &r.ReviewNumber, &r.Status, &description,
			&r.ScheduleTiming, &unit, &createdNs)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.Description = description.String
		r.ScheduleUnit = model.TimeUnit(unit.String)
		r.CreatedAt = fromNanos(createdNs)
		out = append(out, r)
	}
	return out, rows.Err()
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, snap task.Snapshot) error {
	for _, table := range []string{"tasks", "dependencies", "reviews"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES ('name', ?)`, snap.Name); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	for _, r := range snap.Tasks {
		lists := make([]sql.NullString, 0, 4)
		for _, l := range [][]string{r.Resources, r.AlternativeResources, r.ComputedResources, r.Responsible} {
			v, err := encodeList(l)
			if err != nil {
				return fmt.Errorf("task %s: encode list: %w", r.ID, err)
			}
			lists = append(lists, v)
		}
		parent := sql.NullString{String: r.ParentID, Valid: r.ParentID != ""}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, name, parent_id, is_milestone, schedule_timing, schedule_unit,
				schedule_model, schedule_constraint, start_ns, end_ns, schedule_seconds,
				total_logged_seconds, status, priority, review_number, resources,
				alternative_resources, computed_resources, responsible)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, parent, r.IsMilestone, r.ScheduleTiming, string(r.ScheduleUnit),
			string(r.ScheduleModel), string(r.ScheduleConstraint), r.Start.UnixNano(), r.End.UnixNano(),
			r.ScheduleSeconds, r.TotalLoggedSeconds, string(r.Status), r.Priority, r.ReviewNumber,
			lists[0], lists[1], lists[2], lists[3])
		if err != nil {
			return fmt.Errorf("insert task %s: %w", r.ID, err)
		}
	}

	for _, d := range snap.Dependencies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies (task_id, depends_on_id, target, gap_timing, gap_unit, gap_model)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.TaskID, d.DependsOnID, string(d.Target), d.GapTiming, string(d.GapUnit), string(d.GapModel))
		if err != nil {
			return fmt.Errorf("insert dependency %s -> %s: %w", d.TaskID, d.DependsOnID, err)
		}
	}

	if err := syncTimeLogs(ctx, tx, snap.TimeLogs); err != nil {
		return err
	}

	for _, r := range snap.Reviews {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (id, task_id, reviewer, review_number, status, description,
				schedule_timing, schedule_unit, created_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.TaskID, r.Reviewer, r.ReviewNumber, string(r.Status), r.Description,
			r.ScheduleTiming, string(r.ScheduleUnit), r.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert review %s: %w", r.ID, err)
		}
	}
	return nil
}

// syncTimeLogs makes the table match logs. Most rows are already in place
// through the backstop; the upsert is a no-op for them.
func syncTimeLogs(ctx context.Context, tx *sql.Tx, logs []task.TimeLog) error {
	keep := make(map[string]bool, len(logs))
	for _, tl := range logs {
		keep[tl.ID] = true
	}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM time_logs`)
	if err != nil {
		return fmt.Errorf("read time log ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan time log id: %w", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM time_logs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete time log %s: %w", id, err)
		}
	}
	for _, tl := range logs {
		_, err := tx.ExecContext(ctx, upsertTimeLog, tl.ID, tl.TaskID, tl.Resource, tl.Start.UnixNano(), tl.End.UnixNano())
		if err := translate(err); err != nil {
			return fmt.Errorf("write time log %s: %w", tl.ID, err)
		}
	}
	return nil
}
