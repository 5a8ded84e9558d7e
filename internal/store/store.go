// Package store provides SQLite-backed persistence for task and dependency
// inputs. Computed schedules are never stored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joshharrison/critpath/internal/graph"
	"github.com/joshharrison/critpath/internal/logging"
)

var (
	// ErrNotFound is returned when a task or dependency id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownTask is returned when a dependency names a task that does not exist.
	ErrUnknownTask = errors.New("unknown task")
	// ErrWouldCycle is returned when a dependency would close a cycle.
	ErrWouldCycle = errors.New("dependency would create a cycle")
	// ErrDuplicate is returned when an id is already taken.
	ErrDuplicate = errors.New("already exists")
)

const dateLayout = "2006-01-02"

// Store provides access to the critpath SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store and runs migrations. A nil logger discards output.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.logger.Debug("store opened", "path", dbPath)

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 1,
		start_date TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dependencies (
		id TEXT PRIMARY KEY,
		predecessor_id TEXT NOT NULL,
		successor_id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'FS',
		lag INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dependencies_predecessor ON dependencies(predecessor_id);
	CREATE INDEX IF NOT EXISTS idx_dependencies_successor ON dependencies(successor_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- Task Operations ---

// CreateTask inserts a task. An empty id is replaced with a new UUID.
func (s *Store) CreateTask(ctx context.Context, t graph.Task) (graph.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := insertTask(ctx, s.db, t); err != nil {
		return graph.Task{}, err
	}
	s.logger.Debug("task created", "task", t.ID)
	return t, nil
}

func insertTask(ctx context.Context, q querier, t graph.Task) error {
	exists, err := taskExists(ctx, q, t.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("task %s: %w", t.ID, ErrDuplicate)
	}

	var start sql.NullString
	if t.StartDate != nil {
		start = sql.NullString{String: t.StartDate.Format(dateLayout), Valid: true}
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO tasks (id, title, duration, start_date, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Duration, start, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func taskExists(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup task %s: %w", id, err)
	}
	return n > 0, nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*graph.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, duration, start_date FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns all tasks in insertion order.
func (s *Store) ListTasks(ctx context.Context) ([]graph.Task, error) {
	return listTasks(ctx, s.db)
}

func listTasks(ctx context.Context, q querier) ([]graph.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, title, duration, start_date FROM tasks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []graph.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (graph.Task, error) {
	var (
		t     graph.Task
		start sql.NullString
	)
	if err := sc.Scan(&t.ID, &t.Title, &t.Duration, &start); err != nil {
		return t, err
	}
	if start.Valid && start.String != "" {
		d, err := time.Parse(dateLayout, start.String)
		if err != nil {
			return t, fmt.Errorf("task %s: start date: %w", t.ID, err)
		}
		t.StartDate = &d
	}
	return t, nil
}

// DeleteTask removes a task together with every dependency that touches it.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	res, err = tx.ExecContext(ctx,
		`DELETE FROM dependencies WHERE predecessor_id = ? OR successor_id = ?`, id, id)
	if err != nil {
		return fmt.Errorf("delete dependencies of %s: %w", id, err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("task deleted", "task", id, "dependencies", removed)
	return nil
}

// --- Dependency Operations ---

// AddDependency inserts d after checking that both tasks exist, the type is
// known and the edge keeps the graph acyclic. An empty type means FS and an
// empty id is replaced with a new UUID.
func (s *Store) AddDependency(ctx context.Context, d graph.Dependency) (graph.Dependency, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Type == "" {
		d.Type = graph.FinishToStart
	}
	if !d.Type.Valid() {
		return graph.Dependency{}, fmt.Errorf("dependency type %q: must be FS, SS, FF or SF", d.Type)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return graph.Dependency{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range []string{d.PredecessorID, d.SuccessorID} {
		ok, err := taskExists(ctx, tx, id)
		if err != nil {
			return graph.Dependency{}, err
		}
		if !ok {
			return graph.Dependency{}, fmt.Errorf("%q: %w", id, ErrUnknownTask)
		}
	}

	existing, err := listDependencies(ctx, tx)
	if err != nil {
		return graph.Dependency{}, err
	}
	if graph.WouldCreateCycle(d, existing) {
		return graph.Dependency{}, fmt.Errorf("%s: %w", d, ErrWouldCycle)
	}

	if err := insertDependency(ctx, tx, d); err != nil {
		return graph.Dependency{}, err
	}
	if err := tx.Commit(); err != nil {
		return graph.Dependency{}, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("dependency added", "dependency", d.String())
	return d, nil
}

func insertDependency(ctx context.Context, q querier, d graph.Dependency) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO dependencies (id, predecessor_id, successor_id, type, lag, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.PredecessorID, d.SuccessorID, string(d.Type), d.Lag, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dependency %s: %w", d.ID, err)
	}
	return nil
}

// ListDependencies returns all dependencies in insertion order.
func (s *Store) ListDependencies(ctx context.Context) ([]graph.Dependency, error) {
	return listDependencies(ctx, s.db)
}

func listDependencies(ctx context.Context, q querier) ([]graph.Dependency, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, predecessor_id, successor_id, type, lag FROM dependencies ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []graph.Dependency
	for rows.Next() {
		var (
			d   graph.Dependency
			typ string
		)
		if err := rows.Scan(&d.ID, &d.PredecessorID, &d.SuccessorID, &typ, &d.Lag); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Type = graph.DependencyType(typ)
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// DeleteDependency removes a dependency by id.
func (s *Store) DeleteDependency(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dependency %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dependency %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("dependency deleted", "dependency", id)
	return nil
}

// --- Snapshots ---

// Snapshot reads every task and dependency in one transaction.
func (s *Store) Snapshot(ctx context.Context) ([]graph.Task, []graph.Dependency, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	tasks, err := listTasks(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	deps, err := listDependencies(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	return tasks, deps, nil
}

// Import stores a whole snapshot. The set must pass validation; otherwise a
// *graph.ValidationError is returned and nothing is written. With replace,
// existing rows are removed first; without it, the snapshot is merged and
// validated together with what is already stored.
func (s *Store) Import(ctx context.Context, tasks []graph.Task, deps []graph.Dependency, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies`); err != nil {
			return fmt.Errorf("clear dependencies: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
	}

	currentTasks, err := listTasks(ctx, tx)
	if err != nil {
		return err
	}
	currentDeps, err := listDependencies(ctx, tx)
	if err != nil {
		return err
	}

	deps = append([]graph.Dependency(nil), deps...)
	for i := range deps {
		if deps[i].ID == "" {
			deps[i].ID = uuid.NewString()
		}
	}

	allTasks := append(currentTasks, tasks...)
	allDeps := append(currentDeps, deps...)
	if res := graph.Validate(allTasks, allDeps); !res.Valid {
		return &graph.ValidationError{Result: res}
	}

	for _, t := range tasks {
		if err := insertTask(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, d := range deps {
		if err := insertDependency(ctx, tx, d); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("snapshot imported", "tasks", len(tasks), "dependencies", len(deps), "replace", replace)
	return nil
}
