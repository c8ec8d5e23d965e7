// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides robot/item/task persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS robots (
			id              TEXT PRIMARY KEY,
			address         TEXT NOT NULL UNIQUE,
			platform        TEXT NOT NULL,
			status          TEXT NOT NULL,
			manifest_path   TEXT NOT NULL DEFAULT '',
			initialized     INTEGER NOT NULL DEFAULT 0,
			available_tasks TEXT NOT NULL DEFAULT '[]',
			last_seen       TEXT,
			created_at      TEXT NOT NULL,

			CHECK (status IN ('inactive', 'active', 'busy', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_robots_status ON robots(status);

		CREATE TABLE IF NOT EXISTS work_items (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			payload    TEXT NOT NULL DEFAULT '',
			robot_id   TEXT REFERENCES robots(id),
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_work_items_robot ON work_items(robot_id);

		CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			item_id    TEXT NOT NULL REFERENCES work_items(id),
			name       TEXT NOT NULL,
			robot_id   TEXT REFERENCES robots(id),
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_item ON tasks(item_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_robot ON tasks(robot_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// placeholders returns a comma-separated list of n SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// toAnySlice converts string IDs to []any for variadic query arguments.
func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Register creates a robot record with a fresh ID and status inactive.
// Returns ErrDuplicateAddress if the address is already taken.
func (s *SQLiteStore) Register(ctx context.Context, address, platform string) (*Robot, error) {
	robot := &Robot{
		ID:        uuid.New().String(),
		Address:   address,
		Platform:  platform,
		Status:    StatusInactive,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO robots (id, address, platform, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		robot.ID,
		robot.Address,
		robot.Platform,
		robot.Status,
		robot.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicateAddress
		}
		return nil, fmt.Errorf("inserting robot: %w", err)
	}

	s.logger.Debug("registered robot", "id", robot.ID, "address", address, "platform", platform)
	return robot, nil
}

const robotColumns = `id, address, platform, status, manifest_path, initialized, available_tasks, last_seen, created_at`

// scanRobot scans a robot row from either *sql.Row or *sql.Rows.
func scanRobot(scan func(dest ...any) error) (*Robot, error) {
	var robot Robot
	var tasksJSON string
	var lastSeenStr sql.NullString
	var createdAtStr string

	err := scan(
		&robot.ID,
		&robot.Address,
		&robot.Platform,
		&robot.Status,
		&robot.ManifestPath,
		&robot.Initialized,
		&tasksJSON,
		&lastSeenStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tasksJSON), &robot.AvailableTasks); err != nil {
		return nil, fmt.Errorf("parsing available_tasks: %w", err)
	}

	if lastSeenStr.Valid {
		seen, err := time.Parse(time.RFC3339Nano, lastSeenStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		robot.LastSeen = &seen
	}

	robot.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &robot, nil
}

// GetRobot retrieves a robot by ID.
// Returns ErrNotFound if the robot doesn't exist.
func (s *SQLiteStore) GetRobot(ctx context.Context, id string) (*Robot, error) {
	query := `SELECT ` + robotColumns + ` FROM robots WHERE id = ?`

	robot, err := scanRobot(s.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying robot: %w", err)
	}

	return robot, nil
}

// ListRobots returns all robots in registration order.
func (s *SQLiteStore) ListRobots(ctx context.Context) ([]*Robot, error) {
	query := `SELECT ` + robotColumns + ` FROM robots ORDER BY created_at ASC, id ASC`
	return s.queryRobots(ctx, query)
}

func (s *SQLiteStore) queryRobots(ctx context.Context, query string, args ...any) ([]*Robot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying robots: %w", err)
	}
	defer rows.Close()

	var robots []*Robot
	for rows.Next() {
		robot, err := scanRobot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning robot: %w", err)
		}
		robots = append(robots, robot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating robots: %w", err)
	}

	return robots, nil
}

// SetStatus updates a robot's status.
// Returns ErrNotFound if the robot doesn't exist.
func (s *SQLiteStore) SetStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE robots SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating robot status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("robot status changed", "id", id, "status", status)
	return nil
}

// Touch records a heartbeat timestamp for the robot.
func (s *SQLiteStore) Touch(ctx context.Context, id string, seen time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE robots SET last_seen = ? WHERE id = ?`,
		seen.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// SetInitialized marks a robot's workspace as ready and caches its task names.
func (s *SQLiteStore) SetInitialized(ctx context.Context, id, manifestPath string, tasks []string) error {
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encoding available_tasks: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE robots SET initialized = 1, manifest_path = ?, available_tasks = ? WHERE id = ?`,
		manifestPath, string(tasksJSON), id)
	if err != nil {
		return fmt.Errorf("marking robot initialized: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("robot initialized", "id", id, "tasks", tasks)
	return nil
}

// UpdateAvailableTasks refreshes the cached task list for a robot.
func (s *SQLiteStore) UpdateAvailableTasks(ctx context.Context, id string, tasks []string) error {
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encoding available_tasks: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE robots SET available_tasks = ? WHERE id = ?`,
		string(tasksJSON), id)
	if err != nil {
		return fmt.Errorf("updating available_tasks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListActive returns all robots with status active, in registration order.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]*Robot, error) {
	query := `SELECT ` + robotColumns + ` FROM robots WHERE status = ? ORDER BY created_at ASC, id ASC`
	return s.queryRobots(ctx, query, StatusActive)
}

// ListDisconnected returns robots that should be alive but whose last
// heartbeat predates cutoff (or that never sent one).
func (s *SQLiteStore) ListDisconnected(ctx context.Context, cutoff time.Time) ([]*Robot, error) {
	query := `
		SELECT ` + robotColumns + `
		FROM robots
		WHERE status IN (?, ?)
		  AND (last_seen IS NULL OR last_seen < ?)
		ORDER BY created_at ASC, id ASC
	`
	return s.queryRobots(ctx, query, StatusActive, StatusBusy, cutoff.UTC().Format(time.RFC3339Nano))
}

// LeastLoaded returns the active, initialized robot with the fewest assigned
// items. Ties break by registration order. Returns ErrNoActiveRobots when no
// robot qualifies.
func (s *SQLiteStore) LeastLoaded(ctx context.Context) (*Robot, error) {
	query := `
		SELECT r.id, r.address, r.platform, r.status, r.manifest_path,
		       r.initialized, r.available_tasks, r.last_seen, r.created_at
		FROM robots r
		LEFT JOIN work_items w ON w.robot_id = r.id
		WHERE r.status = ? AND r.initialized = 1
		GROUP BY r.id
		ORDER BY COUNT(w.id) ASC, r.created_at ASC, r.id ASC
		LIMIT 1
	`

	robot, err := scanRobot(s.db.QueryRowContext(ctx, query, StatusActive).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNoActiveRobots
	}
	if err != nil {
		return nil, fmt.Errorf("querying least-loaded robot: %w", err)
	}

	return robot, nil
}

// CreateItem stores a new work item.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *WorkItem) error {
	query := `
		INSERT INTO work_items (id, name, payload, robot_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.Name,
		item.Payload,
		item.RobotID,
		item.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting work item: %w", err)
	}

	return nil
}

// CreateTask stores a new task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	query := `
		INSERT INTO tasks (id, item_id, name, robot_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.ItemID,
		task.Name,
		task.RobotID,
		task.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}

	return nil
}

const itemColumns = `id, name, payload, robot_id, created_at`

func scanItem(scan func(dest ...any) error) (*WorkItem, error) {
	var item WorkItem
	var robotID sql.NullString
	var createdAtStr string

	err := scan(&item.ID, &item.Name, &item.Payload, &robotID, &createdAtStr)
	if err != nil {
		return nil, err
	}

	if robotID.Valid {
		item.RobotID = &robotID.String
	}

	item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &item, nil
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]*WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying work items: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating work items: %w", err)
	}

	return items, nil
}

// UnassignedItems returns items with no robot association, oldest first.
func (s *SQLiteStore) UnassignedItems(ctx context.Context) ([]*WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items WHERE robot_id IS NULL ORDER BY created_at ASC, id ASC`
	return s.queryItems(ctx, query)
}

// ItemsForRobots returns items assigned to any of the given robots.
func (s *SQLiteStore) ItemsForRobots(ctx context.Context, robotIDs []string) ([]*WorkItem, error) {
	if len(robotIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + itemColumns + ` FROM work_items WHERE robot_id IN (` +
		placeholders(len(robotIDs)) + `) ORDER BY created_at ASC, id ASC`
	return s.queryItems(ctx, query, toAnySlice(robotIDs)...)
}

// TasksForItems returns tasks belonging to any of the given items.
func (s *SQLiteStore) TasksForItems(ctx context.Context, itemIDs []string) ([]*Task, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, item_id, name, robot_id, created_at
		FROM tasks
		WHERE item_id IN (` + placeholders(len(itemIDs)) + `)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, toAnySlice(itemIDs)...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var task Task
		var robotID sql.NullString
		var createdAtStr string

		if err := rows.Scan(&task.ID, &task.ItemID, &task.Name, &robotID, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}

		if robotID.Valid {
			task.RobotID = &robotID.String
		}

		task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	return tasks, nil
}

// ClearAssignments removes the robot association from the given items and
// tasks. Clearing an already-unassigned record is a no-op.
func (s *SQLiteStore) ClearAssignments(ctx context.Context, itemIDs, taskIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if len(itemIDs) > 0 {
		query := `UPDATE work_items SET robot_id = NULL WHERE id IN (` + placeholders(len(itemIDs)) + `)`
		if _, err := tx.ExecContext(ctx, query, toAnySlice(itemIDs)...); err != nil {
			return fmt.Errorf("clearing item assignments: %w", err)
		}
	}

	if len(taskIDs) > 0 {
		query := `UPDATE tasks SET robot_id = NULL WHERE id IN (` + placeholders(len(taskIDs)) + `)`
		if _, err := tx.ExecContext(ctx, query, toAnySlice(taskIDs)...); err != nil {
			return fmt.Errorf("clearing task assignments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing unassignment: %w", err)
	}

	return nil
}

// AssignBatch sets the robot association on every given item and task in one
// transaction. Either the whole batch is applied or none of it is.
func (s *SQLiteStore) AssignBatch(ctx context.Context, itemIDs, taskIDs []string, robotID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if len(itemIDs) > 0 {
		query := `UPDATE work_items SET robot_id = ? WHERE id IN (` + placeholders(len(itemIDs)) + `)`
		args := append([]any{robotID}, toAnySlice(itemIDs)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("assigning items: %w", err)
		}
	}

	if len(taskIDs) > 0 {
		query := `UPDATE tasks SET robot_id = ? WHERE id IN (` + placeholders(len(taskIDs)) + `)`
		args := append([]any{robotID}, toAnySlice(taskIDs)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("assigning tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignment: %w", err)
	}

	s.logger.Debug("batch assigned", "robot", robotID, "items", len(itemIDs), "tasks", len(taskIDs))
	return nil
}
