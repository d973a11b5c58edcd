package repository

import (
	"context"
	"database/sql"

	"task-tracker/internal/database"
	"task-tracker/internal/models"
	"task-tracker/pkg/logger"
)

const taskColumns = `id, user_id, name, description, date_of_creation, deadline, completed, category_id, created_at`

// TaskRepository issues one parameterized statement per call against the tasks table.
type TaskRepository struct {
	db *database.DB
}

// NewTaskRepository returns a repository backed by db.
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task and fills in its generated id.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	err := r.db.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO tasks (user_id, name, description, date_of_creation, deadline, completed, category_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		t.UserID, t.Name, t.Description, t.DateOfCreation, t.Deadline, t.Completed, t.CategoryID, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		logger.Error(ctx, "Repository Create failed", "error", err, "user_id", t.UserID)
		return err
	}
	return nil
}

// UpdateStage sets completed for the task with the given id. It returns the
// owner of the touched row and the number of affected rows (0 or 1).
func (r *TaskRepository) UpdateStage(ctx context.Context, taskID int64, completed int) (int64, int64, error) {
	return r.execReturningOwner(ctx, "UpdateStage",
		`UPDATE tasks SET completed = ? WHERE id = ? RETURNING user_id`, completed, taskID)
}

// Delete removes the task with the given id. Same return values as UpdateStage.
func (r *TaskRepository) Delete(ctx context.Context, taskID int64) (int64, int64, error) {
	return r.execReturningOwner(ctx, "Delete", `DELETE FROM tasks WHERE id = ? RETURNING user_id`, taskID)
}

func (r *TaskRepository) execReturningOwner(ctx context.Context, op, query string, args ...interface{}) (int64, int64, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		logger.Error(ctx, "Repository "+op+" failed", "error", err)
		return 0, 0, err
	}
	defer rows.Close()
	var owner, affected int64
	for rows.Next() {
		if err := rows.Scan(&owner); err != nil {
			return 0, 0, err
		}
		affected++
	}
	if err := rows.Err(); err != nil {
		logger.Error(ctx, "Repository "+op+" failed", "error", err)
		return 0, 0, err
	}
	return owner, affected, nil
}

// ListByUser returns all tasks of a user ordered by id.
func (r *TaskRepository) ListByUser(ctx context.Context, userID int64) ([]models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY id`, userID)
}

// ListByUserAndCategory returns the user's tasks whose category equals category.
func (r *TaskRepository) ListByUserAndCategory(ctx context.Context, userID, category int64) ([]models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND category_id = ? ORDER BY id`, userID, category)
}

// GetByID returns the task with the given id as a zero or one element slice.
func (r *TaskRepository) GetByID(ctx context.Context, taskID int64) ([]models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
}

func (r *TaskRepository) query(ctx context.Context, q string, args ...interface{}) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		logger.Error(ctx, "Repository query tasks failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	tasks := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Error(ctx, "Repository scan task failed", "error", err)
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(rows *sql.Rows) (models.Task, error) {
	var t models.Task
	err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.DateOfCreation,
		&t.Deadline, &t.Completed, &t.CategoryID, &t.CreatedAt)
	return t, err
}

// CountByStage counts the user's tasks created in [from, to] grouped by completed.
// Bounds are RFC3339 UTC strings comparable with created_at.
func (r *TaskRepository) CountByStage(ctx context.Context, userID int64, from, to string) (models.StageReport, error) {
	var report models.StageReport
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT completed, COUNT(*) AS task_count FROM tasks
		 WHERE user_id = ? AND created_at >= ? AND created_at <= ?
		 GROUP BY completed`), userID, from, to)
	if err != nil {
		logger.Error(ctx, "Repository CountByStage failed", "error", err, "user_id", userID)
		return report, err
	}
	defer rows.Close()
	for rows.Next() {
		var completed int
		var count int64
		if err := rows.Scan(&completed, &count); err != nil {
			return report, err
		}
		switch completed {
		case 1:
			report.Completed = count
		case 0:
			report.Uncompleted = count
		}
	}
	return report, rows.Err()
}

// Ping checks the store connection.
func (r *TaskRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
