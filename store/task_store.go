package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/localfirst/agentcore/core"
	"github.com/localfirst/agentcore/scheduler"
)

// TaskStore implements scheduler.TaskStore against the tasks table.
type TaskStore struct {
	db *DB
}

// NewTaskStore constructs a TaskStore over db.
func NewTaskStore(db *DB) *TaskStore { return &TaskStore{db: db} }

type taskRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	Description      string         `db:"description"`
	Priority         int            `db:"priority"`
	Status           string         `db:"status"`
	Progress         float64        `db:"progress"`
	CurrentStep      int            `db:"current_step"`
	StepsJSON        string         `db:"steps_json"`
	ContextJSON      string         `db:"context_json"`
	RequiresApproval bool           `db:"requires_approval"`
	AutoApprove      bool           `db:"auto_approve"`
	AutoResume       bool           `db:"auto_resume"`
	RetryCount       int            `db:"retry_count"`
	MaxRetries       int            `db:"max_retries"`
	FailureReason    string         `db:"failure_reason"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
}

func rowFromTask(t *core.Task) (*taskRow, error) {
	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return nil, err
	}
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return nil, err
	}
	row := &taskRow{
		ID:               t.ID,
		Name:             t.Name,
		Description:      t.Description,
		Priority:         int(t.Priority),
		Status:           string(t.Status),
		Progress:         t.Progress,
		CurrentStep:      t.CurrentStep,
		StepsJSON:        string(stepsJSON),
		ContextJSON:      string(ctxJSON),
		RequiresApproval: t.RequiresApproval,
		AutoApprove:      t.AutoApprove,
		AutoResume:       t.AutoResume,
		RetryCount:       t.RetryCount,
		MaxRetries:       t.MaxRetries,
		FailureReason:    t.FailureReason,
		CreatedAt:        t.CreatedAt.Format(timeLayout),
		UpdatedAt:        t.UpdatedAt.Format(timeLayout),
	}
	if t.CompletedAt != nil {
		row.CompletedAt = sql.NullString{String: t.CompletedAt.Format(timeLayout), Valid: true}
	}
	return row, nil
}

func (r taskRow) toTask() (*core.Task, error) {
	var steps []core.Step
	if err := json.Unmarshal([]byte(r.StepsJSON), &steps); err != nil {
		return nil, err
	}
	var taskCtx map[string]interface{}
	if err := json.Unmarshal([]byte(r.ContextJSON), &taskCtx); err != nil {
		return nil, err
	}
	created, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := time.Parse(timeLayout, r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t := &core.Task{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		Priority:         core.Priority(r.Priority),
		Status:           core.TaskStatus(r.Status),
		Progress:         r.Progress,
		CurrentStep:      r.CurrentStep,
		Steps:            steps,
		Context:          taskCtx,
		RequiresApproval: r.RequiresApproval,
		AutoApprove:      r.AutoApprove,
		AutoResume:       r.AutoResume,
		RetryCount:       r.RetryCount,
		MaxRetries:       r.MaxRetries,
		FailureReason:    r.FailureReason,
		CreatedAt:        created,
		UpdatedAt:        updated,
	}
	if r.CompletedAt.Valid {
		ts, err := time.Parse(timeLayout, r.CompletedAt.String)
		if err != nil {
			return nil, err
		}
		t.CompletedAt = &ts
	}
	return t, nil
}

// SaveTask upserts a task row, serializing steps/context to JSON.
func (s *TaskStore) SaveTask(ctx context.Context, t *core.Task) error {
	row, err := rowFromTask(t)
	if err != nil {
		return wrapErr("store.TaskStore.SaveTask", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (id, name, description, priority, status, progress, current_step, steps_json, context_json, requires_approval, auto_approve, auto_resume, retry_count, max_retries, failure_reason, created_at, updated_at, completed_at)
		VALUES (:id, :name, :description, :priority, :status, :progress, :current_step, :steps_json, :context_json, :requires_approval, :auto_approve, :auto_resume, :retry_count, :max_retries, :failure_reason, :created_at, :updated_at, :completed_at)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, priority=excluded.priority,
			status=excluded.status, progress=excluded.progress, current_step=excluded.current_step,
			steps_json=excluded.steps_json, context_json=excluded.context_json,
			requires_approval=excluded.requires_approval, auto_approve=excluded.auto_approve,
			auto_resume=excluded.auto_resume, retry_count=excluded.retry_count, max_retries=excluded.max_retries,
			failure_reason=excluded.failure_reason, updated_at=excluded.updated_at, completed_at=excluded.completed_at`,
		row)
	return wrapErr("store.TaskStore.SaveTask", err)
}

// GetTask returns a task by id, or (nil, nil) if absent.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*core.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store.TaskStore.GetTask", err)
	}
	task, err := row.toTask()
	if err != nil {
		return nil, wrapErr("store.TaskStore.GetTask", err)
	}
	return task, nil
}

// ListTasks returns every task matching filter.
func (s *TaskStore) ListTasks(ctx context.Context, filter scheduler.TaskFilter) ([]*core.Task, error) {
	query := `SELECT * FROM tasks`
	args := []interface{}{}
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr("store.TaskStore.ListTasks", err)
	}

	out := make([]*core.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTask()
		if err != nil {
			return nil, wrapErr("store.TaskStore.ListTasks", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// DeleteTask removes a task row. Tasks are destroyed only by explicit
// delete, never implicitly on completion.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return wrapErr("store.TaskStore.DeleteTask", err)
}
