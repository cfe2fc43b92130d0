package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/localfirst/agentcore/core"
)

// HookStore implements hooks.Store against the hooks table.
type HookStore struct {
	db *DB
}

// NewHookStore constructs a HookStore over db.
func NewHookStore(db *DB) *HookStore { return &HookStore{db: db} }

type hookRow struct {
	Name            string `db:"name"`
	EventsJSON      string `db:"events_json"`
	Priority        int    `db:"priority"`
	Command         string `db:"command"`
	Enabled         bool   `db:"enabled"`
	TimeoutMs       int64  `db:"timeout_ms"`
	EnvJSON         string `db:"env_json"`
	WorkingDir      string `db:"working_dir"`
	ContinueOnError bool   `db:"continue_on_error"`
}

func rowFromHook(h *core.Hook) (*hookRow, error) {
	eventsJSON, err := json.Marshal(h.Events)
	if err != nil {
		return nil, err
	}
	envJSON, err := json.Marshal(h.Env)
	if err != nil {
		return nil, err
	}
	return &hookRow{
		Name:            h.Name,
		EventsJSON:      string(eventsJSON),
		Priority:        h.Priority,
		Command:         h.Command,
		Enabled:         h.Enabled,
		TimeoutMs:       h.Timeout.Milliseconds(),
		EnvJSON:         string(envJSON),
		WorkingDir:      h.WorkingDir,
		ContinueOnError: h.ContinueOnError,
	}, nil
}

func (r hookRow) toHook() (*core.Hook, error) {
	var events []core.HookEventType
	if err := json.Unmarshal([]byte(r.EventsJSON), &events); err != nil {
		return nil, err
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(r.EnvJSON), &env); err != nil {
		return nil, err
	}
	return &core.Hook{
		Name:            r.Name,
		Events:          events,
		Priority:        r.Priority,
		Command:         r.Command,
		Enabled:         r.Enabled,
		Timeout:         time.Duration(r.TimeoutMs) * time.Millisecond,
		Env:             env,
		WorkingDir:      r.WorkingDir,
		ContinueOnError: r.ContinueOnError,
	}, nil
}

// SaveHook upserts a hook definition.
func (s *HookStore) SaveHook(ctx context.Context, h *core.Hook) error {
	row, err := rowFromHook(h)
	if err != nil {
		return wrapErr("store.HookStore.SaveHook", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO hooks (name, events_json, priority, command, enabled, timeout_ms, env_json, working_dir, continue_on_error)
		VALUES (:name, :events_json, :priority, :command, :enabled, :timeout_ms, :env_json, :working_dir, :continue_on_error)
		ON CONFLICT(name) DO UPDATE SET
			events_json=excluded.events_json, priority=excluded.priority, command=excluded.command,
			enabled=excluded.enabled, timeout_ms=excluded.timeout_ms, env_json=excluded.env_json,
			working_dir=excluded.working_dir, continue_on_error=excluded.continue_on_error`,
		row)
	return wrapErr("store.HookStore.SaveHook", err)
}

// DeleteHook removes a hook by name.
func (s *HookStore) DeleteHook(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hooks WHERE name = ?`, name)
	return wrapErr("store.HookStore.DeleteHook", err)
}

// ListHooks returns every configured hook.
func (s *HookStore) ListHooks(ctx context.Context) ([]*core.Hook, error) {
	var rows []hookRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM hooks`); err != nil {
		return nil, wrapErr("store.HookStore.ListHooks", err)
	}
	out := make([]*core.Hook, 0, len(rows))
	for _, r := range rows {
		h, err := r.toHook()
		if err != nil {
			return nil, wrapErr("store.HookStore.ListHooks", err)
		}
		out = append(out, h)
	}
	return out, nil
}
