package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/localfirst/agentcore/cache"
)

// CacheStore implements cache.Store against the cache_entries table.
type CacheStore struct {
	db *DB
}

// NewCacheStore constructs a CacheStore over db.
func NewCacheStore(db *DB) *CacheStore { return &CacheStore{db: db} }

type cacheRow struct {
	CacheKey    string         `db:"cache_key"`
	Provider    string         `db:"provider"`
	Model       string         `db:"model"`
	PromptHash  string         `db:"prompt_hash"`
	Response    string         `db:"response"`
	Tokens      sql.NullInt64  `db:"tokens"`
	Cost        sql.NullFloat64 `db:"cost"`
	Temperature sql.NullFloat64 `db:"temperature"`
	MaxTokens   sql.NullInt64  `db:"max_tokens"`
	HitCount    int64          `db:"hit_count"`
	TokensSaved int64          `db:"tokens_saved"`
	CostSaved   float64        `db:"cost_saved"`
	CreatedAt   string         `db:"created_at"`
	LastUsedAt  string         `db:"last_used_at"`
	ExpiresAt   string         `db:"expires_at"`
}

const timeLayout = time.RFC3339Nano

func (r cacheRow) toEntry() (*cache.Entry, error) {
	created, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	lastUsed, err := time.Parse(timeLayout, r.LastUsedAt)
	if err != nil {
		return nil, err
	}
	expires, err := time.Parse(timeLayout, r.ExpiresAt)
	if err != nil {
		return nil, err
	}

	e := &cache.Entry{
		CacheKey:    r.CacheKey,
		Provider:    r.Provider,
		Model:       r.Model,
		PromptHash:  r.PromptHash,
		Response:    r.Response,
		HitCount:    r.HitCount,
		TokensSaved: r.TokensSaved,
		CostSaved:   r.CostSaved,
		CreatedAt:   created,
		LastUsedAt:  lastUsed,
		ExpiresAt:   expires,
	}
	if r.Tokens.Valid {
		v := int(r.Tokens.Int64)
		e.Tokens = &v
	}
	if r.Cost.Valid {
		v := r.Cost.Float64
		e.Cost = &v
	}
	if r.Temperature.Valid {
		v := r.Temperature.Float64
		e.Temperature = &v
	}
	if r.MaxTokens.Valid {
		v := int(r.MaxTokens.Int64)
		e.MaxTokens = &v
	}
	return e, nil
}

// Get returns the row for cacheKey, or (nil, nil) on a miss.
func (s *CacheStore) Get(ctx context.Context, cacheKey string) (*cache.Entry, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM cache_entries WHERE cache_key = ?`, cacheKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("store.CacheStore.Get", err)
	}
	entry, err := row.toEntry()
	if err != nil {
		return nil, wrapErr("store.CacheStore.Get", err)
	}
	return entry, nil
}

// Upsert inserts or replaces the row for e.CacheKey.
func (s *CacheStore) Upsert(ctx context.Context, e *cache.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, provider, model, prompt_hash, response, tokens, cost, temperature, max_tokens, hit_count, tokens_saved, cost_saved, created_at, last_used_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			provider=excluded.provider, model=excluded.model, prompt_hash=excluded.prompt_hash,
			response=excluded.response, tokens=excluded.tokens, cost=excluded.cost,
			temperature=excluded.temperature, max_tokens=excluded.max_tokens,
			last_used_at=excluded.last_used_at, expires_at=excluded.expires_at`,
		e.CacheKey, e.Provider, e.Model, e.PromptHash, e.Response,
		nullableInt(e.Tokens), nullableFloat(e.Cost), nullableFloat(e.Temperature), nullableInt(e.MaxTokens),
		e.HitCount, e.TokensSaved, e.CostSaved,
		e.CreatedAt.Format(timeLayout), e.LastUsedAt.Format(timeLayout), e.ExpiresAt.Format(timeLayout),
	)
	return wrapErr("store.CacheStore.Upsert", err)
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// Touch bumps last_used_at for a cache hit.
func (s *CacheStore) Touch(ctx context.Context, cacheKey string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cache_entries SET last_used_at = ? WHERE cache_key = ?`, t.Format(timeLayout), cacheKey)
	return wrapErr("store.CacheStore.Touch", err)
}

// RecordHit bumps the monotonic hit/token/cost counters.
func (s *CacheStore) RecordHit(ctx context.Context, cacheKey string, tokens int, cost float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cache_entries SET hit_count = hit_count + 1, tokens_saved = tokens_saved + ?, cost_saved = cost_saved + ?
		WHERE cache_key = ?`, tokens, cost, cacheKey)
	return wrapErr("store.CacheStore.RecordHit", err)
}

// Delete removes a single row.
func (s *CacheStore) Delete(ctx context.Context, cacheKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, cacheKey)
	return wrapErr("store.CacheStore.Delete", err)
}

// DeleteExpired removes every row whose expires_at <= now.
func (s *CacheStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.Format(timeLayout))
	if err != nil {
		return 0, wrapErr("store.CacheStore.DeleteExpired", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// EnforceCapacity evicts the oldest rows by last_used_at until the
// table holds at most maxEntries rows.
func (s *CacheStore) EnforceCapacity(ctx context.Context, maxEntries int) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM cache_entries`); err != nil {
		return 0, wrapErr("store.CacheStore.EnforceCapacity", err)
	}
	if count <= maxEntries {
		return 0, nil
	}
	evict := count - maxEntries
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE cache_key IN (
			SELECT cache_key FROM cache_entries ORDER BY last_used_at ASC LIMIT ?
		)`, evict)
	if err != nil {
		return 0, wrapErr("store.CacheStore.EnforceCapacity", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats aggregates overall cache statistics.
func (s *CacheStore) Stats(ctx context.Context) (cache.OverallStats, error) {
	var out cache.OverallStats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(hit_count),0), COALESCE(SUM(tokens_saved),0), COALESCE(SUM(cost_saved),0)
		FROM cache_entries`)
	if err := row.Scan(&out.Entries, &out.Hits, &out.TokensSaved, &out.CostSaved); err != nil {
		return out, wrapErr("store.CacheStore.Stats", err)
	}
	if out.Entries > 0 {
		out.AvgHitsPerRow = float64(out.Hits) / float64(out.Entries)
	}
	return out, nil
}

// StatsByProviderModel aggregates per (provider, model).
func (s *CacheStore) StatsByProviderModel(ctx context.Context) ([]cache.ProviderModelStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, model, COUNT(*), COALESCE(SUM(hit_count),0), COALESCE(SUM(tokens_saved),0), COALESCE(SUM(cost_saved),0)
		FROM cache_entries GROUP BY provider, model`)
	if err != nil {
		return nil, wrapErr("store.CacheStore.StatsByProviderModel", err)
	}
	defer rows.Close()

	var out []cache.ProviderModelStats
	for rows.Next() {
		var s cache.ProviderModelStats
		if err := rows.Scan(&s.Provider, &s.Model, &s.Entries, &s.Hits, &s.TokensSaved, &s.CostSaved); err != nil {
			return nil, wrapErr("store.CacheStore.StatsByProviderModel", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClearAll removes every cache row.
func (s *CacheStore) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return wrapErr("store.CacheStore.ClearAll", err)
}

// ClearProvider removes every row for a provider.
func (s *CacheStore) ClearProvider(ctx context.Context, provider string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE provider = ?`, provider)
	return wrapErr("store.CacheStore.ClearProvider", err)
}

// ClearModel removes every row for a model.
func (s *CacheStore) ClearModel(ctx context.Context, model string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE model = ?`, model)
	return wrapErr("store.CacheStore.ClearModel", err)
}
