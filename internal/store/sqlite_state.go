package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staging-cli/internal/calendar"
	"staging-cli/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned by LoadStagingData when nothing has been fetched or imported yet.
var ErrNoSnapshot = errors.New("no cached snapshot (run `staging fetch` or `staging import`)")

// Meta describes where the cached snapshot came from.
type Meta struct {
	Server    string    `json:"server,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

func (s Store) openSQLite(ctx context.Context) (*sql.DB, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.sqlitePath())
	if err != nil {
		return nil, err
	}
	// WAL lets the browser read while a CLI command writes a delta.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLiteState(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLiteState(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state_meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS assignables (
			idx INTEGER PRIMARY KEY,
			epoch_day INTEGER NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assignables_day ON assignables(epoch_day);`,
		`CREATE TABLE IF NOT EXISTS constraints (
			idx INTEGER PRIMARY KEY,
			class INTEGER NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS summaries (
			idx INTEGER PRIMARY KEY,
			json TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate cache: %w", err)
		}
	}
	return nil
}

// SaveStagingData replaces the whole cache with data.
func (s Store) SaveStagingData(ctx context.Context, data model.StagingData, meta Meta) error {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range []string{"assignables", "constraints", "summaries", "state_meta"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return err
		}
	}

	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now().UTC()
	}
	envelope := map[string]any{
		"meta":                    meta,
		"assignment_types":        data.AssignmentTypes,
		"schedule_template_types": data.ScheduleTemplates,
		"commitable":              data.Commitable,
	}
	for k, v := range envelope {
		if err := putMeta(ctx, tx, k, v); err != nil {
			return err
		}
	}

	if err := writeSnapshot(ctx, tx, data.Data, model.Deletions{}); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyDelta persists a server delta: upserts by index, then deletions.
func (s Store) ApplyDelta(ctx context.Context, d model.Delta) error {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeSnapshot(ctx, tx, d.Updates, d.Deletions); err != nil {
		return err
	}
	return tx.Commit()
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, snap model.Snapshot, del model.Deletions) error {
	nowMs := time.Now().UTC().UnixMilli()

	for key, recs := range snap.Assignables {
		day, err := calendar.ParseEpochDay(key)
		if err != nil {
			// Unrenderable keys are reported by the builder; the cache only stores valid days.
			continue
		}
		for idx, rec := range recs {
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO assignables(idx, epoch_day, json, updated_at_unixms) VALUES(?, ?, ?, ?)`,
				idx, day, string(raw), nowMs); err != nil {
				return err
			}
		}
	}
	for idx, rec := range snap.Constraints {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO constraints(idx, class, json, updated_at_unixms) VALUES(?, ?, ?, ?)`,
			idx, int(rec.Class), string(raw), nowMs); err != nil {
			return err
		}
	}
	for idx, rec := range snap.Summaries {
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO summaries(idx, json) VALUES(?, ?)`, idx, string(raw)); err != nil {
			return err
		}
	}

	for _, idx := range del.Assignables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM assignables WHERE idx = ?`, idx); err != nil {
			return err
		}
	}
	for _, idx := range del.Constraints {
		if _, err := tx.ExecContext(ctx, `DELETE FROM constraints WHERE idx = ?`, idx); err != nil {
			return err
		}
	}
	return nil
}

func putMeta(ctx context.Context, tx *sql.Tx, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO state_meta(k, v) VALUES(?, ?)`, k, string(raw))
	return err
}

// LoadStagingData rebuilds the cached StagingData.
func (s Store) LoadStagingData(ctx context.Context) (model.StagingData, Meta, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return model.StagingData{}, Meta{}, err
	}
	defer db.Close()

	metaRows, err := loadMeta(ctx, db)
	if err != nil {
		return model.StagingData{}, Meta{}, err
	}
	if len(metaRows) == 0 {
		return model.StagingData{}, Meta{}, ErrNoSnapshot
	}

	var (
		out  model.StagingData
		meta Meta
	)
	decode := map[string]any{
		"meta":                    &meta,
		"assignment_types":        &out.AssignmentTypes,
		"schedule_template_types": &out.ScheduleTemplates,
		"commitable":              &out.Commitable,
	}
	for k, dst := range decode {
		raw, ok := metaRows[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return model.StagingData{}, Meta{}, fmt.Errorf("cache meta %s: %w", k, err)
		}
	}

	out.Data = model.Snapshot{
		Assignables: map[string]map[int]model.AssignableRecord{},
		Constraints: map[int]model.ConstraintRecord{},
		Summaries:   map[int]model.SummaryRecord{},
	}

	rows, err := db.QueryContext(ctx, `SELECT idx, epoch_day, json FROM assignables ORDER BY epoch_day, idx`)
	if err != nil {
		return model.StagingData{}, Meta{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			idx int
			day int64
			raw string
			rec model.AssignableRecord
		)
		if err := rows.Scan(&idx, &day, &raw); err != nil {
			return model.StagingData{}, Meta{}, err
		}
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return model.StagingData{}, Meta{}, fmt.Errorf("cached assignable %d: %w", idx, err)
		}
		key := calendar.FormatEpochDay(day)
		if out.Data.Assignables[key] == nil {
			out.Data.Assignables[key] = map[int]model.AssignableRecord{}
		}
		out.Data.Assignables[key][idx] = rec
	}
	if err := rows.Err(); err != nil {
		return model.StagingData{}, Meta{}, err
	}
	_ = rows.Close()

	if err := scanIndexed(ctx, db, `SELECT idx, json FROM constraints`, func(idx int, raw string) error {
		var rec model.ConstraintRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("cached constraint %d: %w", idx, err)
		}
		out.Data.Constraints[idx] = rec
		return nil
	}); err != nil {
		return model.StagingData{}, Meta{}, err
	}
	if err := scanIndexed(ctx, db, `SELECT idx, json FROM summaries`, func(idx int, raw string) error {
		var rec model.SummaryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("cached summary %d: %w", idx, err)
		}
		out.Data.Summaries[idx] = rec
		return nil
	}); err != nil {
		return model.StagingData{}, Meta{}, err
	}
	return out, meta, nil
}

func loadMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT k, v FROM state_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func scanIndexed(ctx context.Context, db *sql.DB, query string, fn func(idx int, raw string) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			idx int
			raw string
		)
		if err := rows.Scan(&idx, &raw); err != nil {
			return err
		}
		if err := fn(idx, raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats counts cached rows, for `staging config show`.
func (s Store) Stats(ctx context.Context) (map[string]int, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	out := map[string]int{}
	for _, t := range []string{"assignables", "constraints", "summaries"} {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t).Scan(&n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, nil
}
