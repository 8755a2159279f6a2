// Package sqlite provides a durable Store backed by SQLite through the pure-Go
// modernc.org/sqlite driver. Entities, member records and reports are stored
// as JSON documents next to the indexed columns each query needs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/agentstation/ecomap/pkg/constants"
	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/store"
)

var _ store.Store = (*Store)(nil)

const maxBusyRetries = 5

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path, constants.SQLiteBusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStoreError("open", err)
	}

	// Writes are serialized by SQLite anyway; a small pool keeps readers concurrent.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.NewStoreError("ping", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.NewStoreError("init schema", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		score REAL,
		version INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(status);
	CREATE INDEX IF NOT EXISTS idx_entities_score ON entities(score);

	CREATE TABLE IF NOT EXISTS entity_keys (
		key TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		PRIMARY KEY (key, entity_id)
	);
	CREATE INDEX IF NOT EXISTS idx_entity_keys_entity ON entity_keys(entity_id);

	CREATE TABLE IF NOT EXISTS records (
		source_id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_entity ON records(entity_id);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_entity ON reports(entity_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// retryOnBusy retries an operation that failed with SQLITE_BUSY, on top of the busy_timeout pragma.
func retryOnBusy(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxBusyRetries; attempt++ {
		if err = op(); err == nil || !isBusy(err) {
			return err
		}
		if serr := store.Backoff(ctx, attempt); serr != nil {
			return serr
		}
	}
	return errors.NewStoreError("retry", fmt.Errorf("still busy after %d attempts: %w", maxBusyRetries, err))
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Get returns the entity with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*entity.Entity, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entities WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("entity", id)
	}
	if err != nil {
		return nil, errors.NewStoreError("get", err)
	}
	return decodeEntity(data)
}

// List returns every entity ordered by ID.
func (s *Store) List(ctx context.Context) ([]*entity.Entity, error) {
	return s.queryEntities(ctx, `SELECT data FROM entities ORDER BY id`)
}

// FindBySource returns the entities owning any of the source IDs.
func (s *Store) FindBySource(ctx context.Context, sourceIDs ...string) ([]*entity.Entity, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	q := `SELECT data FROM entities WHERE id IN (SELECT entity_id FROM records WHERE source_id IN (` +
		placeholders(len(sourceIDs)) + `)) ORDER BY id`
	return s.queryEntities(ctx, q, anySlice(sourceIDs)...)
}

// FindByBlockingKey returns the entities indexed under any of the keys.
func (s *Store) FindByBlockingKey(ctx context.Context, keys ...string) ([]*entity.Entity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	q := `SELECT data FROM entities WHERE id IN (SELECT entity_id FROM entity_keys WHERE key IN (` +
		placeholders(len(keys)) + `)) ORDER BY id`
	return s.queryEntities(ctx, q, anySlice(keys)...)
}

// FindByStatus returns the entities in any of the statuses.
func (s *Store) FindByStatus(ctx context.Context, statuses ...entity.Status) ([]*entity.Entity, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	q := `SELECT data FROM entities WHERE status IN (` + placeholders(len(statuses)) + `) ORDER BY id`
	return s.queryEntities(ctx, q, args...)
}

// FindByScore returns scored entities within [min, max], highest first.
func (s *Store) FindByScore(ctx context.Context, min, max float64) ([]*entity.Entity, error) {
	return s.queryEntities(ctx,
		`SELECT data FROM entities WHERE score IS NOT NULL AND score >= ? AND score <= ? ORDER BY score DESC, id`,
		min, max)
}

// Members returns the records merged into an entity, ordered by source ID.
func (s *Store) Members(ctx context.Context, entityID string) ([]entity.NormalizedRecord, error) {
	if _, err := s.Get(ctx, entityID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM records WHERE entity_id = ? ORDER BY source_id`, entityID)
	if err != nil {
		return nil, errors.NewStoreError("members", err)
	}
	defer rows.Close()

	var out []entity.NormalizedRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewStoreError("members", err)
		}
		var rec entity.NormalizedRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, errors.WrapParse("json", "records", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("members", err)
	}
	return out, nil
}

// Commit applies the batch in one immediate transaction.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if batch.Empty() {
		return nil
	}
	err := retryOnBusy(ctx, func() error {
		return s.commit(ctx, batch)
	})
	if err != nil {
		return err
	}
	for _, e := range batch.Entities {
		e.Version++
	}
	return nil
}

func (s *Store) commit(ctx context.Context, batch *store.Batch) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, e := range batch.Entities {
		var actual int64
		switch scanErr := tx.QueryRowContext(ctx, `SELECT version FROM entities WHERE id = ?`, e.ID).Scan(&actual); {
		case scanErr == sql.ErrNoRows:
			actual = 0
		case scanErr != nil:
			return errors.NewStoreError("read version", scanErr)
		}
		if actual != e.Version {
			return errors.NewStoreWriteConflict(e.ID, e.Version, actual)
		}

		next := e.Clone()
		next.Version = e.Version + 1
		data, jerr := json.Marshal(next)
		if jerr != nil {
			return errors.WrapParse("json", "entities", jerr)
		}
		var score any
		if next.GrowthScore != nil {
			score = *next.GrowthScore
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO entities (id, status, score, version, data) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET status = excluded.status, score = excluded.score,
			 version = excluded.version, data = excluded.data`,
			next.ID, string(next.Status), score, next.Version, string(data)); err != nil {
			return errors.NewStoreError("write entity", err)
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM entity_keys WHERE entity_id = ?`, e.ID); err != nil {
			return errors.NewStoreError("write keys", err)
		}
		for _, k := range next.BlockingKeys {
			if _, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO entity_keys (key, entity_id) VALUES (?, ?)`, k, e.ID); err != nil {
				return errors.NewStoreError("write keys", err)
			}
		}
	}

	for entityID, members := range batch.Members {
		if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE entity_id = ?`, entityID); err != nil {
			return errors.NewStoreError("write members", err)
		}
		for _, rec := range members {
			data, jerr := json.Marshal(rec)
			if jerr != nil {
				return errors.WrapParse("json", "records", jerr)
			}
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO records (source_id, entity_id, data) VALUES (?, ?, ?)
				 ON CONFLICT(source_id) DO UPDATE SET entity_id = excluded.entity_id, data = excluded.data`,
				rec.SourceID, entityID, string(data)); err != nil {
				return errors.NewStoreError("write members", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewStoreError("commit", err)
	}
	return nil
}

// AddReport stores a user dispute, replacing one with the same ID.
func (s *Store) AddReport(ctx context.Context, report entity.UserReport) error {
	if _, err := s.Get(ctx, report.EntityID); err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return errors.WrapParse("json", "reports", err)
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO reports (id, entity_id, submitted_at, data) VALUES (?, ?, ?, ?)`,
			report.ID, report.EntityID, report.SubmittedAt.UTC().Format(time.RFC3339Nano), string(data))
		if err != nil {
			return errors.NewStoreError("add report", err)
		}
		return nil
	})
}

// Reports returns the disputes filed against an entity, oldest first.
func (s *Store) Reports(ctx context.Context, entityID string) ([]entity.UserReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM reports WHERE entity_id = ? ORDER BY submitted_at, id`, entityID)
	if err != nil {
		return nil, errors.NewStoreError("reports", err)
	}
	defer rows.Close()

	var out []entity.UserReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewStoreError("reports", err)
		}
		var r entity.UserReport
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, errors.WrapParse("json", "reports", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) queryEntities(ctx context.Context, q string, args ...any) ([]*entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.NewStoreError("query", err)
	}
	defer rows.Close()

	var out []*entity.Entity
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewStoreError("query", err)
		}
		e, err := decodeEntity(data)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("query", err)
	}
	return out, nil
}

func decodeEntity(data string) (*entity.Entity, error) {
	var e entity.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, errors.WrapParse("json", "entities", err)
	}
	return &e, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
