package syncdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// timeLayout is the storage format for timestamp columns. Fixed-width
// fractional seconds keep the strings lexicographically ordered, so recency
// sorts and the queue's next-attempt comparison work on the raw column.
// RFC3339Nano would trim trailing zeros and break that within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a generic local table for one entity type. Domain fields travel as
// a JSON payload; the sync bookkeeping fields are mirrored into real columns
// so queries never need to parse JSON.
type Store[T any, PT RecordOf[T]] struct {
	db    *sql.DB
	table string

	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewStore creates (if needed) the entity table and returns a store over it.
// The table name must be a fixed identifier, never user input.
func NewStore[T any, PT RecordOf[T]](db *sql.DB, table string) (*Store[T, PT], error) {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id            INTEGER PRIMARY KEY,
		mobile_uid    TEXT,
		sync_state    TEXT NOT NULL,
		last_modified TEXT NOT NULL,
		payload       TEXT NOT NULL
	)`, table)
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (mobile_uid)`,
		"idx_"+table+"_mobile_uid", table)
	if _, err := db.Exec(idx); err != nil {
		return nil, fmt.Errorf("failed to index table %s: %w", table, err)
	}
	return &Store[T, PT]{db: db, table: table, subs: make(map[int]chan struct{})}, nil
}

// Table returns the underlying table name.
func (s *Store[T, PT]) Table() string { return s.table }

// Subscribe registers interest in commits to this table. The returned channel
// receives a (coalesced) signal after every committed write; cancel releases
// the subscription.
func (s *Store[T, PT]) Subscribe() (ch <-chan struct{}, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	c := make(chan struct{}, 1)
	s.subs[id] = c
	return c, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// notify signals all subscribers without blocking; a subscriber that has not
// drained its previous signal keeps exactly one pending.
func (s *Store[T, PT]) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// GetAll returns every record ordered by recency (most recently modified
// first).
func (s *Store[T, PT]) GetAll(ctx context.Context) ([]PT, error) {
	query := fmt.Sprintf(`SELECT payload FROM %q ORDER BY last_modified DESC, id DESC`, s.table)
	return s.queryRecords(ctx, query)
}

// GetByID returns the record with the given ID, or nil when absent.
func (s *Store[T, PT]) GetByID(ctx context.Context, id int64) (PT, error) {
	var payload string
	query := fmt.Sprintf(`SELECT payload FROM %q WHERE id = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by id: %w", s.table, err)
	}
	return s.decode(payload)
}

// GetByMobileUID returns the record carrying the given mobile UID, or nil.
func (s *Store[T, PT]) GetByMobileUID(ctx context.Context, uid string) (PT, error) {
	var payload string
	query := fmt.Sprintf(`SELECT payload FROM %q WHERE mobile_uid = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, uid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by mobile uid: %w", s.table, err)
	}
	return s.decode(payload)
}

// MinID returns the smallest ID present and whether the table has any rows.
func (s *Store[T, PT]) MinID(ctx context.Context) (int64, bool, error) {
	var min sql.NullInt64
	query := fmt.Sprintf(`SELECT MIN(id) FROM %q`, s.table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&min); err != nil {
		return 0, false, fmt.Errorf("failed to query min id for %s: %w", s.table, err)
	}
	return min.Int64, min.Valid, nil
}

// Count returns the number of records in the table.
func (s *Store[T, PT]) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, s.table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.table, err)
	}
	return n, nil
}

// UpsertOne inserts or replaces a single record keyed by ID.
func (s *Store[T, PT]) UpsertOne(ctx context.Context, rec PT) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := s.upsertInTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	s.notify()
	return nil
}

// UpsertMany inserts or replaces records in one transaction. Used by
// incremental sync, which never deletes.
func (s *Store[T, PT]) UpsertMany(ctx context.Context, recs []PT) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, rec := range recs {
		if err := s.upsertInTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upserts: %w", err)
	}
	s.notify()
	return nil
}

// ReplaceAll atomically replaces the table contents with recs: every row
// whose ID is absent from recs is deleted and every record in recs is
// upserted, all in a single transaction. Readers never observe a mixed state.
func (s *Store[T, PT]) ReplaceAll(ctx context.Context, recs []PT) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if len(recs) == 0 {
		query := fmt.Sprintf(`DELETE FROM %q`, s.table)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to clear %s: %w", s.table, err)
		}
	} else {
		placeholders := make([]string, len(recs))
		args := make([]any, len(recs))
		for i, rec := range recs {
			placeholders[i] = "?"
			args[i] = rec.SyncMeta().ID
		}
		query := fmt.Sprintf(`DELETE FROM %q WHERE id NOT IN (%s)`,
			s.table, strings.Join(placeholders, ","))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete stale rows from %s: %w", s.table, err)
		}
	}
	for _, rec := range recs {
		if err := s.upsertInTx(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace: %w", err)
	}
	committed = true
	s.notify()
	return nil
}

// DeleteByID removes a single record.
func (s *Store[T, PT]) DeleteByID(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.table, err)
	}
	s.notify()
	return nil
}

// Promote replaces a provisional record with its server-confirmed
// counterpart in one transaction, so no reader sees both or neither.
func (s *Store[T, PT]) Promote(ctx context.Context, provisionalID int64, confirmed PT) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, s.table)
	if _, err := tx.ExecContext(ctx, query, provisionalID); err != nil {
		return fmt.Errorf("failed to delete provisional row from %s: %w", s.table, err)
	}
	if err := s.upsertInTx(ctx, tx, confirmed); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}
	committed = true
	s.notify()
	return nil
}

// Search returns records whose JSON payload contains the query text,
// most recent first.
func (s *Store[T, PT]) Search(ctx context.Context, text string) ([]PT, error) {
	pattern := "%" + escapeLike(text) + "%"
	query := fmt.Sprintf(
		`SELECT payload FROM %q WHERE payload LIKE ? ESCAPE '\' ORDER BY last_modified DESC, id DESC`,
		s.table)
	return s.queryRecords(ctx, query, pattern)
}

func (s *Store[T, PT]) upsertInTx(ctx context.Context, tx *sql.Tx, rec PT) error {
	meta := rec.SyncMeta()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", s.table, err)
	}
	var uid any
	if meta.MobileUID != "" {
		uid = meta.MobileUID
	}
	query := fmt.Sprintf(`
		INSERT INTO %q (id, mobile_uid, sync_state, last_modified, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mobile_uid = excluded.mobile_uid,
			sync_state = excluded.sync_state,
			last_modified = excluded.last_modified,
			payload = excluded.payload
	`, s.table)
	_, err = tx.ExecContext(ctx, query,
		meta.ID, uid, string(meta.State), meta.LastModified.UTC().Format(timeLayout), string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", s.table, err)
	}
	return nil
}

func (s *Store[T, PT]) queryRecords(ctx context.Context, query string, args ...any) ([]PT, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	var recs []PT
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
		}
		rec, err := s.decode(payload)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", s.table, err)
	}
	return recs, nil
}

func (s *Store[T, PT]) decode(payload string) (PT, error) {
	var rec T
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s record: %w", s.table, err)
	}
	return PT(&rec), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
