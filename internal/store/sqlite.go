package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const (
	bufferSize    = 1024
	batchSize     = 100
	flushInterval = 500 * time.Millisecond

	// timeFormat is fixed-width and always written in UTC, so stored
	// timestamps order correctly as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	// ErrNotFound is returned by Get when no check has the given ID.
	ErrNotFound = errors.New("check not found")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("store closed")
)

// SQLiteStore implements Store with buffered writes to SQLite.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	writeCh chan *CheckRecord
	wg      sync.WaitGroup
	flushCh chan chan struct{}

	mu     sync.RWMutex // guards closed and sends on writeCh
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite database, along with its
// parent directory, and starts the background write consumer.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(2) // one for writer, one for readers
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		logger:  logger,
		writeCh: make(chan *CheckRecord, bufferSize),
		flushCh: make(chan chan struct{}),
	}

	s.wg.Add(1)
	go s.consumeWrites()

	return s, nil
}

// Record enqueues a check for async persistence. When the buffer is
// full the record is dropped with a warning. After Close it returns
// ErrClosed.
func (s *SQLiteStore) Record(_ context.Context, rec *CheckRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.writeCh <- rec:
		return nil
	default:
		s.logger.Warn("write buffer full, dropping check", "id", rec.ID, "source", rec.Source)
		return nil
	}
}

// Flush blocks until every record enqueued before the call is written.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) consumeWrites() {
	defer s.wg.Done()

	batch := make([]*CheckRecord, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			s.flushBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec, ok := <-s.writeCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}

		case done := <-s.flushCh:
			// Drain what is already queued so the caller sees it.
			for drained := false; !drained; {
				select {
				case rec, ok := <-s.writeCh:
					if !ok {
						drained = true
						break
					}
					batch = append(batch, rec)
				default:
					drained = true
				}
			}
			flush()
			close(done)

		case <-ticker.C:
			flush()
		}
	}
}

func (s *SQLiteStore) flushBatch(batch []*CheckRecord) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`
		INSERT INTO checks (id, timestamp, source, operation, sanitized, size_bytes, safe, label, severity, triggers, redacted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("prepare insert", "error", err)
		return
	}
	defer stmt.Close()

	trigStmt, err := tx.Prepare(`INSERT INTO check_triggers (check_id, position, rule_name) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("prepare trigger insert", "error", err)
		return
	}
	defer trigStmt.Close()

	for _, r := range batch {
		safe := 0
		if r.Safe {
			safe = 1
		}
		var triggers *string
		if len(r.Triggers) > 0 {
			j, _ := json.Marshal(r.Triggers)
			s := string(j)
			triggers = &s
		}
		_, err := stmt.Exec(
			r.ID,
			formatTime(r.Timestamp),
			r.Source,
			r.Operation,
			r.Sanitized,
			r.SizeBytes,
			safe,
			r.Label,
			r.Severity,
			triggers,
			r.Redacted,
		)
		if err != nil {
			s.logger.Error("insert check", "error", err, "id", r.ID)
			continue
		}
		for i, name := range r.Triggers {
			if _, err := trigStmt.Exec(r.ID, i, name); err != nil {
				s.logger.Error("insert trigger", "error", err, "id", r.ID, "rule", name)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit batch", "error", err)
	}
}

const selectColumns = "SELECT id, timestamp, source, operation, sanitized, size_bytes, safe, label, severity, triggers, redacted FROM checks"

// Query retrieves checks matching the filter.
func (s *SQLiteStore) Query(ctx context.Context, f QueryFilter) ([]CheckRecord, error) {
	var conditions []string
	var args []any

	if f.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, f.Source)
	}
	if f.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Label != "" {
		conditions = append(conditions, "label = ?")
		args = append(args, f.Label)
	}
	if f.Trigger != "" {
		conditions = append(conditions, "id IN (SELECT check_id FROM check_triggers WHERE rule_name = ?)")
		args = append(args, f.Trigger)
	}
	if f.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(*f.Since))
	}

	query := selectColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	records := []CheckRecord{}
	for rows.Next() {
		r, err := scanCheckRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get retrieves a single check by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*CheckRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	r, err := scanCheckRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get check: %w", err)
	}
	return &r, nil
}

// Stats returns aggregate statistics.
func (s *SQLiteStore) Stats(ctx context.Context, source string) (*Stats, error) {
	st := &Stats{
		SeverityCounts: make(map[string]int),
		TriggerCounts:  make(map[string]int),
		SourceCounts:   make(map[string]int),
	}

	whereClause := ""
	var args []any
	if source != "" {
		whereClause = " WHERE source = ?"
		args = append(args, source)
	}

	// Totals
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), COALESCE(SUM(1 - safe), 0), COALESCE(SUM(CASE WHEN redacted > 0 THEN 1 ELSE 0 END), 0) FROM checks"+whereClause,
		args...,
	).Scan(&st.TotalChecks, &st.TotalBytes, &st.RestrictedCount, &st.RedactedCount)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}
	st.AllowedCount = st.TotalChecks - st.RestrictedCount

	if err := s.countInto(ctx, st.SeverityCounts,
		"SELECT severity, COUNT(*) FROM checks"+whereClause+" GROUP BY severity", args...); err != nil {
		return nil, fmt.Errorf("stats severities: %w", err)
	}

	if err := s.countInto(ctx, st.SourceCounts,
		"SELECT source, COUNT(*) FROM checks"+whereClause+" GROUP BY source ORDER BY COUNT(*) DESC LIMIT 20", args...); err != nil {
		return nil, fmt.Errorf("stats sources: %w", err)
	}

	triggerQuery := "SELECT t.rule_name, COUNT(*) FROM check_triggers t JOIN checks c ON c.id = t.check_id"
	if source != "" {
		triggerQuery += " WHERE c.source = ?"
	}
	triggerQuery += " GROUP BY t.rule_name ORDER BY COUNT(*) DESC LIMIT 20"
	if err := s.countInto(ctx, st.TriggerCounts, triggerQuery, args...); err != nil {
		return st, nil // return partial stats
	}

	return st, nil
}

func (s *SQLiteStore) countInto(ctx context.Context, dst map[string]int, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		dst[key] = count
	}
	return rows.Err()
}

// Close flushes pending writes and closes the database. Calling it
// more than once is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writeCh)
	s.mu.Unlock()

	s.wg.Wait()
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// scanner is an interface satisfied by both *sql.Rows and *sql.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckRecord(sc scanner) (CheckRecord, error) {
	var r CheckRecord
	var ts string
	var triggersJSON sql.NullString
	var safe int

	err := sc.Scan(&r.ID, &ts, &r.Source, &r.Operation, &r.Sanitized, &r.SizeBytes,
		&safe, &r.Label, &r.Severity, &triggersJSON, &r.Redacted)
	if err != nil {
		return r, err
	}

	r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	r.Safe = safe != 0
	if triggersJSON.Valid {
		json.Unmarshal([]byte(triggersJSON.String), &r.Triggers)
	}
	return r, nil
}
