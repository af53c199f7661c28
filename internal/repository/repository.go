// Package repository persists the school roster, the record streams, the
// automation rules and the notification log.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// ErrInvalidInput is returned when a call is missing a required argument.
var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func requireSchool(schoolID string) error {
	if schoolID == "" {
		return fmt.Errorf("%w: schoolID is required", ErrInvalidInput)
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrMissingEntity, kind, id)
}

// recordQuery builds the WHERE clause shared by the record streams.
// Results are oldest-first; a Limit keeps the most recent rows.
type recordQuery struct {
	table   string
	columns string
	timeCol string
	where   []string
	args    []any
}

func newRecordQuery(table, columns, timeCol, schoolID string, f domain.RecordFilter) *recordQuery {
	q := &recordQuery{
		table:   table,
		columns: columns,
		timeCol: timeCol,
		where:   []string{"school_id = ?"},
		args:    []any{schoolID},
	}
	if f.StudentID != "" {
		q.where = append(q.where, "student_id = ?")
		q.args = append(q.args, f.StudentID)
	}
	if f.GroupID != "" {
		q.where = append(q.where, "student_id IN (SELECT id FROM students WHERE school_id = ? AND group_id = ?)")
		q.args = append(q.args, schoolID, f.GroupID)
	}
	if !f.From.IsZero() {
		q.where = append(q.where, timeCol+" >= ?")
		q.args = append(q.args, f.From.UTC())
	}
	if !f.To.IsZero() {
		q.where = append(q.where, timeCol+" < ?")
		q.args = append(q.args, f.To.UTC())
	}
	if f.Limit > 0 {
		q.args = append(q.args, f.Limit)
	}
	return q
}

func (q *recordQuery) sql(limit bool) string {
	base := "SELECT " + q.columns + " FROM " + q.table + " WHERE " + strings.Join(q.where, " AND ")
	if !limit {
		return base + " ORDER BY " + q.timeCol + ", id"
	}
	return "SELECT * FROM (" + base + " ORDER BY " + q.timeCol + " DESC, id DESC LIMIT ?) AS recent ORDER BY " + q.timeCol + ", id"
}

func (r *SQLRepository) queryRecords(ctx context.Context, q *recordQuery, limit bool) (*sql.Rows, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(q.sql(limit)), q.args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.table, err)
	}
	return rows, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
