package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

const memorizationColumns = `id, school_id, student_id, unit_id, unit_name, range_start, range_end,
	type, status, grade, reviewer_id, timestamp`

// SaveMemorization appends a memorization record. Records are never
// updated; a correction is a new record.
func (r *SQLRepository) SaveMemorization(ctx context.Context, schoolID string, rec *domain.MemorizationRecord) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	var grade sql.NullFloat64
	if rec.Grade != nil {
		grade = sql.NullFloat64{Float64: *rec.Grade, Valid: true}
	}

	query := `INSERT INTO memorization_records (` + memorizationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, schoolID, rec.StudentID, rec.UnitID, rec.UnitName, rec.RangeStart, rec.RangeEnd,
		rec.Type, rec.Status, grade, rec.ReviewerID, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save memorization %s: %w", rec.ID, err)
	}
	return nil
}

// ListMemorization lists memorization records oldest-first.
func (r *SQLRepository) ListMemorization(ctx context.Context, schoolID string, f domain.RecordFilter) ([]*domain.MemorizationRecord, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	rows, err := r.queryRecords(ctx, newRecordQuery("memorization_records", memorizationColumns, "timestamp", schoolID, f), f.Limit > 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.MemorizationRecord
	for rows.Next() {
		var rec domain.MemorizationRecord
		var grade sql.NullFloat64
		if err := rows.Scan(
			&rec.ID, &rec.SchoolID, &rec.StudentID, &rec.UnitID, &rec.UnitName, &rec.RangeStart, &rec.RangeEnd,
			&rec.Type, &rec.Status, &grade, &rec.ReviewerID, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		if grade.Valid {
			g := grade.Float64
			rec.Grade = &g
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SaveAttendance appends an attendance record.
func (r *SQLRepository) SaveAttendance(ctx context.Context, schoolID string, rec *domain.AttendanceRecord) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	query := `INSERT INTO attendance_records (id, school_id, student_id, date, status) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, r.rebind(query), rec.ID, schoolID, rec.StudentID, rec.Date.UTC(), rec.Status); err != nil {
		return fmt.Errorf("save attendance %s: %w", rec.ID, err)
	}
	return nil
}

// ListAttendance lists attendance records oldest-first.
func (r *SQLRepository) ListAttendance(ctx context.Context, schoolID string, f domain.RecordFilter) ([]*domain.AttendanceRecord, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	rows, err := r.queryRecords(ctx, newRecordQuery("attendance_records", "id, school_id, student_id, date, status", "date", schoolID, f), f.Limit > 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AttendanceRecord
	for rows.Next() {
		var rec domain.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.SchoolID, &rec.StudentID, &rec.Date, &rec.Status); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

const behaviorColumns = `id, school_id, student_id, criterion_id, criterion_name, category, polarity, severity, points,
	occurred_at, description, recorded_by, follow_up_required, resolved, notes, resolved_at`

// SaveBehavior appends a behavior record.
func (r *SQLRepository) SaveBehavior(ctx context.Context, schoolID string, rec *domain.BehaviorRecord) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	c := rec.Criterion
	res := rec.Resolution
	query := `INSERT INTO behavior_records (` + behaviorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, schoolID, rec.StudentID, c.ID, c.Name, c.Category, c.Polarity, c.Severity, c.Points,
		rec.OccurredAt.UTC(), rec.Description, rec.RecordedBy,
		boolInt(res.FollowUpRequired), boolInt(res.Resolved), res.Notes, nullTime(res.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("save behavior %s: %w", rec.ID, err)
	}
	return nil
}

// ResolveBehavior updates the follow-up fields of a behavior record. The
// incident itself is immutable.
func (r *SQLRepository) ResolveBehavior(ctx context.Context, schoolID string, recordID string, res domain.Resolution) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	query := `
		UPDATE behavior_records
		SET follow_up_required = ?, resolved = ?, notes = ?, resolved_at = ?
		WHERE school_id = ? AND id = ?
	`
	result, err := r.db.ExecContext(ctx, r.rebind(query),
		boolInt(res.FollowUpRequired), boolInt(res.Resolved), res.Notes, nullTime(res.ResolvedAt),
		schoolID, recordID,
	)
	if err != nil {
		return fmt.Errorf("resolve behavior %s: %w", recordID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("behavior record", recordID)
	}
	return nil
}

// ListBehavior lists behavior records oldest-first.
func (r *SQLRepository) ListBehavior(ctx context.Context, schoolID string, f domain.RecordFilter) ([]*domain.BehaviorRecord, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	rows, err := r.queryRecords(ctx, newRecordQuery("behavior_records", behaviorColumns, "occurred_at", schoolID, f), f.Limit > 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BehaviorRecord
	for rows.Next() {
		var rec domain.BehaviorRecord
		var followUp, resolved int
		var resolvedAt sql.NullTime
		c := &rec.Criterion
		if err := rows.Scan(
			&rec.ID, &rec.SchoolID, &rec.StudentID, &c.ID, &c.Name, &c.Category, &c.Polarity, &c.Severity, &c.Points,
			&rec.OccurredAt, &rec.Description, &rec.RecordedBy,
			&followUp, &resolved, &rec.Resolution.Notes, &resolvedAt,
		); err != nil {
			return nil, err
		}
		rec.Resolution.FollowUpRequired = followUp == 1
		rec.Resolution.Resolved = resolved == 1
		rec.Resolution.ResolvedAt = timePtr(resolvedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

const paymentColumns = `id, school_id, student_id, description, amount, due_date, paid_at, status`

// SavePayment inserts or updates a payment obligation. Only settlement
// fields change on update.
func (r *SQLRepository) SavePayment(ctx context.Context, schoolID string, p *domain.PaymentRecord) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	query := `
		INSERT INTO payment_records (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			paid_at = excluded.paid_at,
			status = excluded.status
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, schoolID, p.StudentID, p.Description, p.Amount, p.DueDate.UTC(), nullTime(p.PaidAt), p.Status,
	)
	if err != nil {
		return fmt.Errorf("save payment %s: %w", p.ID, err)
	}
	return nil
}

// ListPayments lists payments ordered by due date. From/To bound the due
// date.
func (r *SQLRepository) ListPayments(ctx context.Context, schoolID string, f domain.RecordFilter) ([]*domain.PaymentRecord, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	rows, err := r.queryRecords(ctx, newRecordQuery("payment_records", paymentColumns, "due_date", schoolID, f), f.Limit > 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PaymentRecord
	for rows.Next() {
		var p domain.PaymentRecord
		var paidAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.SchoolID, &p.StudentID, &p.Description, &p.Amount, &p.DueDate, &paidAt, &p.Status); err != nil {
			return nil, err
		}
		p.PaidAt = timePtr(paidAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}
