package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

const studentColumns = `id, school_id, name, group_id, active,
	guardian_name, guardian_phone, guardian_email, guardian_channel, enrolled_at`

// SaveStudent inserts or updates a student.
func (r *SQLRepository) SaveStudent(ctx context.Context, schoolID string, s *domain.Student) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	query := `
		INSERT INTO students (` + studentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, school_id) DO UPDATE SET
			name = excluded.name,
			group_id = excluded.group_id,
			active = excluded.active,
			guardian_name = excluded.guardian_name,
			guardian_phone = excluded.guardian_phone,
			guardian_email = excluded.guardian_email,
			guardian_channel = excluded.guardian_channel
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		s.ID, schoolID, s.Name, s.GroupID, boolInt(s.Active),
		s.Guardian.Name, s.Guardian.Phone, s.Guardian.Email, s.Guardian.Channel,
		s.EnrolledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save student %s: %w", s.ID, err)
	}
	return nil
}

// GetStudent retrieves a student by ID.
func (r *SQLRepository) GetStudent(ctx context.Context, schoolID string, studentID string) (*domain.Student, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	query := `SELECT ` + studentColumns + ` FROM students WHERE school_id = ? AND id = ?`
	s, err := scanStudent(r.db.QueryRowContext(ctx, r.rebind(query), schoolID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("student", studentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get student %s: %w", studentID, err)
	}
	return s, nil
}

// ListStudents lists the students of a school, or of one group when groupID
// is set, ordered by name.
func (r *SQLRepository) ListStudents(ctx context.Context, schoolID string, groupID string) ([]*domain.Student, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	query := `SELECT ` + studentColumns + ` FROM students WHERE school_id = ?`
	args := []any{schoolID}
	if groupID != "" {
		query += ` AND group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []*domain.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (*domain.Student, error) {
	var s domain.Student
	var active int
	err := row.Scan(
		&s.ID, &s.SchoolID, &s.Name, &s.GroupID, &active,
		&s.Guardian.Name, &s.Guardian.Phone, &s.Guardian.Email, &s.Guardian.Channel,
		&s.EnrolledAt,
	)
	if err != nil {
		return nil, err
	}
	s.Active = active == 1
	return &s, nil
}

const groupColumns = `id, school_id, name, capacity,
	musyrif_name, musyrif_phone, musyrif_email, musyrif_channel`

// SaveGroup inserts or updates a halaqah.
func (r *SQLRepository) SaveGroup(ctx context.Context, schoolID string, g *domain.Group) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	query := `
		INSERT INTO study_groups (` + groupColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, school_id) DO UPDATE SET
			name = excluded.name,
			capacity = excluded.capacity,
			musyrif_name = excluded.musyrif_name,
			musyrif_phone = excluded.musyrif_phone,
			musyrif_email = excluded.musyrif_email,
			musyrif_channel = excluded.musyrif_channel
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		g.ID, schoolID, g.Name, g.Capacity,
		g.Musyrif.Name, g.Musyrif.Phone, g.Musyrif.Email, g.Musyrif.Channel,
	)
	if err != nil {
		return fmt.Errorf("save group %s: %w", g.ID, err)
	}
	return nil
}

// GetGroup retrieves a halaqah by ID.
func (r *SQLRepository) GetGroup(ctx context.Context, schoolID string, groupID string) (*domain.Group, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	query := `SELECT ` + groupColumns + ` FROM study_groups WHERE school_id = ? AND id = ?`
	g, err := scanGroup(r.db.QueryRowContext(ctx, r.rebind(query), schoolID, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("group", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return g, nil
}

// ListGroups lists every halaqah of a school, ordered by name.
func (r *SQLRepository) ListGroups(ctx context.Context, schoolID string) ([]*domain.Group, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	query := `SELECT ` + groupColumns + ` FROM study_groups WHERE school_id = ? ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), schoolID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanGroup(row scanner) (*domain.Group, error) {
	var g domain.Group
	err := row.Scan(
		&g.ID, &g.SchoolID, &g.Name, &g.Capacity,
		&g.Musyrif.Name, &g.Musyrif.Phone, &g.Musyrif.Email, &g.Musyrif.Channel,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveUnit inserts or updates a scripture unit of the school's catalog.
func (r *SQLRepository) SaveUnit(ctx context.Context, schoolID string, u *domain.Unit) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	query := `
		INSERT INTO units (id, school_id, name, total_sub_units)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id, school_id) DO UPDATE SET
			name = excluded.name,
			total_sub_units = excluded.total_sub_units
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(query), u.ID, schoolID, u.Name, u.TotalSubUnits); err != nil {
		return fmt.Errorf("save unit %s: %w", u.ID, err)
	}
	return nil
}

// ListUnits returns the unit catalog ordered by ID.
func (r *SQLRepository) ListUnits(ctx context.Context, schoolID string) ([]*domain.Unit, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	query := `SELECT id, name, total_sub_units FROM units WHERE school_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), schoolID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []*domain.Unit
	for rows.Next() {
		var u domain.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.TotalSubUnits); err != nil {
			return nil, err
		}
		units = append(units, &u)
	}
	return units, rows.Err()
}
