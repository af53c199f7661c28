package repository

// Schema definitions for the Mizan database.
// Compatible with both SQLite and PostgreSQL.

const schemaRoster = `
CREATE TABLE IF NOT EXISTS study_groups (
    id TEXT NOT NULL,
    school_id TEXT NOT NULL,
    name TEXT NOT NULL,
    capacity INTEGER NOT NULL DEFAULT 0,
    musyrif_name TEXT NOT NULL DEFAULT '',
    musyrif_phone TEXT NOT NULL DEFAULT '',
    musyrif_email TEXT NOT NULL DEFAULT '',
    musyrif_channel TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (id, school_id)
);

CREATE TABLE IF NOT EXISTS students (
    id TEXT NOT NULL,
    school_id TEXT NOT NULL,
    name TEXT NOT NULL,
    group_id TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    guardian_name TEXT NOT NULL DEFAULT '',
    guardian_phone TEXT NOT NULL DEFAULT '',
    guardian_email TEXT NOT NULL DEFAULT '',
    guardian_channel TEXT NOT NULL DEFAULT '',
    enrolled_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, school_id)
);

CREATE INDEX IF NOT EXISTS idx_students_group ON students(school_id, group_id);

CREATE TABLE IF NOT EXISTS units (
    id TEXT NOT NULL,
    school_id TEXT NOT NULL,
    name TEXT NOT NULL,
    total_sub_units INTEGER NOT NULL,
    PRIMARY KEY (id, school_id)
);
`

const schemaRecords = `
CREATE TABLE IF NOT EXISTS memorization_records (
    id TEXT PRIMARY KEY,
    school_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    unit_id TEXT NOT NULL,
    unit_name TEXT NOT NULL DEFAULT '',
    range_start INTEGER NOT NULL,
    range_end INTEGER NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    grade REAL,
    reviewer_id TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memorization_student ON memorization_records(school_id, student_id, timestamp);

CREATE TABLE IF NOT EXISTS attendance_records (
    id TEXT PRIMARY KEY,
    school_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    date TIMESTAMP NOT NULL,
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(school_id, student_id, date);

CREATE TABLE IF NOT EXISTS behavior_records (
    id TEXT PRIMARY KEY,
    school_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    criterion_id TEXT NOT NULL DEFAULT '',
    criterion_name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    polarity TEXT NOT NULL,
    severity TEXT NOT NULL,
    points INTEGER NOT NULL,
    occurred_at TIMESTAMP NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    recorded_by TEXT NOT NULL DEFAULT '',
    follow_up_required INTEGER NOT NULL DEFAULT 0,
    resolved INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_behavior_student ON behavior_records(school_id, student_id, occurred_at);

CREATE TABLE IF NOT EXISTS payment_records (
    id TEXT PRIMARY KEY,
    school_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    amount REAL NOT NULL,
    due_date TIMESTAMP NOT NULL,
    paid_at TIMESTAMP,
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_due ON payment_records(school_id, status, due_date);
`

const schemaAutomation = `
CREATE TABLE IF NOT EXISTS automation_rules (
    id TEXT NOT NULL,
    school_id TEXT NOT NULL,
    name TEXT NOT NULL,
    trigger_kind TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    conditions TEXT NOT NULL,
    expression TEXT NOT NULL DEFAULT '',
    template_id TEXT NOT NULL,
    audience TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, school_id)
);

CREATE TABLE IF NOT EXISTS notification_log (
    id TEXT PRIMARY KEY,
    school_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    student_id TEXT NOT NULL,
    role TEXT NOT NULL,
    recipient TEXT NOT NULL,
    template_id TEXT NOT NULL,
    params TEXT NOT NULL,
    delivered INTEGER NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notification_log_school ON notification_log(school_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRoster,
		schemaRecords,
		schemaAutomation,
	}
}
