// Package domain defines the core interfaces and types for Mizan.
package domain

import (
	"context"
	"time"
)

// Repository is the persistence collaborator. The analytics engine consumes
// its query results; it never issues SQL itself.
// All methods require schoolID for strict multi-school isolation.
type Repository interface {
	// Roster
	SaveStudent(ctx context.Context, schoolID string, s *Student) error
	GetStudent(ctx context.Context, schoolID string, studentID string) (*Student, error)
	ListStudents(ctx context.Context, schoolID string, groupID string) ([]*Student, error)
	SaveGroup(ctx context.Context, schoolID string, g *Group) error
	GetGroup(ctx context.Context, schoolID string, groupID string) (*Group, error)
	ListGroups(ctx context.Context, schoolID string) ([]*Group, error)
	SaveUnit(ctx context.Context, schoolID string, u *Unit) error
	ListUnits(ctx context.Context, schoolID string) ([]*Unit, error)

	// Event streams
	SaveMemorization(ctx context.Context, schoolID string, r *MemorizationRecord) error
	ListMemorization(ctx context.Context, schoolID string, f RecordFilter) ([]*MemorizationRecord, error)
	SaveAttendance(ctx context.Context, schoolID string, r *AttendanceRecord) error
	ListAttendance(ctx context.Context, schoolID string, f RecordFilter) ([]*AttendanceRecord, error)
	SaveBehavior(ctx context.Context, schoolID string, r *BehaviorRecord) error
	ResolveBehavior(ctx context.Context, schoolID string, recordID string, res Resolution) error
	ListBehavior(ctx context.Context, schoolID string, f RecordFilter) ([]*BehaviorRecord, error)
	SavePayment(ctx context.Context, schoolID string, p *PaymentRecord) error
	ListPayments(ctx context.Context, schoolID string, f RecordFilter) ([]*PaymentRecord, error)

	// Automation configuration
	SaveAutomationRule(ctx context.Context, schoolID string, rule *AutomationRule) error
	ListAutomationRules(ctx context.Context, schoolID string) ([]*AutomationRule, error)

	// Notification log
	LogNotification(ctx context.Context, schoolID string, req *NotificationRequest, delivered bool, detail string) error
	CountNotifications(ctx context.Context, schoolID string, since time.Time) (int, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
