package domain

import (
	"time"
)

// SubmissionType is the kind of hafalan session a record captures.
type SubmissionType string

const (
	SubmissionNew       SubmissionType = "new"       // ziyadah, a new portion
	SubmissionReview    SubmissionType = "review"    // muraja'ah
	SubmissionListening SubmissionType = "listening" // tasmi' / listening test
)

// SubmissionStatus is the review outcome of a memorization record.
type SubmissionStatus string

const (
	SubmissionPending          SubmissionStatus = "pending"
	SubmissionApproved         SubmissionStatus = "approved"
	SubmissionNeedsImprovement SubmissionStatus = "needs_improvement"
	SubmissionRejected         SubmissionStatus = "rejected"
)

// MemorizationRecord is one hafalan submission reviewed by a musyrif.
// Approved records are immutable; corrections are new records.
type MemorizationRecord struct {
	ID         string           `json:"id"`
	SchoolID   string           `json:"schoolId"`
	StudentID  string           `json:"studentId" validate:"required"`
	UnitID     string           `json:"unitId" validate:"required"`
	UnitName   string           `json:"unitName"`
	RangeStart int              `json:"rangeStart" validate:"gte=1"`
	RangeEnd   int              `json:"rangeEnd" validate:"gtefield=RangeStart"`
	Type       SubmissionType   `json:"type" validate:"required,oneof=new review listening"`
	Status     SubmissionStatus `json:"status" validate:"required,oneof=pending approved needs_improvement rejected"`
	Grade      *float64         `json:"grade,omitempty" validate:"omitempty,gte=0,lte=100"`
	ReviewerID string           `json:"reviewerId,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Span returns the number of sub-units (verses) the record covers.
func (r *MemorizationRecord) Span() int {
	if r.RangeEnd < r.RangeStart {
		return 0
	}
	return r.RangeEnd - r.RangeStart + 1
}

// AttendanceStatus is the status of one session for one student.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
	AttendanceSick    AttendanceStatus = "sick"
)

// Attended reports whether the status counts towards the attendance rate.
func (s AttendanceStatus) Attended() bool {
	return s == AttendancePresent || s == AttendanceLate
}

// AttendanceRecord is one record per student per session.
type AttendanceRecord struct {
	ID        string           `json:"id"`
	SchoolID  string           `json:"schoolId"`
	StudentID string           `json:"studentId" validate:"required"`
	Date      time.Time        `json:"date" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,oneof=present absent late excused sick"`
}

// BehaviorCategory groups behavior criteria.
type BehaviorCategory string

const (
	CategoryCharacter  BehaviorCategory = "character"
	CategoryWorship    BehaviorCategory = "worship"
	CategoryAcademic   BehaviorCategory = "academic"
	CategorySocial     BehaviorCategory = "social"
	CategoryDiscipline BehaviorCategory = "discipline"
	CategoryLeadership BehaviorCategory = "leadership"
)

// BehaviorCategories lists every category in display order.
var BehaviorCategories = []BehaviorCategory{
	CategoryCharacter,
	CategoryWorship,
	CategoryAcademic,
	CategorySocial,
	CategoryDiscipline,
	CategoryLeadership,
}

// Label returns the label shown to musyrif and guardians.
func (c BehaviorCategory) Label() string {
	switch c {
	case CategoryCharacter:
		return "Akhlak"
	case CategoryWorship:
		return "Ibadah"
	case CategoryAcademic:
		return "Akademik"
	case CategorySocial:
		return "Sosial"
	case CategoryDiscipline:
		return "Kedisiplinan"
	case CategoryLeadership:
		return "Kepemimpinan"
	default:
		return string(c)
	}
}

// Polarity is the direction of a behavior criterion.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// Severity ranks how serious a behavior incident is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level maps severity to 1..4 (0 for unknown) so rules can compare it.
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// BehaviorCriterion is the catalog entry a behavior record references.
type BehaviorCriterion struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category BehaviorCategory `json:"category" validate:"required,oneof=character worship academic social discipline leadership"`
	Polarity Polarity         `json:"polarity" validate:"required,oneof=positive negative neutral"`
	Severity Severity         `json:"severity" validate:"required,oneof=low medium high critical"`
	Points   int              `json:"points"`
}

// Resolution holds the only fields of a behavior record that may change.
type Resolution struct {
	FollowUpRequired bool       `json:"followUpRequired"`
	Resolved         bool       `json:"resolved"`
	Notes            string     `json:"notes,omitempty"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
}

// BehaviorRecord is one behavior incident recorded by a musyrif.
type BehaviorRecord struct {
	ID          string            `json:"id"`
	SchoolID    string            `json:"schoolId"`
	StudentID   string            `json:"studentId" validate:"required"`
	Criterion   BehaviorCriterion `json:"criterion" validate:"required"`
	OccurredAt  time.Time         `json:"occurredAt" validate:"required"`
	Description string            `json:"description,omitempty"`
	RecordedBy  string            `json:"recordedBy,omitempty"`
	Resolution  Resolution        `json:"resolution"`
}

// PaymentStatus is the settlement state of a payment obligation.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// PaymentRecord is a tuition or boarding fee obligation.
type PaymentRecord struct {
	ID          string        `json:"id"`
	SchoolID    string        `json:"schoolId"`
	StudentID   string        `json:"studentId" validate:"required"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount" validate:"gt=0"`
	DueDate     time.Time     `json:"dueDate" validate:"required"`
	PaidAt      *time.Time    `json:"paidAt,omitempty"`
	Status      PaymentStatus `json:"status" validate:"required,oneof=pending paid overdue"`
}

// IsOverdue reports whether the payment is unpaid past its due date at now.
func (p *PaymentRecord) IsOverdue(now time.Time) bool {
	if p.Status == PaymentPaid || p.PaidAt != nil {
		return false
	}
	return p.DueDate.Before(now)
}

// DaysUntilDue returns whole days from now until the due date (negative when past).
func (p *PaymentRecord) DaysUntilDue(now time.Time) int {
	due := truncateDay(p.DueDate)
	today := truncateDay(now)
	return int(due.Sub(today).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
