package domain

// MasteryStatus is the completion state of a scripture unit.
type MasteryStatus string

const (
	MasteryNotStarted MasteryStatus = "not-started"
	MasteryInProgress MasteryStatus = "in-progress"
	MasteryCompleted  MasteryStatus = "completed"
	MasteryMastered   MasteryStatus = "mastered"
)

// ProgressSnapshot is the derived completion of one unit. Recomputed on demand.
type ProgressSnapshot struct {
	UnitID            string        `json:"unitId"`
	UnitName          string        `json:"unitName,omitempty"`
	TotalSubUnits     int           `json:"totalSubUnits"`
	CompletedSubUnits int           `json:"completedSubUnits"`
	Percentage        float64       `json:"percentage"`
	AverageScore      float64       `json:"averageScore"`
	SessionCount      int           `json:"sessionCount"`
	Status            MasteryStatus `json:"status"`
	Window            Window        `json:"window"`
}

// TrendDirection classifies the slope of a series.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDeclining TrendDirection = "declining"
)

// CategoryBreakdown is the per-category slice of a behavior summary.
type CategoryBreakdown struct {
	Category   BehaviorCategory `json:"category"`
	Label      string           `json:"label"`
	Count      int              `json:"count"`
	Positive   int              `json:"positive"`
	Negative   int              `json:"negative"`
	Points     int              `json:"points"`
	Percentage float64          `json:"percentage"`
}

// BehaviorSummary is the derived behavior picture of one student over a period.
type BehaviorSummary struct {
	StudentID       string              `json:"studentId"`
	Window          Window              `json:"window"`
	TotalRecords    int                 `json:"totalRecords"`
	PositiveCount   int                 `json:"positiveCount"`
	NegativeCount   int                 `json:"negativeCount"`
	NeutralCount    int                 `json:"neutralCount"`
	TotalPoints     int                 `json:"totalPoints"`
	AveragePoints   float64             `json:"averagePoints"`
	BehaviorScore   int                 `json:"behaviorScore"`
	CharacterGrade  string              `json:"characterGrade"`
	Categories      []CategoryBreakdown `json:"categories"`
	Trend           TrendDirection      `json:"trend"`
	Strengths       []string            `json:"strengths"`
	Weaknesses      []string            `json:"weaknesses"`
	Recommendations []string            `json:"recommendations"`
}

// RiskCategory is the banded overall performance classification.
type RiskCategory string

const (
	RiskLow    RiskCategory = "LOW"
	RiskMedium RiskCategory = "MEDIUM"
	RiskHigh   RiskCategory = "HIGH"
)

// Penalty is one named contribution to the dropout-risk score.
type Penalty struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// RiskAssessment is the derived risk picture of one student.
type RiskAssessment struct {
	StudentID          string         `json:"studentId"`
	Window             Window         `json:"window"`
	AttendanceRate     float64        `json:"attendanceRate"`
	AcademicAverage    float64        `json:"academicAverage"`
	GradeTrend         TrendDirection `json:"gradeTrend"`
	GradeSlope         float64        `json:"gradeSlope"`
	AttendanceTrend    TrendDirection `json:"attendanceTrend"`
	OverallScore       int            `json:"overallScore"`
	Category           RiskCategory   `json:"riskCategory"`
	NoGrades           bool           `json:"noGrades,omitempty"`
	NoAttendance       bool           `json:"noAttendance,omitempty"`
	DropoutRiskScore   int            `json:"dropoutRiskScore"`
	Penalties          []Penalty      `json:"penalties"`
	PredictedNextValue float64        `json:"predictedNextValue"`
	RecommendedActions []string       `json:"recommendedActions"`
}

// StudentInsight is the student-level output of the insight synthesizer.
type StudentInsight struct {
	StudentID        string             `json:"studentId"`
	StudentName      string             `json:"studentName,omitempty"`
	Window           Window             `json:"window"`
	InsufficientData bool               `json:"insufficientData"`
	Progress         []ProgressSnapshot `json:"progress"`
	Behavior         BehaviorSummary    `json:"behavior"`
	Risk             RiskAssessment     `json:"risk"`
	HafalanTrend     TrendDirection     `json:"hafalanTrend"`
	AttendanceTrend  TrendDirection     `json:"attendanceTrend"`
	OverallTrend     TrendDirection     `json:"overallTrend"`
	Strengths        []string           `json:"strengths"`
	Weaknesses       []string           `json:"weaknesses"`
	Recommendations  []string           `json:"recommendations"`
}

// StudentMetrics is the per-student input to class-level synthesis.
// NoGrades and NoAttendance mark a stream with no records in the window.
type StudentMetrics struct {
	StudentID      string  `json:"studentId"`
	Name           string  `json:"name"`
	AverageGrade   float64 `json:"averageGrade"`
	AttendanceRate float64 `json:"attendanceRate"`
	NoGrades       bool    `json:"noGrades,omitempty"`
	NoAttendance   bool    `json:"noAttendance,omitempty"`
}

// RankedStudent is a student with the class composite used for ranking.
type RankedStudent struct {
	StudentID      string  `json:"studentId"`
	Name           string  `json:"name"`
	AverageGrade   float64 `json:"averageGrade"`
	AttendanceRate float64 `json:"attendanceRate"`
	Composite      float64 `json:"composite"`
	NoGrades       bool    `json:"noGrades,omitempty"`
	NoAttendance   bool    `json:"noAttendance,omitempty"`
}

// ClassInsight is the halaqah-level output of the insight synthesizer.
type ClassInsight struct {
	GroupID            string          `json:"groupId"`
	GroupName          string          `json:"groupName,omitempty"`
	Window             Window          `json:"window"`
	InsufficientData   bool            `json:"insufficientData"`
	StudentCount       int             `json:"studentCount"`
	Capacity           int             `json:"capacity"`
	EnrollmentRate     float64         `json:"enrollmentRate"`
	AverageGrade       float64         `json:"averageGrade"`
	AverageAttendance  float64         `json:"averageAttendance"`
	AveragePerformance float64         `json:"averagePerformance"`
	TopPerformers      []RankedStudent `json:"topPerformers"`
	NeedsAttention     []RankedStudent `json:"needsAttention"`
	Recommendations    []string        `json:"recommendations"`
}

// AlertSeverity ranks system alerts.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is one triggered system-wide threshold.
type Alert struct {
	Kind      string        `json:"kind"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	GroupID   string        `json:"groupId,omitempty"`
}

// MonthlyPoint is one calendar month in the system trend series.
type MonthlyPoint struct {
	Month              string  `json:"month"` // YYYY-MM
	AttendanceRate     float64 `json:"attendanceRate"`
	PerformanceAverage float64 `json:"performanceAverage"`
	Sessions           int     `json:"sessions"`
}

// SystemInsight is the school-wide output of the insight synthesizer.
type SystemInsight struct {
	SchoolID           string         `json:"schoolId"`
	Window             Window         `json:"window"`
	InsufficientData   bool           `json:"insufficientData"`
	TotalStudents      int            `json:"totalStudents"`
	ActiveStudents     int            `json:"activeStudents"`
	AttendanceAverage  float64        `json:"attendanceAverage"`
	PerformanceAverage float64        `json:"performanceAverage"`
	OverduePayments    int            `json:"overduePayments"`
	MonthlyTrend       []MonthlyPoint `json:"monthlyTrend"`
	Alerts             []Alert        `json:"alerts"`
}
