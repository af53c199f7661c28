// Replay tool for checking Mizan's risk banding against a school's own records.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/setoran.csv -url http://localhost:8080 -school demo
//
// This tool:
//  1. Reads exported hafalan and attendance rows (with a staff "flagged" label)
//  2. Creates the students and units they reference
//  3. Replays each row to Mizan as a domain event
//  4. Fetches every student's risk assessment and compares HIGH risk with the
//     students musyrif flagged, printing a confusion matrix and latency figures
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Row is one line of the export.
//
// Columns: student_id, group_id, kind (memorization|absence), date (YYYY-MM-DD),
// unit_id, unit_verses, range_start, range_end, grade, flagged (0|1).
type Row struct {
	StudentID  string
	GroupID    string
	Kind       string
	Date       time.Time
	UnitID     string
	UnitVerses int
	RangeStart int
	RangeEnd   int
	Grade      float64
	Flagged    bool
}

// Metrics tracks replay results.
type Metrics struct {
	TruePositives  int64 // flagged and HIGH
	FalsePositives int64 // not flagged but HIGH
	TrueNegatives  int64 // not flagged, not HIGH
	FalseNegatives int64 // flagged but not HIGH

	EventsSent   int64
	EventsFailed int64
	EventTimeMs  int64

	Students        int64
	InsightFailures int64
	Categories      map[domain.RiskCategory]int
}

type client struct {
	http     *http.Client
	baseURL  string
	schoolID string
	limiter  *rate.Limiter
}

func main() {
	csvPath := flag.String("csv", "", "Path to the exported CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Mizan base URL")
	schoolID := flag.String("school", "replay", "School ID for requests")
	limit := flag.Int("limit", 0, "Maximum rows to replay (0 = all)")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	rps := flag.Float64("rps", 200, "Maximum requests per second (0 = unlimited)")
	days := flag.Int("days", 30, "Risk window in days")
	verbose := flag.Bool("verbose", false, "Print each student's result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/setoran.csv [-url http://localhost:8080] [-school demo]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), *workers)
	}
	c := &client{
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(*baseURL, "/"),
		schoolID: *schoolID,
		limiter:  limiter,
	}
	ctx := context.Background()

	fmt.Println("Mizan replay")
	fmt.Printf("\nCSV File:  %s\n", *csvPath)
	fmt.Printf("Mizan URL: %s\n", c.baseURL)
	fmt.Printf("School ID: %s\n", c.schoolID)
	fmt.Printf("Workers:   %d\n", *workers)
	fmt.Printf("Window:    %d days\n", *days)
	fmt.Println()

	if err := c.checkHealth(ctx); err != nil {
		fmt.Printf("ERROR: Mizan not reachable at %s: %v\n", c.baseURL, err)
		fmt.Println("\nMake sure Mizan is running:")
		fmt.Println("  go run ./cmd/mizan")
		os.Exit(1)
	}
	fmt.Println("✓ Mizan is healthy")

	rows, err := readRows(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	flagged := flaggedStudents(rows)
	fmt.Printf("✓ Loaded %d rows for %d students (%d flagged by staff)\n", len(rows), len(flagged), countTrue(flagged))

	if err := c.seed(ctx, rows); err != nil {
		fmt.Printf("ERROR: Failed to create roster: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Roster created")

	fmt.Printf("\nReplaying events with %d workers...\n", *workers)
	start := time.Now()
	metrics := &Metrics{Categories: make(map[domain.RiskCategory]int)}
	c.replay(ctx, rows, *workers, metrics)
	c.assess(ctx, flagged, *days, metrics, *verbose)

	printResults(metrics, time.Since(start))
}

func (c *client) checkHealth(ctx context.Context) error {
	code, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", code)
	}
	return nil
}

func readRows(path string, limit int) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"student_id", "kind", "date"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		date, err := time.Parse("2006-01-02", field(record, "date"))
		if err != nil {
			continue
		}
		verses, _ := strconv.Atoi(field(record, "unit_verses"))
		rangeStart, _ := strconv.Atoi(field(record, "range_start"))
		rangeEnd, _ := strconv.Atoi(field(record, "range_end"))
		grade, _ := strconv.ParseFloat(field(record, "grade"), 64)

		rows = append(rows, Row{
			StudentID:  field(record, "student_id"),
			GroupID:    field(record, "group_id"),
			Kind:       strings.ToLower(field(record, "kind")),
			Date:       date.Add(8 * time.Hour),
			UnitID:     field(record, "unit_id"),
			UnitVerses: verses,
			RangeStart: rangeStart,
			RangeEnd:   rangeEnd,
			Grade:      grade,
			Flagged:    field(record, "flagged") == "1",
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

// flaggedStudents maps each student to whether any of their rows is flagged.
func flaggedStudents(rows []Row) map[string]bool {
	out := make(map[string]bool)
	for _, r := range rows {
		out[r.StudentID] = out[r.StudentID] || r.Flagged
	}
	return out
}

func countTrue(m map[string]bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// seed creates every group, unit and student the rows reference.
func (c *client) seed(ctx context.Context, rows []Row) error {
	groups := make(map[string]bool)
	units := make(map[string]bool)
	students := make(map[string]bool)

	for _, r := range rows {
		if r.GroupID != "" && !groups[r.GroupID] {
			groups[r.GroupID] = true
			if err := c.expect(ctx, "/groups", domain.Group{ID: r.GroupID, Name: r.GroupID}); err != nil {
				return err
			}
		}
		if r.UnitID != "" && r.UnitVerses > 0 && !units[r.UnitID] {
			units[r.UnitID] = true
			if err := c.expect(ctx, "/units", domain.Unit{ID: r.UnitID, Name: r.UnitID, TotalSubUnits: r.UnitVerses}); err != nil {
				return err
			}
		}
		if !students[r.StudentID] {
			students[r.StudentID] = true
			s := domain.Student{ID: r.StudentID, Name: r.StudentID, GroupID: r.GroupID, Active: true}
			if err := c.expect(ctx, "/students", s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *client) expect(ctx context.Context, path string, body any) error {
	code, err := c.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	if code != http.StatusCreated {
		return fmt.Errorf("POST %s: status %d", path, code)
	}
	return nil
}

// event converts a row to the domain event Mizan ingests, or nil for kinds it
// does not replay.
func (r Row) event() *domain.DomainEvent {
	switch r.Kind {
	case "memorization":
		grade := r.Grade
		return &domain.DomainEvent{
			Kind: domain.EventMemorizationApproved,
			Memorization: &domain.MemorizationRecord{
				StudentID:  r.StudentID,
				UnitID:     r.UnitID,
				RangeStart: r.RangeStart,
				RangeEnd:   r.RangeEnd,
				Type:       domain.SubmissionNew,
				Status:     domain.SubmissionApproved,
				Grade:      &grade,
				Timestamp:  r.Date,
			},
		}
	case "absence":
		return &domain.DomainEvent{
			Kind: domain.EventAbsenceRecorded,
			Attendance: &domain.AttendanceRecord{
				StudentID: r.StudentID,
				Date:      r.Date,
				Status:    domain.AttendanceAbsent,
			},
		}
	default:
		return nil
	}
}

func (c *client) replay(ctx context.Context, rows []Row, numWorkers int, m *Metrics) {
	work := make(chan Row, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range work {
				ev := r.event()
				if ev == nil {
					continue
				}
				start := time.Now()
				code, err := c.do(ctx, http.MethodPost, "/events", ev, nil)
				atomic.AddInt64(&m.EventTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.EventsSent, 1)
				if err != nil || code != http.StatusAccepted {
					atomic.AddInt64(&m.EventsFailed, 1)
				}
			}
		}()
	}

	for _, r := range rows {
		work <- r
	}
	close(work)
	wg.Wait()
}

func (c *client) assess(ctx context.Context, flagged map[string]bool, days int, m *Metrics, verbose bool) {
	ids := make([]string, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var risk domain.RiskAssessment
		path := fmt.Sprintf("/students/%s/risk?days=%d", id, days)
		code, err := c.do(ctx, http.MethodGet, path, nil, &risk)
		m.Students++
		if err != nil || code != http.StatusOK {
			m.InsightFailures++
			continue
		}
		m.Categories[risk.Category]++

		predicted := risk.Category == domain.RiskHigh
		actual := flagged[id]
		switch {
		case predicted && actual:
			m.TruePositives++
		case predicted && !actual:
			m.FalsePositives++
		case !predicted && !actual:
			m.TrueNegatives++
		default:
			m.FalseNegatives++
		}

		if verbose {
			status := "✓"
			if predicted != actual {
				status = "✗"
			}
			fmt.Printf("%s %-16s | Flagged: %-5v | Risk: %-6s (%3d) | Attendance: %5.1f%% | Average: %5.1f\n",
				status, id, actual, risk.Category, risk.OverallScore, risk.AttendanceRate, risk.AcademicAverage)
		}
	}
}

// do sends a JSON request and decodes a 2xx JSON response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-School-ID", c.schoolID)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nREPLAY RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Events Sent:      %d\n", m.EventsSent)
	fmt.Printf("   Events Failed:    %d\n", m.EventsFailed)
	fmt.Printf("   Students:         %d\n", m.Students)
	fmt.Printf("   Insight Errors:   %d\n", m.InsightFailures)

	fmt.Printf("\nRISK CATEGORIES\n")
	for _, cat := range []domain.RiskCategory{domain.RiskLow, domain.RiskMedium, domain.RiskHigh} {
		fmt.Printf("   %-8s %d\n", cat, m.Categories[cat])
	}

	fmt.Printf("\nCONFUSION MATRIX (HIGH risk vs staff flag)\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    HIGH      other")
	fmt.Printf("   Flagged      │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Not flagged  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\nAGREEMENT\n")
	fmt.Printf("   Precision:  %.4f  (of HIGH students, how many staff flagged)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of flagged students, how many scored HIGH)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.EventsSent > 0 {
		avgMs := float64(m.EventTimeMs) / float64(m.EventsSent)
		eps := float64(m.EventsSent) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f events/sec\n", eps)
	}
	fmt.Println()
}
