package report

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cx-miguel-neiva/lightkeeper/internal/budget"
	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/cx-miguel-neiva/lightkeeper/internal/runner"
	"github.com/cx-miguel-neiva/lightkeeper/internal/settings"
)

func evaluated(t *testing.T, url string, score float64, b budget.Budget) Route {
	t.Helper()
	var sheet budget.Sheet
	table := budget.CompareCategories(
		budget.CategoryList{{ID: "performance", Title: "Performance", Score: score}},
		map[string]budget.Budget{"performance": b},
		&sheet, nil,
	)
	return ForRoute(url, sheet.Summarize(url), []string{table}, Audit{ReportURL: "https://reports.example.com/" + url, Version: "5.2.0"})
}

func TestForRoute(t *testing.T) {
	r := evaluated(t, "https://a.example.com", 0.82, budget.Detailed(90, 10, nil))

	for _, want := range []string{
		"<i>https://a.example.com</i>",
		"<b>1</b> ⚠️",
		"| Performance | 82 | 80 | 90 | ⚠️ |",
		"Full Report: https://reports.example.com/https://a.example.com",
		"Lighthouse v5.2.0",
	} {
		if !strings.Contains(r.Fragment, want) {
			t.Errorf("fragment missing %q:\n%s", want, r.Fragment)
		}
	}
	if !strings.HasPrefix(r.Fragment, "<details>") {
		t.Errorf("route fragments are collapsed by default:\n%s", r.Fragment)
	}
	if r.Stats[budget.Warn].Total != 1 {
		t.Errorf("stats = %+v", r.Stats)
	}
}

func TestForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"audit error",
			&runner.AuditError{URL: "https://b.example.com", StatusCode: 500, Message: "Chrome crashed"},
			"Lighthouse request failed on https://b.example.com:\nChrome crashed",
		},
		{
			"wrapped audit error",
			fmt.Errorf("route: %w", &runner.AuditError{URL: "https://b.example.com", Err: errors.New("timeout")}),
			"Lighthouse request failed on https://b.example.com:\nroute: timeout",
		},
		{
			"configuration error",
			settings.ErrNoBudgets,
			"Could not test https://b.example.com:\nconfiguration error: no budgets were found in config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ForError("https://b.example.com", tt.err)
			if !strings.Contains(r.Fragment, tt.want) {
				t.Errorf("fragment = %q, want it to contain %q", r.Fragment, tt.want)
			}
			if r.Stats[budget.Fail].Total != 1 || r.Stats[budget.Fail].Output == "" {
				t.Errorf("errored routes count as one failure: %+v", r.Stats)
			}
		})
	}
}

func TestPrepare(t *testing.T) {
	order := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com", "https://missing.example.com"}
	reports := map[string]Route{
		"https://a.example.com": evaluated(t, "https://a.example.com", 0.82, budget.Detailed(90, 10, nil)),
		"https://b.example.com": ForError("https://b.example.com", errors.New("timeout")),
		"https://c.example.com": evaluated(t, "https://c.example.com", 0.95, budget.Flat(90)),
	}

	p := Prepare(order, reports)

	a := strings.Index(p.Summary, "https://a.example.com")
	b := strings.Index(p.Summary, "https://b.example.com")
	c := strings.Index(p.Summary, "https://c.example.com")
	if a < 0 || b < 0 || c < 0 || !(a < b && b < c) {
		t.Errorf("summary must follow the route order:\n%s", p.Summary)
	}
	if !p.Warnings {
		t.Error("Warnings should be set")
	}
	if !strings.HasPrefix(p.Comment, Header+"\n") {
		t.Errorf("comment header missing:\n%s", p.Comment)
	}
	imp := strings.Index(p.Comment, "Improvements: <i>1 URL</i>")
	warn := strings.Index(p.Comment, "Warnings: <i>1 URL</i>")
	errs := strings.Index(p.Comment, "Errors: <i>1 URL</i>")
	if imp < 0 || warn < 0 || errs < 0 || !(imp < warn && warn < errs) {
		t.Errorf("comment sections out of order:\n%s", p.Comment)
	}
	if !strings.Contains(p.Comment, "<details open>\n<summary><b>Improvements") {
		t.Errorf("improvements should be expanded:\n%s", p.Comment)
	}
}

func TestPrepareAllPassing(t *testing.T) {
	url := "https://a.example.com"
	p := Prepare([]string{url}, map[string]Route{url: evaluated(t, url, 0.9, budget.Flat(90))})
	if p.Comment != PassComment {
		t.Errorf("comment = %q, want the pass text", p.Comment)
	}
	if p.Summary == "" {
		t.Error("passing routes still belong in the summary")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		conclusion checks.Conclusion
		errors     int
		warnings   bool
		urls       int
		want       string
	}{
		{checks.Failure, 1, false, 1, "Found 1 error across 1 URL."},
		{checks.Failure, 3, true, 2, "Found 3 errors across 2 URLs."},
		{checks.Neutral, 0, true, 2, "⚠️ Passed with warnings."},
		{checks.Neutral, 2, true, 2, "⚠️ Non-critical errors found."},
		{checks.Success, 0, false, 4, "All tests passed! See the full report. ➡️"},
	}
	for _, tt := range tests {
		if got := Title(tt.conclusion, tt.errors, tt.warnings, tt.urls); got != tt.want {
			t.Errorf("Title(%s, %d, %v, %d) = %q, want %q", tt.conclusion, tt.errors, tt.warnings, tt.urls, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := "ok"
	if Truncate(short) != short {
		t.Error("short summaries are unchanged")
	}
	long := strings.Repeat("✅", MaxSummary)
	got := Truncate(long)
	if len(got) > MaxSummary {
		t.Errorf("len = %d, want <= %d", len(got), MaxSummary)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a character")
	}
}
