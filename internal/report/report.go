// Package report assembles per-URL report fragments into the check-run summary
// and the pull request comment.
package report

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cx-miguel-neiva/lightkeeper/internal/budget"
	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/cx-miguel-neiva/lightkeeper/internal/markdown"
	"github.com/cx-miguel-neiva/lightkeeper/internal/runner"
)

const (
	Header      = "# 🚢 Lightkeeper Report"
	PassComment = Header + "\n### All tests passed! 🎉"

	// MaxSummary is the longest check-run summary GitHub accepts.
	MaxSummary = 65535
)

const separator = "\n---\n\n"

// Route is the finished report of one URL.
type Route struct {
	Fragment string
	Stats    budget.Stats
}

// Audit describes where the full audit of a URL can be found.
type Audit struct {
	ReportURL string
	Version   string
}

// ForRoute renders the collapsible section of one audited URL.
func ForRoute(url string, s budget.Summary, tables []string, audit Audit) Route {
	var body strings.Builder
	for _, t := range tables {
		if t == "" {
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(t)
	}
	if audit.ReportURL != "" {
		fmt.Fprintf(&body, "\nFull Report: %s\n", audit.ReportURL)
	}
	if audit.Version != "" {
		fmt.Fprintf(&body, "\n<sub>Lighthouse v%s</sub>\n", audit.Version)
	}
	summary := fmt.Sprintf("<b>URL — </b><i>%s</i><br><p>&nbsp; &nbsp; <b>Summary — </b>%s</p>", url, s.Line)
	return Route{
		Fragment: markdown.Details(summary, body.String(), false) + separator,
		Stats:    s.Stats,
	}
}

// ForError renders a URL that could not be audited. It counts as one failure
// so it is listed with the errors of the comment. Only errors returned by the
// audit endpoint are reported as failed Lighthouse requests.
func ForError(url string, err error) Route {
	prefix := "Could not test"
	var auditErr *runner.AuditError
	if errors.As(err, &auditErr) {
		prefix = "Lighthouse request failed on"
	}
	msg := fmt.Sprintf("%s %s:\n%s\n", prefix, url, err)
	return Route{
		Fragment: msg + separator,
		Stats: budget.Stats{
			budget.Fail: {
				Total: 1,
				Output: markdown.Details(
					fmt.Sprintf("<b>URL - </b><i>%s</i><p>&nbsp; &nbsp; <b>Summary — </b> <b>1</b> %s", url, budget.Fail.Icon()),
					msg,
					false,
				),
			},
		},
	}
}

type section struct {
	outcome budget.Outcome
	label   string
	open    bool
}

// comment sections, in display order
var sections = []section{
	{budget.Improve, "<b>Improvements: <i>%s</i></b> 🚀", true},
	{budget.Warn, "<b>Warnings: <i>%s</i></b>", false},
	{budget.Fail, "<b>Errors: <i>%s</i></b>", false},
}

// Prepared is the aggregated output of a run.
type Prepared struct {
	// Summary is the concatenation of every route fragment.
	Summary string
	// Comment lists improvements, warnings and errors only.
	Comment string
	// Warnings is set when at least one URL had a warning.
	Warnings bool
}

// Prepare aggregates the routes in order. URLs without a report are skipped.
func Prepare(order []string, reports map[string]Route) Prepared {
	var out Prepared
	var summary strings.Builder
	bodies := make(map[budget.Outcome]*strings.Builder, len(sections))
	counts := make(map[budget.Outcome]int, len(sections))
	for _, s := range sections {
		bodies[s.outcome] = &strings.Builder{}
	}

	for _, url := range order {
		r, ok := reports[url]
		if !ok {
			continue
		}
		summary.WriteString(r.Fragment)
		for _, s := range sections {
			st := r.Stats[s.outcome]
			if st.Output == "" {
				continue
			}
			counts[s.outcome]++
			bodies[s.outcome].WriteString(st.Output)
			if s.outcome == budget.Warn {
				out.Warnings = true
			}
		}
	}

	var comment strings.Builder
	for _, s := range sections {
		body := bodies[s.outcome]
		if body.Len() == 0 {
			continue
		}
		label := fmt.Sprintf(s.label, markdown.Plural(counts[s.outcome], "URL"))
		comment.WriteString(markdown.Details(label, body.String(), s.open))
	}

	out.Summary = summary.String()
	if comment.Len() > 0 {
		out.Comment = Header + "\n" + comment.String()
	} else {
		out.Comment = PassComment
	}
	return out
}

// Title is the check-run title for the run's conclusion.
func Title(conclusion checks.Conclusion, errors int, warnings bool, urls int) string {
	switch conclusion {
	case checks.Failure:
		return fmt.Sprintf("Found %s across %s.", markdown.Plural(errors, "error"), markdown.Plural(urls, "URL"))
	case checks.Neutral:
		if warnings && errors == 0 {
			return "⚠️ Passed with warnings."
		}
		return "⚠️ Non-critical errors found."
	default:
		return "All tests passed! See the full report. ➡️"
	}
}

// Truncate shortens s to the check-run summary limit without splitting a
// multi-byte character.
func Truncate(s string) string {
	if len(s) <= MaxSummary {
		return s
	}
	cut := MaxSummary
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
