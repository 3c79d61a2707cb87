package budget

import (
	"fmt"
	"math"
	"strings"

	"github.com/cx-miguel-neiva/lightkeeper/internal/markdown"
	"github.com/dustin/go-humanize"
)

type section int

const (
	sectionCategories section = iota
	sectionSizes
	sectionCounts
	numSections
)

var (
	categoryHeader = markdown.Row([]string{"Category", "Score", "Threshold", "Target", "Pass"}, true)
	sizeHeader     = markdown.Row([]string{"Resource", "Size", "Threshold", "Budget", "Over Budget", "Pass"}, true)
	countHeader    = markdown.Row([]string{"Resource", "Request Count", "Threshold", "Budget", "Over Budget", "Pass"}, true)
)

type tally struct {
	total    int
	sections [numSections]strings.Builder
}

// Sheet accumulates the rows of one route, grouped by outcome. The zero value
// is ready to use.
type Sheet struct {
	tallies [Fail + 1]tally
}

func (s *Sheet) record(sec section, o Outcome, header, row string) {
	t := &s.tallies[o]
	t.total++
	b := &t.sections[sec]
	if b.Len() == 0 {
		b.WriteString(header)
	}
	b.WriteString(row)
}

// Stat is the per-outcome total of one route and, when it has rows, a
// collapsible fragment listing them.
type Stat struct {
	Total  int
	Output string
}

// Stats maps every outcome to its Stat.
type Stats map[Outcome]Stat

// Summary is the finished per-route comparison.
type Summary struct {
	// Line is the short "<b>2</b> ✅ <b>1</b> ⚠️" totals string.
	Line  string
	Stats Stats
}

// Summarize closes the sheet for url.
func (s *Sheet) Summarize(url string) Summary {
	var line strings.Builder
	stats := make(Stats, len(Outcomes))
	for _, o := range Outcomes {
		t := &s.tallies[o]
		iconSummary := fmt.Sprintf(" <b>%d</b> %s", t.total, o.Icon())
		st := Stat{Total: t.total}
		if t.total > 0 {
			line.WriteString(iconSummary)
		}
		var parts []string
		for i := range t.sections {
			if t.sections[i].Len() > 0 {
				parts = append(parts, t.sections[i].String())
			}
		}
		if len(parts) > 0 {
			st.Output = markdown.Details(
				fmt.Sprintf("<b>URL - </b><i>%s</i><p>&nbsp; &nbsp; <b>Summary — </b> %s", url, iconSummary),
				strings.Join(parts, "\n"),
				false,
			)
		}
		stats[o] = st
	}
	return Summary{Line: line.String(), Stats: stats}
}

// CompareCategories evaluates every returned category that has a budget. The
// budgets map is the filter: categories without an entry are ignored.
func CompareCategories(results CategoryList, budgets map[string]Budget, sheet *Sheet, onFail func()) string {
	if len(results) == 0 || len(budgets) == 0 {
		return ""
	}
	var out strings.Builder
	for _, c := range results {
		b, ok := budgets[c.ID]
		if !ok || !b.Valid(true) {
			continue
		}
		score := c.Percentage()
		pass := Evaluate(score, b, true, onFail)
		row := markdown.Row([]string{
			c.Title,
			formatNumber(score),
			thresholdCell(b, true, ""),
			formatNumber(b.Target),
			pass.Icon(),
		}, false)
		sheet.record(sectionCategories, pass, categoryHeader, row)
		out.WriteString(row)
	}
	if out.Len() == 0 {
		return ""
	}
	return categoryHeader + out.String()
}

type resourceBudgets struct {
	size  *Budget
	count *Budget
}

// CompareResources evaluates measured resource sizes and request counts
// against the resource budgets. Sizes are compared in kilobytes.
func CompareResources(results []Resource, groups []ResourceGroup, sheet *Sheet, onFail func()) string {
	if len(results) == 0 || len(groups) == 0 {
		return ""
	}

	var order []string
	collection := make(map[string]*resourceBudgets)
	join := func(r ResourceBudget, isSize bool) {
		entry, ok := collection[r.ResourceType]
		if !ok {
			entry = &resourceBudgets{}
			collection[r.ResourceType] = entry
			order = append(order, r.ResourceType)
		}
		b := r.Canonical()
		if isSize {
			entry.size = &b
		} else {
			entry.count = &b
		}
	}
	for _, g := range groups {
		for _, r := range g.ResourceSizes {
			join(r, true)
		}
		for _, r := range g.ResourceCounts {
			join(r, false)
		}
	}

	var sizes, counts strings.Builder
	for _, resourceType := range order {
		measured, ok := findResource(results, resourceType)
		if !ok {
			continue
		}
		entry := collection[resourceType]

		if measured.Size > 0 && entry.size != nil && entry.size.Valid(false) {
			b := *entry.size
			kb := math.Floor(measured.Size / 1024)
			pass := Evaluate(kb, b, false, onFail)
			row := markdown.Row([]string{
				measured.Label,
				humanize.IBytes(uint64(measured.Size)),
				thresholdCell(b, false, "kb"),
				formatNumber(b.Target) + "kb",
				formatNumber(overBudget(kb, b.Target)) + "kb",
				pass.Icon(),
			}, false)
			sheet.record(sectionSizes, pass, sizeHeader, row)
			sizes.WriteString(row)
		}

		if measured.RequestCount > 0 && entry.count != nil && entry.count.Valid(false) {
			b := *entry.count
			pass := Evaluate(measured.RequestCount, b, false, onFail)
			row := markdown.Row([]string{
				measured.Label,
				formatNumber(measured.RequestCount),
				thresholdCell(b, false, ""),
				formatNumber(b.Target),
				formatNumber(overBudget(measured.RequestCount, b.Target)),
				pass.Icon(),
			}, false)
			sheet.record(sectionCounts, pass, countHeader, row)
			counts.WriteString(row)
		}
	}

	var tables []string
	if sizes.Len() > 0 {
		tables = append(tables, sizeHeader+sizes.String())
	}
	if counts.Len() > 0 {
		tables = append(tables, countHeader+counts.String())
	}
	return strings.Join(tables, "\n")
}

// overBudget is how far score exceeds target, never negative.
func overBudget(score, target float64) float64 {
	return math.Max(0, score-target)
}

func thresholdCell(b Budget, ascending bool, suffix string) string {
	tt := b.ThresholdTarget(ascending)
	if tt == b.Target {
		return "—"
	}
	return formatNumber(tt) + suffix
}

func findResource(results []Resource, resourceType string) (Resource, bool) {
	for _, r := range results {
		if r.ResourceType == resourceType {
			return r, true
		}
	}
	return Resource{}, false
}
