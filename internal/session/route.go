package session

import (
	"context"

	"github.com/cx-miguel-neiva/lightkeeper/internal/budget"
	"github.com/cx-miguel-neiva/lightkeeper/internal/report"
	"github.com/cx-miguel-neiva/lightkeeper/internal/settings"
	"github.com/cx-miguel-neiva/lightkeeper/internal/urlfmt"
	"github.com/rs/zerolog"
)

// job is a route that survived formatting and deduplication. A non-nil err
// means the route is already known to have failed and is not audited.
type job struct {
	url      string
	settings settings.RouteSettings
	err      error
}

// routeResult is what a route hands back to the run state.
type routeResult struct {
	url        string
	report     report.Route
	failures   int
	reportOnly bool
}

// routePath extracts the path of a route entry, which is either a string or an
// object with a `url`. ok is false for anything else.
func routePath(route any) (path string, override any, ok bool) {
	switch r := route.(type) {
	case string:
		return r, nil, r != ""
	case map[string]any:
		u, _ := r["url"].(string)
		return u, r["settings"], u != ""
	default:
		return "", nil, false
	}
}

// plan formats and resolves every route in order, claiming each URL in the run
// state. Duplicate URLs and malformed entries are dropped.
func plan(routes []any, f *urlfmt.Formatter, global settings.Fragment, shared map[string]any, state *RunState, log zerolog.Logger) []job {
	var jobs []job
	for _, route := range routes {
		path, override, ok := routePath(route)
		if !ok {
			log.Debug().Interface("route", route).Msg("skipping invalid route")
			continue
		}

		url, formatErr := f.Format(path)
		if formatErr != nil {
			url = path
		}
		var rs settings.RouteSettings
		resolved, err := settings.Resolve(global, shared, override)
		if err == nil {
			rs, err = settings.Decode(resolved)
		}

		if !state.claim(url) {
			log.Debug().Str("url", url).Msg("skipping duplicate url")
			continue
		}

		j := job{url: url, settings: rs}
		switch {
		case formatErr != nil:
			j.err = formatErr
		case err != nil:
			j.err = err
		case !rs.HasBudgets():
			j.err = settings.ErrNoBudgets
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// process audits one route and compares the result with its budgets. It never
// fails: every error becomes a failure report for the route.
func process(ctx context.Context, a Auditor, j job, log zerolog.Logger) routeResult {
	res := routeResult{url: j.url, reportOnly: j.settings.ReportOnly}
	if j.err != nil {
		log.Error().Err(j.err).Str("url", j.url).Msg("route failed")
		res.report = report.ForError(j.url, j.err)
		res.failures = 1
		return res
	}

	audit, err := a.Run(ctx, j.url, j.settings.Budgets, j.settings.Lighthouse)
	if err != nil {
		log.Error().Err(err).Str("url", j.url).Msg("Lighthouse request failed")
		res.report = report.ForError(j.url, err)
		res.failures = 1
		return res
	}

	var sheet budget.Sheet
	onFail := func() { res.failures++ }
	categories := budget.CompareCategories(audit.Categories, j.settings.Categories, &sheet, onFail)
	resources := budget.CompareResources(audit.Budgets, j.settings.Budgets, &sheet, onFail)

	res.report = report.ForRoute(j.url, sheet.Summarize(j.url), []string{categories, resources}, report.Audit{
		ReportURL: audit.ReportURL,
		Version:   audit.LighthouseVersion,
	})
	log.Debug().Str("url", j.url).Int("failures", res.failures).Msg("route evaluated")
	return res
}
