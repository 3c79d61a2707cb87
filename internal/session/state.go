package session

import (
	"sync"

	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/cx-miguel-neiva/lightkeeper/internal/report"
)

// RunState is the progress of a single run. Routes are claimed in order before
// their audits start; results are recorded as the audits finish.
type RunState struct {
	mu          sync.Mutex
	order       []string
	reports     map[string]report.Route
	errorsFound int
	conclusion  checks.Conclusion
}

func newRunState() *RunState {
	return &RunState{
		reports:    make(map[string]report.Route),
		conclusion: checks.Success,
	}
}

// claim appends url to the order. It returns false when the url was already
// claimed by an earlier route.
func (s *RunState) claim(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.order {
		if u == url {
			return false
		}
	}
	s.order = append(s.order, url)
	return true
}

// fail counts one failure. Report-only routes downgrade the run to neutral but
// never undo a failure.
func (s *RunState) fail(reportOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(reportOnly)
}

func (s *RunState) failLocked(reportOnly bool) {
	s.errorsFound++
	if s.conclusion == checks.Failure {
		return
	}
	if reportOnly {
		s.conclusion = checks.Neutral
	} else {
		s.conclusion = checks.Failure
	}
}

// record stores the route's report and applies its failures.
func (s *RunState) record(res routeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[res.url]; ok {
		return
	}
	s.reports[res.url] = res.report
	for i := 0; i < res.failures; i++ {
		s.failLocked(res.reportOnly)
	}
}

// Order returns the claimed URLs in the order their routes began.
func (s *RunState) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Reports returns a copy of the finished route reports keyed by URL.
func (s *RunState) Reports() map[string]report.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]report.Route, len(s.reports))
	for k, v := range s.reports {
		out[k] = v
	}
	return out
}

func (s *RunState) ErrorsFound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorsFound
}

func (s *RunState) Conclusion() checks.Conclusion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conclusion
}
