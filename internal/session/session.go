// Package session runs the configured routes of a pull request through the
// audit runner and reports the outcome as a check run and a PR comment.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/budget"
	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/cx-miguel-neiva/lightkeeper/internal/comments"
	"github.com/cx-miguel-neiva/lightkeeper/internal/config"
	"github.com/cx-miguel-neiva/lightkeeper/internal/markdown"
	"github.com/cx-miguel-neiva/lightkeeper/internal/model"
	"github.com/cx-miguel-neiva/lightkeeper/internal/report"
	"github.com/cx-miguel-neiva/lightkeeper/internal/runner"
	"github.com/cx-miguel-neiva/lightkeeper/internal/settings"
	"github.com/cx-miguel-neiva/lightkeeper/internal/urlfmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
)

// ErrUpstreamPost wraps failures to publish the final check run or comment.
var ErrUpstreamPost = errors.New("posting results failed")

// Host is the repository host of one repository.
type Host interface {
	checks.Client
	config.Source
	comments.Client
}

// Auditor runs a Lighthouse audit of one URL.
type Auditor interface {
	Run(ctx context.Context, url string, budgets []budget.ResourceGroup, lighthouse any) (*runner.Result, error)
}

// AuditorFactory prepares the auditor of a run from the repository's top-level
// `lighthouse` configuration.
type AuditorFactory func(lighthouse any, installationNode string) (Auditor, error)

// Recorder keeps a history of completed runs.
type Recorder interface {
	RecordRun(ctx context.Context, run model.Run) error
}

// Params identify the pull request and commit a run belongs to.
type Params struct {
	Repo             string
	HeadBranch       string
	HeadSHA          string
	PullNumber       int
	InstallationNode string
	// CheckRunID is set when an existing check run is re-requested; it is
	// updated instead of creating a new one.
	CheckRunID int64
}

// Options configure a Session.
type Options struct {
	AppName    string
	BotName    string
	ConfigPath string
	NewAuditor AuditorFactory
	Recorder   Recorder
	Logger     zerolog.Logger
}

// Session runs Lightkeeper for one webhook delivery. It must not be reused.
type Session struct {
	host  Host
	opts  Options
	log   zerolog.Logger
	state *RunState
}

func New(host Host, opts Options) *Session {
	return &Session{host: host, opts: opts, log: opts.Logger, state: newRunState()}
}

// Result summarizes a finished run.
type Result struct {
	CheckRunID  int64
	Conclusion  checks.Conclusion
	ErrorsFound int
	Order       []string
	Summary     string
	Comment     string
}

// Start runs every configured route. cfg may carry an already loaded
// configuration; otherwise it is read from the repository. A nil Result with a
// nil error means the event was not meant for this configuration.
func (s *Session) Start(ctx context.Context, p Params, cfg *config.Config, valid Validator, macros map[string]string) (*Result, error) {
	s.log = s.log.With().Str("repo", p.Repo).Str("sha", p.HeadSHA).Int("pr", p.PullNumber).Logger()
	status := checks.NewStatus(s.host, s.opts.AppName, p.HeadBranch, p.HeadSHA)

	if cfg == nil {
		var err error
		cfg, err = config.NewLoader(s.host, status, s.opts.ConfigPath, s.log).Load(ctx, p.HeadBranch, p.PullNumber)
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
	}
	if cfg.Empty() || valid == nil || !valid(cfg.Type, cfg.CI) {
		s.log.Debug().Msg("event does not match the configuration")
		return nil, nil
	}

	auditor, err := s.opts.NewAuditor(cfg.Lighthouse, p.InstallationNode)
	if err != nil {
		return nil, fmt.Errorf("setting up the audit runner: %w", err)
	}

	all := map[string]string{
		urlfmt.Branch:     p.HeadBranch,
		urlfmt.CommitHash: p.HeadSHA,
		urlfmt.PRNumber:   strconv.Itoa(p.PullNumber),
	}
	for k, v := range macros {
		all[k] = v
	}
	formatter, err := urlfmt.New(cfg.BaseURL, all)
	if err != nil {
		return nil, err
	}

	routes := cfg.Routes
	if len(routes) == 0 {
		routes = []any{formatter.Base()}
	}

	inProgress := checks.Run{
		ID:     p.CheckRunID,
		Status: checks.StatusInProgress,
		Output: checks.Output{Title: fmt.Sprintf("Attempting to run tests for %s", markdown.Plural(len(routes), "url"))},
	}
	var check checks.Run
	if p.CheckRunID != 0 {
		check, err = status.Update(ctx, inProgress)
	} else {
		check, err = status.Create(ctx, inProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: in-progress check run: %v", ErrUpstreamPost, err)
	}

	started := time.Now()
	jobs := plan(routes, formatter, settings.Fragment(cfg.Settings), cfg.SharedSettings, s.state, s.log)

	var wg conc.WaitGroup
	for _, j := range jobs {
		wg.Go(func() {
			s.state.record(process(ctx, auditor, j, s.log))
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		s.log.Error().Str("panic", r.String()).Msg("route processing panicked")
		_, postErr := status.Update(ctx, checks.Run{
			ID:         check.ID,
			Conclusion: checks.Failure,
			Output: checks.Output{
				Title:   "Errors were found attempting to run the Lighthouse tests",
				Summary: "Attempted to run:\n\n" + strings.Join(s.state.Order(), "\n"),
			},
		})
		if postErr != nil {
			s.log.Error().Err(postErr).Msg("failed to report the aborted run")
		}
		return nil, fmt.Errorf("processing routes: %w", r.AsError())
	}

	res := &Result{
		CheckRunID:  check.ID,
		Conclusion:  s.state.Conclusion(),
		ErrorsFound: s.state.ErrorsFound(),
		Order:       s.state.Order(),
	}
	reports := s.state.Reports()

	if len(reports) == 0 {
		res.Conclusion = checks.Neutral
		_, err := status.Update(ctx, checks.Run{
			ID:         check.ID,
			Conclusion: checks.Neutral,
			Output:     checks.Output{Title: "No reports were generated", Summary: ""},
		})
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrUpstreamPost, err)
		}
		return res, nil
	}

	prepared := report.Prepare(res.Order, reports)
	res.Summary = report.Truncate(prepared.Summary)
	res.Comment = prepared.Comment
	title := report.Title(res.Conclusion, res.ErrorsFound, prepared.Warnings, len(res.Order))

	var g errgroup.Group
	g.Go(func() error {
		_, err := status.Update(ctx, checks.Run{
			ID:         check.ID,
			DetailsURL: check.DetailsURL,
			Conclusion: res.Conclusion,
			Output:     checks.Output{Title: title, Summary: res.Summary},
		})
		return err
	})
	if p.PullNumber > 0 {
		g.Go(func() error {
			action, err := comments.Upsert(ctx, s.host, p.PullNumber, s.opts.BotName, res.Comment, report.PassComment)
			if err == nil {
				s.log.Debug().Stringer("action", action).Msg("comment")
			}
			return err
		})
	}
	postErr := g.Wait()

	s.log.Info().
		Str("conclusion", string(res.Conclusion)).
		Int("errors", res.ErrorsFound).
		Int("urls", len(res.Order)).
		Msg("run completed")
	s.record(ctx, p, res, reports, started)

	if postErr != nil {
		s.log.Error().Err(postErr).Msg("failed to publish the results")
		return res, fmt.Errorf("%w: %v", ErrUpstreamPost, postErr)
	}
	return res, nil
}

func (s *Session) record(ctx context.Context, p Params, res *Result, reports map[string]report.Route, started time.Time) {
	if s.opts.Recorder == nil {
		return
	}
	run := model.Run{
		ID:          uuid.NewString(),
		Repo:        p.Repo,
		PullNumber:  p.PullNumber,
		Branch:      p.HeadBranch,
		SHA:         p.HeadSHA,
		Conclusion:  string(res.Conclusion),
		ErrorsFound: res.ErrorsFound,
		URLCount:    len(res.Order),
		CreatedAt:   started.UTC(),
	}
	for _, url := range res.Order {
		r, ok := reports[url]
		if !ok {
			continue
		}
		run.Routes = append(run.Routes, model.RouteResult{
			URL:      url,
			Improved: r.Stats[budget.Improve].Total,
			Passed:   r.Stats[budget.Pass].Total,
			Warned:   r.Stats[budget.Warn].Total,
			Failed:   r.Stats[budget.Fail].Total,
		})
	}
	if err := s.opts.Recorder.RecordRun(ctx, run); err != nil {
		s.log.Error().Err(err).Msg("failed to record run history")
	}
}
