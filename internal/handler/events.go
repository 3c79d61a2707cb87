// Package handler turns GitHub webhook deliveries into Lightkeeper runs.
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/cx-miguel-neiva/lightkeeper/internal/github"
	"github.com/cx-miguel-neiva/lightkeeper/internal/session"
	"github.com/cx-miguel-neiva/lightkeeper/internal/urlfmt"
	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

// Configuration `type` values an event may satisfy.
const (
	TypeCheck      = "check"
	TypeDeployment = "deployment"
	TypeStatus     = "status"
)

// Event is a normalized trigger for one pull request.
type Event struct {
	Owner  string
	Name   string
	Params session.Params
	Valid  session.Validator
	Macros map[string]string
}

// PullRequestFinder resolves the pull requests a commit belongs to.
type PullRequestFinder interface {
	OpenPullRequestsForCommit(ctx context.Context, owner, name, sha string) ([]github.PullRequest, error)
}

// Handler maps webhook payloads to events.
type Handler struct {
	appName string
	finder  PullRequestFinder
	log     zerolog.Logger
}

func New(appName string, finder PullRequestFinder, log zerolog.Logger) *Handler {
	return &Handler{appName: appName, finder: finder, log: log}
}

// Events parses a delivery of the given X-GitHub-Event type. Deliveries that
// should not trigger a run yield no events and no error.
func (h *Handler) Events(ctx context.Context, eventType string, payload []byte) ([]Event, error) {
	switch eventType {
	case "check_run", "deployment_status", "status":
	default:
		h.log.Debug().Str("event", eventType).Msg("ignoring event")
		return nil, nil
	}

	parsed, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", eventType, err)
	}

	switch e := parsed.(type) {
	case *gh.CheckRunEvent:
		return h.checkRun(e), nil
	case *gh.DeploymentStatusEvent:
		return h.deploymentStatus(ctx, e)
	case *gh.StatusEvent:
		return h.status(ctx, e)
	}
	return nil, nil
}

func (h *Handler) checkRun(e *gh.CheckRunEvent) []Event {
	run := e.GetCheckRun()
	if len(run.PullRequests) == 0 {
		return nil
	}
	params := session.Params{
		Repo:             e.GetRepo().GetFullName(),
		HeadBranch:       run.GetCheckSuite().GetHeadBranch(),
		HeadSHA:          run.GetCheckSuite().GetHeadSHA(),
		PullNumber:       run.PullRequests[0].GetNumber(),
		InstallationNode: e.GetInstallation().GetNodeID(),
	}
	if params.HeadSHA == "" {
		params.HeadSHA = run.GetHeadSHA()
	}
	own := run.GetName() == h.appName

	switch e.GetAction() {
	case "completed":
		// our own check run completing must not start another run
		if own || run.GetConclusion() != "success" {
			return nil
		}
		names := []string{run.GetName(), run.GetApp().GetName(), run.GetApp().GetOwner().GetLogin()}
		return []Event{h.event(e.GetRepo(), params, session.IsValidCheck(names, TypeCheck), nil)}
	case "rerequested":
		if !own {
			return nil
		}
		params.CheckRunID = run.GetID()
		return []Event{h.event(e.GetRepo(), params, Rerun, nil)}
	}
	return nil
}

func (h *Handler) deploymentStatus(ctx context.Context, e *gh.DeploymentStatusEvent) ([]Event, error) {
	status := e.GetDeploymentStatus()
	if status.GetState() != "success" {
		return nil, nil
	}
	deployment := e.GetDeployment()
	names := []string{deployment.GetEnvironment(), status.GetCreator().GetLogin(), e.GetSender().GetLogin()}
	macros := map[string]string{
		urlfmt.EnvURL:    status.GetEnvironmentURL(),
		urlfmt.TargetURL: status.GetTargetURL(),
	}
	return h.forCommit(ctx, e.GetRepo(), e.GetInstallation(), deployment.GetSHA(), session.IsValidCheck(botNames(names), TypeDeployment), macros)
}

func (h *Handler) status(ctx context.Context, e *gh.StatusEvent) ([]Event, error) {
	if e.GetState() != "success" {
		return nil, nil
	}
	names := []string{e.GetContext(), e.GetSender().GetLogin()}
	macros := map[string]string{urlfmt.TargetURL: e.GetTargetURL()}
	return h.forCommit(ctx, e.GetRepo(), e.GetInstallation(), e.GetSHA(), session.IsValidCheck(botNames(names), TypeStatus), macros)
}

// forCommit emits one event per open pull request whose head is sha.
func (h *Handler) forCommit(ctx context.Context, repo *gh.Repository, inst *gh.Installation, sha string, valid session.Validator, macros map[string]string) ([]Event, error) {
	owner, name := repo.GetOwner().GetLogin(), repo.GetName()
	prs, err := h.finder.OpenPullRequestsForCommit(ctx, owner, name, sha)
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, pr := range prs {
		if pr.HeadSHA != "" && pr.HeadSHA != sha {
			continue
		}
		params := session.Params{
			Repo:             repo.GetFullName(),
			HeadBranch:       pr.HeadRef,
			HeadSHA:          sha,
			PullNumber:       pr.Number,
			InstallationNode: inst.GetNodeID(),
		}
		events = append(events, h.event(repo, params, valid, macros))
	}
	if len(events) == 0 {
		h.log.Debug().Str("sha", sha).Msg("no open pull request for commit")
	}
	return events, nil
}

func (h *Handler) event(repo *gh.Repository, p session.Params, valid session.Validator, macros map[string]string) Event {
	if p.Repo == "" {
		p.Repo = repo.GetOwner().GetLogin() + "/" + repo.GetName()
	}
	return Event{
		Owner:  repo.GetOwner().GetLogin(),
		Name:   repo.GetName(),
		Params: p,
		Valid:  valid,
		Macros: macros,
	}
}

// Rerun accepts any configuration; a re-requested check already matched it
// once.
func Rerun(string, string) bool { return true }

// botNames adds the bare name of every "name[bot]" login.
func botNames(names []string) []string {
	out := make([]string, 0, len(names)*2)
	for _, n := range names {
		out = append(out, n)
		if bare, ok := strings.CutSuffix(n, "[bot]"); ok {
			out = append(out, bare)
		}
	}
	return out
}
