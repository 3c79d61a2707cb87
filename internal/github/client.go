// Package github implements the repository host on the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/cx-miguel-neiva/lightkeeper/internal/comments"
	"github.com/cx-miguel-neiva/lightkeeper/internal/config"
	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// pageSize is the single page of files and comments that is read.
const pageSize = 100

// Client is an authenticated GitHub API client.
type Client struct {
	gh *gh.Client
}

// NewClient authenticates with token. apiURL overrides the API root, e.g. for
// GitHub Enterprise; empty means api.github.com.
func NewClient(ctx context.Context, token, apiURL string) (*Client, error) {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return newClient(httpClient, apiURL)
}

func newClient(httpClient *http.Client, apiURL string) (*Client, error) {
	c := gh.NewClient(httpClient)
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API url: %w", err)
		}
		c.BaseURL = u
	}
	return &Client{gh: c}, nil
}

// Repo returns the repository host of owner/name.
func (c *Client) Repo(owner, name string) *Repo {
	return &Repo{gh: c.gh, owner: owner, name: name}
}

// PullRequest is the head of a pull request.
type PullRequest struct {
	Number  int
	State   string
	HeadRef string
	HeadSHA string
}

// PullRequest fetches pull request number of owner/name.
func (c *Client) PullRequest(ctx context.Context, owner, name string, number int) (*PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("getting pull request #%d: %w", number, err)
	}
	return toPullRequest(pr), nil
}

// OpenPullRequestsForCommit lists the open pull requests whose head is sha.
func (c *Client) OpenPullRequestsForCommit(ctx context.Context, owner, name, sha string) ([]PullRequest, error) {
	prs, _, err := c.gh.PullRequests.ListPullRequestsWithCommit(ctx, owner, name, sha, &gh.ListOptions{PerPage: pageSize})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for %s: %w", sha, err)
	}
	var out []PullRequest
	for _, pr := range prs {
		if pr.GetState() != "open" {
			continue
		}
		out = append(out, *toPullRequest(pr))
	}
	return out, nil
}

func toPullRequest(pr *gh.PullRequest) *PullRequest {
	return &PullRequest{
		Number:  pr.GetNumber(),
		State:   pr.GetState(),
		HeadRef: pr.GetHead().GetRef(),
		HeadSHA: pr.GetHead().GetSHA(),
	}
}

// Repo is the repository host of a single repository.
type Repo struct {
	gh    *gh.Client
	owner string
	name  string
}

func (r *Repo) CreateCheckRun(ctx context.Context, run checks.Run) (checks.Run, error) {
	opts := gh.CreateCheckRunOptions{
		Name:        run.Name,
		HeadSHA:     run.HeadSHA,
		Status:      gh.String(run.Status),
		DetailsURL:  optional(run.DetailsURL),
		Conclusion:  optional(string(run.Conclusion)),
		StartedAt:   timestamp(run.StartedAt),
		CompletedAt: timestamp(run.CompletedAt),
		Output:      output(run.Output),
	}
	created, _, err := r.gh.Checks.CreateCheckRun(ctx, r.owner, r.name, opts)
	if err != nil {
		return run, fmt.Errorf("creating check run: %w", err)
	}
	return fromCheckRun(created, run), nil
}

func (r *Repo) UpdateCheckRun(ctx context.Context, run checks.Run) (checks.Run, error) {
	opts := gh.UpdateCheckRunOptions{
		Name:        run.Name,
		Status:      gh.String(run.Status),
		DetailsURL:  optional(run.DetailsURL),
		Conclusion:  optional(string(run.Conclusion)),
		CompletedAt: timestamp(run.CompletedAt),
		Output:      output(run.Output),
	}
	updated, _, err := r.gh.Checks.UpdateCheckRun(ctx, r.owner, r.name, run.ID, opts)
	if err != nil {
		return run, fmt.Errorf("updating check run %d: %w", run.ID, err)
	}
	return fromCheckRun(updated, run), nil
}

func (r *Repo) LatestCheckRun(ctx context.Context, sha, name string) (*checks.Run, error) {
	res, _, err := r.gh.Checks.ListCheckRunsForRef(ctx, r.owner, r.name, sha, &gh.ListCheckRunsOptions{
		CheckName: gh.String(name),
		Filter:    gh.String("latest"),
	})
	if err != nil {
		return nil, fmt.Errorf("listing check runs: %w", err)
	}
	if len(res.CheckRuns) == 0 {
		return nil, nil
	}
	run := fromCheckRun(res.CheckRuns[0], checks.Run{})
	return &run, nil
}

func (r *Repo) ListPullRequestFiles(ctx context.Context, number int) ([]config.File, error) {
	files, _, err := r.gh.PullRequests.ListFiles(ctx, r.owner, r.name, number, &gh.ListOptions{PerPage: pageSize})
	if err != nil {
		return nil, fmt.Errorf("listing files of #%d: %w", number, err)
	}
	out := make([]config.File, 0, len(files))
	for _, f := range files {
		out = append(out, config.File{Name: f.GetFilename(), Status: f.GetStatus()})
	}
	return out, nil
}

func (r *Repo) FileContents(ctx context.Context, path, ref string) ([]byte, error) {
	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}
	file, _, _, err := r.gh.Repositories.GetContents(ctx, r.owner, r.name, path, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, config.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if file == nil {
		return nil, config.ErrNotFound
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return []byte(content), nil
}

func (r *Repo) ListComments(ctx context.Context, number int) ([]comments.Comment, error) {
	list, _, err := r.gh.Issues.ListComments(ctx, r.owner, r.name, number, &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: pageSize},
	})
	if err != nil {
		return nil, err
	}
	out := make([]comments.Comment, 0, len(list))
	for _, c := range list {
		out = append(out, comments.Comment{ID: c.GetID(), Login: c.GetUser().GetLogin(), Body: c.GetBody()})
	}
	return out, nil
}

func (r *Repo) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := r.gh.Issues.CreateComment(ctx, r.owner, r.name, number, &gh.IssueComment{Body: gh.String(body)})
	return err
}

func (r *Repo) EditComment(ctx context.Context, id int64, body string) error {
	_, _, err := r.gh.Issues.EditComment(ctx, r.owner, r.name, id, &gh.IssueComment{Body: gh.String(body)})
	return err
}

func isNotFound(err error) bool {
	var ge *gh.ErrorResponse
	return errors.As(err, &ge) && ge.Response != nil && ge.Response.StatusCode == http.StatusNotFound
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return gh.String(s)
}

func timestamp(t *time.Time) *gh.Timestamp {
	if t == nil {
		return nil
	}
	return &gh.Timestamp{Time: *t}
}

func output(o checks.Output) *gh.CheckRunOutput {
	return &gh.CheckRunOutput{Title: gh.String(o.Title), Summary: gh.String(o.Summary)}
}

func fromCheckRun(c *gh.CheckRun, sent checks.Run) checks.Run {
	run := sent
	run.ID = c.GetID()
	if c.Name != nil {
		run.Name = c.GetName()
	}
	if c.HeadSHA != nil {
		run.HeadSHA = c.GetHeadSHA()
	}
	if c.Status != nil {
		run.Status = c.GetStatus()
	}
	if c.Conclusion != nil {
		run.Conclusion = checks.Conclusion(c.GetConclusion())
	}
	if u := c.GetHTMLURL(); u != "" {
		run.DetailsURL = u
	}
	if c.Output != nil {
		run.Output = checks.Output{Title: c.Output.GetTitle(), Summary: c.Output.GetSummary()}
	}
	return run
}
