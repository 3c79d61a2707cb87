// Package checks creates and updates the bot's check run for one commit.
package checks

import (
	"context"
	"time"
)

// Check run status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Conclusion is the final verdict of a completed check run.
type Conclusion string

const (
	Success        Conclusion = "success"
	Neutral        Conclusion = "neutral"
	Failure        Conclusion = "failure"
	ActionRequired Conclusion = "action_required"
)

// Output is the visible title and markdown body of a check run.
type Output struct {
	Title   string
	Summary string
}

// Run is a check run as sent to and returned by the repository host.
type Run struct {
	ID          int64
	Name        string
	HeadBranch  string
	HeadSHA     string
	Status      string
	Conclusion  Conclusion
	DetailsURL  string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Output      Output
}

// Client is the part of the repository host that manages check runs.
type Client interface {
	CreateCheckRun(ctx context.Context, run Run) (Run, error)
	UpdateCheckRun(ctx context.Context, run Run) (Run, error)
	// LatestCheckRun returns the most recent check run named name on sha, or
	// nil when there is none.
	LatestCheckRun(ctx context.Context, sha, name string) (*Run, error)
}

// Status posts check runs for a fixed name and head commit.
type Status struct {
	client Client
	name   string
	branch string
	sha    string
	now    func() time.Time
}

// NewStatus returns a Status posting check runs called name on the given head.
func NewStatus(client Client, name, branch, sha string) *Status {
	return &Status{client: client, name: name, branch: branch, sha: sha, now: time.Now}
}

// Create posts a new check run. An empty status means completed.
func (s *Status) Create(ctx context.Context, run Run) (Run, error) {
	return s.client.CreateCheckRun(ctx, s.fill(run))
}

// Update modifies the check run identified by run.ID.
func (s *Status) Update(ctx context.Context, run Run) (Run, error) {
	return s.client.UpdateCheckRun(ctx, s.fill(run))
}

// Find returns the latest check run of this bot on the head commit.
func (s *Status) Find(ctx context.Context) (*Run, error) {
	return s.client.LatestCheckRun(ctx, s.sha, s.name)
}

func (s *Status) fill(run Run) Run {
	run.Name = s.name
	run.HeadBranch = s.branch
	run.HeadSHA = s.sha
	if run.Status == "" {
		run.Status = StatusCompleted
	}
	now := s.now()
	if run.Status == StatusCompleted {
		run.CompletedAt = &now
	} else {
		run.StartedAt = &now
		run.Conclusion = ""
	}
	return run
}
