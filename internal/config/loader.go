package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/rs/zerolog"
)

// DefaultPath is where the document lives unless configured otherwise.
const DefaultPath = ".github/lightkeeper.json"

// ErrNotFound is returned by a Source when the file does not exist.
var ErrNotFound = errors.New("file not found")

// File is one file changed by a pull request.
type File struct {
	Name   string
	Status string
}

// Source reads files from the repository host.
type Source interface {
	ListPullRequestFiles(ctx context.Context, number int) ([]File, error)
	// FileContents returns the decoded file at ref, or on the default branch
	// when ref is empty.
	FileContents(ctx context.Context, path, ref string) ([]byte, error)
}

// Loader fetches the configuration for a pull request and reports invalid
// documents as an action_required check run.
type Loader struct {
	source Source
	status *checks.Status
	path   string
	log    zerolog.Logger
}

func NewLoader(source Source, status *checks.Status, path string, logger zerolog.Logger) *Loader {
	if path == "" {
		path = DefaultPath
	}
	return &Loader{source: source, status: status, path: path, log: logger}
}

// Load returns the configuration that applies to the pull request. A missing or
// rejected document yields an empty Config and no error; only transport
// failures are returned.
func (l *Loader) Load(ctx context.Context, headRef string, pr int) (*Config, error) {
	data, err := l.fetch(ctx, headRef, pr)
	if errors.Is(err, ErrNotFound) {
		l.log.Debug().Str("path", l.path).Msg("no configuration found")
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", l.path, err)
	}

	cfg, err := Parse(data)
	if err == nil {
		return cfg, nil
	}

	title := err.Error()
	prev, findErr := l.status.Find(ctx)
	if findErr != nil {
		l.log.Warn().Err(findErr).Msg("could not look up the previous check run")
	}
	if prev != nil && prev.Output.Title == title {
		return &Config{}, nil
	}
	_, postErr := l.status.Create(ctx, checks.Run{
		Conclusion: checks.ActionRequired,
		Output: checks.Output{
			Title:   title,
			Summary: fmt.Sprintf("Fix `%s` and push again to run the tests.", l.path),
		},
	})
	if postErr != nil {
		l.log.Error().Err(postErr).Msg("failed to report the invalid configuration")
	}
	return &Config{}, nil
}

// fetch prefers the pull request's own copy of the file. A pull request that
// deletes the file disables the run rather than falling back to the default
// branch.
func (l *Loader) fetch(ctx context.Context, headRef string, pr int) ([]byte, error) {
	files, err := l.source.ListPullRequestFiles(ctx, pr)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Name != l.path {
			continue
		}
		if f.Status == "removed" {
			return nil, ErrNotFound
		}
		return l.source.FileContents(ctx, l.path, headRef)
	}
	return l.source.FileContents(ctx, l.path, "")
}
