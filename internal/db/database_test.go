package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/model"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	conn, err := NewConnection(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sampleRun(id, repo, conclusion string, at time.Time) model.Run {
	return model.Run{
		ID:          id,
		Repo:        repo,
		PullNumber:  12,
		Branch:      "feature",
		SHA:         "abc123",
		Conclusion:  conclusion,
		ErrorsFound: 1,
		URLCount:    2,
		CreatedAt:   at,
		Routes: []model.RouteResult{
			{URL: "https://pr-12.example.dev/", Passed: 3, Warned: 1},
			{URL: "https://pr-12.example.dev/about", Failed: 1, Improved: 2},
		},
	}
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runs := []model.Run{
		sampleRun("run-1", "acme/site", "failure", base),
		sampleRun("run-2", "acme/site", "success", base.Add(time.Hour)),
		sampleRun("run-3", "acme/docs", "neutral", base.Add(2*time.Hour)),
	}
	for _, r := range runs {
		if err := conn.RecordRun(ctx, r); err != nil {
			t.Fatalf("Failed to record %s: %v", r.ID, err)
		}
	}

	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		got, err := conn.ListRuns(ctx, "", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 runs, got %d", len(got))
		}
		if got[0].ID != "run-3" || got[2].ID != "run-1" {
			t.Errorf("Unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
		}
	})

	t.Run("ListRunsByRepo", func(t *testing.T) {
		got, err := conn.ListRuns(ctx, "acme/site", 1)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(got) != 1 || got[0].ID != "run-2" {
			t.Errorf("Expected only run-2, got %+v", got)
		}
	})

	t.Run("GetRunWithRoutes", func(t *testing.T) {
		got, err := conn.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
		if len(got.Routes) != 2 {
			t.Fatalf("Expected 2 routes, got %d", len(got.Routes))
		}
		if got.Routes[0].URL != "https://pr-12.example.dev/" || got.Routes[0].Warned != 1 {
			t.Errorf("Unexpected first route: %+v", got.Routes[0])
		}
		if got.Routes[1].Failed != 1 || got.Routes[1].Improved != 2 {
			t.Errorf("Unexpected second route: %+v", got.Routes[1])
		}
	})

	t.Run("GetUnknownRun", func(t *testing.T) {
		_, err := conn.GetRun(ctx, "missing")
		if !errors.Is(err, ErrRunNotFound) {
			t.Errorf("Expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("DistinctRepos", func(t *testing.T) {
		repos, err := conn.GetDistinctRepos(ctx)
		if err != nil {
			t.Fatalf("GetDistinctRepos: %v", err)
		}
		if len(repos) != 2 || repos[0] != "acme/docs" || repos[1] != "acme/site" {
			t.Errorf("Unexpected repos: %v", repos)
		}
	})

	t.Run("DuplicateRunIsRejected", func(t *testing.T) {
		if err := conn.RecordRun(ctx, runs[0]); err == nil {
			t.Error("Expected an error recording the same run twice")
		}
		got, err := conn.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if len(got.Routes) != 2 {
			t.Errorf("Rolled back insert must not add routes, got %d", len(got.Routes))
		}
	})

	t.Run("ClearAllData", func(t *testing.T) {
		if err := conn.ClearAllData(); err != nil {
			t.Fatalf("ClearAllData: %v", err)
		}
		got, err := conn.ListRuns(ctx, "", 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected no runs after clearing, got %d", len(got))
		}
	})
}
