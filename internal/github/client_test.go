package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/checks"
	"github.com/cx-miguel-neiva/lightkeeper/internal/config"
)

func setup(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := newClient(nil, srv.URL)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c, mux
}

func TestCreateAndUpdateCheckRun(t *testing.T) {
	c, mux := setup(t)
	var created, updated map[string]any
	mux.HandleFunc("POST /repos/o/r/check-runs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&created)
		fmt.Fprint(w, `{"id": 11, "name": "Lightkeeper", "status": "in_progress", "html_url": "https://github.com/o/r/runs/11"}`)
	})
	mux.HandleFunc("PATCH /repos/o/r/check-runs/11", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&updated)
		fmt.Fprint(w, `{"id": 11, "status": "completed", "conclusion": "failure"}`)
	})

	repo := c.Repo("o", "r")
	now := time.Now()
	run, err := repo.CreateCheckRun(context.Background(), checks.Run{
		Name: "Lightkeeper", HeadSHA: "abc", Status: checks.StatusInProgress, StartedAt: &now,
		Output: checks.Output{Title: "Attempting to run tests for 1 url"},
	})
	if err != nil {
		t.Fatalf("CreateCheckRun: %v", err)
	}
	if run.ID != 11 || run.DetailsURL != "https://github.com/o/r/runs/11" {
		t.Errorf("run = %+v", run)
	}
	if created["head_sha"] != "abc" || created["status"] != "in_progress" {
		t.Errorf("request = %v", created)
	}
	if _, ok := created["conclusion"]; ok {
		t.Error("in-progress runs must not send a conclusion")
	}

	run, err = repo.UpdateCheckRun(context.Background(), checks.Run{
		ID: 11, Name: "Lightkeeper", Status: checks.StatusCompleted, Conclusion: checks.Failure, CompletedAt: &now,
		Output: checks.Output{Title: "Found 1 error across 1 URL.", Summary: "details"},
	})
	if err != nil {
		t.Fatalf("UpdateCheckRun: %v", err)
	}
	if run.Conclusion != checks.Failure {
		t.Errorf("conclusion = %q", run.Conclusion)
	}
	out, _ := updated["output"].(map[string]any)
	if out["summary"] != "details" || updated["conclusion"] != "failure" {
		t.Errorf("request = %v", updated)
	}
}

func TestLatestCheckRun(t *testing.T) {
	c, mux := setup(t)
	mux.HandleFunc("GET /repos/o/r/commits/abc/check-runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("check_name") != "Lightkeeper" || r.URL.Query().Get("filter") != "latest" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"total_count": 1, "check_runs": [{"id": 3, "output": {"title": "Missing required keys or invalid types: ci"}}]}`)
	})
	mux.HandleFunc("GET /repos/o/r/commits/none/check-runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count": 0, "check_runs": []}`)
	})

	run, err := c.Repo("o", "r").LatestCheckRun(context.Background(), "abc", "Lightkeeper")
	if err != nil || run == nil {
		t.Fatalf("LatestCheckRun = %v, %v", run, err)
	}
	if run.Output.Title != "Missing required keys or invalid types: ci" {
		t.Errorf("title = %q", run.Output.Title)
	}

	run, err = c.Repo("o", "r").LatestCheckRun(context.Background(), "none", "Lightkeeper")
	if err != nil || run != nil {
		t.Errorf("LatestCheckRun without runs = %v, %v", run, err)
	}
}

func TestFileContents(t *testing.T) {
	c, mux := setup(t)
	doc := `{"baseUrl":"https://x.dev","ci":"travis"}`
	mux.HandleFunc("GET /repos/o/r/contents/.github/lightkeeper.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ref") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
			return
		}
		fmt.Fprintf(w, `{"type": "file", "encoding": "base64", "content": %q}`, base64.StdEncoding.EncodeToString([]byte(doc)))
	})

	repo := c.Repo("o", "r")
	data, err := repo.FileContents(context.Background(), config.DefaultPath, "feature")
	if err != nil {
		t.Fatalf("FileContents: %v", err)
	}
	if string(data) != doc {
		t.Errorf("content = %q", data)
	}

	_, err = repo.FileContents(context.Background(), config.DefaultPath, "gone")
	if !errors.Is(err, config.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPullRequestFilesAndComments(t *testing.T) {
	c, mux := setup(t)
	mux.HandleFunc("GET /repos/o/r/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"filename": ".github/lightkeeper.json", "status": "removed"}]`)
	})
	mux.HandleFunc("GET /repos/o/r/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 1, "body": "hi", "user": {"login": "human"}}, {"id": 2, "body": "report", "user": {"login": "lightkeeper[bot]"}}]`)
	})
	var edited map[string]any
	mux.HandleFunc("PATCH /repos/o/r/issues/comments/2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&edited)
		fmt.Fprint(w, `{"id": 2}`)
	})

	repo := c.Repo("o", "r")
	files, err := repo.ListPullRequestFiles(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListPullRequestFiles: %v", err)
	}
	if len(files) != 1 || files[0].Status != "removed" {
		t.Errorf("files = %+v", files)
	}

	list, err := repo.ListComments(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(list) != 2 || list[1].Login != "lightkeeper[bot]" || list[1].ID != 2 {
		t.Errorf("comments = %+v", list)
	}
	if err := repo.EditComment(context.Background(), 2, "new report"); err != nil {
		t.Fatalf("EditComment: %v", err)
	}
	if edited["body"] != "new report" {
		t.Errorf("edit body = %v", edited)
	}
}

func TestOpenPullRequestsForCommit(t *testing.T) {
	c, mux := setup(t)
	mux.HandleFunc("GET /repos/o/r/commits/abc/pulls", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number": 3, "state": "closed", "head": {"ref": "old", "sha": "abc"}},
			{"number": 4, "state": "open", "head": {"ref": "feature", "sha": "abc"}}
		]`)
	})

	prs, err := c.OpenPullRequestsForCommit(context.Background(), "o", "r", "abc")
	if err != nil {
		t.Fatalf("OpenPullRequestsForCommit: %v", err)
	}
	if len(prs) != 1 || prs[0].Number != 4 || prs[0].HeadRef != "feature" {
		t.Errorf("prs = %+v", prs)
	}
}
