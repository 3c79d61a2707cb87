// Package api serves the webhook receiver, the CLI delegation endpoint and the
// run history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cx-miguel-neiva/lightkeeper/internal/config"
	"github.com/cx-miguel-neiva/lightkeeper/internal/db"
	"github.com/cx-miguel-neiva/lightkeeper/internal/github"
	"github.com/cx-miguel-neiva/lightkeeper/internal/handler"
	"github.com/cx-miguel-neiva/lightkeeper/internal/model"
	"github.com/cx-miguel-neiva/lightkeeper/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// BotCI is the `ci` value configurations sent through /run must carry.
const BotCI = "lightkeeperbot"

// Store reads the run history.
type Store interface {
	ListRuns(ctx context.Context, repo string, limit int) ([]model.Run, error)
	GetRun(ctx context.Context, id string) (model.Run, error)
	GetDistinctRepos(ctx context.Context) ([]string, error)
}

// PullRequests fetches a single pull request.
type PullRequests interface {
	PullRequest(ctx context.Context, owner, name string, number int) (*github.PullRequest, error)
}

// Options wire a Server.
type Options struct {
	WebhookSecret  string
	APIKey         string
	AllowedOrigins []string
	// Session is the template of every run; its Logger is ignored.
	Session      session.Options
	Hosts        func(owner, name string) session.Host
	PullRequests PullRequests
	Events       *handler.Handler
	Store        Store
	Logger       zerolog.Logger
}

type Server struct {
	opts Options
	log  zerolog.Logger
	runs conc.WaitGroup
}

func New(opts Options) *Server {
	return &Server{opts: opts, log: opts.Logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhooks", s.webhook)
	r.Post("/run", s.run)

	r.Route("/api", func(r chi.Router) {
		origins := s.opts.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
		}))
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/repos", s.listRepos)
	})
	return r
}

// Wait blocks until every run started by a request has finished.
func (s *Server) Wait() { s.runs.Wait() }

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := gh.ValidatePayload(r, []byte(s.opts.WebhookSecret))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}
	eventType := gh.WebHookType(r)
	events, err := s.opts.Events.Events(r.Context(), eventType, payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to handle webhook")
		writeError(w, http.StatusBadRequest, "Failed to handle webhook")
		return
	}

	for _, ev := range events {
		s.start(r.Context(), ev.Owner, ev.Name, ev.Params, nil, ev.Valid, ev.Macros)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"runs": len(events)})
}

type runRequest struct {
	PR     int            `json:"pr"`
	Config map[string]any `json:"config"`
	Repo   struct {
		Owner string `json:"owner"`
		Name  string `json:"name"`
	} `json:"repo"`
	Macros map[string]string `json:"macros"`
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if s.opts.APIKey == "" || r.Header.Get("Authorization") != s.opts.APIKey {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PR <= 0 || req.Repo.Owner == "" || req.Repo.Name == "" {
		writeError(w, http.StatusBadRequest, "pr and repo are required")
		return
	}
	cfg, err := config.FromMap(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pr, err := s.opts.PullRequests.PullRequest(r.Context(), req.Repo.Owner, req.Repo.Name, req.PR)
	if err != nil {
		s.log.Error().Err(err).Int("pr", req.PR).Msg("failed to fetch pull request")
		writeError(w, http.StatusBadRequest, "Failed to authenticate")
		return
	}
	if pr.State != "open" {
		writeError(w, http.StatusNotFound, "Pull Request is closed")
		return
	}

	params := session.Params{
		Repo:       req.Repo.Owner + "/" + req.Repo.Name,
		HeadBranch: pr.HeadRef,
		HeadSHA:    pr.HeadSHA,
		PullNumber: pr.Number,
	}
	s.start(r.Context(), req.Repo.Owner, req.Repo.Name, params, cfg, session.IsValidCheck([]string{BotCI}, config.DefaultType), req.Macros)
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "The request has been sent to Lightkeeper."})
}

// start runs a session in the background, detached from the request.
func (s *Server) start(ctx context.Context, owner, name string, p session.Params, cfg *config.Config, valid session.Validator, macros map[string]string) {
	ctx = context.WithoutCancel(ctx)
	opts := s.opts.Session
	opts.Logger = s.log
	host := s.opts.Hosts(owner, name)

	s.runs.Go(func() {
		_, err := session.New(host, opts).Start(ctx, p, cfg, valid, macros)
		if err != nil {
			s.log.Error().Err(err).Str("repo", p.Repo).Int("pr", p.PullNumber).Msg("run failed")
		}
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	repo := strings.TrimSpace(r.URL.Query().Get("repo"))

	runs, err := s.opts.Store.ListRuns(r.Context(), repo, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	writeJSON(w, http.StatusOK, model.NewHistory(runs))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.opts.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.opts.Store.GetDistinctRepos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch repos")
		return
	}
	if repos == nil {
		repos = []string{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
