package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/config"
	"github.com/cx-miguel-neiva/lightkeeper/internal/db"
	"github.com/cx-miguel-neiva/lightkeeper/internal/github"
	"github.com/cx-miguel-neiva/lightkeeper/internal/handler"
	"github.com/cx-miguel-neiva/lightkeeper/internal/runner"
	"github.com/cx-miguel-neiva/lightkeeper/internal/session"
	"github.com/cx-miguel-neiva/lightkeeper/web/api"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	port             int
	webhookSecret    string
	appName          string
	botName          string
	githubToken      string
	githubAPIURL     string
	lighthouseURL    string
	lighthouseSecret string
	apiKey           string
	configPath       string
	dbPath           string
	allowedOrigins   []string
}

// serveCmd returns the command running the webhook server
func serveCmd() *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive GitHub webhooks and run Lighthouse budgets on pull requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, o)
		},
	}

	cmd.Flags().IntVar(&o.port, "port", 3000, "Port to listen on")
	cmd.Flags().StringVar(&o.webhookSecret, "webhook-secret", "", "Secret used to sign GitHub webhook deliveries")
	cmd.Flags().StringVar(&o.appName, "app-name", "Lightkeeper", "Name of the check run this app creates")
	cmd.Flags().StringVar(&o.botName, "bot-name", "lightkeeper-ci[bot]", "Login the app comments as")
	cmd.Flags().StringVar(&o.githubToken, "github-token", "", "GitHub token used for API calls")
	cmd.Flags().StringVar(&o.githubAPIURL, "github-api-url", "", "GitHub API root, for GitHub Enterprise")
	cmd.Flags().StringVar(&o.lighthouseURL, "lighthouse-url", "", "Default Lighthouse endpoint")
	cmd.Flags().StringVar(&o.lighthouseSecret, "lighthouse-secret", "", "Authorization sent to the default Lighthouse endpoint")
	cmd.Flags().StringVar(&o.apiKey, "api-key", "", "Key required by the /run endpoint")
	cmd.Flags().StringVar(&o.configPath, "config-file-path", config.DefaultPath, "Path of the configuration file in repositories")
	cmd.Flags().StringVar(&o.dbPath, "db", "data/lightkeeper.db", "Path to the SQLite run history")
	cmd.Flags().StringSliceVar(&o.allowedOrigins, "allowed-origins", nil, "Origins allowed to read the history API")

	return cmd
}

func serve(ctx context.Context, o serveOptions) error {
	absDbPath, err := filepath.Abs(o.dbPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for db: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absDbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	conn, err := db.NewConnection(absDbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := github.NewClient(ctx, o.githubToken, o.githubAPIURL)
	if err != nil {
		return err
	}

	defaults := runner.Defaults{URL: o.lighthouseURL, Secret: o.lighthouseSecret}
	server := api.New(api.Options{
		WebhookSecret:  o.webhookSecret,
		APIKey:         o.apiKey,
		AllowedOrigins: o.allowedOrigins,
		Session: session.Options{
			AppName:    o.appName,
			BotName:    o.botName,
			ConfigPath: o.configPath,
			NewAuditor: func(lighthouse any, installationNode string) (session.Auditor, error) {
				r, err := runner.Setup(defaults, lighthouse, installationNode)
				if err != nil {
					return nil, err
				}
				return r, nil
			},
			Recorder: conn,
		},
		Hosts: func(owner, name string) session.Host {
			return client.Repo(owner, name)
		},
		PullRequests: client,
		Events:       handler.New(o.appName, client, log.Logger),
		Store:        conn,
		Logger:       log.Logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", o.port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Int("port", o.port).Msg("Server is running")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down, waiting for running sessions")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down cleanly")
		}
	}
	server.Wait()
	return nil
}
