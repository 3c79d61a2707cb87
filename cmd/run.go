package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/config"
	"github.com/cx-miguel-neiva/lightkeeper/internal/urlfmt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultHost = "app.lightkeeper.dev"

const emptyPRMessage = "Lightkeeper is only for Pull Requests. Empty --pr found."

var errEmptyPR = errors.New("empty pull request number")

type runOptions struct {
	pr         int
	repo       string
	configPath string
	host       string
	apiKey     string
	baseURL    string
}

// runCmd returns the command that asks a Lightkeeper server to run a pull request
func runCmd() *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run [baseUrl]",
		Short: "Send the local configuration of a pull request to a Lightkeeper server",
		Long: `Reads the configuration file from the working directory and asks the Lightkeeper
server to run it against the given pull request. Set "ci" to "lightkeeperbot" in the
configuration to prevent double runs. The optional baseUrl is available to the
configuration as the {base_url} macro.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				o.baseURL = args[0]
			}
			message, err := sendRun(cmd.Context(), o)
			if errors.Is(err, errEmptyPR) {
				fmt.Fprintln(cmd.OutOrStdout(), emptyPRMessage)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	travisPR, _ := strconv.Atoi(os.Getenv("TRAVIS_PULL_REQUEST"))
	cmd.Flags().IntVar(&o.pr, "pr", travisPR, "The Pull Request number (default: TRAVIS_PULL_REQUEST)")
	cmd.Flags().StringVar(&o.repo, "repo", os.Getenv("TRAVIS_PULL_REQUEST_SLUG"), "The repo's owner and name joined by a slash (default: TRAVIS_PULL_REQUEST_SLUG)")
	cmd.Flags().StringVar(&o.configPath, "config-path", config.DefaultPath, "The configuration path (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&o.host, "host", defaultHost, "The Lightkeeper server")
	cmd.Flags().StringVar(&o.apiKey, "api-key", "", "The key of the Lightkeeper server")

	return cmd
}

type runRequest struct {
	PR     int               `json:"pr"`
	Config map[string]any    `json:"config"`
	Repo   runRepo           `json:"repo"`
	Macros map[string]string `json:"macros,omitempty"`
}

type runRepo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// sendRun validates o, reads the configuration and posts it to the server's
// /run endpoint. It returns the server's message.
func sendRun(ctx context.Context, o runOptions) (string, error) {
	if o.pr <= 0 {
		return "", errEmptyPR
	}
	owner, name, ok := strings.Cut(o.repo, "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("--repo is required and must be owner/name, got %q", o.repo)
	}

	raw, err := readRunConfig(o.configPath)
	if err != nil {
		return "", err
	}
	if _, err := config.FromMap(raw); err != nil {
		return "", err
	}

	body := runRequest{PR: o.pr, Config: raw, Repo: runRepo{Owner: owner, Name: name}}
	if o.baseURL != "" {
		body.Macros = map[string]string{urlfmt.BaseURL: o.baseURL}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := o.host
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/") + "/run"

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("endpoint", endpoint).Int("pr", o.pr).Msg("Sending run request")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("there was a problem with the request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	_ = json.Unmarshal(respBody, &out)

	if resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return "", fmt.Errorf("lightkeeper responded %d: %s", resp.StatusCode, msg)
	}
	if out.Message == "" {
		out.Message = "Process ran successfully"
	}
	return out.Message, nil
}

func readRunConfig(path string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("--config-path needs to be a .json, .yaml or .yml file path")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	var raw map[string]any
	if ext == ".json" {
		err = json.Unmarshal(content, &raw)
	} else {
		err = yaml.Unmarshal(content, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("the configuration needs to be an object")
	}
	return raw, nil
}
