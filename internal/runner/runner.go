// Package runner is the HTTP client of the Lighthouse audit endpoint.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cx-miguel-neiva/lightkeeper/internal/budget"
	"github.com/cx-miguel-neiva/lightkeeper/internal/settings"
)

// Timeout caps a single audit request.
const Timeout = 60 * time.Second

// forwarded are the option keys sent to the default endpoint.
var forwarded = []string{"options", "config", "puppeteerConfig"}

// ErrNoEndpoint is returned by Setup when neither the server nor the
// repository configuration names an audit endpoint.
var ErrNoEndpoint = errors.New("the Lighthouse endpoint is required")

// Result is the audit of one URL.
type Result struct {
	Categories        budget.CategoryList `json:"categories"`
	Budgets           []budget.Resource   `json:"budgets"`
	ReportURL         string              `json:"reportUrl,omitempty"`
	LighthouseVersion string              `json:"lighthouseVersion,omitempty"`
}

// AuditError is a failed or rejected audit request.
type AuditError struct {
	URL        string
	StatusCode int
	// Message is the endpoint's own error text when it sent one.
	Message string
	Err     error
}

func (e *AuditError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("lighthouse endpoint returned %d", e.StatusCode)
	}
}

func (e *AuditError) Unwrap() error { return e.Err }

// Defaults are the server-wide endpoint and its shared secret.
type Defaults struct {
	URL    string
	Secret string
	Client *http.Client
}

// Runner sends audit requests for one run.
type Runner struct {
	defaults         Defaults
	endpoint         string
	auth             string
	installationNode string
	options          map[string]any
	client           *http.Client
}

// Setup prepares a runner from the repository's top-level `lighthouse` value,
// which is either a custom endpoint URL or an object with an optional `url`.
// A custom endpoint is authorized with the installation node id instead of the
// shared secret.
func Setup(d Defaults, lighthouse any, installationNode string) (*Runner, error) {
	r := &Runner{
		defaults:         d,
		endpoint:         d.URL,
		auth:             d.Secret,
		installationNode: installationNode,
		client:           d.Client,
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: Timeout}
	}

	endpoint, options := parse(lighthouse)
	r.options = options
	if endpoint != "" && endpoint != d.URL {
		r.endpoint = endpoint
		r.auth = installationNode
	} else {
		r.options = filter(options)
	}
	if r.endpoint == "" {
		return nil, ErrNoEndpoint
	}
	return r, nil
}

// Run audits url. budgets are sent as Lighthouse performance budgets and
// routeOptions, the route's own `lighthouse` settings, merge over the run's.
func (r *Runner) Run(ctx context.Context, url string, budgets []budget.ResourceGroup, routeOptions any) (*Result, error) {
	endpoint, auth := r.endpoint, r.auth
	body := settings.Merge(nil, r.options)

	if lhURL, lhOptions := parse(routeOptions); lhURL != "" || len(lhOptions) > 0 {
		body = settings.Merge(body, lhOptions)
		if lhURL != "" && lhURL != r.defaults.URL {
			endpoint, auth = lhURL, r.installationNode
		}
		if endpoint == r.defaults.URL {
			body = filter(body)
		}
	}

	headers := http.Header{"Authorization": []string{auth}}
	if custom, ok := body["headers"].(map[string]any); ok {
		headers = make(http.Header, len(custom))
		for k, v := range custom {
			headers.Set(k, fmt.Sprint(v))
		}
	}
	delete(body, "headers")

	if len(budgets) > 0 {
		cfg, _ := body["config"].(map[string]any)
		body["config"] = settings.Merge(cfg, map[string]any{
			"settings": map[string]any{"budgets": budgets},
		})
	}
	body["url"] = url

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &AuditError{URL: url, Err: fmt.Errorf("encoding request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuditError{URL: url, Err: err}
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &AuditError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuditError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &failure)
		return nil, &AuditError{URL: url, StatusCode: resp.StatusCode, Message: failure.Error}
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &AuditError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &res, nil
}

// parse splits a `lighthouse` value into an endpoint and the request options.
func parse(v any) (string, map[string]any) {
	switch c := v.(type) {
	case string:
		return c, map[string]any{}
	case map[string]any:
		url, _ := c["url"].(string)
		opts := make(map[string]any, len(c))
		for k, val := range c {
			if k != "url" {
				opts[k] = val
			}
		}
		return url, opts
	default:
		return "", map[string]any{}
	}
}

// filter keeps only the non-empty option objects the default endpoint accepts.
// Custom headers are kept so they can still override authorization.
func filter(options map[string]any) map[string]any {
	out := make(map[string]any, len(forwarded)+1)
	for _, key := range forwarded {
		if m, ok := options[key].(map[string]any); ok && len(m) > 0 {
			out[key] = m
		}
	}
	if h, ok := options["headers"]; ok {
		out["headers"] = h
	}
	return out
}
