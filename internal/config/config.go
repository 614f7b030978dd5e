// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Deployment environment name ("local", "test", "staging", "production")
	Environment string

	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// GitHub API access
	GithubAPIBase       string
	GithubToken         string
	GithubOrg           string
	GithubTemplateOwner string

	// Workflow file dispatched for test runs
	WorkflowFile string

	// Prefix for generated workspace repository names
	RepoPrefix string

	// Upper bound on a dispatched run before the client is told to poll
	RunTimeout time.Duration

	// Whether per-session rate limiting is enforced
	RateLimitEnabled bool

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// Base URL of the candidate portal, used by the CLI
	PortalBaseURL string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	env := os.Getenv("TENON_ENV")
	if env == "" {
		env = "local"
	}

	dbUrl := os.Getenv("DATABASE_URL")
	if dbUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	portStr := os.Getenv("PORT")
	port := 7171 // Default
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is required")
	}

	org := os.Getenv("GITHUB_ORG")
	if org == "" {
		return nil, fmt.Errorf("GITHUB_ORG is required")
	}

	apiBase := os.Getenv("GITHUB_API_BASE")
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}

	templateOwner := os.Getenv("GITHUB_TEMPLATE_OWNER")
	if templateOwner == "" {
		templateOwner = org
	}

	workflowFile := os.Getenv("ACTIONS_WORKFLOW_FILE")
	if workflowFile == "" {
		workflowFile = "tenon-tests.yml"
	}

	repoPrefix := os.Getenv("WORKSPACE_REPO_PREFIX")
	if repoPrefix == "" {
		repoPrefix = "candidate-"
	}

	runTimeout := 2 * time.Minute // Default
	if s := os.Getenv("RUN_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_TIMEOUT: %w", err)
		}
		runTimeout = d
	}

	// Rate limiting is on everywhere except local development and tests,
	// unless explicitly overridden.
	rateLimit := env != "local" && env != "test"
	if s := os.Getenv("RATE_LIMIT_ENABLED"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
		}
		rateLimit = b
	}

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	portalURL := os.Getenv("CANDIDATE_PORTAL_BASE_URL")
	if portalURL == "" {
		portalURL = fmt.Sprintf("http://localhost:%d", port)
	}

	return &Config{
		Environment:         env,
		DatabaseURL:         dbUrl,
		HTTPPort:            port,
		GithubAPIBase:       apiBase,
		GithubToken:         token,
		GithubOrg:           org,
		GithubTemplateOwner: templateOwner,
		WorkflowFile:        workflowFile,
		RepoPrefix:          repoPrefix,
		RunTimeout:          runTimeout,
		RateLimitEnabled:    rateLimit,
		OTELEndpoint:        otelEndpoint,
		PortalBaseURL:       portalURL,
	}, nil
}
