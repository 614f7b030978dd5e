// Package orchestrator coordinates the candidate workspace and submission
// lifecycle: provisioning repos from templates, dispatching and polling CI
// runs, and persisting at-most-once submissions with progress advancement.
package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"tenon/internal/catalog"
	"tenon/internal/forge"
	"tenon/internal/governor"
	"tenon/internal/store"
)

// Store combines the repositories the orchestrator needs.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.SessionStore
	store.TaskStore
	store.WorkspaceStore
	store.SubmissionStore
}

// Config carries the forge and pacing settings for the orchestrator.
type Config struct {
	// RepoPrefix prefixes every generated workspace repository name.
	RepoPrefix string
	// Org is the default owner for generated repositories.
	Org string
	// TemplateOwner overrides Org when a task template is unqualified.
	TemplateOwner string
	// WorkflowFile is the workflow polled on every task template.
	WorkflowFile string
	// RunTimeout bounds the dispatch-and-poll loop.
	RunTimeout time.Duration
	// PollInterval is the initial interval between run polls.
	PollInterval time.Duration
}

// Poll pacing. The interval doubles on every empty poll and is capped at 8s;
// clients preferring asynchronous polling are told to come back after
// pollAfterMs.
const (
	maxPollInterval = 8 * time.Second
	pollAfterMs     = 2000

	pollThrottleInterval = 2 * time.Second
)

// Per-action sliding-window budgets, keyed per candidate session.
var actionPolicies = map[string]struct {
	limit  int
	window time.Duration
}{
	"init":   {limit: 20, window: 30 * time.Second},
	"run":    {limit: 20, window: 30 * time.Second},
	"poll":   {limit: 15, window: 30 * time.Second},
	"submit": {limit: 10, window: 30 * time.Second},
}

// Orchestrator is the core service. All dependencies are injected; there is
// no process-wide state beyond what the governor carries.
type Orchestrator struct {
	store   Store
	forge   forge.API
	gov     *governor.Governor
	catalog *catalog.Catalog
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	ins     instruments
}

// New creates an orchestrator with defaulted pacing settings.
func New(s Store, f forge.API, g *governor.Governor, cat *catalog.Catalog, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.WorkflowFile == "" {
		cfg.WorkflowFile = "tenon-tests.yml"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TemplateOwner == "" {
		cfg.TemplateOwner = cfg.Org
	}
	return &Orchestrator{
		store:   s,
		forge:   f,
		gov:     g,
		catalog: cat,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		ins:     newInstruments(),
	}
}

// gate applies the per-action sliding-window budget for a session.
func (o *Orchestrator) gate(action string, sessionID int64) error {
	p, ok := actionPolicies[action]
	if !ok {
		return nil
	}
	key := governor.Key("candidate", strconv.FormatInt(sessionID, 10), action)
	return o.gov.Allow(key, p.limit, p.window)
}

func sessionKey(sessionID int64, parts ...string) string {
	all := append([]string{"candidate", strconv.FormatInt(sessionID, 10)}, parts...)
	return governor.Key(all...)
}
