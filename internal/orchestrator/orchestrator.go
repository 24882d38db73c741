// Package orchestrator owns the refresh lifecycle: it resolves the
// authentication state, coordinates per-tab fan-out fetches against the
// Cloudflare API, tolerates partial failures per resource type, and is
// the only writer of the application state.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/credentials"
	"github.com/sushaantu/CloudflareStatusBar/internal/notify"
	"github.com/sushaantu/CloudflareStatusBar/internal/prefs"
	"github.com/sushaantu/CloudflareStatusBar/internal/profile"
	"github.com/sushaantu/CloudflareStatusBar/internal/state"
	"github.com/sushaantu/CloudflareStatusBar/internal/usage"
)

// DefaultAutoRefreshSpec fires a refresh every five minutes while the
// popover is shown.
const DefaultAutoRefreshSpec = "@every 5m"

// Tab identifies which view is in front, which decides the resources
// fetched eagerly.
type Tab string

const (
	TabOverview Tab = "overview"
	TabWorkers  Tab = "workers"
	TabPages    Tab = "pages"
	TabStorage  Tab = "storage"
)

// APIClient is the slice of the Cloudflare client the orchestrator uses.
type APIClient interface {
	ListAccounts(ctx context.Context) ([]cloudflare.Account, error)
	ListWorkers(ctx context.Context, accountID string) ([]cloudflare.Worker, error)
	GetWorker(ctx context.Context, accountID, name string) (*cloudflare.Worker, error)
	ListPagesProjects(ctx context.Context, accountID string) ([]cloudflare.PagesProject, error)
	ListKVNamespaces(ctx context.Context, accountID string) ([]cloudflare.KVNamespace, error)
	ListR2Buckets(ctx context.Context, accountID string) ([]cloudflare.R2Bucket, error)
	ListD1Databases(ctx context.Context, accountID string) ([]cloudflare.D1Database, error)
	ListQueues(ctx context.Context, accountID string) ([]cloudflare.Queue, error)
}

// UsageFetcher retrieves the usage summary for an account.
type UsageFetcher interface {
	Fetch(ctx context.Context, accountID string) (usage.Metrics, error)
}

// CredentialResolver supplies the layered credential resolution.
type CredentialResolver interface {
	Resolve() credentials.Credentials
}

// ProfileSource exposes the active profile for display.
type ProfileSource interface {
	Active() (profile.Profile, bool)
}

// Orchestrator coordinates refreshes. Every trigger supersedes the
// refresh already in flight: the old one is cancelled and its remaining
// commits are discarded, so state only ever reflects the newest request.
type Orchestrator struct {
	state    *state.Store
	api      APIClient
	usage    UsageFetcher
	resolver CredentialResolver
	profiles ProfileSource
	prefs    prefs.Store
	tracker  *notify.DeploymentTracker
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	gen       uint64
	activeTab Tab
	closed    bool

	wg sync.WaitGroup

	cron     *cron.Cron
	cronSpec string
	cronID   cron.EntryID
	cronOn   bool
}

// Options configures an Orchestrator.
type Options struct {
	State           *state.Store
	API             APIClient
	Usage           UsageFetcher
	Resolver        CredentialResolver
	Profiles        ProfileSource // optional
	Prefs           prefs.Store
	Tracker         *notify.DeploymentTracker // optional
	Logger          *slog.Logger
	Now             func() time.Time // test hook, defaults to time.Now
	AutoRefreshSpec string           // cron schedule, defaults to every five minutes
}

// New creates an orchestrator. The store starts unauthenticated; call
// CheckAuthentication to bootstrap.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	st := opts.State
	if st == nil {
		st = state.NewStore()
	}
	spec := opts.AutoRefreshSpec
	if spec == "" {
		spec = DefaultAutoRefreshSpec
	}

	return &Orchestrator{
		state:     st,
		api:       opts.API,
		usage:     opts.Usage,
		resolver:  opts.Resolver,
		profiles:  opts.Profiles,
		prefs:     opts.Prefs,
		tracker:   opts.Tracker,
		logger:    logger,
		now:       now,
		activeTab: TabOverview,
		cron:      cron.New(),
		cronSpec:  spec,
	}
}

// State returns the store for readers and subscribers.
func (o *Orchestrator) State() *state.Store {
	return o.state
}

// SetActiveTab records which tab is in front. The next refresh fetches
// that tab's resources first.
func (o *Orchestrator) SetActiveTab(tab Tab) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeTab = tab
}

// ActiveTab returns the tab the next refresh will prioritize.
func (o *Orchestrator) ActiveTab() Tab {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeTab
}

// CheckAuthentication re-resolves credentials and the active profile,
// updates the authentication flag, and starts a refresh when signed in.
func (o *Orchestrator) CheckAuthentication() {
	creds := o.resolver.Resolve()
	var profileID, profileName string
	if o.profiles != nil {
		if p, ok := o.profiles.Active(); ok {
			profileID = p.ID
			profileName = p.Name
		}
	}

	authenticated := creds.Authenticated()
	o.state.Update(func(s *state.Snapshot) {
		s.Authenticated = authenticated
		s.ActiveProfileID = profileID
		s.ActiveProfileName = profileName
	})
	o.logger.Info("authentication checked",
		"authenticated", authenticated,
		"profile", profileName,
	)

	if authenticated {
		o.Refresh()
	}
}

// SelectAccount persists the account choice, clears the per-account
// derived data, and refreshes under the new account.
func (o *Orchestrator) SelectAccount(id string) {
	o.invalidate()

	if err := o.prefs.Set(prefs.KeySelectedAccountID, id); err != nil {
		o.logger.Warn("failed to persist account selection", "error", err)
	}
	if o.tracker != nil {
		o.tracker.Reset()
	}

	o.state.Update(func(s *state.Snapshot) {
		s.SelectedAccountID = id
		s.Usage = usage.Metrics{}
		s.UsageError = ""
		s.RecentActivity = nil
		s.WorkersLoaded = false
		s.PagesLoaded = false
		s.KVLoaded = false
		s.R2Loaded = false
		s.D1Loaded = false
		s.QueuesLoaded = false
	})

	o.logger.Info("account selected", "account_id", id)
	o.Refresh()
}

// ProfileChanged re-bootstraps under a new identity: all fetched data is
// dropped and authentication is re-resolved.
func (o *Orchestrator) ProfileChanged() {
	o.invalidate()

	if o.tracker != nil {
		o.tracker.Reset()
	}

	o.state.Update(func(s *state.Snapshot) {
		s.Accounts = nil
		s.SelectedAccountID = ""
		s.Workers = nil
		s.PagesProjects = nil
		s.KVNamespaces = nil
		s.R2Buckets = nil
		s.D1Databases = nil
		s.Queues = nil
		s.WorkersLoaded = false
		s.PagesLoaded = false
		s.KVLoaded = false
		s.R2Loaded = false
		s.D1Loaded = false
		s.QueuesLoaded = false
		s.Usage = usage.Metrics{}
		s.UsageError = ""
		s.RecentActivity = nil
		s.LastError = ""
		s.LastRefresh = time.Time{}
	})

	o.logger.Info("profile changed, re-bootstrapping")
	o.CheckAuthentication()
}

// Refresh starts a refresh for the active tab, superseding any refresh
// already in flight.
func (o *Orchestrator) Refresh() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.gen++
	gen := o.gen
	tab := o.activeTab
	o.wg.Add(1)
	o.mu.Unlock()

	go o.runRefresh(ctx, gen, tab)
}

// StartAutoRefresh begins the periodic refresh while the popover is
// shown. Idempotent.
func (o *Orchestrator) StartAutoRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cronOn || o.closed {
		return
	}
	id, err := o.cron.AddFunc(o.cronSpec, o.Refresh)
	if err != nil {
		o.logger.Error("invalid auto-refresh schedule", "schedule", o.cronSpec, "error", err)
		return
	}
	o.cronID = id
	o.cronOn = true
	o.cron.Start()
	o.logger.Info("auto-refresh started", "schedule", o.cronSpec)
}

// StopAutoRefresh halts the periodic refresh when the popover hides.
func (o *Orchestrator) StopAutoRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopAutoRefreshLocked()
}

func (o *Orchestrator) stopAutoRefreshLocked() {
	if !o.cronOn {
		return
	}
	o.cron.Remove(o.cronID)
	o.cron.Stop()
	o.cronOn = false
	o.logger.Info("auto-refresh stopped")
}

// Wait blocks until no refresh is in flight.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels in-flight work, stops the timer, and waits for the
// refresh goroutine to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.stopAutoRefreshLocked()
	o.mu.Unlock()
	o.wg.Wait()
}

// invalidate cancels the in-flight refresh and orphans its pending
// commits before state is rewritten for a new identity or account.
func (o *Orchestrator) invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
}

// commit applies a state mutation only while its refresh generation is
// still current, so a superseded refresh can no longer touch state.
func (o *Orchestrator) commit(gen uint64, mutate func(*state.Snapshot)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return false
	}
	o.state.Update(mutate)
	return true
}
