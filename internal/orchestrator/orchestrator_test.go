package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/credentials"
	"github.com/sushaantu/CloudflareStatusBar/internal/notify"
	"github.com/sushaantu/CloudflareStatusBar/internal/prefs"
	"github.com/sushaantu/CloudflareStatusBar/internal/usage"
)

type fakeAPI struct {
	mu sync.Mutex

	accounts    []cloudflare.Account
	accountsErr error

	workers       map[string][]cloudflare.Worker
	workersErr    error
	workerDetails map[string]cloudflare.Worker
	pages         map[string][]cloudflare.PagesProject
	pagesErr      error
	kv            map[string][]cloudflare.KVNamespace
	kvErr         error
	r2            map[string][]cloudflare.R2Bucket
	r2Err         error
	d1            map[string][]cloudflare.D1Database
	d1Err         error
	queues        map[string][]cloudflare.Queue
	queuesErr     error

	calls map[string]int

	// when set, the first ListWorkers call parks until its context is
	// cancelled, signalling workersStarted on entry
	workersBlock   bool
	workersBlocked bool
	workersStarted chan struct{}
}

func (f *fakeAPI) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeAPI) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) setWorkersErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workersErr = err
}

func (f *fakeAPI) setAccountsErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountsErr = err
}

func (f *fakeAPI) setPages(accountID string, projects []cloudflare.PagesProject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages == nil {
		f.pages = make(map[string][]cloudflare.PagesProject)
	}
	f.pages[accountID] = projects
}

func (f *fakeAPI) ListAccounts(ctx context.Context) ([]cloudflare.Account, error) {
	f.count("accounts")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

func (f *fakeAPI) ListWorkers(ctx context.Context, accountID string) ([]cloudflare.Worker, error) {
	f.count("workers")
	f.mu.Lock()
	block := f.workersBlock && !f.workersBlocked
	if block {
		f.workersBlocked = true
	}
	started := f.workersStarted
	err := f.workersErr
	data := f.workers[accountID]
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block {
		<-ctx.Done()
		return nil, cloudflare.NewNetworkError(ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *fakeAPI) GetWorker(ctx context.Context, accountID, name string) (*cloudflare.Worker, error) {
	f.count("worker_detail")
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.workerDetails[name]
	if !ok {
		return nil, cloudflare.NewAPIError("worker not found")
	}
	return &detail, nil
}

func (f *fakeAPI) ListPagesProjects(ctx context.Context, accountID string) ([]cloudflare.PagesProject, error) {
	f.count("pages")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pagesErr != nil {
		return nil, f.pagesErr
	}
	return f.pages[accountID], nil
}

func (f *fakeAPI) ListKVNamespaces(ctx context.Context, accountID string) ([]cloudflare.KVNamespace, error) {
	f.count("kv")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kvErr != nil {
		return nil, f.kvErr
	}
	return f.kv[accountID], nil
}

func (f *fakeAPI) ListR2Buckets(ctx context.Context, accountID string) ([]cloudflare.R2Bucket, error) {
	f.count("r2")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.r2Err != nil {
		return nil, f.r2Err
	}
	return f.r2[accountID], nil
}

func (f *fakeAPI) ListD1Databases(ctx context.Context, accountID string) ([]cloudflare.D1Database, error) {
	f.count("d1")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.d1Err != nil {
		return nil, f.d1Err
	}
	return f.d1[accountID], nil
}

func (f *fakeAPI) ListQueues(ctx context.Context, accountID string) ([]cloudflare.Queue, error) {
	f.count("queues")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queuesErr != nil {
		return nil, f.queuesErr
	}
	return f.queues[accountID], nil
}

type fakeUsage struct {
	mu      sync.Mutex
	metrics usage.Metrics
	err     error
	calls   int
}

func (f *fakeUsage) Fetch(ctx context.Context, accountID string) (usage.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return usage.Metrics{}, f.err
	}
	m := f.metrics
	if m.LastUpdated.IsZero() {
		now := time.Now().UTC()
		m.PeriodStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		m.PeriodEnd = now
		m.LastUpdated = now
	}
	return m, nil
}

func (f *fakeUsage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeUsage) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeResolver struct {
	mu    sync.Mutex
	creds credentials.Credentials
}

func (r *fakeResolver) Resolve() credentials.Credentials {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds
}

func (r *fakeResolver) set(creds credentials.Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = creds
}

type captureNotifier struct {
	mu          sync.Mutex
	deployments []string
}

func (c *captureNotifier) NotifyDeployment(projectName string, status cloudflare.DeploymentStatus, environment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deployments = append(c.deployments, projectName+":"+string(status))
}

func (c *captureNotifier) NotifyWorker(workerName, event string) {}

func (c *captureNotifier) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deployments...)
}

type harness struct {
	api      *fakeAPI
	usage    *fakeUsage
	resolver *fakeResolver
	notifier *captureNotifier
	prefs    prefs.Store
	orch     *Orchestrator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func singleAccountAPI() *fakeAPI {
	return &fakeAPI{
		accounts: []cloudflare.Account{{ID: "acc-1", Name: "Primary"}},
		workers: map[string][]cloudflare.Worker{
			"acc-1": {{ID: "api-worker", ModifiedOn: apiTime(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))}},
		},
		pages: map[string][]cloudflare.PagesProject{
			"acc-1": {{ID: "proj-1", Name: "site"}},
		},
		kv: map[string][]cloudflare.KVNamespace{
			"acc-1": {{ID: "kv-1", Title: "cache"}},
		},
		r2: map[string][]cloudflare.R2Bucket{
			"acc-1": {{Name: "assets"}},
		},
		d1: map[string][]cloudflare.D1Database{
			"acc-1": {{UUID: "db-1", Name: "app"}},
		},
		queues: map[string][]cloudflare.Queue{
			"acc-1": {{ID: "q-1", Name: "jobs"}},
		},
	}
}

func newHarness(t *testing.T, api *fakeAPI, usageFake *fakeUsage) *harness {
	t.Helper()
	logger := testLogger()
	resolver := &fakeResolver{creds: credentials.Credentials{APIToken: "token"}}
	notifier := &captureNotifier{}
	tracker := notify.NewDeploymentTracker(notify.DeploymentTrackerOptions{
		Notifier: notifier,
		Logger:   logger,
	})
	p := prefs.NewMemory()

	orch := New(Options{
		API:      api,
		Usage:    usageFake,
		Resolver: resolver,
		Prefs:    p,
		Tracker:  tracker,
		Logger:   logger,
	})
	t.Cleanup(orch.Close)

	return &harness{
		api:      api,
		usage:    usageFake,
		resolver: resolver,
		notifier: notifier,
		prefs:    p,
		orch:     orch,
	}
}

func TestCheckAuthentication_Unauthenticated(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})
	h.resolver.set(credentials.Credentials{})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.False(t, snap.Authenticated)
	assert.Equal(t, 0, h.api.callCount("accounts"), "no network traffic while signed out")
}

func TestCheckAuthentication_TriggersFullRefresh(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{metrics: usage.Metrics{WorkersRequests: 1500}})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.True(t, snap.Authenticated)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.LastRefresh.IsZero())

	require.Len(t, snap.Accounts, 1)
	assert.Equal(t, "acc-1", snap.SelectedAccountID)

	// overview loads workers, pages, and usage eagerly; the fill phase
	// brings in storage
	require.Len(t, snap.Workers, 1)
	require.Len(t, snap.PagesProjects, 1)
	require.Len(t, snap.KVNamespaces, 1)
	require.Len(t, snap.R2Buckets, 1)
	require.Len(t, snap.D1Databases, 1)
	require.Len(t, snap.Queues, 1)
	assert.True(t, snap.WorkersLoaded)
	assert.True(t, snap.PagesLoaded)
	assert.True(t, snap.KVLoaded)
	assert.True(t, snap.R2Loaded)
	assert.True(t, snap.D1Loaded)
	assert.True(t, snap.QueuesLoaded)

	assert.Equal(t, int64(1500), snap.Usage.WorkersRequests)
	assert.Empty(t, snap.UsageError)
	assert.NotEmpty(t, snap.RecentActivity)

	for _, resource := range []string{"accounts", "workers", "pages", "kv", "r2", "d1", "queues"} {
		assert.Equal(t, 1, h.api.callCount(resource), "resource %s", resource)
	}
	assert.Equal(t, 1, h.usage.callCount())
}

func TestRefresh_NoAccountsIsFatal(t *testing.T) {
	api := &fakeAPI{accounts: nil}
	h := newHarness(t, api, &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Equal(t, "No accounts found", snap.LastError)
	assert.False(t, snap.Loading)
	assert.Equal(t, 0, h.api.callCount("workers"))
}

func TestRefresh_AccountsFailureIsFatalButKeepsData(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()
	require.Len(t, h.orch.State().Get().Workers, 1)

	h.api.setAccountsErr(cloudflare.NewNetworkError(context.DeadlineExceeded))
	h.orch.Refresh()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Contains(t, snap.LastError, "Network error")
	assert.False(t, snap.Loading)
	require.Len(t, snap.Workers, 1, "previously loaded data survives a fatal refresh")
}

func TestRefresh_WorkersFailureKeepsPreviousValue(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()
	first := h.orch.State().Get()
	require.Len(t, first.Workers, 1)

	h.api.setWorkersErr(cloudflare.NewAPIError("workers service unavailable"))
	h.orch.Refresh()
	h.orch.Wait()

	snap := h.orch.State().Get()
	require.Len(t, snap.Workers, 1, "previous workers retained")
	assert.Equal(t, "api-worker", snap.Workers[0].ID)
	assert.Empty(t, snap.LastError, "per-resource failure never surfaces as the refresh error")
	assert.False(t, snap.LastRefresh.Before(first.LastRefresh))
}

func TestRefresh_WorkersFailureOnFirstRunLeavesEmpty(t *testing.T) {
	api := singleAccountAPI()
	api.workersErr = cloudflare.NewAPIError("boom")
	h := newHarness(t, api, &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Empty(t, snap.Workers)
	assert.True(t, snap.WorkersLoaded)
	assert.Empty(t, snap.LastError)
	require.Len(t, snap.PagesProjects, 1, "other resources unaffected")
}

func TestRefresh_UsageFailureSetsWidgetErrorOnly(t *testing.T) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	usageFake := &fakeUsage{metrics: usage.Metrics{
		WorkersRequests: 10,
		PeriodStart:     today,
		PeriodEnd:       now.Add(-20 * time.Minute),
		LastUpdated:     now.Add(-20 * time.Minute),
	}}
	h := newHarness(t, singleAccountAPI(), usageFake)

	h.orch.CheckAuthentication()
	h.orch.Wait()
	require.Equal(t, int64(10), h.orch.State().Get().Usage.WorkersRequests)

	// stored summary is older than the gate, so the next refresh retries
	// usage and hits the failure
	usageFake.setErr(cloudflare.NewAPIError("token lacks permission for analytics"))
	h.orch.Refresh()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Contains(t, snap.UsageError, "analytics permission")
	assert.Equal(t, int64(10), snap.Usage.WorkersRequests, "previous metrics preserved")
	assert.Empty(t, snap.LastError)
}

func TestRefresh_FreshUsageSkipsFetch(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()
	require.Equal(t, 1, h.usage.callCount())

	h.orch.Refresh()
	h.orch.Wait()

	assert.Equal(t, 1, h.usage.callCount(), "fresh usage summary short-circuits the fetch")
}

func twoAccountAPI() *fakeAPI {
	api := singleAccountAPI()
	api.accounts = append(api.accounts, cloudflare.Account{ID: "acc-2", Name: "Secondary"})
	api.workers["acc-2"] = []cloudflare.Worker{{ID: "edge-worker", ModifiedOn: apiTime(time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC))}}
	api.pages["acc-2"] = []cloudflare.PagesProject{{ID: "proj-2", Name: "blog"}}
	api.kv["acc-2"] = nil
	api.r2["acc-2"] = nil
	api.d1["acc-2"] = nil
	api.queues["acc-2"] = nil
	return api
}

func TestSelectAccount_SwitchesAndRefetches(t *testing.T) {
	h := newHarness(t, twoAccountAPI(), &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()
	require.Equal(t, "acc-1", h.orch.State().Get().SelectedAccountID)

	h.orch.SelectAccount("acc-2")
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Equal(t, "acc-2", snap.SelectedAccountID)
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, "edge-worker", snap.Workers[0].ID)

	stored, ok := h.prefs.Get(prefs.KeySelectedAccountID)
	require.True(t, ok)
	assert.Equal(t, "acc-2", stored)

	assert.Equal(t, 2, h.usage.callCount(), "cleared usage is refetched for the new account")
}

func TestSelectAccount_CancelsInFlightRefresh(t *testing.T) {
	api := twoAccountAPI()
	api.workersBlock = true
	api.workersStarted = make(chan struct{}, 1)
	h := newHarness(t, api, &fakeUsage{})

	h.orch.CheckAuthentication()

	// wait for the first refresh to park inside the workers fetch
	select {
	case <-api.workersStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("first refresh never reached the workers fetch")
	}

	h.orch.SelectAccount("acc-2")
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Equal(t, "acc-2", snap.SelectedAccountID)
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, "edge-worker", snap.Workers[0].ID, "state reflects only the second account")
	assert.Empty(t, snap.LastError, "cancellation is not reported")
	assert.False(t, snap.Loading)
}

func TestProfileChanged_ClearsStateAndReauthenticates(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()
	require.NotEmpty(t, h.orch.State().Get().Workers)
	workersCalls := h.api.callCount("workers")

	h.resolver.set(credentials.Credentials{})
	h.orch.ProfileChanged()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.False(t, snap.Authenticated)
	assert.Empty(t, snap.Accounts)
	assert.Empty(t, snap.Workers)
	assert.Empty(t, snap.RecentActivity)
	assert.Zero(t, snap.Usage)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, workersCalls, h.api.callCount("workers"), "signed-out profile fetches nothing")

	h.resolver.set(credentials.Credentials{APIToken: "other-token"})
	h.orch.ProfileChanged()
	h.orch.Wait()

	snap = h.orch.State().Get()
	assert.True(t, snap.Authenticated)
	require.Len(t, snap.Workers, 1)
}

func pagesWithDeployment(status string) []cloudflare.PagesProject {
	return []cloudflare.PagesProject{{
		ID:   "proj-1",
		Name: "site",
		LatestDeployment: &cloudflare.Deployment{
			ID:          "dep-1",
			Environment: "production",
			LatestStage: cloudflare.Stage{Name: "deploy", Status: status},
		},
	}}
}

func TestDeploymentNotification_FiresOnceOnTransition(t *testing.T) {
	api := singleAccountAPI()
	api.pages["acc-1"] = pagesWithDeployment("active")
	h := newHarness(t, api, &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()
	assert.Empty(t, h.notifier.all(), "first sight never notifies")

	h.api.setPages("acc-1", pagesWithDeployment("success"))
	h.orch.Refresh()
	h.orch.Wait()

	require.Equal(t, []string{"site:success"}, h.notifier.all())

	h.orch.Refresh()
	h.orch.Wait()
	assert.Len(t, h.notifier.all(), 1, "unchanged status does not re-notify")
}

func TestWorkersTab_EagerThenFillOnce(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})
	h.orch.SetActiveTab(TabWorkers)

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.True(t, snap.WorkersLoaded)
	assert.True(t, snap.PagesLoaded)
	assert.True(t, snap.KVLoaded)
	assert.Equal(t, 1, h.api.callCount("workers"))
	assert.Equal(t, 1, h.api.callCount("pages"))

	// a second refresh on the same tab refetches only the eager set;
	// everything else is already loaded
	h.orch.Refresh()
	h.orch.Wait()

	assert.Equal(t, 2, h.api.callCount("workers"))
	assert.Equal(t, 1, h.api.callCount("pages"))
	assert.Equal(t, 1, h.api.callCount("kv"))
}

func TestResolveSelection_StoredChoiceWins(t *testing.T) {
	h := newHarness(t, twoAccountAPI(), &fakeUsage{})
	require.NoError(t, h.prefs.Set(prefs.KeySelectedAccountID, "acc-2"))

	h.orch.CheckAuthentication()
	h.orch.Wait()

	assert.Equal(t, "acc-2", h.orch.State().Get().SelectedAccountID)
}

func TestResolveSelection_CredentialHintFallback(t *testing.T) {
	h := newHarness(t, twoAccountAPI(), &fakeUsage{})
	h.resolver.set(credentials.Credentials{APIToken: "token", AccountID: "acc-2"})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	assert.Equal(t, "acc-2", h.orch.State().Get().SelectedAccountID)
}

func TestResolveSelection_StaleStoredChoiceFallsBack(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})
	require.NoError(t, h.prefs.Set(prefs.KeySelectedAccountID, "gone-account"))

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	assert.Equal(t, "acc-1", snap.SelectedAccountID)
	assert.Empty(t, snap.LastError)
}

func TestRefresh_BackfillsWorkerDates(t *testing.T) {
	modified := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	api := singleAccountAPI()
	api.workers["acc-1"] = []cloudflare.Worker{{ID: "undated-worker"}}
	api.workerDetails = map[string]cloudflare.Worker{
		"undated-worker": {ID: "undated-worker", ModifiedOn: apiTime(modified)},
	}
	h := newHarness(t, api, &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, modified, snap.Workers[0].ModifiedOn.Time)
	assert.Equal(t, 1, h.api.callCount("worker_detail"))

	require.NotEmpty(t, snap.RecentActivity)
	assert.Equal(t, modified, snap.RecentActivity[0].Timestamp)
}

func TestRefresh_WorkerDetailFailureLeavesRow(t *testing.T) {
	api := singleAccountAPI()
	api.workers["acc-1"] = []cloudflare.Worker{{ID: "undated-worker"}}
	h := newHarness(t, api, &fakeUsage{})

	h.orch.CheckAuthentication()
	h.orch.Wait()

	snap := h.orch.State().Get()
	require.Len(t, snap.Workers, 1)
	assert.True(t, snap.Workers[0].ModifiedOn.IsZero())
	assert.Empty(t, snap.LastError)
}

func TestRefresh_WhileSignedOutIsNoOp(t *testing.T) {
	h := newHarness(t, singleAccountAPI(), &fakeUsage{})
	h.resolver.set(credentials.Credentials{})
	h.orch.CheckAuthentication()
	h.orch.Wait()

	h.orch.Refresh()
	h.orch.Wait()

	assert.Equal(t, 0, h.api.callCount("accounts"))
	assert.False(t, h.orch.State().Get().Loading)
}
