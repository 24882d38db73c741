package orchestrator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/prefs"
	"github.com/sushaantu/CloudflareStatusBar/internal/state"
	"github.com/sushaantu/CloudflareStatusBar/internal/usage"
)

// refreshBatch selects which resources one fan-out round fetches.
type refreshBatch struct {
	workers bool
	pages   bool
	kv      bool
	r2      bool
	d1      bool
	queues  bool
	usage   bool
}

func (b refreshBatch) empty() bool {
	return !(b.workers || b.pages || b.kv || b.r2 || b.d1 || b.queues || b.usage)
}

// tabBatch is the eager set for a tab: what the user is looking at loads
// first.
func tabBatch(tab Tab) refreshBatch {
	switch tab {
	case TabWorkers:
		return refreshBatch{workers: true}
	case TabPages:
		return refreshBatch{pages: true}
	case TabStorage:
		return refreshBatch{kv: true, r2: true, d1: true, queues: true}
	default:
		return refreshBatch{workers: true, pages: true, usage: true}
	}
}

// remainingBatch covers everything the snapshot has not loaded yet, plus
// usage when the cached summary has gone stale.
func remainingBatch(snap state.Snapshot, stale bool) refreshBatch {
	return refreshBatch{
		workers: !snap.WorkersLoaded,
		pages:   !snap.PagesLoaded,
		kv:      !snap.KVLoaded,
		r2:      !snap.R2Loaded,
		d1:      !snap.D1Loaded,
		queues:  !snap.QueuesLoaded,
		usage:   stale,
	}
}

// batchResult carries one fan-out round's outcomes per resource.
type batchResult struct {
	workers []cloudflare.Worker
	pages   []cloudflare.PagesProject
	kv      []cloudflare.KVNamespace
	r2      []cloudflare.R2Bucket
	d1      []cloudflare.D1Database
	queues  []cloudflare.Queue
	usage   usage.Metrics

	workersErr error
	pagesErr   error
	kvErr      error
	r2Err      error
	d1Err      error
	queuesErr  error
	usageErr   error
}

func (o *Orchestrator) runRefresh(ctx context.Context, gen uint64, tab Tab) {
	defer o.wg.Done()

	if !o.state.Get().Authenticated {
		o.logger.Debug("refresh skipped, not authenticated")
		return
	}

	o.logger.Info("refresh started", "tab", string(tab))
	o.commit(gen, func(s *state.Snapshot) {
		s.Loading = true
		s.LastError = ""
	})

	accounts, err := o.api.ListAccounts(ctx)
	if err != nil {
		o.finishWithError(ctx, gen, err)
		return
	}
	if len(accounts) == 0 {
		o.finishWithMessage(ctx, gen, "No accounts found")
		return
	}

	selected, ok := o.resolveSelection(accounts)
	if !ok {
		o.finishWithMessage(ctx, gen, "No account selected")
		return
	}

	o.commit(gen, func(s *state.Snapshot) {
		s.Accounts = accounts
		s.SelectedAccountID = selected.ID
	})

	// eager phase: what the active tab shows, committed as soon as the
	// join completes
	eager := tabBatch(tab)
	eager.usage = eager.usage && o.state.Get().Usage.Stale(o.now())

	result := o.fetchBatch(ctx, selected.ID, eager)
	if ctx.Err() != nil {
		o.logger.Debug("refresh cancelled")
		return
	}
	o.commitBatch(gen, eager, result)

	// fill phase: every resource not yet loaded, regardless of tab
	snap := o.state.Get()
	fill := remainingBatch(snap, snap.Usage.Stale(o.now()) && !eager.usage)
	if !fill.empty() {
		result = o.fetchBatch(ctx, selected.ID, fill)
		if ctx.Err() != nil {
			o.logger.Debug("refresh cancelled")
			return
		}
		o.commitBatch(gen, fill, result)
	}

	o.commit(gen, func(s *state.Snapshot) {
		s.Loading = false
		s.LastRefresh = o.now()
	})
	o.logger.Info("refresh completed", "account_id", selected.ID)
}

// resolveSelection picks the target account: the persisted choice when it
// still exists, then the credential's account hint, then the first
// account in the list.
func (o *Orchestrator) resolveSelection(accounts []cloudflare.Account) (cloudflare.Account, bool) {
	find := func(id string) (cloudflare.Account, bool) {
		if id == "" {
			return cloudflare.Account{}, false
		}
		for _, account := range accounts {
			if account.ID == id {
				return account, true
			}
		}
		return cloudflare.Account{}, false
	}

	if stored, ok := o.prefs.Get(prefs.KeySelectedAccountID); ok {
		if account, found := find(stored); found {
			return account, true
		}
	}
	if account, found := find(o.resolver.Resolve().AccountID); found {
		return account, true
	}
	if len(accounts) > 0 {
		return accounts[0], true
	}
	return cloudflare.Account{}, false
}

// fetchBatch fans out one network call per selected resource and joins
// them. Failures stay inside the result; the group itself never fails.
func (o *Orchestrator) fetchBatch(ctx context.Context, accountID string, batch refreshBatch) *batchResult {
	result := &batchResult{}
	g, gctx := errgroup.WithContext(ctx)

	if batch.workers {
		g.Go(func() error {
			workers, err := o.api.ListWorkers(gctx, accountID)
			if err == nil {
				workers = o.enrichWorkers(gctx, accountID, workers)
			}
			result.workers, result.workersErr = workers, err
			return nil
		})
	}
	if batch.pages {
		g.Go(func() error {
			result.pages, result.pagesErr = o.api.ListPagesProjects(gctx, accountID)
			return nil
		})
	}
	if batch.kv {
		g.Go(func() error {
			result.kv, result.kvErr = o.api.ListKVNamespaces(gctx, accountID)
			return nil
		})
	}
	if batch.r2 {
		g.Go(func() error {
			result.r2, result.r2Err = o.api.ListR2Buckets(gctx, accountID)
			return nil
		})
	}
	if batch.d1 {
		g.Go(func() error {
			result.d1, result.d1Err = o.api.ListD1Databases(gctx, accountID)
			return nil
		})
	}
	if batch.queues {
		g.Go(func() error {
			result.queues, result.queuesErr = o.api.ListQueues(gctx, accountID)
			return nil
		})
	}
	if batch.usage {
		g.Go(func() error {
			result.usage, result.usageErr = o.usage.Fetch(gctx, accountID)
			return nil
		})
	}

	_ = g.Wait()
	return result
}

// enrichWorkers backfills dates missing from list rows using the worker
// detail endpoint, so recent activity can order those workers. A failed
// detail fetch leaves the row as listed.
func (o *Orchestrator) enrichWorkers(ctx context.Context, accountID string, workers []cloudflare.Worker) []cloudflare.Worker {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range workers {
		if !workers[i].ModifiedOn.IsZero() || !workers[i].CreatedOn.IsZero() {
			continue
		}
		g.Go(func() error {
			detail, err := o.api.GetWorker(gctx, accountID, workers[i].ID)
			if err != nil {
				o.logger.Debug("worker detail fetch failed", "worker", workers[i].ID, "error", err)
				return nil
			}
			workers[i].CreatedOn = detail.CreatedOn
			workers[i].ModifiedOn = detail.ModifiedOn
			return nil
		})
	}

	_ = g.Wait()
	return workers
}

// commitBatch folds a round's results into state. A failed resource keeps
// its previous value and never surfaces as the refresh error; a failed
// usage fetch only sets the usage widget message.
func (o *Orchestrator) commitBatch(gen uint64, batch refreshBatch, result *batchResult) {
	var observed []cloudflare.PagesProject

	committed := o.commit(gen, func(s *state.Snapshot) {
		if batch.workers {
			if result.workersErr == nil {
				s.Workers = result.workers
			} else {
				o.logger.Warn("workers fetch failed, keeping previous", "error", result.workersErr)
			}
			s.WorkersLoaded = true
		}
		if batch.pages {
			if result.pagesErr == nil {
				s.PagesProjects = result.pages
				observed = result.pages
			} else {
				o.logger.Warn("pages fetch failed, keeping previous", "error", result.pagesErr)
			}
			s.PagesLoaded = true
		}
		if batch.kv {
			if result.kvErr == nil {
				s.KVNamespaces = result.kv
			} else {
				o.logger.Warn("kv fetch failed, keeping previous", "error", result.kvErr)
			}
			s.KVLoaded = true
		}
		if batch.r2 {
			if result.r2Err == nil {
				s.R2Buckets = result.r2
			} else {
				o.logger.Warn("r2 fetch failed, keeping previous", "error", result.r2Err)
			}
			s.R2Loaded = true
		}
		if batch.d1 {
			if result.d1Err == nil {
				s.D1Databases = result.d1
			} else {
				o.logger.Warn("d1 fetch failed, keeping previous", "error", result.d1Err)
			}
			s.D1Loaded = true
		}
		if batch.queues {
			if result.queuesErr == nil {
				s.Queues = result.queues
			} else {
				o.logger.Warn("queues fetch failed, keeping previous", "error", result.queuesErr)
			}
			s.QueuesLoaded = true
		}
		if batch.usage {
			if result.usageErr == nil {
				s.Usage = result.usage
				s.UsageError = ""
			} else {
				s.UsageError = usage.Message(result.usageErr)
				o.logger.Warn("usage fetch failed, keeping previous", "error", result.usageErr)
			}
		}
		if (batch.workers && result.workersErr == nil) || (batch.pages && result.pagesErr == nil) {
			s.RecentActivity = deriveActivity(s.Workers, s.PagesProjects)
		}
	})

	if committed && o.tracker != nil && observed != nil {
		o.tracker.Observe(observed)
	}
}

// finishWithError ends a refresh on the fatal path. Cancellation is not
// an error, the superseding refresh reports instead.
func (o *Orchestrator) finishWithError(ctx context.Context, gen uint64, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		o.logger.Debug("refresh cancelled")
		return
	}
	message := cloudflare.UserMessage(err)
	o.logger.Warn("refresh failed", "error", err)
	o.commit(gen, func(s *state.Snapshot) {
		s.Loading = false
		s.LastError = message
	})
}

func (o *Orchestrator) finishWithMessage(ctx context.Context, gen uint64, message string) {
	if ctx.Err() != nil {
		return
	}
	o.logger.Warn("refresh failed", "reason", message)
	o.commit(gen, func(s *state.Snapshot) {
		s.Loading = false
		s.LastError = message
	})
}
