package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sushaantu/CloudflareStatusBar/internal/state"
)

// runLoop drives the long-running mode: bootstrap, auto-refresh, and one
// printed line per observed state change until the context is cancelled.
func (a *app) runLoop(ctx context.Context) error {
	a.logger.Info("starting status bar core",
		"api", a.cfg.APIBaseURL,
		"auto_refresh", a.cfg.AutoRefresh,
	)

	snapshots, unsubscribe := a.orch.State().Subscribe()
	defer unsubscribe()

	a.orch.CheckAuthentication()
	a.orch.StartAutoRefresh()

	var last string
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			a.orch.StopAutoRefresh()
			return nil
		case snap := <-snapshots:
			line := statusLine(snap)
			if line != last {
				fmt.Println(line)
				last = line
			}
		}
	}
}

// runStatus refreshes once and prints the snapshot. A fatal refresh error
// becomes the exit status.
func (a *app) runStatus(ctx context.Context) error {
	a.orch.CheckAuthentication()
	a.orch.Wait()

	snap := a.orch.State().Get()
	printSnapshot(os.Stdout, snap)

	if snap.LastError != "" {
		return errors.New(snap.LastError)
	}
	return nil
}

// statusLine condenses a snapshot into the single line the menu bar title
// would show.
func statusLine(s state.Snapshot) string {
	if !s.Authenticated {
		return "signed out"
	}
	if s.LastError != "" {
		return "error: " + s.LastError
	}

	line := fmt.Sprintf("workers %d | pages %d | kv %d | r2 %d | d1 %d | queues %d",
		len(s.Workers), len(s.PagesProjects), len(s.KVNamespaces),
		len(s.R2Buckets), len(s.D1Databases), len(s.Queues))
	if s.UsageError == "" && !s.Usage.LastUpdated.IsZero() {
		line += fmt.Sprintf(" | %d req today", s.Usage.WorkersRequests)
	}
	if s.Loading {
		line += " | refreshing"
	}
	return line
}

func printSnapshot(w io.Writer, s state.Snapshot) {
	if !s.Authenticated {
		fmt.Fprintln(w, "Signed out. Add an API token profile or sign in with wrangler.")
		return
	}

	for _, account := range s.Accounts {
		marker := " "
		if account.ID == s.SelectedAccountID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", marker, account.Name, account.ID)
	}

	if s.LastError != "" {
		fmt.Fprintf(w, "error: %s\n", s.LastError)
		return
	}

	fmt.Fprintf(w, "workers %d  pages %d  kv %d  r2 %d  d1 %d  queues %d\n",
		len(s.Workers), len(s.PagesProjects), len(s.KVNamespaces),
		len(s.R2Buckets), len(s.D1Databases), len(s.Queues))

	if s.UsageError != "" {
		fmt.Fprintf(w, "usage: %s\n", s.UsageError)
	} else if !s.Usage.LastUpdated.IsZero() {
		fmt.Fprintf(w, "usage: %d requests, %d kv reads, %d d1 reads today\n",
			s.Usage.WorkersRequests, s.Usage.KVReads, s.Usage.D1ReadQueries)
	}

	if len(s.RecentActivity) > 0 {
		fmt.Fprintln(w, "recent:")
		for i, item := range s.RecentActivity {
			if i == 5 {
				break
			}
			fmt.Fprintf(w, "  %-7s %-24s %-8s %s\n",
				item.Kind, item.Name, item.Status, formatTimestamp(item.Timestamp))
		}
	}

	if !s.LastRefresh.IsZero() {
		fmt.Fprintf(w, "refreshed %s\n", s.LastRefresh.Local().Format("15:04:05"))
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}
