package orchestrator

import (
	"sort"
	"time"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/state"
)

// deriveActivity rebuilds the recent-activity feed from the current
// worker and Pages collections. Items sort newest first by their best
// available timestamp; items with no date go last.
func deriveActivity(workers []cloudflare.Worker, projects []cloudflare.PagesProject) []state.ActivityItem {
	items := make([]state.ActivityItem, 0, len(workers)+len(projects))

	for _, worker := range workers {
		ts := worker.ModifiedOn.Time
		if ts.IsZero() {
			ts = worker.CreatedOn.Time
		}
		items = append(items, state.ActivityItem{
			Key:       "worker-" + worker.ID,
			Kind:      state.ActivityWorker,
			Name:      worker.ID,
			Timestamp: ts,
		})
	}

	for _, project := range projects {
		item := state.ActivityItem{
			Key:       "pages-" + project.ID,
			Kind:      state.ActivityPages,
			Name:      project.Name,
			Timestamp: project.CreatedOn.Time,
		}
		if dep := project.LatestDeployment; dep != nil {
			item.Status = dep.Status()
			item.Branch = dep.Trigger.Metadata.Branch
			item.URL = dep.URL
			if ts := deploymentTime(dep); !ts.IsZero() {
				item.Timestamp = ts
			}
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Timestamp, items[j].Timestamp
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.After(b)
		}
	})
	return items
}

func deploymentTime(dep *cloudflare.Deployment) time.Time {
	if !dep.ModifiedOn.IsZero() {
		return dep.ModifiedOn.Time
	}
	return dep.CreatedOn.Time
}
