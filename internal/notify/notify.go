// Package notify delivers user-facing notifications and tracks Pages
// deployment transitions so each outcome is announced exactly once.
package notify

import (
	"log/slog"
	"sync"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
)

// Notifier is the delivery collaborator. The menu-bar shell plugs in the
// OS notification center; headless builds log instead. Delivery is
// fire-and-forget, implementations log failures and never return them.
type Notifier interface {
	NotifyDeployment(projectName string, status cloudflare.DeploymentStatus, environment string)
	NotifyWorker(workerName, event string)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyDeployment implements Notifier.
func (n *LogNotifier) NotifyDeployment(projectName string, status cloudflare.DeploymentStatus, environment string) {
	n.logger.Info("deployment notification",
		"project", projectName,
		"status", string(status),
		"environment", environment,
	)
}

// NotifyWorker implements Notifier.
func (n *LogNotifier) NotifyWorker(workerName, event string) {
	n.logger.Info("worker notification",
		"worker", workerName,
		"event", event,
	)
}

// DeploymentTracker watches the latest deployment of each Pages project
// and notifies when one it has seen before moves into a terminal state.
// The first observation of a deployment never notifies, so restarting the
// app does not replay old outcomes.
type DeploymentTracker struct {
	mu       sync.Mutex
	statuses map[string]cloudflare.DeploymentStatus
	notifier Notifier
	logger   *slog.Logger
}

// DeploymentTrackerOptions configures a DeploymentTracker.
type DeploymentTrackerOptions struct {
	Notifier Notifier
	Logger   *slog.Logger
}

// NewDeploymentTracker creates a deployment transition tracker.
func NewDeploymentTracker(opts DeploymentTrackerOptions) *DeploymentTracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DeploymentTracker{
		statuses: make(map[string]cloudflare.DeploymentStatus),
		notifier: opts.Notifier,
		logger:   logger,
	}
}

// Observe records the latest deployment status of each project and
// notifies on transitions into success or failure. The recorded status is
// always updated, even when no notification fires.
func (t *DeploymentTracker) Observe(projects []cloudflare.PagesProject) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, project := range projects {
		dep := project.LatestDeployment
		if dep == nil || dep.ID == "" {
			continue
		}
		status := dep.Status()
		previous, seen := t.statuses[dep.ID]
		t.statuses[dep.ID] = status

		if !seen || previous == status || !status.Terminal() {
			continue
		}

		t.logger.Info("deployment transition",
			"project", project.Name,
			"deployment_id", dep.ID,
			"from", string(previous),
			"to", string(status),
		)
		if t.notifier != nil {
			t.notifier.NotifyDeployment(project.Name, status, dep.Environment)
		}
	}
}

// Reset forgets all tracked deployments. Called on profile or account
// switches so outcomes under the new identity are not compared against
// the old one.
func (t *DeploymentTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = make(map[string]cloudflare.DeploymentStatus)
}
