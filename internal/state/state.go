// Package state holds the canonical application state as an immutable
// snapshot behind a small store. The refresh orchestrator is the only
// writer; presentation layers read snapshots or subscribe for updates.
package state

import (
	"sync"
	"time"

	"github.com/sushaantu/CloudflareStatusBar/internal/cloudflare"
	"github.com/sushaantu/CloudflareStatusBar/internal/usage"
)

// ActivityKind distinguishes recent-activity entries.
type ActivityKind string

const (
	ActivityWorker ActivityKind = "worker"
	ActivityPages  ActivityKind = "pages"
)

// ActivityItem is one row of the recent-activity feed.
type ActivityItem struct {
	Key       string
	Kind      ActivityKind
	Name      string
	Status    cloudflare.DeploymentStatus // pages entries only
	Branch    string
	URL       string
	Timestamp time.Time // zero when no date is known
}

// Snapshot is one consistent view of the application state. Slices inside
// a snapshot are replaced wholesale on each update and must be treated as
// read-only by consumers.
type Snapshot struct {
	Authenticated bool
	Loading       bool
	LastError     string
	LastRefresh   time.Time

	ActiveProfileID   string
	ActiveProfileName string

	Accounts          []cloudflare.Account
	SelectedAccountID string

	Workers       []cloudflare.Worker
	PagesProjects []cloudflare.PagesProject
	KVNamespaces  []cloudflare.KVNamespace
	R2Buckets     []cloudflare.R2Bucket
	D1Databases   []cloudflare.D1Database
	Queues        []cloudflare.Queue

	WorkersLoaded bool
	PagesLoaded   bool
	KVLoaded      bool
	R2Loaded      bool
	D1Loaded      bool
	QueuesLoaded  bool

	Usage      usage.Metrics
	UsageError string

	RecentActivity []ActivityItem
}

// Store is the shared state container. Updates are serialized; every
// update publishes the new snapshot to all subscribers, where a slow
// subscriber only ever observes the latest value.
type Store struct {
	mu       sync.Mutex
	snapshot Snapshot
	subs     map[int]chan Snapshot
	nextID   int
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{subs: make(map[int]chan Snapshot)}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Update applies a mutation to the state and publishes the result.
func (s *Store) Update(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.snapshot)
	s.publishLocked()
}

// Subscribe registers for snapshot updates. The returned channel carries
// the latest snapshot; intermediate values may be dropped. The cancel
// function unregisters and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publishLocked pushes the current snapshot to every subscriber without
// blocking: a full buffer is drained so the channel always holds the
// newest value.
func (s *Store) publishLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- s.snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s.snapshot:
			default:
			}
		}
	}
}
