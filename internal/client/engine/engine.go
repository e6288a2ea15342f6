package engine

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dstepanov-dev/localnotes/internal/client/queue"
	"github.com/dstepanov-dev/localnotes/internal/client/remote"
	"github.com/dstepanov-dev/localnotes/internal/client/session"
	"github.com/dstepanov-dev/localnotes/internal/client/store"
	"github.com/dstepanov-dev/localnotes/internal/logging"
)

// DefaultRetryCap is how many push attempts a queued change gets before it is
// dropped and recorded as a permanent failure.
const DefaultRetryCap = 5

// backgroundSyncTimeout bounds fire-and-forget syncs scheduled by mutations
// and change notifications.
const backgroundSyncTimeout = 2 * time.Minute

// maxRecordedErrors caps the permanent-failure list kept for the status surface.
const maxRecordedErrors = 20

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	RetryCap int
	Logger   logging.Logger
	// Clock is the time source, replaceable in tests.
	Clock func() time.Time
}

// Status is the aggregate sync state surfaced to the UI layer. It is the only
// error surface: per-operation failures are folded into Errors rather than
// reported individually.
type Status struct {
	Syncing      bool
	Online       bool
	PendingCount int
	Conflicts    []store.Conflict
	LastSyncTime time.Time
	Errors       []string
}

// Engine coordinates the local mirror, the change queue, and the remote
// service. It owns no persisted state of its own; everything durable lives in
// the store and queue, so a process restart only loses the transient status.
type Engine struct {
	db     *sql.DB
	store  *store.Store
	meta   *store.SyncMeta
	queue  *queue.Queue
	remote remote.Service
	sess   *session.Session
	log    logging.Logger

	retryCap int
	now      func() time.Time

	// syncing is the re-entrancy guard: taken via CAS before any I/O so a
	// second Sync call during a drain is a guaranteed no-op.
	syncing atomic.Bool

	mu       sync.Mutex
	status   Status
	onStatus func(Status)

	bg sync.WaitGroup
}

// New wires an Engine over an opened local database, a remote service, and
// the session. Going online while idle schedules a sync automatically.
func New(db *sql.DB, svc remote.Service, sess *session.Session, opts Options) *Engine {
	if opts.RetryCap <= 0 {
		opts.RetryCap = DefaultRetryCap
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	e := &Engine{
		db:       db,
		store:    store.New(db),
		meta:     store.NewSyncMeta(db),
		queue:    queue.New(db),
		remote:   svc,
		sess:     sess,
		log:      opts.Logger,
		retryCap: opts.RetryCap,
		now:      opts.Clock,
	}
	sess.OnOnline(e.ScheduleSync)
	return e
}

// Sync runs one incremental push+pull cycle. It is a silent no-op when a sync
// is already in flight, the device is offline, or nobody is signed in.
func (e *Engine) Sync(ctx context.Context) error {
	return e.run(ctx, false)
}

// FullSync runs one push cycle followed by a full pull of every entity type.
// Used for the initial load after sign-in and for manual refresh.
func (e *Engine) FullSync(ctx context.Context) error {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, full bool) error {
	if !e.sess.Authenticated() {
		e.log.Debug(ctx, "sync skipped: not signed in")
		return nil
	}
	if !e.sess.Online() {
		e.log.Debug(ctx, "sync skipped: offline")
		return nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		e.log.Debug(ctx, "sync skipped: already in flight")
		return nil
	}
	defer e.syncing.Store(false)

	e.log.Info(ctx, "sync started", "full", full)

	terminal := e.pushAll(ctx)
	pullErr := e.pullAll(ctx, full)

	e.refreshStatus(ctx, terminal, pullErr == nil)

	if pullErr != nil {
		e.log.Error(ctx, "sync failed", "err", pullErr)
		return pullErr
	}
	e.log.Info(ctx, "sync finished")
	return nil
}

// ScheduleSync fires an incremental sync on a background goroutine without
// awaiting it. Mutations and change notifications use this so callers never
// block on network availability.
func (e *Engine) ScheduleSync() {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
		defer cancel()
		if err := e.Sync(ctx); err != nil {
			e.log.Error(ctx, "background sync failed", "err", err)
		}
	}()
}

// NotifyRemoteChange handles a push-style notification from the backend. The
// payload is never trusted for merge decisions; any notification means
// "something may be stale, reconcile".
func (e *Engine) NotifyRemoteChange() {
	e.ScheduleSync()
}

// Status returns a snapshot of the aggregate sync state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	s.Conflicts = append([]store.Conflict(nil), e.status.Conflicts...)
	s.Errors = append([]string(nil), e.status.Errors...)
	s.Syncing = e.syncing.Load()
	s.Online = e.sess.Online()
	return s
}

// SetStatusListener registers a callback fired after every status recompute,
// so a UI layer can re-read the mirror instead of patching its state
// incrementally.
func (e *Engine) SetStatusListener(fn func(Status)) {
	e.mu.Lock()
	e.onStatus = fn
	e.mu.Unlock()
}

// refreshStatus recomputes the aggregate counters and notifies the listener.
// completedSync marks a push+pull cycle that ran to the end; only those
// advance LastSyncTime.
func (e *Engine) refreshStatus(ctx context.Context, terminal []string, completedSync bool) {
	pending, err := e.store.CountPending(ctx)
	if err != nil {
		e.log.Error(ctx, "failed to count pending rows", "err", err)
	}
	conflicts, err := e.store.ListConflicts(ctx)
	if err != nil {
		e.log.Error(ctx, "failed to list conflicts", "err", err)
	}

	e.mu.Lock()
	e.status.PendingCount = pending
	e.status.Conflicts = conflicts
	e.status.Errors = append(e.status.Errors, terminal...)
	if n := len(e.status.Errors); n > maxRecordedErrors {
		e.status.Errors = e.status.Errors[n-maxRecordedErrors:]
	}
	if completedSync {
		e.status.LastSyncTime = e.now()
	}
	cb := e.onStatus
	snap := e.status
	snap.Conflicts = append([]store.Conflict(nil), e.status.Conflicts...)
	snap.Errors = append([]string(nil), e.status.Errors...)
	e.mu.Unlock()

	snap.Syncing = e.syncing.Load()
	snap.Online = e.sess.Online()
	if cb != nil {
		cb(snap)
	}
}

// ProbeLoop polls the backend's health endpoint every interval and flips the
// session's online flag accordingly. Returns when ctx is done.
func (e *Engine) ProbeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sess.SetOnline(e.remote.Ping(ctx) == nil)
		}
	}
}

// Close waits for background syncs to finish. It does not close the database;
// the caller owns that handle.
func (e *Engine) Close() {
	e.bg.Wait()
}
