package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"
	"github.com/stillpointapp/stillpoint/internal/store"
)

// ErrTaskNotFound is returned when a mutation names a task the local store
// does not hold.
var ErrTaskNotFound = errors.New("task not found")

// RemoteState describes what the orchestrator did, or queued, for the
// remote replica as part of a mutation.
type RemoteState string

const (
	// RemotePending means the operation was queued in the durable outbox.
	// It will be pushed when connectivity and mode allow; the caller's
	// success says nothing about the remote outcome.
	RemotePending RemoteState = "pending"

	// RemoteSkipped means the remote was intentionally not involved
	// (local-only mode).
	RemoteSkipped RemoteState = "skipped"
)

// Receipt is returned by every mutation so callers can tell local
// durability apart from remote sync outcome instead of inferring it from
// error values alone.
type Receipt struct {
	CommittedLocally bool
	Remote           RemoteState
}

// Status is a point-in-time snapshot of the sync state. Connected is an
// intent flag, not a live health check: it does not verify the remote is
// actually reachable. Use TestCloudConnection for a real probe.
type Status struct {
	Mode      model.SyncMode
	Online    bool
	Connected bool
	Pending   int
}

// TaskInput carries the caller-supplied fields of a new task.
type TaskInput struct {
	Title       string
	Description string
	Deadline    *time.Time
	Priority    int
}

// Orchestrator routes every task mutation to the local store synchronously
// and, in cloud-sync mode, queues a best-effort push to the remote replica.
// It is the only component that decides, per operation, whether to touch
// the remote.
//
// One Orchestrator is constructed per application session and torn down on
// logout. It is safe for concurrent use: each local read-modify-write runs
// under a single lock, so local mutations cannot interleave mid-sequence
// and the store's final state always reflects call order.
type Orchestrator struct {
	st     *store.Store
	remote Collaborator
	logger *log.Logger

	mu     sync.Mutex
	mode   model.SyncMode
	online bool
	user   string
	sub    Subscription

	box     *outbox
	flushMu sync.Mutex
	flushCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Orchestrator over the given store and remote collaborator.
//
// remote may be nil, in which case the orchestrator behaves as if
// permanently offline in cloud-sync mode. If logger is nil, a default
// logger writing to stderr is used.
//
// The durable outbox is restored from the store, so pushes queued before a
// restart are not lost. Call Teardown when the session ends.
func New(st *store.Store, remote Collaborator, logger *log.Logger) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	box, err := loadOutbox(st)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		st:      st,
		remote:  remote,
		logger:  logger,
		mode:    model.ModeLocalOnly,
		online:  true,
		box:     box,
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	o.wg.Add(1)
	go o.flushLoop()

	return o, nil
}

// Initialize associates the orchestrator with a user and loads settings to
// determine the sync mode: local first, then the remote copy when the mode
// is cloud-sync and the device is online. In cloud-sync mode it also
// establishes the real-time subscription.
//
// Remote failures never surface from Initialize; they silently downgrade
// the session to effectively local behavior without persisting the
// downgrade. Only local store failures are returned.
func (o *Orchestrator) Initialize(ctx context.Context, userID string) error {
	settings, err := o.st.Settings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	o.mu.Lock()
	o.user = userID
	o.mode = settings.Mode
	mode, online := o.mode, o.online
	o.mu.Unlock()

	if err := o.st.SetUserID(userID); err != nil {
		return err
	}

	if mode == model.ModeCloudSync && online && o.remote != nil {
		if remote, err := o.remote.GetUserSettings(ctx, userID); err != nil {
			o.logger.Printf("Remote settings unavailable, continuing with local: %v", err)
		} else if remote != nil {
			o.mu.Lock()
			o.mode = remote.Mode
			o.mu.Unlock()
			if err := o.st.SaveSettings(*remote); err != nil {
				return err
			}
			mode = remote.Mode
		}

		// The adopted remote settings may have switched the session to
		// local-only; only a cloud-sync session gets the feed and a flush.
		if mode == model.ModeCloudSync {
			o.subscribe(userID)
			o.signalFlush()
		}
	}

	o.logger.Printf("Initialized for user %s (mode=%s)", userID, o.currentMode())
	return nil
}

// GetTasks returns the task list. In cloud-sync mode while online the
// remote copy is fetched and returned as-is (it is not written back to the
// local store); on any remote failure the local store is the fallback. In
// local-only mode the local store is always read.
//
// An error is returned only when the local read itself fails.
func (o *Orchestrator) GetTasks(ctx context.Context) ([]model.Task, error) {
	o.mu.Lock()
	mode, online, user := o.mode, o.online, o.user
	o.mu.Unlock()

	if mode == model.ModeCloudSync && online && o.remote != nil {
		tasks, err := o.remote.GetTasks(ctx, user)
		if err == nil {
			return tasks, nil
		}
		o.logger.Printf("Remote fetch failed, falling back to local store: %v", err)
	}

	tasks, err := o.st.Tasks()
	if err != nil {
		return nil, fmt.Errorf("failed to read local tasks: %w", err)
	}
	return tasks, nil
}

// AddTask constructs a task from the input, commits it to the local store,
// and in cloud-sync mode queues a remote create. The returned task always
// carries the locally generated ID, regardless of the remote outcome.
//
// Remote failures never surface here; only local store failures do.
func (o *Orchestrator) AddTask(ctx context.Context, input TaskInput) (model.Task, Receipt, error) {
	now := time.Now()
	task := model.Task{
		ID:          model.NewTaskID(now),
		Title:       input.Title,
		Description: input.Description,
		Deadline:    input.Deadline,
		Priority:    input.Priority,
		CreatedAt:   now,
	}
	task.SetDefaults()
	if err := task.Validate(); err != nil {
		return model.Task{}, Receipt{}, fmt.Errorf("invalid task: %w", err)
	}

	o.mu.Lock()
	tasks, err := o.st.Tasks()
	if err != nil {
		o.mu.Unlock()
		return model.Task{}, Receipt{}, err
	}
	tasks = append(tasks, task)
	if err := o.st.SaveTasks(tasks); err != nil {
		o.mu.Unlock()
		return model.Task{}, Receipt{}, err
	}
	mode := o.mode
	o.mu.Unlock()

	receipt := Receipt{CommittedLocally: true, Remote: RemoteSkipped}
	if mode == model.ModeCloudSync {
		receipt.Remote = RemotePending
		if err := o.box.enqueue(PendingOp{Kind: OpCreate, TaskID: task.ID, QueuedAt: now}); err != nil {
			o.logger.Printf("Warning: failed to queue remote create for %s: %v", task.ID, err)
		}
		o.signalFlush()
	}

	o.logger.Printf("Added task %s (%s)", task.ID, task.Title)
	return task, receipt, nil
}

// UpdateTask applies a patch to the named task. Local-synchronous, then
// remote-best-effort: the call resolves once the local write has committed.
func (o *Orchestrator) UpdateTask(ctx context.Context, id string, patch TaskPatch) (model.Task, Receipt, error) {
	o.mu.Lock()
	tasks, err := o.st.Tasks()
	if err != nil {
		o.mu.Unlock()
		return model.Task{}, Receipt{}, err
	}

	idx := -1
	for i := range tasks {
		if tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return model.Task{}, Receipt{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	patch.Apply(&tasks[idx])
	if err := o.st.SaveTasks(tasks); err != nil {
		o.mu.Unlock()
		return model.Task{}, Receipt{}, err
	}
	updated := tasks[idx]
	mode := o.mode
	o.mu.Unlock()

	receipt := Receipt{CommittedLocally: true, Remote: RemoteSkipped}
	if mode == model.ModeCloudSync {
		receipt.Remote = RemotePending
		p := patch
		op := PendingOp{Kind: OpUpdate, TaskID: id, RemoteID: updated.RemoteID, Patch: &p, QueuedAt: time.Now()}
		if err := o.box.enqueue(op); err != nil {
			o.logger.Printf("Warning: failed to queue remote update for %s: %v", id, err)
		}
		o.signalFlush()
	}

	return updated, receipt, nil
}

// DeleteTask removes the named task locally and queues removal of its
// remote twin. Deleting a task that was never pushed cancels its queued
// create instead of contacting the remote.
func (o *Orchestrator) DeleteTask(ctx context.Context, id string) (Receipt, error) {
	o.mu.Lock()
	tasks, err := o.st.Tasks()
	if err != nil {
		o.mu.Unlock()
		return Receipt{}, err
	}

	idx := -1
	for i := range tasks {
		if tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	remoteID := tasks[idx].RemoteID
	tasks = append(tasks[:idx], tasks[idx+1:]...)
	if err := o.st.SaveTasks(tasks); err != nil {
		o.mu.Unlock()
		return Receipt{}, err
	}
	mode := o.mode
	o.mu.Unlock()

	receipt := Receipt{CommittedLocally: true, Remote: RemoteSkipped}
	if mode == model.ModeCloudSync {
		receipt.Remote = RemotePending
		op := PendingOp{Kind: OpDelete, TaskID: id, RemoteID: remoteID, QueuedAt: time.Now()}
		if err := o.box.enqueue(op); err != nil {
			o.logger.Printf("Warning: failed to queue remote delete for %s: %v", id, err)
		}
		o.signalFlush()
	}

	o.logger.Printf("Deleted task %s", id)
	return receipt, nil
}

// RecordMeditationSession appends a session to the local history (capped at
// the most recent 100 entries) and mirrors it remotely on a best-effort
// basis in cloud-sync mode.
func (o *Orchestrator) RecordMeditationSession(ctx context.Context, session model.MeditationSession) (Receipt, error) {
	o.mu.Lock()
	err := o.st.AppendMeditationSession(session)
	mode, online, user := o.mode, o.online, o.user
	o.mu.Unlock()
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{CommittedLocally: true, Remote: RemoteSkipped}
	if mode == model.ModeCloudSync && online && o.remote != nil {
		receipt.Remote = RemotePending
		go func() {
			if err := o.remote.CreateSession(o.ctx, user, session); err != nil {
				o.logger.Printf("Warning: failed to mirror session: %v", err)
			}
		}()
	}
	return receipt, nil
}

// UpdateSettings writes the settings through the local store and, in
// cloud-sync mode while online, through the remote as well. Remote failures
// are logged and swallowed.
func (o *Orchestrator) UpdateSettings(ctx context.Context, settings model.UserSettings) error {
	if err := o.st.SaveSettings(settings); err != nil {
		return err
	}

	o.mu.Lock()
	o.mode = settings.Mode
	mode, online, user := o.mode, o.online, o.user
	o.mu.Unlock()

	if mode == model.ModeCloudSync && online && o.remote != nil {
		if _, err := o.remote.UpsertUserSettings(ctx, user, settings); err != nil {
			o.logger.Printf("Warning: failed to mirror settings: %v", err)
		}
	}
	return nil
}

// SetSyncMode switches between local-only and cloud-sync operation.
//
// The new mode is persisted before any bulk transfer begins, so a crash
// mid-migration leaves the flag already switched; callers must treat the
// migration as best-effort and re-offer it on failure.
//
// local-only -> cloud-sync queues a remote create for every local task that
// has no remote twin yet and drains the outbox. Tasks already carrying a
// RemoteID are skipped, so re-running the migration after a partial failure
// does not duplicate them.
//
// cloud-sync -> local-only drains the outbox best-effort, then fetches the
// full remote list and overwrites the local store with it. Any local task
// that was never successfully pushed is discarded. This is a documented
// lossy tradeoff, not an accident.
func (o *Orchestrator) SetSyncMode(ctx context.Context, newMode model.SyncMode) error {
	if !newMode.Valid() {
		return fmt.Errorf("unknown sync mode %q", newMode)
	}

	o.mu.Lock()
	oldMode := o.mode
	o.mu.Unlock()
	if newMode == oldMode {
		return nil
	}

	settings, err := o.st.Settings()
	if err != nil {
		return err
	}
	settings.Mode = newMode
	if err := o.st.SaveSettings(settings); err != nil {
		return err
	}

	o.mu.Lock()
	o.mode = newMode
	online, user := o.online, o.user
	o.mu.Unlock()

	switch newMode {
	case model.ModeCloudSync:
		o.logger.Printf("Migrating to cloud-sync")

		o.mu.Lock()
		tasks, err := o.st.Tasks()
		o.mu.Unlock()
		if err != nil {
			return err
		}

		for _, t := range tasks {
			if t.RemoteID != "" {
				continue
			}
			if err := o.box.enqueue(PendingOp{Kind: OpCreate, TaskID: t.ID, QueuedAt: time.Now()}); err != nil {
				o.logger.Printf("Warning: failed to queue migration create for %s: %v", t.ID, err)
			}
		}

		if online && o.remote != nil {
			o.flushOnce(ctx)
			if _, err := o.remote.UpsertUserSettings(ctx, user, settings); err != nil {
				o.logger.Printf("Warning: failed to mirror settings: %v", err)
			}
			o.subscribe(user)
		}

	case model.ModeLocalOnly:
		o.logger.Printf("Migrating to local-only")

		if online && o.remote != nil {
			o.flushOnce(ctx)
		}
		o.unsubscribe()

		if o.remote != nil {
			remoteTasks, err := o.remote.GetTasks(ctx, user)
			if err != nil {
				o.logger.Printf("Warning: remote fetch failed, keeping local tasks: %v", err)
				break
			}
			// Keep the remote link so switching back to cloud-sync does not
			// re-upload tasks the remote already holds.
			for i := range remoteTasks {
				if remoteTasks[i].RemoteID == "" {
					remoteTasks[i].RemoteID = remoteTasks[i].ID
				}
			}
			o.mu.Lock()
			err = o.st.SaveTasks(remoteTasks)
			o.mu.Unlock()
			if err != nil {
				return err
			}
		}
		if err := o.box.clear(); err != nil {
			o.logger.Printf("Warning: failed to clear outbox: %v", err)
		}
	}

	return nil
}

// SetOnline records a connectivity transition. Going online in cloud-sync
// mode triggers a catch-up resync driven by the outbox contents.
func (o *Orchestrator) SetOnline(online bool) {
	o.mu.Lock()
	was := o.online
	o.online = online
	mode := o.mode
	o.mu.Unlock()

	if online && !was {
		o.logger.Printf("Back online")
		if mode == model.ModeCloudSync {
			o.signalFlush()
		}
	} else if !online && was {
		o.logger.Printf("Offline; queuing remote operations")
	}
}

// Status returns the current sync state. Pure and side-effect-free;
// Connected is true exactly when the mode is cloud-sync and the device is
// online, regardless of actual remote reachability.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Mode:      o.mode,
		Online:    o.online,
		Connected: o.mode == model.ModeCloudSync && o.online,
		Pending:   o.box.size(),
	}
}

// TestCloudConnection performs one real round-trip probe against the
// remote. It is not called automatically by Status.
func (o *Orchestrator) TestCloudConnection(ctx context.Context) (bool, error) {
	if o.remote == nil {
		return false, nil
	}
	return o.remote.TestConnection(ctx)
}

// Teardown ends the session: the real-time subscription and the flush
// worker are cancelled and the user association is cleared. Persisted local
// data, including the outbox, is left untouched.
func (o *Orchestrator) Teardown() {
	o.cancel()
	o.unsubscribe()
	o.wg.Wait()

	o.mu.Lock()
	o.user = ""
	o.mu.Unlock()

	o.logger.Printf("Torn down")
}

func (o *Orchestrator) currentMode() model.SyncMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// subscribe establishes the real-time task feed. Failures are logged only.
func (o *Orchestrator) subscribe(userID string) {
	if o.remote == nil {
		return
	}
	o.unsubscribe()

	sub, err := o.remote.SubscribeToTasks(o.ctx, userID, func(change TaskChange) {
		// Incoming remote changes are observed but not yet reconciled
		// into the local store.
		o.logger.Printf("Remote change: %s %s", change.Type, change.Task.ID)
	})
	if err != nil {
		o.logger.Printf("Warning: failed to subscribe to task feed: %v", err)
		return
	}

	o.mu.Lock()
	o.sub = sub
	o.mu.Unlock()
}

func (o *Orchestrator) unsubscribe() {
	o.mu.Lock()
	sub := o.sub
	o.sub = nil
	o.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// signalFlush nudges the flush worker. Non-blocking; a pending signal is
// enough.
func (o *Orchestrator) signalFlush() {
	select {
	case o.flushCh <- struct{}{}:
	default:
	}
}

// flushLoop drains the outbox whenever signalled, until Teardown.
func (o *Orchestrator) flushLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.flushCh:
			o.flushOnce(o.ctx)
		}
	}
}

// flushOnce pushes queued operations in order until the queue is empty or a
// push fails. A failed push stays at the head of the queue for the next
// attempt; there is no backoff of its own beyond waiting for the next
// signal.
func (o *Orchestrator) flushOnce(ctx context.Context) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	for {
		o.mu.Lock()
		mode, online, user := o.mode, o.online, o.user
		o.mu.Unlock()
		if mode != model.ModeCloudSync || !online || o.remote == nil {
			return
		}

		op, ok := o.box.acquire()
		if !ok {
			return
		}

		if err := o.pushOp(ctx, user, op); err != nil {
			o.box.release()
			o.logger.Printf("Push failed for %s %s, will retry: %v", op.Kind, op.TaskID, err)
			return
		}

		if err := o.box.complete(op); err != nil {
			o.logger.Printf("Warning: failed to persist outbox: %v", err)
			return
		}
	}
}

// pushOp performs one remote operation.
func (o *Orchestrator) pushOp(ctx context.Context, user string, op PendingOp) error {
	switch op.Kind {
	case OpCreate:
		o.mu.Lock()
		tasks, err := o.st.Tasks()
		if err != nil {
			o.mu.Unlock()
			return err
		}
		var task *model.Task
		for i := range tasks {
			if tasks[i].ID == op.TaskID {
				task = &tasks[i]
				break
			}
		}
		o.mu.Unlock()
		if task == nil || task.RemoteID != "" {
			// Deleted locally or already pushed; nothing to do.
			return nil
		}

		created, err := o.remote.CreateTask(ctx, user, *task)
		if err != nil {
			return err
		}

		// Record the remote-assigned ID; the local ID stays canonical.
		o.mu.Lock()
		defer o.mu.Unlock()
		tasks, err = o.st.Tasks()
		if err != nil {
			return err
		}
		for i := range tasks {
			if tasks[i].ID == op.TaskID {
				tasks[i].RemoteID = created.ID
				return o.st.SaveTasks(tasks)
			}
		}
		// Deleted locally while the push was in flight. Aim the queued
		// delete at the twin so it does not stay orphaned on the remote.
		return o.box.fillRemoteID(op.TaskID, created.ID)

	case OpUpdate:
		remoteID := op.RemoteID
		if remoteID == "" {
			// The create preceding this update in the queue has set the
			// RemoteID by now; read it back.
			o.mu.Lock()
			tasks, err := o.st.Tasks()
			o.mu.Unlock()
			if err != nil {
				return err
			}
			for i := range tasks {
				if tasks[i].ID == op.TaskID {
					remoteID = tasks[i].RemoteID
					break
				}
			}
		}
		if remoteID == "" || op.Patch == nil {
			return nil
		}
		_, err := o.remote.UpdateTask(ctx, remoteID, *op.Patch)
		return err

	case OpDelete:
		if op.RemoteID == "" {
			return nil
		}
		return o.remote.DeleteTask(ctx, op.RemoteID)

	default:
		o.logger.Printf("Warning: dropping unknown pending op kind %q", op.Kind)
		return nil
	}
}
