package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stillpointapp/stillpoint/internal/store"
)

// OpKind identifies a pending remote operation.
type OpKind string

const (
	// OpCreate pushes a task that does not exist remotely yet. The payload
	// is read from the local store at flush time, so a create always
	// carries the task's latest state.
	OpCreate OpKind = "create"

	// OpUpdate applies a recorded patch to the remote twin.
	OpUpdate OpKind = "update"

	// OpDelete removes the remote twin.
	OpDelete OpKind = "delete"
)

// PendingOp is one queued remote operation. Ops are persisted under the
// pending-ops key so a catch-up resync survives application restarts.
//
// Seq identifies the op within the running process. It is assigned on
// enqueue (and reassigned on load) and is not persisted.
type PendingOp struct {
	Seq      uint64     `json:"-"`
	Kind     OpKind     `json:"kind"`
	TaskID   string     `json:"task_id"`
	RemoteID string     `json:"remote_id,omitempty"`
	Patch    *TaskPatch `json:"patch,omitempty"`
	QueuedAt time.Time  `json:"queued_at"`
}

// outbox is the durable pending-sync queue. Catch-up resync is driven by
// its contents rather than a full-table re-upload, so a task already pushed
// is never re-created remotely.
//
// The flush worker takes the head op with acquire, pushes it, and then
// removes exactly that op with complete. While an op is in flight its Seq
// is recorded, and enqueue's coalescing refuses to cancel it: the push may
// already have reached the remote.
type outbox struct {
	st *store.Store

	mu       sync.Mutex
	ops      []PendingOp
	nextSeq  uint64
	inflight uint64 // Seq of the op being pushed, 0 when idle
}

// loadOutbox restores the queue from the store.
func loadOutbox(st *store.Store) (*outbox, error) {
	b := &outbox{st: st}
	if err := st.LoadValue(store.KeyPendingOps, &b.ops); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return b, nil
		}
		return nil, fmt.Errorf("failed to load pending ops: %w", err)
	}
	for i := range b.ops {
		b.nextSeq++
		b.ops[i].Seq = b.nextSeq
	}
	return b, nil
}

// persist writes the queue back to the store. Must be called with mu held.
func (b *outbox) persist() error {
	ops := b.ops
	if ops == nil {
		ops = []PendingOp{}
	}
	return b.st.SaveValue(store.KeyPendingOps, ops)
}

// enqueue appends an operation, coalescing against earlier queued ops for
// the same task:
//
//   - an update following an unpushed create is dropped (the create reads
//     the latest local state at flush time)
//   - a delete cancels all earlier queued ops for the task, and is itself
//     skipped when the task was never created remotely
//
// An op currently in flight is never coalesced away: its push may already
// have reached the remote, so a delete behind it stays queued and is aimed
// at the twin once the create reports the remote-assigned ID.
func (b *outbox) enqueue(op PendingOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch op.Kind {
	case OpUpdate:
		for _, q := range b.ops {
			if q.TaskID == op.TaskID && q.Kind == OpCreate && q.Seq != b.inflight {
				return nil
			}
		}
	case OpDelete:
		createInFlight := false
		hadCreate := false
		kept := b.ops[:0]
		for _, q := range b.ops {
			if q.TaskID == op.TaskID {
				if q.Seq == b.inflight {
					if q.Kind == OpCreate {
						createInFlight = true
					}
					kept = append(kept, q)
					continue
				}
				if q.Kind == OpCreate {
					hadCreate = true
				}
				continue
			}
			kept = append(kept, q)
		}
		b.ops = kept
		if !createInFlight && (hadCreate || op.RemoteID == "") {
			// Nothing to delete remotely.
			return b.persist()
		}
	}

	b.nextSeq++
	op.Seq = b.nextSeq
	b.ops = append(b.ops, op)
	return b.persist()
}

// acquire returns the head of the queue and marks it in flight.
func (b *outbox) acquire() (PendingOp, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ops) == 0 {
		return PendingOp{}, false
	}
	b.inflight = b.ops[0].Seq
	return b.ops[0], true
}

// release clears the in-flight mark after a failed push, leaving the op
// queued for the next attempt.
func (b *outbox) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight = 0
}

// complete removes the given op after a successful push. Removal is by
// Seq, never by position: ops coalesced out of the queue while the push
// was in flight must not cost some other op its slot.
func (b *outbox) complete(op PendingOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight = 0
	for i := range b.ops {
		if b.ops[i].Seq == op.Seq {
			b.ops = append(b.ops[:i], b.ops[i+1:]...)
			break
		}
	}
	return b.persist()
}

// fillRemoteID aims queued ops for the task at its remote twin. Used when
// a create finishes after the task was already deleted locally, so the
// queued delete still reaches the twin.
func (b *outbox) fillRemoteID(taskID, remoteID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := false
	for i := range b.ops {
		if b.ops[i].TaskID == taskID && b.ops[i].RemoteID == "" {
			b.ops[i].RemoteID = remoteID
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return b.persist()
}

// peek returns the head of the queue without removing it.
func (b *outbox) peek() (PendingOp, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ops) == 0 {
		return PendingOp{}, false
	}
	return b.ops[0], true
}

// clear drops every queued operation.
func (b *outbox) clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
	b.inflight = 0
	return b.persist()
}

// size returns the number of queued operations.
func (b *outbox) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}
