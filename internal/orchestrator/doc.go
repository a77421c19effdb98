// Package orchestrator implements the local-first synchronization core.
//
// # Overview
//
// The orchestrator keeps an authoritative on-device task store consistent
// with an optional remote replica. Every mutation commits to the local
// store synchronously; in cloud-sync mode a matching remote operation is
// queued in a durable outbox and pushed best-effort. The application keeps
// working, degraded but correct, when the network is unavailable.
//
//	UI / CLI
//	    |
//	Orchestrator ── synchronous write ──> store (SQLite, authoritative)
//	    |
//	    └── outbox (persisted queue) ──> Collaborator (remote mirror)
//
// # Usage
//
//	st, err := store.Open(".stillpoint/data.db", nil)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	o, err := orchestrator.New(st, remoteClient, nil)
//	if err != nil {
//	    return err
//	}
//	defer o.Teardown()
//
//	if err := o.Initialize(ctx, "user-1"); err != nil {
//	    return err
//	}
//
//	task, receipt, err := o.AddTask(ctx, orchestrator.TaskInput{Title: "Water the plants"})
//
// # Caller contract
//
// Mutations return an error only when the local write fails; remote
// failures are caught, logged, and retried from the outbox. A caller that
// wants visible failure feedback should apply the mutation optimistically
// and revert only on a returned error. The Receipt tells local durability
// apart from remote outcome: Remote is "pending" (queued for the mirror)
// or "skipped" (local-only mode). A caller wanting certainty about the
// mirror must poll Status or call TestCloudConnection.
//
// # Error handling
//
// Local store failures (store.ErrWrite, store.ErrCorrupt) are fatal to the
// calling operation and surface to the caller. Remote failures degrade
// silently to a pending state; GetTasks surfaces an error only when the
// local fallback read also fails.
package orchestrator
