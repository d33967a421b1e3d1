package syncengine

import (
	"testing"

	"github.com/nullstream/collabdoc/clock"
	"github.com/nullstream/collabdoc/crdtop"
)

func opID(client clock.ClientId, seq uint64) clock.OpId {
	return clock.OpId{ClientID: client, Seq: seq}
}

func TestQueueLocalAppendsAndDedupes(t *testing.T) {
	e := New(1, clock.NewSequence(1))

	op := crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 1)}
	e.QueueLocal(op)
	e.QueueLocal(op) // duplicate

	batch := e.GetPendingBatch()
	if len(batch.Ops) != 1 {
		t.Fatalf("expected exactly 1 queued op after a duplicate QueueLocal, got %d", len(batch.Ops))
	}
	if batch.ClientID != 1 {
		t.Fatalf("expected batch labeled with client 1, got %d", batch.ClientID)
	}
}

func TestGetPendingBatchDrainsQueue(t *testing.T) {
	e := New(1, clock.NewSequence(1))
	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 1)})

	first := e.GetPendingBatch()
	if len(first.Ops) != 1 {
		t.Fatalf("expected 1 op in the first batch")
	}
	second := e.GetPendingBatch()
	if len(second.Ops) != 0 {
		t.Fatalf("expected the queue to be drained, got %d ops in the second batch", len(second.Ops))
	}
}

func TestApplyRemoteFiltersDuplicatesAndUpdatesClock(t *testing.T) {
	e := New(1, clock.NewSequence(1))

	remote := crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(2, 5)}
	survivors := e.ApplyRemote([]crdtop.CrdtOp{remote, remote})

	if len(survivors) != 1 {
		t.Fatalf("expected only 1 survivor out of 2 identical remote ops, got %d", len(survivors))
	}
	if e.Clock().Get(2) != 5 {
		t.Fatalf("expected vector clock entry for client 2 to reach 5, got %d", e.Clock().Get(2))
	}
}

func TestApplyRemoteDoesNotReQueueAlreadyLocalOps(t *testing.T) {
	e := New(1, clock.NewSequence(1))

	local := crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 1)}
	e.QueueLocal(local)

	survivors := e.ApplyRemote([]crdtop.CrdtOp{local})
	if len(survivors) != 0 {
		t.Fatalf("expected an already-local op echoed back as remote to be filtered, got %d survivors", len(survivors))
	}
}

func TestOpsSinceReturnsOnlyNewerOps(t *testing.T) {
	e := New(1, clock.NewSequence(1))
	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 1)})
	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 2)})
	e.ApplyRemote([]crdtop.CrdtOp{{Kind: crdtop.TextInsert, ID: opID(2, 1)}})

	vc := clock.NewVectorClock()
	vc.Set(1, 1)

	got := e.OpsSince(vc)
	if len(got) != 2 {
		t.Fatalf("expected 2 ops newer than the caller's clock (seq 2 from client 1, seq 1 from client 2), got %d", len(got))
	}
}

func TestPendingCountAndLastAppliedVersion(t *testing.T) {
	e := New(1, clock.NewSequence(1))
	if e.PendingCount() != 0 {
		t.Fatalf("expected 0 pending ops on a fresh engine, got %d", e.PendingCount())
	}

	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 1)})
	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 2)})
	if e.PendingCount() != 2 {
		t.Fatalf("expected 2 pending ops, got %d", e.PendingCount())
	}
	if e.LastAppliedVersion() != 2 {
		t.Fatalf("expected this client's last applied version to be 2, got %d", e.LastAppliedVersion())
	}

	e.GetPendingBatch()
	if e.PendingCount() != 0 {
		t.Fatalf("expected GetPendingBatch to drain the pending count, got %d", e.PendingCount())
	}
}

func TestSaveStateRestoreStateRoundTripsAndDeepCopies(t *testing.T) {
	e := New(1, clock.NewSequence(1))
	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 1)})

	saved, err := e.SaveState()
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	// Mutating the engine after saving must not affect the saved copy.
	e.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 2)})
	if len(saved.OpLog) != 1 {
		t.Fatalf("expected SaveState's snapshot to be unaffected by later mutation, got %d entries", len(saved.OpLog))
	}

	restored := New(1, clock.NewSequence(1))
	if err := restored.RestoreState(saved); err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}
	if len(restored.opLog) != 1 {
		t.Fatalf("expected the restored engine's op log to match the saved state, got %d entries", len(restored.opLog))
	}

	// Mutating the restored engine must not reach back into `saved`.
	restored.QueueLocal(crdtop.CrdtOp{Kind: crdtop.TextInsert, ID: opID(1, 3)})
	if len(saved.OpLog) != 1 {
		t.Fatalf("expected RestoreState's copy to be independent of the original saved state")
	}
}
