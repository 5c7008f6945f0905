// Package sync2 defines the StateSynchronizer contract: the external,
// linearizable, log-backed replicated register the coordinator treats as
// a collaborator rather than something this module implements from
// scratch (spec §1, §5). Two concrete backends ship under sync2/memsync
// and sync2/etcdsync; production deployments may supply their own.
package sync2

import (
	"context"
	"errors"
)

// ErrConflict is returned by UpdateConditional when expected.Revision no
// longer matches the stored revision. It is the only source of the
// coordinator's TransientSynchronizerConflict classification (spec §7);
// callers of the optimistic loop never observe it directly.
var ErrConflict = errors.New("sync2: conditional update conflict")

// Snapshot is an opaque-revision read of the synchronizer's current
// value.
type Snapshot struct {
	// Revision is a CAS token; its only meaningful operation is equality
	// comparison against a prior Fetch.
	Revision int64
	Payload  []byte
}

// SegmentID is the synchronizer backend's physical identity for one
// logical group's backing store -- stable for the life of that
// incarnation, used by the coordinator to build the upstream subscriber
// identifier `groupName || segmentId` (spec §4.C).
type SegmentID interface {
	String() string
}

// StateSynchronizer is the linearizable compare-and-set primitive the
// coordinator's optimistic loop is built on.
type StateSynchronizer interface {
	// Fetch performs a read-your-writes read of the current snapshot.
	Fetch(ctx context.Context) (Snapshot, error)

	// UpdateConditional submits next iff the stored snapshot's revision
	// still equals expected.Revision; otherwise it returns ErrConflict
	// and the caller must re-Fetch and recompute.
	UpdateConditional(ctx context.Context, expected Snapshot, next []byte) (Snapshot, error)

	// UpdateUnconditional submits next regardless of the current
	// revision, for updates the caller asserts are commutative or
	// terminal (spec §5).
	UpdateUnconditional(ctx context.Context, next []byte) (Snapshot, error)

	// SegmentID returns this synchronizer instance's physical identity.
	SegmentID() SegmentID
}
