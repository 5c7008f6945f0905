// Package state is component (A)+(B)+(C) of the reader-group coordinator:
// the immutable ReaderGroupState snapshot, the closed set of tagged state
// updates that produce the next snapshot, and the CheckpointState
// sub-engine. Every exported function here is a pure `(state, args) ->
// state'` transformer -- no synchronizer I/O, no upstream RPCs, no
// logging side effects. That purity is the invariant the optimistic loop
// in package coordinator depends on (spec §5): the synchronizer retries a
// transformer against the latest snapshot until it commits, so the
// transformer must be safe to invoke more than once for the same logical
// attempt.
package state

import (
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/stream"
)

// ConfigState is the reader group's lifecycle label.
type ConfigState int

const (
	Initializing ConfigState = iota
	Ready
	Reinitializing
	Deleting
)

func (c ConfigState) String() string {
	switch c {
	case Initializing:
		return "INITIALIZING"
	case Ready:
		return "READY"
	case Reinitializing:
		return "REINITIALIZING"
	case Deleting:
		return "DELETING"
	default:
		return "UNKNOWN"
	}
}

// ReaderID identifies a reader process within the group. Opaque to the
// core.
type ReaderID string

// CheckpointID identifies a checkpoint. Silent checkpoints carry the
// SilentSuffix.
type CheckpointID string

// SilentSuffix marks a checkpoint as silent: it exists only to compute a
// consistent stream-cut and must never be surfaced to readers as an
// observable checkpoint (spec invariant 5).
const SilentSuffix = "_SILENT_"

func (id CheckpointID) IsSilent() bool {
	n := len(SilentSuffix)
	return len(id) >= n && string(id[len(id)-n:]) == SilentSuffix
}

// ReaderGroupState is the immutable, versioned snapshot replicated by the
// state synchronizer. Every field is read-only to callers; Apply-methods
// on Update values produce a new snapshot rather than mutating this one.
type ReaderGroupState struct {
	Config         rgconfig.ReaderGroupConfig  `json:"config"`
	NewConfig      *rgconfig.ReaderGroupConfig `json:"newConfig,omitempty"`
	ConfigState    ConfigState                 `json:"configState"`
	Generation     uint64                      `json:"generation"`
	OnlineReaders  map[ReaderID]struct{}       `json:"onlineReaders"`
	AssignedSegments map[ReaderID]map[stream.SegmentWithRange]int64 `json:"assignedSegments"`
	UnassignedSegments map[stream.SegmentWithRange]int64            `json:"unassignedSegments"`
	EndSegments    map[stream.Segment]int64                         `json:"endSegments"`
	LastReadPositions map[stream.Stream]map[stream.SegmentWithRange]int64 `json:"lastReadPositions"`
	Checkpoint     CheckpointState `json:"checkpointState"`
	DistanceToTail map[ReaderID]int64 `json:"distanceToTail,omitempty"`
}

// CheckpointState tracks outstanding checkpoints in FIFO order, per-reader
// reported positions, the online-reader snapshot taken at creation time,
// and the last completed checkpoint's positions.
type CheckpointState struct {
	Outstanding []CheckpointID `json:"outstanding"`
	// Reported[id][reader][segment] = offset
	Reported map[CheckpointID]map[ReaderID]map[stream.Segment]int64 `json:"reported"`
	// PendingReaders[id] is the snapshot of onlineReaders taken when id
	// was created; a reader is cleared from this set as it reports or
	// goes offline.
	PendingReaders map[CheckpointID]map[ReaderID]struct{} `json:"pendingReaders"`
	Silent         map[CheckpointID]bool                  `json:"silent"`
	LastCompleted  *CompletedCheckpoint                   `json:"lastCompleted,omitempty"`
}

// CompletedCheckpoint is the positions map produced once every pending
// reader of a checkpoint has reported (or gone offline).
type CompletedCheckpoint struct {
	ID        CheckpointID                         `json:"id"`
	Positions map[stream.Stream]map[stream.Segment]int64 `json:"positions"`
}

// Empty returns the zero-value starting state, used only as the argument
// to Init.
func Empty() ReaderGroupState {
	return ReaderGroupState{
		OnlineReaders:      map[ReaderID]struct{}{},
		AssignedSegments:   map[ReaderID]map[stream.SegmentWithRange]int64{},
		UnassignedSegments: map[stream.SegmentWithRange]int64{},
		EndSegments:        map[stream.Segment]int64{},
		LastReadPositions:  map[stream.Stream]map[stream.SegmentWithRange]int64{},
		Checkpoint: CheckpointState{
			Reported:       map[CheckpointID]map[ReaderID]map[stream.Segment]int64{},
			PendingReaders: map[CheckpointID]map[ReaderID]struct{}{},
			Silent:         map[CheckpointID]bool{},
		},
	}
}
