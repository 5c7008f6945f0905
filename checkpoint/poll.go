package checkpoint

import (
	"context"
	"time"

	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// PollInterval is the cadence spec §4.B fixes for checkpoint-completion
// polling.
const PollInterval = 500 * time.Millisecond

// Scheduler is injected rather than using a process-global timer so tests
// can drive the poll loop deterministically (spec §9, "Scheduler
// injection"). A production Scheduler typically wraps time.After.
type Scheduler interface {
	After(d time.Duration) <-chan time.Time
}

type realScheduler struct{}

func (realScheduler) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealScheduler is the production Scheduler backed by the runtime timer.
var RealScheduler Scheduler = realScheduler{}

// FetchFunc refreshes and returns the cached snapshot, e.g. a
// coordinator's synchronizer-backed cache.
type FetchFunc func(ctx context.Context) (state.ReaderGroupState, error)

// PollUntilComplete refreshes the snapshot via fetch every PollInterval
// (paced by sched) until id is either complete or no longer outstanding
// (cleared by a racing coordinator, spec §4.B/§7 CheckpointFailed), or ctx
// is done.
func PollUntilComplete(ctx context.Context, id state.CheckpointID, fetch FetchFunc, sched Scheduler) (map[stream.Stream]map[stream.Segment]int64, error) {
	for {
		snap, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if !outstanding(snap.Checkpoint, id) {
			return nil, rgerr.ErrCheckpointFailed
		}
		if complete, positions := state.IsComplete(snap.Checkpoint, id); complete {
			return positions, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sched.After(PollInterval):
		}
	}
}

func outstanding(cs state.CheckpointState, id state.CheckpointID) bool {
	for _, existing := range cs.Outstanding {
		if existing == id {
			return true
		}
	}
	return false
}
