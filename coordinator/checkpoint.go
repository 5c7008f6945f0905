package coordinator

import (
	"context"
	"fmt"

	"github.com/pravega/readergroup/checkpoint"
	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// InitiateCheckpoint creates an observable checkpoint named checkpointName,
// then polls until every online reader (at creation time) has reported or
// gone offline, returning the resulting per-stream positions (spec §4.B,
// §6.2 initiateCheckpoint). Cancelling ctx aborts the wait but never the
// clearing of an already-completed checkpoint -- runCheckpoint applies
// ClearCheckpointsBefore under a background context once the poll has
// seen the checkpoint complete.
func (c *Coordinator) InitiateCheckpoint(ctx context.Context, checkpointName string, sched checkpoint.Scheduler) (map[stream.Stream]map[stream.Segment]int64, error) {
	id := checkpoint.NewObservableID(checkpointName)
	return c.runCheckpoint(ctx, id, sched)
}

// GenerateStreamCuts creates a silent checkpoint invisible to readers and
// waits for it to complete, producing a consistent cross-stream cut
// without surfacing an observable checkpoint to application code (spec
// §4.D, "Stream-cut generation").
func (c *Coordinator) GenerateStreamCuts(ctx context.Context, sched checkpoint.Scheduler) (map[stream.Stream]stream.StreamCut, error) {
	id, err := checkpoint.NewSilentID()
	if err != nil {
		return nil, fmt.Errorf("coordinator: generateStreamCuts: %w", err)
	}
	positions, err := c.runCheckpoint(ctx, id, sched)
	if err != nil {
		return nil, err
	}
	out := make(map[stream.Stream]stream.StreamCut, len(positions))
	for s, segOffsets := range positions {
		cut := stream.StreamCut{}
		for seg, off := range segOffsets {
			cut[seg] = off
		}
		out[s] = cut
	}
	return out, nil
}

func (c *Coordinator) runCheckpoint(ctx context.Context, id state.CheckpointID, sched checkpoint.Scheduler) (map[stream.Stream]map[stream.Segment]int64, error) {
	if sched == nil {
		sched = checkpoint.RealScheduler
	}

	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		if cur.ConfigState != state.Ready {
			return nil, rgerr.ErrIllegalState
		}
		return state.CreateCheckpoint{ID: id}, nil
	})
	if err != nil {
		return nil, err
	}

	positions, err := checkpoint.PollUntilComplete(ctx, id, c.fetchSnapshot, sched)
	if err != nil {
		return nil, err
	}

	// Clearing survives context cancellation: the checkpoint already
	// completed, and every coordinator sharing this group must still see
	// it cleared from outstanding regardless of why this caller stopped
	// waiting (spec §4.B).
	clearCtx := context.Background()
	if _, err := c.transact(clearCtx, func(cur state.ReaderGroupState) (state.Update, error) {
		return state.ClearCheckpointsBefore{ID: id}, nil
	}); err != nil {
		return nil, fmt.Errorf("coordinator: clearing checkpoint %s: %w", id, err)
	}
	return positions, nil
}
