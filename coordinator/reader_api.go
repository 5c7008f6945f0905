package coordinator

import (
	"context"

	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// ReaderOnline registers reader as online, eligible to acquire segments and
// to be counted as a pending reporter on any checkpoint created afterward
// (spec §4.E). A reader that is already online is a no-op.
func (c *Coordinator) ReaderOnline(ctx context.Context, reader state.ReaderID) error {
	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		return state.ReaderOnline{Reader: reader}, nil
	})
	return err
}

// AcquireSegment assigns seg to reader from the unassigned pool, the
// per-reader segment-acquisition step a reader's periodic rebalance refresh
// performs (spec §4.E).
func (c *Coordinator) AcquireSegment(ctx context.Context, reader state.ReaderID, seg stream.SegmentWithRange) error {
	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		return state.AcquireSegment{Reader: reader, Segment: seg}, nil
	})
	return err
}

// ReportCheckpoint records reader's reported segment offsets against
// checkpoint id, clearing reader from its pending set. Called by a reader
// process in response to observing id on its own checkpoint notifier (spec
// §4.B).
func (c *Coordinator) ReportCheckpoint(ctx context.Context, id state.CheckpointID, reader state.ReaderID, segmentOffsets map[stream.Segment]int64) error {
	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		return state.CheckpointPositions{ID: id, Reader: reader, SegmentOffsets: segmentOffsets}, nil
	})
	return err
}
