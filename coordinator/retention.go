package coordinator

import (
	"context"
	"fmt"

	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// UpdateRetentionStreamCut pushes cuts to the upstream controller as this
// group's pinned retention position, for every stream present in cuts
// (spec §4.D). Only valid while the group is READY;
// a reinit or delete racing ahead of this call would otherwise pin a
// retention point the new config no longer recognizes.
func (c *Coordinator) UpdateRetentionStreamCut(ctx context.Context, cuts map[stream.Stream]stream.StreamCut) error {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap.ConfigState != state.Ready {
		return rgerr.ErrIllegalState
	}
	return c.sub.UpdateStreamCuts(ctx, cuts, snap.Generation)
}

// UnreadBytes sums, per online reader, the byte distance between its read
// position and the current (or configured ending) tail of every stream it
// reads from (spec §4.F). For each of a reader's currently assigned
// segments, the resolved read offset is subtracted from that segment's
// length; every segment still ahead of it contributes its full length --
// up to the stream's configured ending cut if one exists (bounded), or up
// to the current tail otherwise (unbounded, via GetSuccessors).
//
// The read offset for a segment is resolved in the §4.F preference order:
// the last completed checkpoint's position for that segment, falling back
// to lastReadPositions, falling back to the reader's live assignment.
// Only segments currently assigned to an online reader are counted: a
// reader with no assigned segments contributes zero, even when positions
// for segments it released are still recorded, and unassigned segments
// are not counted for any reader.
func (c *Coordinator) UnreadBytes(ctx context.Context) (map[state.ReaderID]int64, error) {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[state.ReaderID]int64, len(snap.OnlineReaders))
	for reader, assigned := range snap.AssignedSegments {
		if _, online := snap.OnlineReaders[reader]; !online {
			continue
		}
		var total int64
		for swr := range assigned {
			seg := swr.Segment
			readOffset := resolveReadPosition(snap, seg, assigned[swr])

			length, err := c.ctrl.SegmentLength(ctx, seg)
			if err != nil {
				return nil, fmt.Errorf("coordinator: unreadBytes: segmentLength(%s): %w", seg, err)
			}
			total += length - readOffset

			ahead, err := c.segmentsAhead(ctx, snap, seg, readOffset)
			if err != nil {
				return nil, err
			}
			for _, next := range ahead {
				length, err := c.ctrl.SegmentLength(ctx, next)
				if err != nil {
					return nil, fmt.Errorf("coordinator: unreadBytes: segmentLength(%s): %w", next, err)
				}
				total += length
			}
		}
		out[reader] = total
	}

	return out, nil
}

// segmentsAhead returns the segments strictly beyond seg@readOffset: the
// bounded set up to the stream's configured ending cut when one exists,
// or the unbounded successor set up to the current tail otherwise.
func (c *Coordinator) segmentsAhead(ctx context.Context, snap state.ReaderGroupState, seg stream.Segment, readOffset int64) ([]stream.Segment, error) {
	from := stream.StreamCut{seg: readOffset}

	if endCut, bounded := snap.Config.EndingStreamCuts[seg.Stream]; bounded {
		segs, err := c.ctrl.GetSegments(ctx, from, endCut)
		if err != nil {
			return nil, fmt.Errorf("coordinator: unreadBytes: getSegments(%s): %w", seg, err)
		}
		return segs, nil
	}

	succ, err := c.ctrl.GetSuccessors(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("coordinator: unreadBytes: getSuccessors(%s): %w", seg, err)
	}
	return succ.Segments, nil
}

// resolveReadPosition implements §4.F's position-source preference order
// for seg: the last completed checkpoint's global position, falling back
// to lastReadPositions, falling back to liveOffset (the reader's current
// live assignment, used only when neither recorded source has an entry).
func resolveReadPosition(snap state.ReaderGroupState, seg stream.Segment, liveOffset int64) int64 {
	if lc := snap.Checkpoint.LastCompleted; lc != nil {
		if segs, ok := lc.Positions[seg.Stream]; ok {
			if off, ok := segs[seg]; ok {
				return off
			}
		}
	}
	if off, ok := lookupLastReadPosition(snap, seg); ok {
		return off
	}
	return liveOffset
}

// lookupLastReadPosition scans lastReadPositions for seg.Stream for an
// entry whose range-erased Segment matches seg.
func lookupLastReadPosition(snap state.ReaderGroupState, seg stream.Segment) (int64, bool) {
	for swr, off := range snap.LastReadPositions[seg.Stream] {
		if swr.Segment == seg {
			return off, true
		}
	}
	return 0, false
}
