package coordinator

import (
	"github.com/pravega/readergroup/notify"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// publishDiff compares prev and next committed snapshots and publishes a
// SegmentChange event for every segment whose assignment moved and an
// EndOfData event for every segment that reached its configured end offset
// (spec §6.2 getSegmentNotifier / getEndOfDataNotifier). Called from
// transact right after a successful commit, so every subscriber observes
// the same sequence of transitions the synchronizer actually committed.
func (c *Coordinator) publishDiff(prev, next state.ReaderGroupState) {
	prevOwner := segmentOwners(prev)
	nextOwner := segmentOwners(next)

	for seg, owner := range nextOwner {
		if prevOwner[seg] != owner {
			c.hub.Publish(notify.Event{Kind: notify.SegmentChange, Stream: seg.Stream, Segment: seg})
		}
	}

	for seg, endOff := range next.EndSegments {
		off, ok := nextPosition(next, seg)
		if !ok || off < endOff {
			continue
		}
		prevOff, hadPrev := nextPosition(prev, seg)
		if hadPrev && prevOff >= endOff {
			continue
		}
		c.hub.Publish(notify.Event{Kind: notify.EndOfData, Stream: seg.Stream, Segment: seg})
	}
}

// segmentOwners flattens assignedSegments+unassignedSegments into a single
// segment->owner map, using the empty ReaderID to mean "unassigned".
func segmentOwners(s state.ReaderGroupState) map[stream.Segment]state.ReaderID {
	out := make(map[stream.Segment]state.ReaderID, len(s.UnassignedSegments))
	for swr := range s.UnassignedSegments {
		out[swr.Segment] = ""
	}
	for reader, segs := range s.AssignedSegments {
		for swr := range segs {
			out[swr.Segment] = reader
		}
	}
	return out
}

// nextPosition returns the furthest known offset into seg across both the
// assigned/unassigned pools and lastReadPositions.
func nextPosition(s state.ReaderGroupState, seg stream.Segment) (int64, bool) {
	var best int64 = -1
	found := false
	scan := func(off int64) {
		if !found || off > best {
			best, found = off, true
		}
	}
	for swr, off := range s.UnassignedSegments {
		if swr.Segment == seg {
			scan(off)
		}
	}
	for _, segs := range s.AssignedSegments {
		for swr, off := range segs {
			if swr.Segment == seg {
				scan(off)
			}
		}
	}
	for _, byStream := range s.LastReadPositions {
		for swr, off := range byStream {
			if swr.Segment == seg {
				scan(off)
			}
		}
	}
	return best, found
}
