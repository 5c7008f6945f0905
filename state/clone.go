package state

import "github.com/pravega/readergroup/stream"

// clone performs the copy-on-write deep copy every Update.Apply starts
// from: snapshots are treated as immutable, so no update may mutate maps
// reachable from the state it was handed.
func (s ReaderGroupState) clone() ReaderGroupState {
	out := s
	out.OnlineReaders = cloneReaderSet(s.OnlineReaders)

	out.AssignedSegments = make(map[ReaderID]map[stream.SegmentWithRange]int64, len(s.AssignedSegments))
	for r, segs := range s.AssignedSegments {
		out.AssignedSegments[r] = cloneSegOffsets(segs)
	}

	out.UnassignedSegments = cloneSegOffsets(s.UnassignedSegments)

	out.EndSegments = make(map[stream.Segment]int64, len(s.EndSegments))
	for seg, off := range s.EndSegments {
		out.EndSegments[seg] = off
	}

	out.LastReadPositions = make(map[stream.Stream]map[stream.SegmentWithRange]int64, len(s.LastReadPositions))
	for st, segs := range s.LastReadPositions {
		out.LastReadPositions[st] = cloneSegOffsets(segs)
	}

	out.Checkpoint = s.Checkpoint.clone()

	if s.NewConfig != nil {
		nc := *s.NewConfig
		out.NewConfig = &nc
	}

	if s.DistanceToTail != nil {
		out.DistanceToTail = make(map[ReaderID]int64, len(s.DistanceToTail))
		for r, d := range s.DistanceToTail {
			out.DistanceToTail[r] = d
		}
	}

	return out
}

func (cs CheckpointState) clone() CheckpointState {
	out := cs
	out.Outstanding = append([]CheckpointID(nil), cs.Outstanding...)

	out.Reported = make(map[CheckpointID]map[ReaderID]map[stream.Segment]int64, len(cs.Reported))
	for id, byReader := range cs.Reported {
		m := make(map[ReaderID]map[stream.Segment]int64, len(byReader))
		for r, segs := range byReader {
			s2 := make(map[stream.Segment]int64, len(segs))
			for seg, off := range segs {
				s2[seg] = off
			}
			m[r] = s2
		}
		out.Reported[id] = m
	}

	out.PendingReaders = make(map[CheckpointID]map[ReaderID]struct{}, len(cs.PendingReaders))
	for id, readers := range cs.PendingReaders {
		out.PendingReaders[id] = cloneReaderSet(readers)
	}

	out.Silent = make(map[CheckpointID]bool, len(cs.Silent))
	for id, v := range cs.Silent {
		out.Silent[id] = v
	}

	if cs.LastCompleted != nil {
		lc := &CompletedCheckpoint{ID: cs.LastCompleted.ID, Positions: make(map[stream.Stream]map[stream.Segment]int64, len(cs.LastCompleted.Positions))}
		for st, segs := range cs.LastCompleted.Positions {
			m := make(map[stream.Segment]int64, len(segs))
			for seg, off := range segs {
				m[seg] = off
			}
			lc.Positions[st] = m
		}
		out.LastCompleted = lc
	}

	return out
}

func cloneReaderSet(m map[ReaderID]struct{}) map[ReaderID]struct{} {
	out := make(map[ReaderID]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func cloneSegOffsets(m map[stream.SegmentWithRange]int64) map[stream.SegmentWithRange]int64 {
	out := make(map[stream.SegmentWithRange]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
