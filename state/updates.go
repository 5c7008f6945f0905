package state

import (
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/stream"
)

// Update is the closed set of mutation operations applied to a
// ReaderGroupState (spec §4.A). Each variant's Apply is a pure function;
// returning rgerr.ErrNoUpdate tells the optimistic loop nothing changed
// and no submission should be attempted.
type Update interface {
	Apply(s ReaderGroupState) (ReaderGroupState, error)
}

// --- ReaderGroupStateInit -------------------------------------------------

// Init is valid only as the very first update applied to Empty(); it
// establishes configState=INITIALIZING and generation=0.
type Init struct {
	Config          rgconfig.ReaderGroupConfig
	InitialSegments map[stream.SegmentWithRange]int64
	EndSegments     map[stream.Segment]int64
}

func (u Init) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	out := Empty()
	out.Config = u.Config
	out.ConfigState = Initializing
	out.Generation = 0
	out.UnassignedSegments = cloneSegOffsets(u.InitialSegments)
	out.EndSegments = make(map[stream.Segment]int64, len(u.EndSegments))
	for seg, off := range u.EndSegments {
		out.EndSegments[seg] = off
	}
	return out, nil
}

// --- ChangeConfigState -----------------------------------------------------

var allowedTransitions = map[ConfigState]map[ConfigState]bool{
	Initializing:   {Ready: true, Deleting: true},
	Ready:          {Reinitializing: true, Deleting: true},
	Reinitializing: {Ready: true, Deleting: true},
	Deleting:       {},
}

// ChangeConfigState transitions configState, guarded by expectedGeneration.
// newConfig must be supplied when target is Reinitializing and must be nil
// otherwise (spec invariant 6).
type ChangeConfigState struct {
	Target             ConfigState
	ExpectedGeneration uint64
	NewConfig          *rgconfig.ReaderGroupConfig // required iff Target == Reinitializing
}

func (u ChangeConfigState) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	if s.Generation != u.ExpectedGeneration {
		return s, rgerr.ErrNoUpdate
	}
	if !allowedTransitions[s.ConfigState][u.Target] {
		return s, rgerr.ErrIllegalState
	}
	if (u.Target == Reinitializing) != (u.NewConfig != nil) {
		return s, rgerr.ErrIllegalState
	}

	out := s.clone()
	out.ConfigState = u.Target
	out.NewConfig = u.NewConfig
	if u.Target == Ready {
		out.NewConfig = nil
	}
	if u.Target != s.ConfigState {
		out.Generation++
	}
	return out, nil
}

// --- ReaderGroupStateResetStart ---------------------------------------------

// ResetStart moves READY->REINITIALIZING, stashes newConfig and bumps the
// generation fence so racing ResetStart calls collapse to one winner.
type ResetStart struct {
	NewConfig    rgconfig.ReaderGroupConfig
	NewGeneration uint64
}

func (u ResetStart) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	if s.ConfigState != Ready {
		return s, rgerr.ErrNoUpdate
	}
	if u.NewGeneration != s.Generation+1 {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	out.ConfigState = Reinitializing
	nc := u.NewConfig
	out.NewConfig = &nc
	out.Generation = u.NewGeneration
	return out, nil
}

// --- ReaderGroupStateResetComplete ------------------------------------------

// ResetComplete moves REINITIALIZING->READY, replaces config with the
// stashed newConfig, and re-seeds segments as entirely unassigned -- every
// reader must re-acquire under the new configuration.
type ResetComplete struct {
	Segments    map[stream.SegmentWithRange]int64
	EndSegments map[stream.Segment]int64
}

func (u ResetComplete) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	if s.ConfigState != Reinitializing || s.NewConfig == nil {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	out.Config = *s.NewConfig
	out.NewConfig = nil
	out.ConfigState = Ready
	out.AssignedSegments = make(map[ReaderID]map[stream.SegmentWithRange]int64, len(out.OnlineReaders))
	for r := range out.OnlineReaders {
		out.AssignedSegments[r] = map[stream.SegmentWithRange]int64{}
	}
	out.UnassignedSegments = cloneSegOffsets(u.Segments)
	out.EndSegments = make(map[stream.Segment]int64, len(u.EndSegments))
	for seg, off := range u.EndSegments {
		out.EndSegments[seg] = off
	}
	out.LastReadPositions = map[stream.Stream]map[stream.SegmentWithRange]int64{}
	return out, nil
}

// --- AcquireSegment / ReleaseSegment -----------------------------------------

// AcquireSegment moves seg from unassignedSegments into reader's assigned
// set. Rejects (ErrNoUpdate) if seg is not currently unassigned.
type AcquireSegment struct {
	Reader  ReaderID
	Segment stream.SegmentWithRange
}

func (u AcquireSegment) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	off, ok := s.UnassignedSegments[u.Segment]
	if !ok {
		return s, rgerr.ErrNoUpdate
	}
	if _, online := s.OnlineReaders[u.Reader]; !online {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	delete(out.UnassignedSegments, u.Segment)
	if out.AssignedSegments[u.Reader] == nil {
		out.AssignedSegments[u.Reader] = map[stream.SegmentWithRange]int64{}
	}
	out.AssignedSegments[u.Reader][u.Segment] = off
	return out, nil
}

// ReleaseSegment moves seg from reader's assigned set back to
// unassignedSegments at offset.
type ReleaseSegment struct {
	Reader  ReaderID
	Segment stream.SegmentWithRange
	Offset  int64
}

func (u ReleaseSegment) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	assigned, ok := s.AssignedSegments[u.Reader]
	if !ok {
		return s, rgerr.ErrNoUpdate
	}
	if _, ok := assigned[u.Segment]; !ok {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	delete(out.AssignedSegments[u.Reader], u.Segment)
	out.UnassignedSegments[u.Segment] = u.Offset
	return out, nil
}

// --- ReaderOnline / ReaderOffline --------------------------------------------

// ReaderOnline adds reader to onlineReaders with no assigned segments yet
// (it acquires via AcquireSegment once online).
type ReaderOnline struct {
	Reader ReaderID
}

func (u ReaderOnline) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	if _, ok := s.OnlineReaders[u.Reader]; ok {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	out.OnlineReaders[u.Reader] = struct{}{}
	if out.AssignedSegments[u.Reader] == nil {
		out.AssignedSegments[u.Reader] = map[stream.SegmentWithRange]int64{}
	}
	return out, nil
}

// ReaderOffline removes reader; its assigned segments return to
// unassignedSegments at lastPosition offsets when provided, otherwise at
// their offsets in lastReadPositions (falling back to their
// currently-assigned offset if neither is available). Any outstanding
// checkpoint that still lists this reader as pending is treated as
// implicitly reported at those same offsets.
type ReaderOffline struct {
	Reader       ReaderID
	LastPosition map[stream.SegmentWithRange]int64 // nil => use lastReadPositions offsets
}

func (u ReaderOffline) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	if _, ok := s.OnlineReaders[u.Reader]; !ok {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	delete(out.OnlineReaders, u.Reader)

	assigned := out.AssignedSegments[u.Reader]
	resolved := make(map[stream.SegmentWithRange]int64, len(assigned))
	for seg, curOff := range assigned {
		off := curOff
		if v, ok := out.LastReadPositions[seg.Segment.Stream][seg]; ok {
			off = v
		}
		if u.LastPosition != nil {
			if v, ok := u.LastPosition[seg]; ok {
				off = v
			}
		}
		resolved[seg] = off
		out.UnassignedSegments[seg] = off
	}
	delete(out.AssignedSegments, u.Reader)

	for id, pending := range out.Checkpoint.PendingReaders {
		if _, isPending := pending[u.Reader]; !isPending {
			continue
		}
		delete(pending, u.Reader)
		reported := out.Checkpoint.Reported[id]
		if reported == nil {
			reported = map[ReaderID]map[stream.Segment]int64{}
			out.Checkpoint.Reported[id] = reported
		}
		segOffsets := make(map[stream.Segment]int64, len(resolved))
		for swr, off := range resolved {
			segOffsets[swr.Segment] = off
		}
		reported[u.Reader] = segOffsets
	}

	return out, nil
}

// --- Checkpoint updates ------------------------------------------------------

// CreateCheckpoint appends id to outstandingCheckpoints and snapshots the
// current online readers as its pending set. Admission (len(outstanding)
// < maxOutstandingCheckpointRequest) is checked atomically with the
// append so two racing coordinators cannot both push past the cap (spec
// §4.B).
type CreateCheckpoint struct {
	ID CheckpointID
}

func (u CreateCheckpoint) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	if uint32(len(s.Checkpoint.Outstanding)) >= s.Config.MaxOutstandingCheckpointRequest {
		return s, rgerr.ErrMaxCheckpointsExceeded
	}
	for _, id := range s.Checkpoint.Outstanding {
		if id == u.ID {
			return s, rgerr.ErrNoUpdate
		}
	}
	out := s.clone()
	out.Checkpoint.Outstanding = append(out.Checkpoint.Outstanding, u.ID)
	out.Checkpoint.PendingReaders[u.ID] = cloneReaderSet(s.OnlineReaders)
	out.Checkpoint.Reported[u.ID] = map[ReaderID]map[stream.Segment]int64{}
	out.Checkpoint.Silent[u.ID] = u.ID.IsSilent()
	return out, nil
}

// CheckpointPositions fills reader's slice of reported[id] and clears it
// from id's pending set.
type CheckpointPositions struct {
	ID             CheckpointID
	Reader         ReaderID
	SegmentOffsets map[stream.Segment]int64
}

func (u CheckpointPositions) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	pending, ok := s.Checkpoint.PendingReaders[u.ID]
	if !ok {
		return s, rgerr.ErrNoUpdate
	}
	if _, isPending := pending[u.Reader]; !isPending {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	delete(out.Checkpoint.PendingReaders[u.ID], u.Reader)
	offs := make(map[stream.Segment]int64, len(u.SegmentOffsets))
	for seg, off := range u.SegmentOffsets {
		offs[seg] = off
	}
	out.Checkpoint.Reported[u.ID][u.Reader] = offs
	return out, nil
}

// ClearCheckpointsBefore pops every entry up to and including id from the
// FIFO (in order) and updates lastCompleted to the last cleared entry that
// was actually complete. Entries that were not yet complete when cleared
// simply vanish from outstanding -- this is how a DELETING or reset race
// can orphan a checkpoint a caller is awaiting (surfaced as
// CheckpointFailed by the coordinator, spec §4.B).
type ClearCheckpointsBefore struct {
	ID CheckpointID
}

func (u ClearCheckpointsBefore) Apply(s ReaderGroupState) (ReaderGroupState, error) {
	idx := -1
	for i, id := range s.Checkpoint.Outstanding {
		if id == u.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, rgerr.ErrNoUpdate
	}
	out := s.clone()
	cleared := out.Checkpoint.Outstanding[:idx+1]
	out.Checkpoint.Outstanding = append([]CheckpointID(nil), out.Checkpoint.Outstanding[idx+1:]...)

	for _, id := range cleared {
		if complete, positions := isComplete(out.Checkpoint, id); complete {
			out.Checkpoint.LastCompleted = &CompletedCheckpoint{ID: id, Positions: positions}
		}
		delete(out.Checkpoint.Reported, id)
		delete(out.Checkpoint.PendingReaders, id)
		delete(out.Checkpoint.Silent, id)
	}
	return out, nil
}

// isComplete reports whether id has no remaining pending readers, and if
// so the union of its reported positions keyed by Segment (spec §4.B:
// "the positions for a completed checkpoint are the union across
// reporters").
func isComplete(cs CheckpointState, id CheckpointID) (bool, map[stream.Stream]map[stream.Segment]int64) {
	pending := cs.PendingReaders[id]
	if len(pending) != 0 {
		return false, nil
	}
	byStream := map[stream.Stream]map[stream.Segment]int64{}
	for _, segOffsets := range cs.Reported[id] {
		for seg, off := range segOffsets {
			m := byStream[seg.Stream]
			if m == nil {
				m = map[stream.Segment]int64{}
				byStream[seg.Stream] = m
			}
			m[seg] = off
		}
	}
	return true, byStream
}

// IsComplete is the exported read-only completion predicate used by
// package checkpoint to decide when to stop polling.
func IsComplete(cs CheckpointState, id CheckpointID) (bool, map[stream.Stream]map[stream.Segment]int64) {
	return isComplete(cs, id)
}
