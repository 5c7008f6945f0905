package state

import "fmt"

// CheckInvariants validates the properties spec §3/§8 require to hold on
// every committed snapshot. It is used by tests and, in debug builds, may
// be wired into the coordinator's optimistic loop after each commit.
func CheckInvariants(s ReaderGroupState) error {
	if err := checkPartition(s); err != nil {
		return err
	}
	if err := checkOnlineReaders(s); err != nil {
		return err
	}
	if uint32(len(s.Checkpoint.Outstanding)) > s.Config.MaxOutstandingCheckpointRequest {
		return fmt.Errorf("invariant violated: |outstandingCheckpoints|=%d exceeds cap %d",
			len(s.Checkpoint.Outstanding), s.Config.MaxOutstandingCheckpointRequest)
	}
	if (s.ConfigState == Reinitializing) != (s.NewConfig != nil) {
		return fmt.Errorf("invariant violated: configState=%s but newConfig present=%v", s.ConfigState, s.NewConfig != nil)
	}
	return nil
}

func checkPartition(s ReaderGroupState) error {
	seen := map[any]bool{}
	for _, segs := range s.AssignedSegments {
		for seg := range segs {
			if seen[seg.Segment] {
				return fmt.Errorf("invariant violated: segment %s assigned more than once", seg)
			}
			seen[seg.Segment] = true
		}
	}
	for seg := range s.UnassignedSegments {
		if seen[seg.Segment] {
			return fmt.Errorf("invariant violated: segment %s both assigned and unassigned", seg)
		}
		seen[seg.Segment] = true
	}
	return nil
}

func checkOnlineReaders(s ReaderGroupState) error {
	if len(s.OnlineReaders) != len(s.AssignedSegments) {
		return fmt.Errorf("invariant violated: onlineReaders (%d) != keys(assignedSegments) (%d)",
			len(s.OnlineReaders), len(s.AssignedSegments))
	}
	for r := range s.AssignedSegments {
		if _, ok := s.OnlineReaders[r]; !ok {
			return fmt.Errorf("invariant violated: reader %s has assigned segments but is not online", r)
		}
	}
	return nil
}
