package state_test

import (
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func mkStream(name string) stream.Stream { return stream.Stream{Scope: "scope", Name: name} }

func mkConfig(maxCkpt uint32, streams ...stream.Stream) rgconfig.ReaderGroupConfig {
	cuts := map[stream.Stream]stream.StreamCut{}
	for _, s := range streams {
		cuts[s] = stream.StreamCut{}
	}
	return rgconfig.ReaderGroupConfig{
		Scope:                           "scope",
		StartingStreamCuts:              cuts,
		MaxOutstandingCheckpointRequest: maxCkpt,
	}
}

var _ = Describe("ReaderGroupState updates", func() {
	var s0 state.ReaderGroupState
	var seg0, seg1 stream.SegmentWithRange

	BeforeEach(func() {
		st := mkStream("s1")
		seg0 = stream.SegmentWithRange{Segment: stream.Segment{Stream: st, ID: 0}}
		seg1 = stream.SegmentWithRange{Segment: stream.Segment{Stream: st, ID: 1}}
		cfg := mkConfig(2, st)
		out, err := state.Init{
			Config:          cfg,
			InitialSegments: map[stream.SegmentWithRange]int64{seg0: 0, seg1: 0},
		}.Apply(state.Empty())
		Expect(err).NotTo(HaveOccurred())
		s0 = out
	})

	It("starts INITIALIZING at generation 0", func() {
		Expect(s0.ConfigState).To(Equal(state.Initializing))
		Expect(s0.Generation).To(BeZero())
		Expect(state.CheckInvariants(s0)).To(Succeed())
	})

	It("transitions INITIALIZING->READY and bumps generation", func() {
		out, err := state.ChangeConfigState{Target: state.Ready, ExpectedGeneration: 0}.Apply(s0)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.ConfigState).To(Equal(state.Ready))
		Expect(out.Generation).To(Equal(uint64(1)))
	})

	It("rejects a stale-generation ChangeConfigState as a no-op", func() {
		_, err := state.ChangeConfigState{Target: state.Ready, ExpectedGeneration: 99}.Apply(s0)
		Expect(err).To(MatchError(HaveSuffix("no update")))
	})

	It("rejects an illegal transition", func() {
		_, err := state.ChangeConfigState{Target: state.Reinitializing, ExpectedGeneration: 0}.Apply(s0)
		Expect(err).To(HaveOccurred())
	})

	Context("once READY with a reader online", func() {
		var ready state.ReaderGroupState

		BeforeEach(func() {
			var err error
			ready, err = state.ChangeConfigState{Target: state.Ready, ExpectedGeneration: 0}.Apply(s0)
			Expect(err).NotTo(HaveOccurred())
			ready, err = state.ReaderOnline{Reader: "r1"}.Apply(ready)
			Expect(err).NotTo(HaveOccurred())
		})

		It("acquires and releases segments maintaining the partition invariant", func() {
			acquired, err := state.AcquireSegment{Reader: "r1", Segment: seg0}.Apply(ready)
			Expect(err).NotTo(HaveOccurred())
			Expect(acquired.AssignedSegments["r1"]).To(HaveKey(seg0))
			Expect(acquired.UnassignedSegments).NotTo(HaveKey(seg0))
			Expect(state.CheckInvariants(acquired)).To(Succeed())

			released, err := state.ReleaseSegment{Reader: "r1", Segment: seg0, Offset: 42}.Apply(acquired)
			Expect(err).NotTo(HaveOccurred())
			Expect(released.UnassignedSegments[seg0]).To(Equal(int64(42)))
			Expect(state.CheckInvariants(released)).To(Succeed())
		})

		It("returns a departing reader's segments to unassigned on ReaderOffline", func() {
			acquired, _ := state.AcquireSegment{Reader: "r1", Segment: seg0}.Apply(ready)
			offline, err := state.ReaderOffline{Reader: "r1", LastPosition: map[stream.SegmentWithRange]int64{seg0: 7}}.Apply(acquired)
			Expect(err).NotTo(HaveOccurred())
			Expect(offline.UnassignedSegments[seg0]).To(Equal(int64(7)))
			Expect(offline.OnlineReaders).NotTo(HaveKey(state.ReaderID("r1")))
			Expect(state.CheckInvariants(offline)).To(Succeed())
		})

		It("enforces the checkpoint admission cap atomically with CreateCheckpoint", func() {
			s := ready
			for i := 0; i < 2; i++ {
				var err error
				s, err = state.CreateCheckpoint{ID: state.CheckpointID(string(rune('a' + i)))}.Apply(s)
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := state.CreateCheckpoint{ID: "overflow"}.Apply(s)
			Expect(err).To(HaveOccurred())
		})

		It("completes a checkpoint once every pending reader has reported", func() {
			s, err := state.ReaderOnline{Reader: "r2"}.Apply(ready)
			Expect(err).NotTo(HaveOccurred())
			s, err = state.CreateCheckpoint{ID: "c1"}.Apply(s)
			Expect(err).NotTo(HaveOccurred())

			complete, _ := state.IsComplete(s.Checkpoint, "c1")
			Expect(complete).To(BeFalse())

			s, err = state.CheckpointPositions{ID: "c1", Reader: "r1", SegmentOffsets: map[stream.Segment]int64{seg0.Segment: 10}}.Apply(s)
			Expect(err).NotTo(HaveOccurred())
			complete, _ = state.IsComplete(s.Checkpoint, "c1")
			Expect(complete).To(BeFalse())

			s, err = state.CheckpointPositions{ID: "c1", Reader: "r2", SegmentOffsets: map[stream.Segment]int64{seg1.Segment: 20}}.Apply(s)
			Expect(err).NotTo(HaveOccurred())
			complete, positions := state.IsComplete(s.Checkpoint, "c1")
			Expect(complete).To(BeTrue())
			Expect(positions[seg0.Segment.Stream][seg0.Segment]).To(Equal(int64(10)))
			Expect(positions[seg1.Segment.Stream][seg1.Segment]).To(Equal(int64(20)))

			cleared, err := state.ClearCheckpointsBefore{ID: "c1"}.Apply(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(cleared.Checkpoint.Outstanding).To(BeEmpty())
			Expect(cleared.Checkpoint.LastCompleted.ID).To(Equal(state.CheckpointID("c1")))
		})

		It("treats an offline reader as implicitly reported at its last position", func() {
			s, err := state.ReaderOnline{Reader: "r2"}.Apply(ready)
			Expect(err).NotTo(HaveOccurred())
			s, err = state.AcquireSegment{Reader: "r2", Segment: seg1}.Apply(s)
			Expect(err).NotTo(HaveOccurred())
			s, err = state.CreateCheckpoint{ID: "c2"}.Apply(s)
			Expect(err).NotTo(HaveOccurred())

			s, err = state.ReaderOffline{Reader: "r2", LastPosition: map[stream.SegmentWithRange]int64{seg1: 99}}.Apply(s)
			Expect(err).NotTo(HaveOccurred())

			s, err = state.CheckpointPositions{ID: "c2", Reader: "r1", SegmentOffsets: map[stream.Segment]int64{}}.Apply(s)
			Expect(err).NotTo(HaveOccurred())

			complete, positions := state.IsComplete(s.Checkpoint, "c2")
			Expect(complete).To(BeTrue())
			Expect(positions[seg1.Segment.Stream][seg1.Segment]).To(Equal(int64(99)))
		})
	})

	It("round-trips through the wire codec", func() {
		data, err := state.Encode(s0)
		Expect(err).NotTo(HaveOccurred())
		decoded, err := state.Decode(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.Generation).To(Equal(s0.Generation))
		Expect(decoded.ConfigState).To(Equal(s0.ConfigState))
		Expect(decoded.UnassignedSegments).To(HaveLen(len(s0.UnassignedSegments)))
	})

	It("rejects a record whose revision exceeds this build's WriteVersion", func() {
		data, err := state.Encode(s0)
		Expect(err).NotTo(HaveOccurred())
		data[1] = state.WriteVersion + 1
		_, err = state.Decode(data)
		Expect(err).To(HaveOccurred())
	})
})
