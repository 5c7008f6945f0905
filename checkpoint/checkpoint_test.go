package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/pravega/readergroup/checkpoint"
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// virtualScheduler fires immediately, letting tests drive the poll loop
// without sleeping in real time.
type virtualScheduler struct{ ticks int }

func (v *virtualScheduler) After(time.Duration) <-chan time.Time {
	v.ticks++
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestSilentIDFormat(t *testing.T) {
	id, err := checkpoint.NewSilentID()
	if err != nil {
		t.Fatalf("NewSilentID: %v", err)
	}
	if !state.CheckpointID(id).IsSilent() {
		t.Fatalf("expected silent id, got %q", id)
	}
	if checkpoint.NewObservableID("c1").IsSilent() {
		t.Fatalf("observable id must not look silent")
	}
}

func TestPollUntilComplete(t *testing.T) {
	st := stream.Stream{Scope: "s", Name: "n"}
	seg := stream.SegmentWithRange{Segment: stream.Segment{Stream: st, ID: 0}}
	cfg := rgconfig.ReaderGroupConfig{StartingStreamCuts: map[stream.Stream]stream.StreamCut{st: {}}, MaxOutstandingCheckpointRequest: 1}

	s, err := state.Init{Config: cfg, InitialSegments: map[stream.SegmentWithRange]int64{seg: 0}}.Apply(state.Empty())
	if err != nil {
		t.Fatal(err)
	}
	s, err = state.ChangeConfigState{Target: state.Ready, ExpectedGeneration: 0}.Apply(s)
	if err != nil {
		t.Fatal(err)
	}
	s, err = state.ReaderOnline{Reader: "r1"}.Apply(s)
	if err != nil {
		t.Fatal(err)
	}
	s, err = state.CreateCheckpoint{ID: "c1"}.Apply(s)
	if err != nil {
		t.Fatal(err)
	}

	ticks := 0
	fetch := func(context.Context) (state.ReaderGroupState, error) {
		ticks++
		if ticks == 2 {
			var err error
			s, err = state.CheckpointPositions{ID: "c1", Reader: "r1", SegmentOffsets: map[stream.Segment]int64{seg.Segment: 5}}.Apply(s)
			if err != nil {
				t.Fatal(err)
			}
		}
		return s, nil
	}

	positions, err := checkpoint.PollUntilComplete(context.Background(), "c1", fetch, &virtualScheduler{})
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if positions[st][seg.Segment] != 5 {
		t.Fatalf("expected offset 5, got %v", positions)
	}
}

func TestPollUntilCompleteReportsClearedCheckpoint(t *testing.T) {
	st := stream.Stream{Scope: "s", Name: "n"}
	cfg := rgconfig.ReaderGroupConfig{StartingStreamCuts: map[stream.Stream]stream.StreamCut{st: {}}, MaxOutstandingCheckpointRequest: 1}
	s, _ := state.Init{Config: cfg}.Apply(state.Empty())
	s, _ = state.ChangeConfigState{Target: state.Ready, ExpectedGeneration: 0}.Apply(s)

	fetch := func(context.Context) (state.ReaderGroupState, error) { return s, nil }
	_, err := checkpoint.PollUntilComplete(context.Background(), "never-created", fetch, &virtualScheduler{})
	if err == nil {
		t.Fatal("expected an error for a checkpoint that is not outstanding")
	}
}
