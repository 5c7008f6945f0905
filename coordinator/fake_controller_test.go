package coordinator_test

import (
	"context"
	"sync"

	"github.com/pravega/readergroup/controller"
	"github.com/pravega/readergroup/stream"
)

// fakeController is an in-memory controller double holding a fixed
// segment set per stream (registered with addStream): enough surface for the coordinator lifecycle/checkpoint/retention
// scenarios without standing up a real control plane.
type fakeController struct {
	mu          sync.Mutex
	segments    map[stream.Stream]stream.StreamCut
	subscribers map[string]uint64 // subscriberID+stream -> generation
	lengths     map[stream.Segment]int64
}

func newFakeController() *fakeController {
	return &fakeController{
		segments:    map[stream.Stream]stream.StreamCut{},
		subscribers: map[string]uint64{},
		lengths:     map[stream.Segment]int64{},
	}
}

func (f *fakeController) addStream(s stream.Stream, segIDs ...uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cut := stream.StreamCut{}
	for _, id := range segIDs {
		cut[stream.Segment{Stream: s, ID: id}] = 0
	}
	f.segments[s] = cut
}

func (f *fakeController) GetSegmentsAtTime(_ context.Context, s stream.Stream, _ int64) (stream.StreamCut, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.segments[s].Clone(), nil
}

func (f *fakeController) GetSuccessors(context.Context, stream.StreamCut) (controller.Successors, error) {
	return controller.Successors{}, nil
}

func (f *fakeController) GetSegments(context.Context, stream.StreamCut, stream.StreamCut) ([]stream.Segment, error) {
	return nil, nil
}

func (f *fakeController) AddSubscriber(_ context.Context, s stream.Stream, subscriberID string, gen uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[subscriberID+"/"+s.String()] = gen
	return nil
}

func (f *fakeController) UpdateSubscriberStreamCut(_ context.Context, s stream.Stream, subscriberID string, _ stream.StreamCut, gen uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[subscriberID+"/"+s.String()] = gen
	return nil
}

func (f *fakeController) DeleteSubscriber(_ context.Context, s stream.Stream, subscriberID string, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, subscriberID+"/"+s.String())
	return nil
}

func (f *fakeController) SegmentLength(_ context.Context, seg stream.Segment) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lengths[seg], nil
}
