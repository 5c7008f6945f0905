package coordinator

import (
	"context"
	"fmt"

	"github.com/pravega/readergroup/controller"
	"github.com/pravega/readergroup/internal/nlog"
	"github.com/pravega/readergroup/notify"
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
	"github.com/pravega/readergroup/subscriber"
	"github.com/pravega/readergroup/sync2"
)

// Coordinator is ReaderGroupImpl: the public entry point a reader-group
// client process embeds. Multiple Coordinator instances across processes
// cooperate over the same sync2.StateSynchronizer, fenced by generation.
type Coordinator struct {
	name string
	sync sync2.StateSynchronizer
	ctrl controller.Controller
	sub  *subscriber.Manager
	hub  *notify.Hub
}

// New constructs a Coordinator for the named reader group, bound to sync
// (this group's synchronizer) and ctrl (the upstream controller client).
func New(name string, sync sync2.StateSynchronizer, ctrl controller.Controller) *Coordinator {
	return &Coordinator{
		name: name,
		sync: sync,
		ctrl: ctrl,
		sub:  subscriber.New(ctrl, name, sync.SegmentID().String()),
		hub:  notify.New(),
	}
}

// CreateState establishes the group under cfg, computing its initial
// segments from each starting stream cut and running the lifecycle loop
// forward until the group reaches READY (spec §4.A ReaderGroupStateInit,
// §4.C doInit).
func (c *Coordinator) CreateState(ctx context.Context, cfg rgconfig.ReaderGroupConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	initial, endSegs, err := c.computeSegments(ctx, cfg)
	if err != nil {
		return fmt.Errorf("coordinator: createState: %w", err)
	}

	_, err = c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		if len(cur.Config.StartingStreamCuts) != 0 {
			return nil, rgerr.ErrNoUpdate
		}
		return state.Init{Config: cfg, InitialSegments: initial, EndSegments: endSegs}, nil
	})
	if err != nil {
		return err
	}

	return c.RunLifecycle(ctx)
}

// GetOnlineReaders returns the currently online reader ids.
func (c *Coordinator) GetOnlineReaders(ctx context.Context) ([]state.ReaderID, error) {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]state.ReaderID, 0, len(snap.OnlineReaders))
	for r := range snap.OnlineReaders {
		out = append(out, r)
	}
	return out, nil
}

// GetStreamNames returns the streams named by the group's current config.
func (c *Coordinator) GetStreamNames(ctx context.Context) ([]stream.Stream, error) {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Config.Streams(), nil
}

// GetReaderSegmentDistribution returns each online reader's current
// segment count, a rebalancing diagnostic.
func (c *Coordinator) GetReaderSegmentDistribution(ctx context.Context) (map[state.ReaderID]int, error) {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[state.ReaderID]int, len(snap.OnlineReaders))
	for r := range snap.OnlineReaders {
		out[r] = len(snap.AssignedSegments[r])
	}
	return out, nil
}

// GetStreamCuts returns the current lastReadPositions projected to
// StreamCuts, one per stream in the group's config (the cheap, non-
// checkpointed view; compare GenerateStreamCuts for a consistent one).
func (c *Coordinator) GetStreamCuts(ctx context.Context) (map[stream.Stream]stream.StreamCut, error) {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[stream.Stream]stream.StreamCut, len(snap.Config.StartingStreamCuts))
	for s := range snap.Config.StartingStreamCuts {
		cut := stream.StreamCut{}
		for swr, off := range snap.LastReadPositions[s] {
			cut[swr.Segment] = off
		}
		out[s] = cut
	}
	return out, nil
}

// ReaderOffline retires reader, returning its segments to the
// unassigned pool and satisfying any outstanding checkpoint that was
// waiting on it (spec §4.E).
func (c *Coordinator) ReaderOffline(ctx context.Context, reader state.ReaderID, lastPosition map[stream.SegmentWithRange]int64) error {
	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		return state.ReaderOffline{Reader: reader, LastPosition: lastPosition}, nil
	})
	if err != nil {
		nlog.Warningf("coordinator[%s]: readerOffline(%s): %v", c.name, reader, err)
	}
	return err
}

// DeleteState drives the group to DELETING and tears down its subscriber
// registrations (spec §4.C doDelete).
func (c *Coordinator) DeleteState(ctx context.Context) error {
	next, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		return state.ChangeConfigState{Target: state.Deleting, ExpectedGeneration: cur.Generation}, nil
	})
	if err != nil {
		return err
	}
	return c.doDelete(ctx, next)
}

// Notifier hub accessors (spec §6.2 getSegmentNotifier / getEndOfDataNotifier).
func (c *Coordinator) SegmentNotifier() (<-chan notify.Event, func()) {
	return c.hub.Subscribe(notify.SegmentChange)
}

func (c *Coordinator) EndOfDataNotifier() (<-chan notify.Event, func()) {
	return c.hub.Subscribe(notify.EndOfData)
}
