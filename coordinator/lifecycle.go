package coordinator

import (
	"context"
	"fmt"

	"github.com/pravega/readergroup/internal/nlog"
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/stream"
)

// RunLifecycle drives the group's configState forward from whatever it
// currently observes: doInit out of INITIALIZING, doReinit out of
// REINITIALIZING, or doDelete out of DELETING. READY is the fixed point
// and returns immediately. Any coordinator instance observing one of the
// transitional states may run it -- two coordinators racing to finish the
// same transition both compute the same idempotent upstream calls and one
// of them loses the generation-fenced commit (spec §4.C, scenario S4).
func (c *Coordinator) RunLifecycle(ctx context.Context) error {
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	switch snap.ConfigState {
	case state.Initializing:
		return c.doInit(ctx, snap)
	case state.Reinitializing:
		return c.doReinit(ctx, snap)
	case state.Deleting:
		return c.doDelete(ctx, snap)
	case state.Ready:
		return nil
	default:
		return fmt.Errorf("coordinator: unknown configState %v", snap.ConfigState)
	}
}

// doInit registers subscriber pins for snap's config at generation 0, then
// transitions INITIALIZING->READY fenced on that same generation (spec
// §4.C). A concurrent doInit from another coordinator that loses the
// generation race simply observes the already-READY state on its next
// fetch; the subscriber calls it issued were idempotent no-ops.
func (c *Coordinator) doInit(ctx context.Context, snap state.ReaderGroupState) error {
	if err := c.sub.Init(ctx, snap.Config, snap.Generation); err != nil {
		return err
	}
	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		if cur.ConfigState != state.Initializing {
			return nil, rgerr.ErrNoUpdate
		}
		return state.ChangeConfigState{Target: state.Ready, ExpectedGeneration: cur.Generation}, nil
	})
	return err
}

// doReinit reconciles subscriber registrations between the outgoing and
// incoming config, recomputes segment state against the new config's
// starting/ending stream cuts, and transitions REINITIALIZING->READY (spec
// §4.C ResetComplete).
func (c *Coordinator) doReinit(ctx context.Context, snap state.ReaderGroupState) error {
	if snap.NewConfig == nil {
		return rgerr.NewFatal("coordinator: doReinit", fmt.Errorf("REINITIALIZING with no newConfig"))
	}
	newCfg := *snap.NewConfig

	if err := c.sub.Reconcile(ctx, snap.Config, newCfg, snap.Generation); err != nil {
		return err
	}

	segs, endSegs, err := c.computeSegments(ctx, newCfg)
	if err != nil {
		return err
	}

	_, err = c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		if cur.ConfigState != state.Reinitializing {
			return nil, rgerr.ErrNoUpdate
		}
		return state.ResetComplete{Segments: segs, EndSegments: endSegs}, nil
	})
	return err
}

// doDelete tears down subscriber registrations for the group's current
// config. DELETING has no outgoing transition; the caller's synchronizer
// record is expected to be reaped by its retention/TTL policy once every
// coordinator instance has observed DELETING (spec §4.C, out of scope for
// the coordination protocol itself).
func (c *Coordinator) doDelete(ctx context.Context, snap state.ReaderGroupState) error {
	if err := c.sub.Delete(ctx, snap.Config, snap.Generation); err != nil {
		return err
	}
	nlog.Infof("coordinator[%s]: deleted at generation %d", c.name, snap.Generation)
	return nil
}

// ResetReaderGroup stashes newCfg and fences a new generation, moving
// READY->REINITIALIZING, then runs the lifecycle forward to completion
// (spec §6.2 resetReaderGroup). Rejected with ErrIllegalState if the group
// is not currently READY.
func (c *Coordinator) ResetReaderGroup(ctx context.Context, newCfg rgconfig.ReaderGroupConfig) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}
	_, err := c.transact(ctx, func(cur state.ReaderGroupState) (state.Update, error) {
		if cur.ConfigState != state.Ready {
			return nil, rgerr.ErrIllegalState
		}
		return state.ResetStart{NewConfig: newCfg, NewGeneration: cur.Generation + 1}, nil
	})
	if err != nil {
		return err
	}
	return c.RunLifecycle(ctx)
}

// computeSegments resolves cfg's starting/ending stream cuts against the
// controller into the segment maps Init/ResetComplete need: an
// unassigned-segment set at the starting offsets, and the end-segment map
// marking where each bounded stream terminates.
func (c *Coordinator) computeSegments(ctx context.Context, cfg rgconfig.ReaderGroupConfig) (map[stream.SegmentWithRange]int64, map[stream.Segment]int64, error) {
	segs := map[stream.SegmentWithRange]int64{}
	for s, cut := range cfg.StartingStreamCuts {
		at, err := c.ctrl.GetSegmentsAtTime(ctx, s, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("coordinator: computeSegments: %s: %w", s, err)
		}
		for seg, off := range at {
			if userOff, ok := cut[seg]; ok {
				off = userOff
			}
			segs[stream.SegmentWithRange{Segment: seg}] = off
		}
	}

	endSegs := map[stream.Segment]int64{}
	for _, cut := range cfg.EndingStreamCuts {
		for seg, off := range cut {
			if off == stream.EndOfSegment {
				off = stream.EndOffset
			}
			endSegs[seg] = off
		}
	}
	return segs, endSegs, nil
}
