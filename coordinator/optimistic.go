// Package coordinator is component (D), ReaderGroupImpl: the public
// operations exposed to reader-group clients (spec §6.2), the lifecycle
// state machine (spec §4.C), stream-cut generation and retention (spec
// §4.D), reader offline/rebalancing (spec §4.E) and the unread-bytes
// metric (spec §4.F). It drives packages state, checkpoint, subscriber
// and notify against a sync2.StateSynchronizer and a controller.Controller
// supplied at construction.
package coordinator

import (
	"context"

	"github.com/pravega/readergroup/internal/nlog"
	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/state"
	"github.com/pravega/readergroup/sync2"
)

// transact is the optimistic transaction loop every mutating operation
// runs through (spec §5): read snapshot -> compute update in a pure
// transformer -> submit; retried against the latest snapshot until it
// commits or the transformer reports no update. Side effects must live
// strictly after commit, never inside compute.
func (c *Coordinator) transact(ctx context.Context, compute func(state.ReaderGroupState) (state.Update, error)) (state.ReaderGroupState, error) {
	for {
		snap, err := c.sync.Fetch(ctx)
		if err != nil {
			return state.ReaderGroupState{}, err
		}
		cur, err := decodeOrEmpty(snap)
		if err != nil {
			return state.ReaderGroupState{}, err
		}

		update, err := compute(cur)
		if err == rgerr.ErrNoUpdate {
			return cur, nil
		}
		if err != nil {
			return state.ReaderGroupState{}, err
		}

		next, err := update.Apply(cur)
		if err == rgerr.ErrNoUpdate {
			return cur, nil
		}
		if err != nil {
			return state.ReaderGroupState{}, err
		}

		payload, err := state.Encode(next)
		if err != nil {
			return state.ReaderGroupState{}, rgerr.NewFatal("coordinator: encode committed state", err)
		}

		if _, err := c.sync.UpdateConditional(ctx, snap, payload); err != nil {
			if err == sync2.ErrConflict {
				nlog.Infof("coordinator[%s]: synchronizer conflict, retrying", c.name)
				continue
			}
			return state.ReaderGroupState{}, err
		}
		c.publishDiff(cur, next)
		return next, nil
	}
}

func decodeOrEmpty(snap sync2.Snapshot) (state.ReaderGroupState, error) {
	if len(snap.Payload) == 0 {
		return state.Empty(), nil
	}
	return state.Decode(snap.Payload)
}

// fetchSnapshot reads through the synchronizer, decoding into a
// ReaderGroupState, for read-only operations that do not submit updates.
func (c *Coordinator) fetchSnapshot(ctx context.Context) (state.ReaderGroupState, error) {
	snap, err := c.sync.Fetch(ctx)
	if err != nil {
		return state.ReaderGroupState{}, err
	}
	return decodeOrEmpty(snap)
}
