// Package subscriber is component (E): it reconciles the set of upstream
// streams registered as retention-pinning subscribers against the
// group's config transitions (init/reset/delete), per spec §4.C.
package subscriber

import (
	"context"
	"fmt"

	"github.com/pravega/readergroup/controller"
	"github.com/pravega/readergroup/rgconfig"
	"github.com/pravega/readergroup/stream"
	"golang.org/x/sync/errgroup"
)

// ID builds the upstream subscriber identifier, groupName || segmentId,
// per spec §4.C: segmentId is the synchronizer backend's physical
// identity, distinguishing this logical-group incarnation from any prior
// one sharing the name.
func ID(groupName, segmentID string) string { return groupName + segmentID }

// Manager drives AddSubscriber/UpdateSubscriberStreamCut/DeleteSubscriber
// calls against the upstream controller. Every method issues its calls
// concurrently across streams via errgroup, since the calls are
// independent and idempotent under (subscriberID, generation) keying
// (spec §5).
type Manager struct {
	ctrl      controller.Controller
	groupName string
	segmentID string
}

func New(ctrl controller.Controller, groupName, segmentID string) *Manager {
	return &Manager{ctrl: ctrl, groupName: groupName, segmentID: segmentID}
}

func (m *Manager) subscriberID() string { return ID(m.groupName, m.segmentID) }

// pinning returns the streams of cfg whose retention policy actually pins
// upstream retention (spec: "whose retention policy != NONE").
func pinning(cfg rgconfig.ReaderGroupConfig) []stream.Stream {
	if !cfg.Retention.Pins() {
		return nil
	}
	return cfg.Streams()
}

// Init registers this group as a subscriber of every pinning stream in
// cfg, at generation gen (the pre-transition generation, per spec §4.C
// ordering rules). Called from the coordinator's doInit.
func (m *Manager) Init(ctx context.Context, cfg rgconfig.ReaderGroupConfig, gen uint64) error {
	streams := pinning(cfg)
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error {
			if err := m.ctrl.AddSubscriber(ctx, s, m.subscriberID(), gen); err != nil {
				return fmt.Errorf("subscriber: addSubscriber(%s): %w", s, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reconcile computes streamsToSub = new\old and streamsToUnsub = old\new
// under the retention predicate and issues the corresponding upstream
// calls concurrently (spec §4.C doReinit), at generation gen.
func (m *Manager) Reconcile(ctx context.Context, oldCfg, newCfg rgconfig.ReaderGroupConfig, gen uint64) error {
	oldSet := toSet(pinning(oldCfg))
	newSet := toSet(pinning(newCfg))

	var toSub, toUnsub []stream.Stream
	for s := range newSet {
		if !oldSet[s] {
			toSub = append(toSub, s)
		}
	}
	for s := range oldSet {
		if !newSet[s] {
			toUnsub = append(toUnsub, s)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range toSub {
		s := s
		g.Go(func() error {
			if err := m.ctrl.AddSubscriber(ctx, s, m.subscriberID(), gen); err != nil {
				return fmt.Errorf("subscriber: addSubscriber(%s): %w", s, err)
			}
			return nil
		})
	}
	for _, s := range toUnsub {
		s := s
		g.Go(func() error {
			if err := m.ctrl.DeleteSubscriber(ctx, s, m.subscriberID(), gen); err != nil {
				return fmt.Errorf("subscriber: deleteSubscriber(%s): %w", s, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Delete tears down the subscriber registration on every pinning starting
// stream of cfg (spec §4.C doDelete).
func (m *Manager) Delete(ctx context.Context, cfg rgconfig.ReaderGroupConfig, gen uint64) error {
	streams := pinning(cfg)
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error {
			if err := m.ctrl.DeleteSubscriber(ctx, s, m.subscriberID(), gen); err != nil {
				return fmt.Errorf("subscriber: deleteSubscriber(%s): %w", s, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// UpdateStreamCuts pushes cuts to the upstream controller for every
// stream present, at the group's current generation (spec §4.D
// updateRetentionStreamCut).
func (m *Manager) UpdateStreamCuts(ctx context.Context, cuts map[stream.Stream]stream.StreamCut, gen uint64) error {
	g, ctx := errgroup.WithContext(ctx)
	for s, cut := range cuts {
		s, cut := s, cut
		g.Go(func() error {
			if err := m.ctrl.UpdateSubscriberStreamCut(ctx, s, m.subscriberID(), cut, gen); err != nil {
				return fmt.Errorf("subscriber: updateSubscriberStreamCut(%s): %w", s, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func toSet(streams []stream.Stream) map[stream.Stream]bool {
	out := make(map[stream.Stream]bool, len(streams))
	for _, s := range streams {
		out[s] = true
	}
	return out
}
