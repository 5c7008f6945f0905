// Package controller defines the upstream controller RPC surface the
// coordinator consumes (spec §6.1) and an HTTP/JSON client implementation
// of it.
package controller

import (
	"context"

	"github.com/pravega/readergroup/stream"
)

// Successors is the result of getSuccessors: the set of segments that
// follow a stream-cut and, for each, the predecessor segments that must
// be fully consumed before it may be read.
type Successors struct {
	Segments     []stream.Segment
	Predecessors map[stream.Segment][]stream.Segment
}

// Controller is the minimal upstream RPC surface the coordinator invokes
// (spec §6.1). All methods are idempotent per (subscriberID, generation)
// keying; implementations classify transient failures as
// *rgerr.RetryableError rather than returning them raw.
type Controller interface {
	// GetSegmentsAtTime returns the segment->offset mapping of s as of
	// wall-clock time t (t >= 0).
	GetSegmentsAtTime(ctx context.Context, s stream.Stream, t int64) (stream.StreamCut, error)

	// GetSuccessors returns the segments (and their predecessors) that
	// follow cut.
	GetSuccessors(ctx context.Context, cut stream.StreamCut) (Successors, error)

	// GetSegments returns the segment set strictly between two cuts on
	// the same stream.
	GetSegments(ctx context.Context, from, to stream.StreamCut) ([]stream.Segment, error)

	// AddSubscriber registers subscriberID as a retention-pinning
	// subscriber of s at generation gen. A call with gen <= the stored
	// generation is a no-op (idempotent).
	AddSubscriber(ctx context.Context, s stream.Stream, subscriberID string, gen uint64) error

	// UpdateSubscriberStreamCut advances subscriberID's pinned
	// stream-cut. A call with gen < the stored generation is a no-op.
	UpdateSubscriberStreamCut(ctx context.Context, s stream.Stream, subscriberID string, cut stream.StreamCut, gen uint64) error

	// DeleteSubscriber removes subscriberID's retention pin on s. A call
	// against an already-deleted subscriber is a no-op.
	DeleteSubscriber(ctx context.Context, s stream.Stream, subscriberID string, gen uint64) error

	// SegmentLength returns the current byte length of seg, used by the
	// unread-bytes metric for the open (unbounded) tail segment.
	SegmentLength(ctx context.Context, seg stream.Segment) (int64, error)
}
