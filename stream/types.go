// Package stream holds the data model shared by every reader-group
// package: streams, segments, stream-cuts and reader positions. Types
// here are deliberately thin value types -- all mutation happens in
// package state, never on these values directly.
package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Stream identifies a stream by (scope, name). Opaque to the coordinator:
// it carries no segment or retention information of its own. Note: once a
// MarshalText/UnmarshalText pair is defined below, jsoniter (like
// encoding/json) prefers it over these struct tags for every encoding
// context, not just as a map key -- the tags are left off since they'd
// otherwise misleadingly imply a {"scope":...,"name":...} wire shape that
// is no longer produced.
type Stream struct {
	Scope string
	Name  string
}

func (s Stream) String() string { return s.Scope + "/" + s.Name }

// Segment identifies a unit of parallelism within a stream.
type Segment struct {
	Stream Stream
	ID     uint64
}

func (s Segment) String() string { return fmt.Sprintf("%s/seg-%d", s.Stream, s.ID) }

// KeyRange is the inclusive-exclusive key-space range a segment owns,
// present only while a split/merge reassignment is in flight.
type KeyRange struct {
	Lo float64
	Hi float64
}

// SegmentWithRange decorates a Segment with its KeyRange during
// reassignment of split/merged segments; HasRange is false otherwise.
type SegmentWithRange struct {
	Segment  Segment
	Range    KeyRange
	HasRange bool
}

func (s SegmentWithRange) String() string { return s.Segment.String() }

// --- encoding.TextMarshaler / TextUnmarshaler ---------------------------
//
// Stream, Segment and SegmentWithRange are all used as map keys
// throughout the data model (StreamCut, ReaderGroupState's segment maps,
// CheckpointState.Reported). jsoniter, like encoding/json, can only
// serialize a struct-keyed map if the key type implements
// encoding.TextMarshaler/TextUnmarshaler -- otherwise Marshal fails with
// "unsupported map key type". These implement that pair using spec
// §6.3's length-prefixed binary encoding for each field, base64-wrapped
// so the result is valid map-key text; this keeps the §6.3 field layout
// for structured keys while still running through the jsoniter/zstd
// codec in package state for the payload as a whole.

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeFloat64(buf *bytes.Buffer, v float64) { writeUint64(buf, math.Float64bits(v)) }

func readFloat64(r *bytes.Reader) (float64, error) {
	bits, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func writeStream(buf *bytes.Buffer, s Stream) {
	writeString(buf, s.Scope)
	writeString(buf, s.Name)
}

func readStream(r *bytes.Reader) (Stream, error) {
	scope, err := readString(r)
	if err != nil {
		return Stream{}, err
	}
	name, err := readString(r)
	if err != nil {
		return Stream{}, err
	}
	return Stream{Scope: scope, Name: name}, nil
}

func writeSegment(buf *bytes.Buffer, seg Segment) {
	writeStream(buf, seg.Stream)
	writeUint64(buf, seg.ID)
}

func readSegment(r *bytes.Reader) (Segment, error) {
	st, err := readStream(r)
	if err != nil {
		return Segment{}, err
	}
	id, err := readUint64(r)
	if err != nil {
		return Segment{}, err
	}
	return Segment{Stream: st, ID: id}, nil
}

func marshalText(write func(*bytes.Buffer)) ([]byte, error) {
	var buf bytes.Buffer
	write(&buf)
	return []byte(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func newReader(text []byte) (*bytes.Reader, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(text))
	if err != nil {
		return nil, fmt.Errorf("stream: unmarshal: %w", err)
	}
	return bytes.NewReader(raw), nil
}

func (s Stream) MarshalText() ([]byte, error) {
	return marshalText(func(buf *bytes.Buffer) { writeStream(buf, s) })
}

func (s *Stream) UnmarshalText(text []byte) error {
	r, err := newReader(text)
	if err != nil {
		return err
	}
	v, err := readStream(r)
	if err != nil {
		return fmt.Errorf("stream: unmarshal Stream: %w", err)
	}
	*s = v
	return nil
}

func (s Segment) MarshalText() ([]byte, error) {
	return marshalText(func(buf *bytes.Buffer) { writeSegment(buf, s) })
}

func (s *Segment) UnmarshalText(text []byte) error {
	r, err := newReader(text)
	if err != nil {
		return err
	}
	v, err := readSegment(r)
	if err != nil {
		return fmt.Errorf("stream: unmarshal Segment: %w", err)
	}
	*s = v
	return nil
}

func (s SegmentWithRange) MarshalText() ([]byte, error) {
	return marshalText(func(buf *bytes.Buffer) {
		writeSegment(buf, s.Segment)
		writeBool(buf, s.HasRange)
		writeFloat64(buf, s.Range.Lo)
		writeFloat64(buf, s.Range.Hi)
	})
}

func (s *SegmentWithRange) UnmarshalText(text []byte) error {
	r, err := newReader(text)
	if err != nil {
		return err
	}
	seg, err := readSegment(r)
	if err != nil {
		return fmt.Errorf("stream: unmarshal SegmentWithRange: %w", err)
	}
	hasRange, err := readBool(r)
	if err != nil {
		return fmt.Errorf("stream: unmarshal SegmentWithRange: %w", err)
	}
	lo, err := readFloat64(r)
	if err != nil {
		return fmt.Errorf("stream: unmarshal SegmentWithRange: %w", err)
	}
	hi, err := readFloat64(r)
	if err != nil {
		return fmt.Errorf("stream: unmarshal SegmentWithRange: %w", err)
	}
	*s = SegmentWithRange{Segment: seg, Range: KeyRange{Lo: lo, Hi: hi}, HasRange: hasRange}
	return nil
}

// Sentinel offsets used within a StreamCut.
const (
	// Unbounded means "latest" at the generation time of the cut.
	Unbounded int64 = -2
	// EndOfSegment means "read until segment end" on an ending cut; it is
	// promoted to math.MaxInt64 internally so that offset comparisons
	// treat it as unreachable rather than as a real position.
	EndOfSegment int64 = -1
)

// EndOffset is the internal promotion of EndOfSegment.
const EndOffset int64 = 1<<63 - 1 // equal to math.MaxInt64

// StreamCut maps each segment of a stream to a reader offset.
type StreamCut map[Segment]int64

// Clone returns a shallow (map-level) copy of the cut.
func (c StreamCut) Clone() StreamCut {
	if c == nil {
		return nil
	}
	out := make(StreamCut, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Position is a reader's owned snapshot of segment offsets at a moment in
// time, keyed by the decorated SegmentWithRange so reassignment ranges
// travel with the position until they are erased for metrics purposes.
type Position map[SegmentWithRange]int64

// RangeErased drops reassignment ranges, collapsing to a Segment-keyed
// offset map -- used wherever the spec calls for "range-erased" positions
// (e.g. the unread-bytes metric).
func (p Position) RangeErased() StreamCut {
	out := make(StreamCut, len(p))
	for swr, off := range p {
		out[swr.Segment] = off
	}
	return out
}
