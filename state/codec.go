package state

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	jsoniter "github.com/json-iterator/go"

	"github.com/pravega/readergroup/rgerr"
)

// WriteVersion is the highest wire-format revision this build understands
// (spec §6.3). Bump it, and extend Decode to handle the new shape, whenever the
// on-the-wire shape of ReaderGroupState changes in a way older readers
// cannot ignore.
const WriteVersion uint8 = 1

// compressThreshold is the encoded-payload size above which Encode
// zstd-compresses the body; chosen so small dev/test snapshots stay
// uncompressed and human-readable in synchronizer dumps.
const compressThreshold = 8 * 1024

const (
	flagCompressed byte = 1 << 0
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes s into the versioned record format: writeVersion byte,
// revision byte, flags byte, then the (optionally zstd-compressed)
// jsoniter-encoded payload.
func Encode(s ReaderGroupState) ([]byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("state: encode: %w", err)
	}

	var flags byte
	if len(payload) > compressThreshold {
		compressed, err := compress(payload)
		if err != nil {
			return nil, fmt.Errorf("state: compress: %w", err)
		}
		payload = compressed
		flags |= flagCompressed
	}

	out := make([]byte, 0, len(payload)+3)
	out = append(out, WriteVersion, 1 /*revision*/, flags)
	out = append(out, payload...)
	return out, nil
}

// Decode accepts any record whose revision <= WriteVersion and rejects
// higher versions as Fatal (spec §6.3, §7).
func Decode(data []byte) (ReaderGroupState, error) {
	if len(data) < 3 {
		return ReaderGroupState{}, fmt.Errorf("state: decode: truncated header (%d bytes)", len(data))
	}
	writeVersion, revision, flags := data[0], data[1], data[2]
	if revision > WriteVersion {
		return ReaderGroupState{}, rgerr.NewFatal("state: decode", fmt.Errorf("revision %d exceeds supported writeVersion %d (record writeVersion %d)",
			revision, WriteVersion, writeVersion))
	}

	payload := data[3:]
	if flags&flagCompressed != 0 {
		decompressed, err := decompress(payload)
		if err != nil {
			return ReaderGroupState{}, fmt.Errorf("state: decompress: %w", err)
		}
		payload = decompressed
	}

	var s ReaderGroupState
	if err := json.Unmarshal(payload, &s); err != nil {
		return ReaderGroupState{}, fmt.Errorf("state: decode: %w", err)
	}
	return s, nil
}

func compress(payload []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.EncodeAll(payload, make([]byte, 0, len(payload))), nil
}

func decompress(payload []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.DecodeAll(payload, nil)
}

// EncodeUpdate is a convenience for encoding an arbitrary tagged Update
// for transport/logging purposes (e.g. an audit log of applied updates);
// it does not participate in the ReaderGroupState wire format itself.
func EncodeUpdate(name string, u any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(struct {
		Name string `json:"name"`
		Body any    `json:"body"`
	}{Name: name, Body: u}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
