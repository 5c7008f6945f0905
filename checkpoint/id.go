// Package checkpoint is component (B)+(C)'s externally-facing half: the
// pure admission/completion rules live in package state as Update
// variants; this package generates checkpoint identifiers and drives the
// 500ms poll-to-completion loop described in spec §4.B.
package checkpoint

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/pravega/readergroup/state"
)

// NewObservableID mints an identifier for a checkpoint that readers must
// surface as EventRead.isCheckpoint=true.
func NewObservableID(name string) state.CheckpointID {
	return state.CheckpointID(name)
}

// NewSilentID mints a silent checkpoint identifier: 32 random bytes,
// base64url-encoded, plus the literal SilentSuffix. At 2^-128 collision
// probability this is effectively unique (spec §9, open question:
// "silent checkpoint id collision" -- undefined behavior on collision,
// not guarded against here).
func NewSilentID() (state.CheckpointID, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("checkpoint: generating silent id: %w", err)
	}
	return state.CheckpointID(base64.RawURLEncoding.EncodeToString(raw[:]) + state.SilentSuffix), nil
}
