// Package fuse detects retry loops by fingerprinting node input states.
//
// A Fuse trips when the same state has been observed too many times within a
// run. Fingerprints are deterministic across processes and ignore map key
// insertion order, so semantically identical states always collide.
package fuse

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// DefaultLimit is the number of identical states tolerated before tripping.
const DefaultLimit = 3

// ErrLoopDetected matches any *LoopError via errors.Is.
var ErrLoopDetected = errors.New("fuse: loop detected")

// LoopError is returned when a state repeats limit or more times.
type LoopError struct {
	State       any
	Fingerprint string
	Count       int
	Limit       int
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("Fuse Tripped: infinite loop detected, state repeated %d times (limit %d): %s",
		e.Count, e.Limit, preview(e.State, 200))
}

func (e *LoopError) Is(target error) bool {
	return target == ErrLoopDetected
}

// Fuse holds the per-invocation trip threshold.
type Fuse struct {
	limit int
}

// New returns a Fuse with the given limit; non-positive limits fall back to
// DefaultLimit.
func New(limit int) *Fuse {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Fuse{limit: limit}
}

func (f *Fuse) Limit() int { return f.limit }

// Check counts how often the fingerprint of state occurs in history and
// returns a *LoopError once that count reaches the limit.
func (f *Fuse) Check(history []string, state any) error {
	fp := Fingerprint(state)
	count := 0
	for _, h := range history {
		if h == fp {
			count++
		}
	}
	if count >= f.limit {
		return &LoopError{State: state, Fingerprint: fp, Count: count, Limit: f.limit}
	}
	return nil
}

// Fingerprint returns the hex blake3 digest of the canonical JSON encoding of
// state. Values that cannot be encoded as JSON fall back to their fmt
// representation, which prints maps in sorted key order.
func Fingerprint(state any) string {
	raw, err := Canonical(state)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", state))
	}
	return digest(raw)
}

// FingerprintJSON fingerprints an encoded JSON document, e.g. a persisted
// input state. It agrees with Fingerprint for the value that produced raw.
func FingerprintJSON(raw []byte) string {
	canonical, err := CanonicalJSON(raw)
	if err != nil {
		canonical = raw
	}
	return digest(canonical)
}

func digest(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func preview(state any, max int) string {
	raw, err := Canonical(state)
	s := string(raw)
	if err != nil {
		s = fmt.Sprintf("%v", state)
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
