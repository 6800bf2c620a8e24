// Package signal implements the kernel's POSIX-style signal subsystem:
// per-thread pending/queued signal storage, synchronous signal-wait, and
// asynchronous handler delivery on return to thread, per spec.md §4.5/§6.
package signal

import "fmt"

// NumSignals is the width of a Set: signals are numbered 0..31.
const NumSignals = 32

// Set is a 32-bit signal bitset indexed 0..31.
type Set uint32

// Empty is the set containing no signals.
const Empty Set = 0

// Full is the set containing every signal.
const Full Set = 1<<NumSignals - 1

func validSignal(sig uint8) bool { return sig < NumSignals }

// Add returns a copy of s with sig added, or an error if sig is out of
// range.
func (s Set) Add(sig uint8) (Set, error) {
	if !validSignal(sig) {
		return s, fmt.Errorf("signal: invalid signal number %d", sig)
	}
	return s | 1<<sig, nil
}

// Remove returns a copy of s with sig removed.
func (s Set) Remove(sig uint8) (Set, error) {
	if !validSignal(sig) {
		return s, fmt.Errorf("signal: invalid signal number %d", sig)
	}
	return s &^ (1 << sig), nil
}

// Test reports whether sig is a member of s.
func (s Set) Test(sig uint8) (bool, error) {
	if !validSignal(sig) {
		return false, fmt.Errorf("signal: invalid signal number %d", sig)
	}
	return s&(1<<sig) != 0, nil
}

// LowestSet returns the lowest-numbered member of s and true, or (0,
// false) if s is empty. Used everywhere the spec requires "the
// lowest-numbered signal wins" among several pending-and-unblocked
// candidates.
func (s Set) LowestSet() (uint8, bool) {
	if s == 0 {
		return 0, false
	}
	for sig := uint8(0); sig < NumSignals; sig++ {
		if s&(1<<sig) != 0 {
			return sig, true
		}
	}
	panic("unreachable")
}

// Intersect returns the members common to both sets.
func (s Set) Intersect(other Set) Set { return s & other }

// Union returns the members of either set.
func (s Set) Union(other Set) Set { return s | other }
