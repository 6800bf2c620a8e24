//go:build simhost && linux

package imcs

import "golang.org/x/sys/unix"

// sigsetAdd sets the bit for sig in a Linux unix.Sigset_t, whose underlying
// representation is a [16]uint64 word array indexed by (sig-1)/64.
func sigsetAdd(set *unix.Sigset_t, sig int) {
	sig--
	set.Val[sig/64] |= 1 << uint(sig%64)
}
