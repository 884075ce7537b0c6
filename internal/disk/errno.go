package disk

import (
	"errors"
	"syscall"
)

// isNoSpace reports whether err is ENOSPC or EDQUOT, the two syscall
// errors spec.md §4.1 calls out as a distinct NoSpace error kind.
func isNoSpace(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ENOSPC || errno == syscall.EDQUOT
	}
	return false
}
