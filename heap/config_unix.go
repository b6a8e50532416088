//go:build linux || darwin

package heap

import "golang.org/x/sys/unix"

// defaultCapacityFromRlimit sizes the default arena as one eighth of
// the process's RLIMIT_AS (virtual address space) soft limit, the
// same rlimit a runaway allocator would eventually be killed by
// regardless of what this package picks -- reading it up front means
// the interpreter's own OOM retry-once policy (spec.md §4.6) is the
// first thing to notice exhaustion, not the kernel.
func defaultCapacityFromRlimit() (int, bool) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &limit); err != nil {
		return 0, false
	}
	if limit.Cur == unix.RLIM_INFINITY || limit.Cur == 0 {
		return 0, false
	}
	return int(limit.Cur / 8), true
}
