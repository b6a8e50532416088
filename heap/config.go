package heap

// fallbackCapacity is the arena size used on platforms
// defaultCapacityFromRlimit cannot query (elsewhere the query result
// is clamped to [minCapacity, maxCapacity]): generous enough for
// the example programs in spec.md §8, small enough that a runaway
// allocation loop in user code still hits OOM in reasonable time
// rather than paging the host to a crawl.
const (
	fallbackCapacity = 64 << 20 // 64 MiB
	minCapacity      = 4 << 20  // 4 MiB
	maxCapacity      = 512 << 20
)

// DefaultCapacity picks a starting arena size for a fresh Context:
// a fraction of the process's own address-space (RLIMIT_AS) rlimit
// on platforms that expose one (see config_unix.go), clamped to
// [minCapacity, maxCapacity], or fallbackCapacity everywhere else.
func DefaultCapacity() int {
	if n, ok := defaultCapacityFromRlimit(); ok {
		if n < minCapacity {
			return minCapacity
		}
		if n > maxCapacity {
			return maxCapacity
		}
		return n
	}
	return fallbackCapacity
}
