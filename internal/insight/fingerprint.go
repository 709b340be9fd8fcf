package insight

import (
	"fmt"
	"hash/fnv"
)

// Fingerprint granularities. Counting messages in buckets of ten and
// pattern hits in buckets of five means a couple of new messages do not
// reopen the cooldown gate, while a real burst of conversation does.
const (
	fingerprintBucket = 10
	patternBucket     = 5
)

// Fingerprint produces a coarse, stable hash of the profile an insight
// was derived from. The gate reopens early when the fingerprint changes,
// so the inputs are deliberately low-resolution.
func Fingerprint(category Category, p Profile) int64 {
	total := p.TotalMessages
	if total < 0 {
		total = 0
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", category, total/fingerprintBucket*fingerprintBucket)
	for _, name := range sortedPatterns(p.Patterns) {
		// Absent patterns and zero buckets hash identically.
		if bucket := p.Patterns[name] / patternBucket * patternBucket; bucket > 0 {
			fmt.Fprintf(h, "|%s=%d", name, bucket)
		}
	}
	return int64(h.Sum64())
}
