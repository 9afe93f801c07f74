// Package lockorder fixes the order in which multi-account operations take
// row locks. Every transaction that touches more than one account must lock
// rows in ascending account id, so two operations over overlapping accounts
// always contend in the same direction and cannot deadlock.
package lockorder

import "sort"

// Order returns the distinct account ids sorted ascending. The result is the
// same for every permutation of ids, which is the whole point.
func Order(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
