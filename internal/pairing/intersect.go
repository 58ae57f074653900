package pairing

import "iter"

// Intersect returns the ids present in both sets, ordered as encountered
// iterating owner's ids. Inputs are treated as sets; duplicates in owner
// contribute one entry.
func Intersect(owner, guest []string) []string {
	inGuest := make(map[string]struct{}, len(guest))
	for _, id := range guest {
		inGuest[id] = struct{}{}
	}

	common := make([]string, 0)
	seen := make(map[string]struct{}, len(owner))
	for _, id := range owner {
		if _, ok := inGuest[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		common = append(common, id)
	}
	return common
}

// chunks yields ids in slices of at most size elements.
func chunks(ids []string, size int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}
