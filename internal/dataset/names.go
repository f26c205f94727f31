package dataset

import "fmt"

// MakeUnique appends ".1", ".2", ... to repeated names, leaving the first
// occurrence unchanged and never producing a name already present.
func MakeUnique(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	seen := make(map[string]int, len(names))
	for i, n := range names {
		c, dup := seen[n]
		if !dup {
			seen[n] = 0
			out[i] = n
			continue
		}
		for {
			c++
			cand := fmt.Sprintf("%s.%d", n, c)
			if !taken[cand] {
				taken[cand] = true
				seen[n] = c
				out[i] = cand
				break
			}
		}
	}
	return out
}
