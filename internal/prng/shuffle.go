package prng

// Shuffle runs the in-place Fisher-Yates shuffle the tabulator applies to a
// batch of n ballots and returns the resulting permutation: perm[k] is the
// original (pre-shuffle) position of the ballot stored at final position k.
// n <= 0 yields an empty permutation.
func Shuffle(m Model, seed int64, n int) []int {
	if n <= 0 {
		return []int{}
	}
	perm := make([]int, n)
	ShuffleInto(m.New(seed), perm)
	return perm
}

// ShuffleInto fills perm with the identity and shuffles it in place using
// src. It lets callers reuse one buffer across many seeds.
func ShuffleInto(src Source, perm []int) {
	for i := range perm {
		perm[i] = i
	}
	for i := len(perm) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
}

// Invert returns the inverse permutation: inv[perm[k]] = k, i.e. original
// position → final position.
func Invert(perm []int) []int {
	inv := make([]int, len(perm))
	for k, orig := range perm {
		inv[orig] = k
	}
	return inv
}

// Apply returns the sequence a batch of ids would have after shuffling:
// out[k] = ids[perm[k]]. len(ids) must equal len(perm).
func Apply(perm []int, ids []int64) []int64 {
	out := make([]int64, len(perm))
	for k, orig := range perm {
		out[k] = ids[orig]
	}
	return out
}
