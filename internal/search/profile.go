package search

// profile summarises the ids of one batch.
type profile struct {
	lo, hi int64
	// width is hi-lo, exact even where the int64 subtraction would overflow.
	width    uint64
	span     int64
	distinct int
	// repeat[k] reports whether ids[k] already occurred at an earlier position.
	repeat []bool
	// present[id-lo] reports whether id occurs in the batch.
	present []bool
}

func newProfile(ids []int64) *profile {
	p := &profile{lo: ids[0], hi: ids[0], repeat: make([]bool, len(ids))}
	for _, id := range ids[1:] {
		p.lo = min(p.lo, id)
		p.hi = max(p.hi, id)
	}
	p.width = uint64(p.hi) - uint64(p.lo)

	seen := make(map[int64]struct{}, len(ids))
	for k, id := range ids {
		if _, ok := seen[id]; ok {
			p.repeat[k] = true
			continue
		}
		seen[id] = struct{}{}
	}
	p.distinct = len(seen)
	return p
}

// plausible reports whether the span fits within factor*n ids.
func (p *profile) plausible(factor, n int) bool {
	return p.width < uint64(factor)*uint64(n)
}

// index builds the presence table. Callers check plausible first.
func (p *profile) index(ids []int64) {
	p.span = int64(p.width) + 1
	p.present = make([]bool, p.span)
	for _, id := range ids {
		p.present[id-p.lo] = true
	}
}

func (p *profile) has(id int64) bool {
	if id < p.lo || id > p.hi {
		return false
	}
	return p.present[id-p.lo]
}

// plan fixes a pre-shuffle length and the candidate base ids.
//
// A batch with no gaps (span <= n) held exactly n ballots; both the lowest
// id and hi-n+1 are tried as the base so that a duplicate overwriting an
// extreme id does not shift the whole range. A batch with gaps held span
// ballots, some of which are absent from the export; the prediction is
// then restricted to ids that are present before comparing.
type plan struct {
	length   int
	anchors  []int64
	restrict bool
}

// plans lists the readings of a batch to score, primary first. Besides the
// primary reading, a batch with repeated ids and fewer distinct ids than
// records is also read as a complete shuffle plus extra copies, and a
// declared ballot count above what the ids account for is read as that
// many ballots with the missing ones at either end of the range.
func (p *profile) plans(n, declared, factor int) []plan {
	var out []plan
	if p.span <= int64(n) {
		pl := plan{length: n, anchors: []int64{p.lo}}
		if alt := p.hi - int64(n) + 1; alt != p.lo {
			pl.anchors = append(pl.anchors, alt)
		}
		out = append(out, pl)
		if p.distinct < n && p.span < int64(n) {
			out = append(out, plan{length: int(p.span), anchors: []int64{p.lo}, restrict: true})
		}
	} else {
		out = append(out, plan{length: int(p.span), anchors: []int64{p.lo}, restrict: true})
	}

	extent := max(n, int(p.span))
	if declared > extent && uint64(declared) <= uint64(factor)*uint64(n) {
		pl := plan{length: declared, restrict: true}
		for shift := int64(0); shift <= int64(declared)-p.span; shift++ {
			pl.anchors = append(pl.anchors, p.lo-shift)
		}
		out = append(out, pl)
	}
	return out
}

// score counts positions where the shuffled prediction equals the export.
// When original is non-nil it receives the recovered original position of
// every agreeing record.
func (pl plan) score(perm []int, base int64, ids []int64, p *profile, original []int) int {
	agree := 0
	if !pl.restrict {
		for k, id := range ids {
			if base+int64(perm[k]) == id {
				agree++
				if original != nil {
					original[k] = perm[k]
				}
			}
		}
		return agree
	}

	k := 0
	for _, orig := range perm {
		id := base + int64(orig)
		if !p.has(id) {
			continue
		}
		for k < len(ids) && p.repeat[k] {
			k++
		}
		if k >= len(ids) {
			break
		}
		if ids[k] == id {
			agree++
			if original != nil {
				original[k] = orig
			}
		}
		k++
	}
	return agree
}
