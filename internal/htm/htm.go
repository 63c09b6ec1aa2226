// Package htm implements a minimal Hierarchical Triangular Mesh trixel
// id scheme: enough to let internal/accuracy emit and cover geo terms
// (spec.md §4.2, §4.5). Full HTM construction from EWKT geometry is a
// geometry primitive spec.md §1 assumes is externally available; this
// package only has to manage trixel ids, ancestry and coarse-grained
// coverage over a list of numeric ranges, which is what AccuracyTermer
// and the range-query planner actually touch.
package htm

// TrixelID encodes (level, index) as a single integer: the index occupies
// the low 2*level bits and a sentinel 1 bit sits just above them, so the
// level is given by the sentinel's position and ids at different levels
// never collide, following the standard HTM convention of a base-4 digit
// string with a sentinel leading 1.
type TrixelID uint64

const MaxLevel = 25

// Range is a closed numeric interval of trixel-space positions covered
// by a shape at the finest level. A real HTM implementation produces
// these from EWKT geometry; here they are a direct input to Cover.
type Range struct {
	Lo, Hi uint64
}

// idAtLevel builds the canonical id for a base-4 index at a given level:
// a leading sentinel bit followed by 2 bits per level.
func idAtLevel(level int, index uint64) TrixelID {
	return TrixelID((uint64(1) << uint(2*level)) | index)
}

// Level extracts the HTM level encoded in id (number of base-4 digits
// below the sentinel bit).
func (id TrixelID) Level() int {
	v := uint64(id)
	level := 0
	for v > 1 {
		v >>= 2
		level++
	}
	return level
}

// Ancestor returns id's ancestor trixel at a coarser level. If id is
// already at or below level, id itself is returned unchanged.
func Ancestor(id TrixelID, level int) TrixelID {
	cur := id.Level()
	if level >= cur {
		return id
	}
	shift := uint(2 * (cur - level))
	return TrixelID(uint64(id) >> shift)
}

// Cover enumerates the distinct trixel ids at level that intersect any
// of ranges, where ranges are expressed in the finest-level (MaxLevel)
// index space. Adjacent finest-level cells falling under the same
// coarser ancestor are deduplicated.
func Cover(ranges []Range, level int) []TrixelID {
	if level < 0 {
		level = 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	shift := uint(2 * (MaxLevel - level))
	seen := make(map[uint64]struct{})
	var out []TrixelID
	for _, r := range ranges {
		lo, hi := r.Lo>>shift, r.Hi>>shift
		for idx := lo; idx <= hi; idx++ {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idAtLevel(level, idx))
		}
	}
	return out
}

// CoarsestLevel walks levels from finest to coarsest and returns the
// first level it meets at which ranges produce at least one distinct
// trixel but no more than maxTerms of them, i.e. the finest level that
// fits the cap (0 when none does) — a range-query planner (spec.md §4.5)
// can use it to pick a bounded OR of terms.
func CoarsestLevel(ranges []Range, maxTerms int) int {
	for level := MaxLevel; level >= 0; level-- {
		if n := len(Cover(ranges, level)); n > 0 && n <= maxTerms {
			return level
		}
	}
	return 0
}
