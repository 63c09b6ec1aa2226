package htm

import "testing"

func TestAncestorReducesToCoarserLevel(t *testing.T) {
	id := idAtLevel(10, 12345)
	anc := Ancestor(id, 5)
	if anc.Level() != 5 {
		t.Fatalf("expected ancestor level 5, got %d", anc.Level())
	}
}

func TestCoverDedupesSharedAncestors(t *testing.T) {
	ranges := []Range{{Lo: 0, Hi: 16}}
	cover := Cover(ranges, 0)
	if len(cover) != 1 {
		t.Fatalf("expected a single coarsest-level trixel, got %d", len(cover))
	}
}

func TestCoarsestLevelRespectsMaxTerms(t *testing.T) {
	ranges := []Range{{Lo: 0, Hi: 1 << 20}}
	level := CoarsestLevel(ranges, 256)
	n := len(Cover(ranges, level))
	if n > 256 {
		t.Fatalf("coarsest level %d still produces %d > 256 terms", level, n)
	}
}
