// Package accuracy implements the AccuracyTermer of spec.md §4.2: for a
// numeric/date/time/geo value and a field's configured accuracy buckets,
// emit the small set of bucket-anchor terms that make range queries
// efficient, plus the inverse range -> OR-of-terms construction used by
// the query planner (spec.md §4.5).
package accuracy

import (
	"fmt"
	"time"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/htm"
	"github.com/puer99miss/Xapiand/internal/serialiser"
	"github.com/puer99miss/Xapiand/internal/value"
)

// MaxTerms bounds the number of OR-ed terms emitted for a single range
// query at a single bucket level (spec.md §4.2, invariant §8.4).
const MaxTerms = 256

// UnitTime enumerates the date/datetime/time/timedelta accuracy units,
// ordered from finest to coarsest exactly as spec.md §4.5's cascade
// requires.
type UnitTime int

const (
	Second UnitTime = iota
	Minute
	Hour
	Day
	Month
	Year
	Decade
	Century
	Millennium
)

var unitCascade = []UnitTime{Millennium, Century, Decade, Year, Month, Day, Hour, Minute, Second}

// Term is one emitted accuracy term: a byte-string prefix concatenated
// with the serialised bucket anchor.
type Term struct {
	Prefix []byte
	Anchor []byte
}

// Bytes returns the literal term bytes (prefix + anchor), the form added
// to the inverted index.
func (t Term) Bytes() []byte {
	out := make([]byte, 0, len(t.Prefix)+len(t.Anchor))
	out = append(out, t.Prefix...)
	out = append(out, t.Anchor...)
	return out
}

// Terms computes the accuracy terms for v under the given concrete type,
// accuracy list and parallel acc_prefix list (spec.md §3.3, §4.2). For
// numeric/date/time fields, accuracy holds bucket widths or UnitTime
// ordinals; for geo it holds HTM levels and v must already carry its
// HTM coverage ranges (obtained from the assumed-available geometry
// primitive, spec.md §1).
func Terms(concrete fieldtype.FieldType, v value.Value, accuracyList []uint64, accPrefix [][]byte, geoRanges []htm.Range) ([]Term, error) {
	if len(accuracyList) != len(accPrefix) {
		return nil, fmt.Errorf("accuracy: accuracy and acc_prefix length mismatch (%d != %d)", len(accuracyList), len(accPrefix))
	}
	switch {
	case concrete.IsNumeric():
		return numericTerms(concrete, v, accuracyList, accPrefix)
	case concrete == fieldtype.Date || concrete == fieldtype.DateTime:
		return dateTerms(v, accuracyList, accPrefix)
	case concrete == fieldtype.Time || concrete == fieldtype.TimeDelta:
		return clockTerms(v, accuracyList, accPrefix)
	case concrete == fieldtype.Geo:
		return geoTerms(geoRanges, accuracyList, accPrefix)
	default:
		return nil, nil
	}
}

func numericTerms(concrete fieldtype.FieldType, v value.Value, accuracyList []uint64, accPrefix [][]byte) ([]Term, error) {
	f, err := v.AsNumber()
	if err != nil {
		return nil, fmt.Errorf("accuracy: numeric: %w", err)
	}
	if concrete == fieldtype.Floating {
		f = float64(int64(f))
	}
	n := int64(f)
	out := make([]Term, 0, len(accuracyList))
	for i, w := range accuracyList {
		if w == 0 {
			continue
		}
		bucket := floorDiv(n, int64(w)) * int64(w)
		anchor, err := serialiser.Serialise(fieldtype.Integer, value.IntS(bucket))
		if err != nil {
			return nil, err
		}
		out = append(out, Term{Prefix: accPrefix[i], Anchor: anchor})
	}
	return out, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func dateTerms(v value.Value, accuracyList []uint64, accPrefix [][]byte) ([]Term, error) {
	ts, err := asTime(v)
	if err != nil {
		return nil, fmt.Errorf("accuracy: date: %w", err)
	}
	out := make([]Term, 0, len(accuracyList))
	for i, u := range accuracyList {
		zeroed := zeroToUnit(ts, UnitTime(u))
		anchor, err := serialiser.Serialise(fieldtype.DateTime, value.String(zeroed.Format(time.RFC3339)))
		if err != nil {
			return nil, err
		}
		out = append(out, Term{Prefix: accPrefix[i], Anchor: anchor})
	}
	return out, nil
}

func asTime(v value.Value) (time.Time, error) {
	if s, ok := v.String(); ok {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
	}
	if n, err := v.AsNumber(); err == nil {
		return time.Unix(int64(n), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("value is not a date")
}

// zeroToUnit zeroes out every field finer than unit, per spec.md §4.2
// ("Zero out finer fields of the broken-down time").
func zeroToUnit(t time.Time, unit UnitTime) time.Time {
	y, m, d := t.Date()
	switch unit {
	case Second:
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	case Minute:
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, time.UTC)
	case Hour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	case Decade:
		return time.Date((y/10)*10, 1, 1, 0, 0, 0, 0, time.UTC)
	case Century:
		return time.Date((y/100)*100, 1, 1, 0, 0, 0, 0, time.UTC)
	case Millennium:
		return time.Date((y/1000)*1000, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

func clockTerms(v value.Value, accuracyList []uint64, accPrefix [][]byte) ([]Term, error) {
	secs, err := asSeconds(v)
	if err != nil {
		return nil, fmt.Errorf("accuracy: time/timedelta: %w", err)
	}
	out := make([]Term, 0, len(accuracyList))
	for i, u := range accuracyList {
		width := unitSeconds(UnitTime(u))
		bucket := floorDiv(secs, width) * width
		anchor, err := serialiser.Serialise(fieldtype.Integer, value.IntS(bucket))
		if err != nil {
			return nil, err
		}
		out = append(out, Term{Prefix: accPrefix[i], Anchor: anchor})
	}
	return out, nil
}

func unitSeconds(u UnitTime) int64 {
	switch u {
	case Second:
		return 1
	case Minute:
		return 60
	case Hour:
		return 3600
	default:
		return 1
	}
}

func asSeconds(v value.Value) (int64, error) {
	if n, err := v.AsNumber(); err == nil {
		return int64(n), nil
	}
	return 0, fmt.Errorf("value is not numeric seconds")
}

func geoTerms(ranges []htm.Range, accuracyList []uint64, accPrefix [][]byte) ([]Term, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	coarsestCovered := -1
	for _, lvl := range accuracyList {
		if n := len(htm.Cover(ranges, int(lvl))); n > 0 {
			if coarsestCovered == -1 || int(lvl) < coarsestCovered {
				coarsestCovered = int(lvl)
			}
		}
	}
	out := make([]Term, 0)
	seen := map[string]struct{}{}
	for i, lvl := range accuracyList {
		if coarsestCovered >= 0 && int(lvl) < coarsestCovered {
			// A level below the coarsest covered level yields nothing
			// (spec.md §4.2).
			continue
		}
		ids := htm.Cover(ranges, int(lvl))
		for _, id := range ids {
			anchor, err := serialiser.Serialise(fieldtype.Positive, value.IntU(uint64(id)))
			if err != nil {
				return nil, err
			}
			term := Term{Prefix: accPrefix[i], Anchor: anchor}
			key := string(term.Bytes())
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, term)
		}
	}
	return out, nil
}

// Query is the synthesised AND/OR boolean structure produced by
// InverseRange, consumed by internal/backend's query translation.
type Query struct {
	// OR is an inclusive-or of the byte-string terms at the coarsest
	// satisfying bucket.
	OR [][]byte
	// AND, when non-nil, is the OR group of the finest bucket that also
	// satisfies MaxTerms, ANDed with OR for refinement (spec.md §4.5 step 3).
	AND [][]byte
}

// InverseNumericRange implements spec.md §4.5 steps 1-3 for numeric
// fields: find the coarsest bucket under MaxTerms, OR its anchors across
// [lo, hi], and AND in the finest bucket's OR group when a bucket finer
// than the coarse one also fits.
func InverseNumericRange(accuracyList []uint64, accPrefix [][]byte, lo, hi int64) (Query, error) {
	if len(accuracyList) == 0 {
		return Query{}, fmt.Errorf("accuracy: no configured buckets for range query")
	}
	coarseIdx := -1
	for i := len(accuracyList) - 1; i >= 0; i-- {
		w := int64(accuracyList[i])
		if w <= 0 {
			continue
		}
		n := int((hi-lo)/w) + 2
		if n <= MaxTerms {
			coarseIdx = i
			break
		}
	}
	if coarseIdx == -1 {
		return Query{}, fmt.Errorf("accuracy: no bucket satisfies MaxTerms for range [%d,%d]", lo, hi)
	}
	q := Query{OR: bucketRangeTerms(accuracyList[coarseIdx], accPrefix[coarseIdx], lo, hi)}
	// accuracyList runs finest to coarsest, so finer buckets sit at the
	// lower indices; scan up from the finest bucket and refine with the
	// first one that also satisfies MaxTerms (spec.md §4.5 step 3).
	for i := 0; i < coarseIdx; i++ {
		w := int64(accuracyList[i])
		if w <= 0 {
			continue
		}
		n := int((hi-lo)/w) + 2
		if n <= MaxTerms {
			q.AND = bucketRangeTerms(accuracyList[i], accPrefix[i], lo, hi)
			break
		}
	}
	return q, nil
}

func bucketRangeTerms(width uint64, prefix []byte, lo, hi int64) [][]byte {
	w := int64(width)
	start := floorDiv(lo, w) * w
	var out [][]byte
	for b := start; b <= hi; b += w {
		anchor, _ := serialiser.Serialise(fieldtype.Integer, value.IntS(b))
		out = append(out, Term{Prefix: prefix, Anchor: anchor}.Bytes())
	}
	return out
}
