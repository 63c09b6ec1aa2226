package schema

import (
	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/typeindex"
	"github.com/puer99miss/Xapiand/internal/value"
)

// RequiredSpc is the persisted per-field configuration of spec.md §3.3.
type RequiredSpc struct {
	SepTypes     fieldtype.FullType
	PrefixField  []byte
	PrefixUUID   []byte
	Slot         int32
	Accuracy     []uint64
	AccPrefix    [][]byte
	Flags        SpecFlags
	Language     string
	StemLanguage string
	StopStrategy string
	StemStrategy string
	Error        float64
	Endpoint     string
}

// DefaultAccuracy returns the fixed default accuracy buckets for a
// concrete type per spec.md §6.3.
func DefaultAccuracy(t fieldtype.FieldType) []uint64 {
	switch t {
	case fieldtype.Integer, fieldtype.Positive, fieldtype.Floating:
		return []uint64{100, 1_000, 10_000, 100_000, 1_000_000, 100_000_000}
	case fieldtype.Date:
		return unitOrdinals(UnitDay, UnitMonth, UnitYear, UnitDecade, UnitCentury)
	case fieldtype.DateTime:
		return unitOrdinals(UnitHour, UnitDay, UnitMonth, UnitYear, UnitDecade, UnitCentury)
	case fieldtype.Time, fieldtype.TimeDelta:
		return unitOrdinals(UnitMinute, UnitHour)
	case fieldtype.Geo:
		return []uint64{3, 5, 8, 10, 12, 15}
	default:
		return nil
	}
}

// UnitTime ordinals mirrored here: the constants below carry the same
// values, in the same order, as accuracy.UnitTime's.
type unitTimeAlias int

const (
	UnitSecond unitTimeAlias = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitMonth
	UnitYear
	UnitDecade
	UnitCentury
	UnitMillennium
)

func unitOrdinals(us ...unitTimeAlias) []uint64 {
	out := make([]uint64, len(us))
	for i, u := range us {
		out[i] = uint64(u)
	}
	return out
}

// Specification extends RequiredSpc with per-document, non-persisted
// traversal state (spec.md §3.4).
type Specification struct {
	RequiredSpc

	Position  []int
	Weight    []int
	Spelling  []bool
	Positions []int

	Index          typeindex.TypeIndex
	IndexUUIDField UUIDFieldIndexPolicy

	Value    value.Value
	ValueRec value.Value

	MetaName     string
	FullMetaName string

	PartialPrefixes [][]byte

	FieldFound bool
	Concrete   bool
	Complete   bool

	UUIDField      bool
	UUIDPath       bool
	HasUUIDPrefix  bool
}

// UUIDFieldIndexPolicy controls whether a UUID-named dynamic field also
// gets indexed under its canonical UUID sub-schema prefix, its literal
// segment text, or both (spec.md §3.4).
type UUIDFieldIndexPolicy int

const (
	UUIDFieldIndexBoth UUIDFieldIndexPolicy = iota
	UUIDFieldIndexUUIDOnly
	UUIDFieldIndexLiteralOnly
)

// restart resets the per-field traversal state while preserving the
// path-carrying fields (MetaName/FullMetaName), mirroring
// restart_specification() of spec.md §4.3.1 step 5.
func (s *Specification) restart() {
	s.Position = nil
	s.Weight = nil
	s.Spelling = nil
	s.Positions = nil
	s.Value = value.Value{}
	s.ValueRec = value.Value{}
	s.FieldFound = false
	s.Concrete = false
	s.Complete = false
}

// defaultIDSpec is the implicit `_id` specification used when no
// explicit one is stored yet (spec.md §4.3.1 step 2: "default to uuid
// with bool_term=true").
func defaultIDSpec() RequiredSpc {
	return RequiredSpc{
		SepTypes: fieldtype.FullType{Concrete: fieldtype.UUID},
		Slot:     BadSlot,
		Flags:    FlagBoolTerm,
	}
}
