// Package fieldtype implements the closed FieldType enumeration and the
// 4-tuple full-type (foreign, object, array, concrete) of spec.md §3.2.
package fieldtype

import (
	"fmt"
	"strings"
)

// FieldType is the concrete terminal type tag of a field.
type FieldType int

const (
	Empty FieldType = iota
	Boolean
	Integer
	Positive
	Floating
	Date
	DateTime
	Time
	TimeDelta
	Keyword
	Text
	StringT
	UUID
	Geo
	Script
	Foreign
	Object
	Array
)

var names = map[FieldType]string{
	Empty:     "empty",
	Boolean:   "boolean",
	Integer:   "integer",
	Positive:  "positive",
	Floating:  "floating",
	Date:      "date",
	DateTime:  "datetime",
	Time:      "time",
	TimeDelta: "timedelta",
	Keyword:   "keyword",
	Text:      "text",
	StringT:   "string",
	UUID:      "uuid",
	Geo:       "geo",
	Script:    "script",
	Foreign:   "foreign",
	Object:    "object",
	Array:     "array",
}

var byName = func() map[string]FieldType {
	m := make(map[string]FieldType, len(names))
	for k, v := range names {
		m[v] = k
	}
	return m
}()

func (t FieldType) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return "unknown"
}

// ParseFieldType parses a single concrete type literal (not a full-type
// string with modifiers).
func ParseFieldType(s string) (FieldType, error) {
	t, ok := byName[s]
	if !ok {
		return Empty, fmt.Errorf("fieldtype: unknown type %q", s)
	}
	return t, nil
}

// IsNumeric reports whether t carries numeric accuracy-bucket semantics.
func (t FieldType) IsNumeric() bool {
	return t == Integer || t == Positive || t == Floating
}

// IsTemporal reports whether t carries date/time accuracy semantics.
func (t FieldType) IsTemporal() bool {
	return t == Date || t == DateTime || t == Time || t == TimeDelta
}

// FullType is the 4-tuple (foreign, object, array, concrete) of spec.md
// §3.2. The three modifier flags may combine in any way with a concrete
// terminal type, except that foreign fields must not carry nested
// concrete subfields (enforced by the schema engine, not here).
type FullType struct {
	ForeignMod bool
	ObjectMod  bool
	ArrayMod   bool
	Concrete   FieldType
}

// the modifier words, in the canonical emission order.
var modifierWords = []string{"foreign", "object", "array"}

// ParseFullType accepts any permutation of the modifier words, slash
// separated, followed by (or consisting solely of) one concrete type
// literal. "object/array/integer", "array/object/foreign", "text" and
// "foreign/object" are all valid.
func ParseFullType(s string) (FullType, error) {
	var ft FullType
	if s == "" {
		return ft, nil
	}
	parts := strings.Split(s, "/")
	concreteSeen := false
	for _, p := range parts {
		switch p {
		case "foreign":
			ft.ForeignMod = true
		case "object":
			ft.ObjectMod = true
		case "array":
			ft.ArrayMod = true
		default:
			if concreteSeen {
				return FullType{}, fmt.Errorf("fieldtype: multiple concrete types in %q", s)
			}
			ct, err := ParseFieldType(p)
			if err != nil {
				return FullType{}, fmt.Errorf("fieldtype: parsing %q: %w", s, err)
			}
			ft.Concrete = ct
			concreteSeen = true
		}
	}
	return ft, nil
}

// String always emits the canonical order foreign/object/array/concrete,
// omitting absent modifiers and omitting the concrete segment entirely
// when Concrete is Empty and at least one modifier is present (an
// "object/array" field with no concrete type yet assigned).
func (ft FullType) String() string {
	var segs []string
	if ft.ForeignMod {
		segs = append(segs, "foreign")
	}
	if ft.ObjectMod {
		segs = append(segs, "object")
	}
	if ft.ArrayMod {
		segs = append(segs, "array")
	}
	if ft.Concrete != Empty || len(segs) == 0 {
		segs = append(segs, ft.Concrete.String())
	}
	return strings.Join(segs, "/")
}

// WidenedBy reports whether other is a valid widening of ft: the
// concrete type must be unchanged (or ft's concrete must still be
// Empty), and the modifier flags may only gain bits, never lose them
// (spec.md §3.5: "Only the modifier flags... may widen, never narrow").
func (ft FullType) WidenedBy(other FullType) bool {
	if ft.Concrete != Empty && other.Concrete != Empty && ft.Concrete != other.Concrete {
		return false
	}
	if ft.ForeignMod && !other.ForeignMod {
		return false
	}
	if ft.ObjectMod && !other.ObjectMod {
		return false
	}
	if ft.ArrayMod && !other.ArrayMod {
		return false
	}
	return true
}

// Merge widens ft with other, keeping whichever concrete type is
// non-empty (other wins if both are set and equal; callers must check
// WidenedBy first to reject true conflicts).
func (ft FullType) Merge(other FullType) FullType {
	out := ft
	out.ForeignMod = ft.ForeignMod || other.ForeignMod
	out.ObjectMod = ft.ObjectMod || other.ObjectMod
	out.ArrayMod = ft.ArrayMod || other.ArrayMod
	if out.Concrete == Empty {
		out.Concrete = other.Concrete
	}
	return out
}
