// Package typeindex implements the TypeIndex bit-mask of spec.md §3.6:
// four axes crossed two ways (field/global scope x terms/values kind).
package typeindex

import (
	"fmt"
	"sort"
	"strings"
)

// TypeIndex is a bit-mask over the four atoms below.
type TypeIndex uint8

const (
	None TypeIndex = 0

	FieldTerms  TypeIndex = 1 << 0
	FieldValues TypeIndex = 1 << 1
	GlobalTerms TypeIndex = 1 << 2
	GlobalValues TypeIndex = 1 << 3

	FieldAll  = FieldTerms | FieldValues
	GlobalAll = GlobalTerms | GlobalValues
	Terms     = FieldTerms | GlobalTerms
	Values    = FieldValues | GlobalValues
	All       = FieldAll | GlobalAll
)

var atomNames = []struct {
	mask TypeIndex
	name string
}{
	{FieldTerms, "field_terms"},
	{FieldValues, "field_values"},
	{GlobalTerms, "global_terms"},
	{GlobalValues, "global_values"},
}

// namedCombinations lists the canonical multi-atom spellings accepted on
// parse, preferred over the atom list when they exactly match (so that
// String() can emit the short form).
var namedCombinations = []struct {
	mask TypeIndex
	name string
}{
	{All, "all"},
	{None, "none"},
	{FieldAll, "field_all"},
	{GlobalAll, "global_all"},
	{Terms, "terms"},
	{Values, "values"},
}

// HasFieldTerms, HasFieldValues, HasGlobalTerms, HasGlobalValues report
// whether the corresponding axis is set, driving the 16-entry dispatch
// matrix of spec.md §4.3.1 step 7.
func (t TypeIndex) HasFieldTerms() bool   { return t&FieldTerms != 0 }
func (t TypeIndex) HasFieldValues() bool  { return t&FieldValues != 0 }
func (t TypeIndex) HasGlobalTerms() bool  { return t&GlobalTerms != 0 }
func (t TypeIndex) HasGlobalValues() bool { return t&GlobalValues != 0 }
func (t TypeIndex) HasAnyTerms() bool     { return t&Terms != 0 }
func (t TypeIndex) HasAnyValues() bool    { return t&Values != 0 }

// String canonicalises to the shortest named combination, falling back
// to a comma-joined, fixed-order atom list.
func (t TypeIndex) String() string {
	for _, nc := range namedCombinations {
		if t == nc.mask {
			return nc.name
		}
	}
	var parts []string
	for _, a := range atomNames {
		if t&a.mask != 0 {
			parts = append(parts, a.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

var byName = func() map[string]TypeIndex {
	m := map[string]TypeIndex{}
	for _, nc := range namedCombinations {
		m[nc.name] = nc.mask
	}
	for _, a := range atomNames {
		m[a.name] = a.mask
	}
	return m
}()

// Parse accepts any comma-separated order of atoms or named combinations
// and canonicalises (e.g. "values,global_terms" -> GlobalTerms|Values,
// whose String() is "field_values,global_terms,global_values": atoms in
// fixed order, since that mask matches no named combination).
func Parse(s string) (TypeIndex, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None, nil
	}
	var out TypeIndex
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		mask, ok := byName[tok]
		if !ok {
			return None, fmt.Errorf("typeindex: unknown atom %q in %q", tok, s)
		}
		out |= mask
	}
	return out, nil
}

// Atoms returns the set bits as their individual atom names, sorted for
// determinism. Useful for diagnostics and for building the dispatch key.
func (t TypeIndex) Atoms() []string {
	var out []string
	for _, a := range atomNames {
		if t&a.mask != 0 {
			out = append(out, a.name)
		}
	}
	sort.Strings(out)
	return out
}
