package schema

import (
	"strconv"
	"strings"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/typeindex"
	"github.com/puer99miss/Xapiand/internal/value"
)

// BadSlot is the sentinel "no slot assigned" value (spec.md §3.3).
const BadSlot int32 = -1

// PropertiesNode is one node of the properties tree: spec.md §3.5's
// nested map mirroring the structure of documents. It wraps a
// value.Value Map so the same ordered-map representation used on the
// wire backs the schema itself (spec.md §3.1's "this is... the in-memory
// representation of the schema itself").
type PropertiesNode struct {
	raw *value.OrderedMap
}

func NewPropertiesNode() *PropertiesNode {
	return &PropertiesNode{raw: value.NewOrderedMap()}
}

func wrapNode(m *value.OrderedMap) *PropertiesNode {
	if m == nil {
		return NewPropertiesNode()
	}
	return &PropertiesNode{raw: m}
}

// Clone performs the shallow copy used to seed a mutable overlay entry
// (spec.md §9): the node's own reserved keys and the identity of its
// subfield nodes are copied, but subfields are not recursively cloned
// until they themselves are mutated.
func (n *PropertiesNode) Clone() *PropertiesNode {
	return &PropertiesNode{raw: n.raw.Clone()}
}

func (n *PropertiesNode) Raw() *value.OrderedMap { return n.raw }

func (n *PropertiesNode) getString(key string) (string, bool) {
	v, ok := n.raw.Get(key)
	if !ok {
		return "", false
	}
	return v.String()
}

func (n *PropertiesNode) setString(key, s string) { n.raw.Set(key, value.String(s)) }

// Type returns the node's persisted full type, or the zero FullType if
// unset.
func (n *PropertiesNode) Type() fieldtype.FullType {
	s, ok := n.getString(KeyType)
	if !ok {
		return fieldtype.FullType{}
	}
	ft, err := fieldtype.ParseFullType(s)
	if err != nil {
		return fieldtype.FullType{}
	}
	return ft
}

func (n *PropertiesNode) SetType(ft fieldtype.FullType) { n.setString(KeyType, ft.String()) }

func (n *PropertiesNode) HasType() bool {
	_, ok := n.raw.Get(KeyType)
	return ok
}

func (n *PropertiesNode) Slot() int32 {
	v, ok := n.raw.Get(KeySlot)
	if !ok {
		return BadSlot
	}
	i, _ := v.IntS()
	return int32(i)
}

func (n *PropertiesNode) SetSlot(slot int32) { n.raw.Set(KeySlot, value.IntS(int64(slot))) }

func (n *PropertiesNode) HasSlot() bool {
	_, ok := n.raw.Get(KeySlot)
	return ok
}

func (n *PropertiesNode) Prefix() (field, uuid []byte) {
	v, ok := n.raw.Get(KeyPrefix)
	if !ok {
		return nil, nil
	}
	m, ok := v.Map()
	if !ok {
		return nil, nil
	}
	if fv, ok := m.Get("field"); ok {
		if b, ok := fv.Bytes(); ok {
			field = b
		} else if s, ok := fv.String(); ok {
			field = []byte(s)
		}
	}
	if uv, ok := m.Get("uuid"); ok {
		if b, ok := uv.Bytes(); ok {
			uuid = b
		} else if s, ok := uv.String(); ok {
			uuid = []byte(s)
		}
	}
	return
}

func (n *PropertiesNode) SetPrefix(field, uuid []byte) {
	m := value.NewOrderedMap()
	m.Set("field", value.Bytes(field))
	if uuid != nil {
		m.Set("uuid", value.Bytes(uuid))
	}
	n.raw.Set(KeyPrefix, value.Map(m))
}

func (n *PropertiesNode) Accuracy() []uint64 {
	v, ok := n.raw.Get(KeyAccuracy)
	if !ok {
		return nil
	}
	arr, ok := v.Array()
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(arr))
	for _, e := range arr {
		u, _ := e.IntU()
		out = append(out, u)
	}
	return out
}

func (n *PropertiesNode) SetAccuracy(acc []uint64) {
	arr := make([]value.Value, len(acc))
	for i, a := range acc {
		arr[i] = value.IntU(a)
	}
	n.raw.Set(KeyAccuracy, value.Array(arr))
}

func (n *PropertiesNode) HasAccuracy() bool {
	_, ok := n.raw.Get(KeyAccuracy)
	return ok
}

func (n *PropertiesNode) AccPrefix() [][]byte {
	v, ok := n.raw.Get(KeyAccPrefix)
	if !ok {
		return nil
	}
	arr, ok := v.Array()
	if !ok {
		return nil
	}
	out := make([][]byte, 0, len(arr))
	for _, e := range arr {
		if b, ok := e.Bytes(); ok {
			out = append(out, b)
		} else if s, ok := e.String(); ok {
			out = append(out, []byte(s))
		}
	}
	return out
}

func (n *PropertiesNode) SetAccPrefix(prefixes [][]byte) {
	arr := make([]value.Value, len(prefixes))
	for i, p := range prefixes {
		arr[i] = value.Bytes(p)
	}
	n.raw.Set(KeyAccPrefix, value.Array(arr))
}

func (n *PropertiesNode) Index() typeindex.TypeIndex {
	v, ok := n.raw.Get(KeyIndex)
	if !ok {
		return typeindex.All
	}
	s, ok := v.String()
	if !ok {
		return typeindex.All
	}
	ti, err := typeindex.Parse(s)
	if err != nil {
		return typeindex.All
	}
	return ti
}

func (n *PropertiesNode) SetIndex(ti typeindex.TypeIndex) { n.setString(KeyIndex, ti.String()) }

func (n *PropertiesNode) Flags() SpecFlags {
	v, ok := n.raw.Get("_flags")
	if !ok {
		return 0
	}
	u, _ := v.IntU()
	return SpecFlags(u)
}

func (n *PropertiesNode) SetFlags(f SpecFlags) { n.raw.Set("_flags", value.IntU(uint64(f))) }

// FlagStoredMask records which inheritable flags this node explicitly
// set (as opposed to merely inherited), so Inherit can tell "child
// turned it off on purpose" apart from "child never mentioned it".
func (n *PropertiesNode) FlagStoredMask() SpecFlags {
	v, ok := n.raw.Get("_flags_stored_mask")
	if !ok {
		return 0
	}
	u, _ := v.IntU()
	return SpecFlags(u)
}

func (n *PropertiesNode) SetFlagStoredMask(m SpecFlags) {
	n.raw.Set("_flags_stored_mask", value.IntU(uint64(m)))
}

func (n *PropertiesNode) Endpoint() (string, bool) { return n.getString(KeyEndpoint) }
func (n *PropertiesNode) SetEndpoint(ep string)    { n.setString(KeyEndpoint, ep) }

func (n *PropertiesNode) Script() (string, bool) { return n.getString(KeyScript) }

// Language, StemLanguage, StopStrategy and StemStrategy round-trip the
// text-analysis settings of spec.md §3.3 so they survive a schema
// reload rather than only living for the duration of the write that set
// them.
func (n *PropertiesNode) Language() (string, bool)     { return n.getString(KeyLanguage) }
func (n *PropertiesNode) SetLanguage(lang string)      { n.setString(KeyLanguage, lang) }
func (n *PropertiesNode) StemLanguage() (string, bool) { return n.getString(KeyStemLanguage) }
func (n *PropertiesNode) SetStemLanguage(lang string)  { n.setString(KeyStemLanguage, lang) }
func (n *PropertiesNode) StopStrategy() (string, bool) { return n.getString(KeyStopStrategy) }
func (n *PropertiesNode) SetStopStrategy(s string)     { n.setString(KeyStopStrategy, s) }
func (n *PropertiesNode) StemStrategy() (string, bool) { return n.getString(KeyStemStrategy) }
func (n *PropertiesNode) SetStemStrategy(s string)     { n.setString(KeyStemStrategy, s) }

// Subfield returns the child node for a plain (non-reserved) key, if
// present.
func (n *PropertiesNode) Subfield(key string) (*PropertiesNode, bool) {
	v, ok := n.raw.Get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.Map()
	if !ok {
		return nil, false
	}
	return wrapNode(m), true
}

func (n *PropertiesNode) SetSubfield(key string, child *PropertiesNode) {
	n.raw.Set(key, value.Map(child.raw))
}

// SubfieldKeys returns the ordinary (non-reserved) subfield keys in
// insertion order.
func (n *PropertiesNode) SubfieldKeys() []string {
	var out []string
	for _, k := range n.raw.Keys() {
		if isReserved(k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

func isReserved(key string) bool {
	if strings.HasPrefix(key, "\x00") {
		return true // internal sentinel keys (schema.idPathKey, schema.scriptPathKey)
	}
	if !strings.HasPrefix(key, "_") {
		return false
	}
	if reservedKeys[key] {
		return true
	}
	if _, ok := castKeys[key]; ok {
		return true
	}
	return key == "_flags" || key == "_flags_stored_mask"
}

// looksLikeAccuracySuffix recognises the query-time-only accuracy
// suffix forms of spec.md §4.4: "_1000" (numeric bucket width),
// "_month" (UnitTime name), "_geo10" (HTM level).
func looksLikeAccuracySuffix(segment string) (accField, accType string, ok bool) {
	idx := strings.LastIndex(segment, "_")
	if idx < 0 || idx == len(segment)-1 {
		return "", "", false
	}
	suffix := segment[idx+1:]
	base := segment[:idx]
	if strings.HasPrefix(suffix, "geo") {
		if _, err := strconv.Atoi(strings.TrimPrefix(suffix, "geo")); err == nil {
			return base, "geo", true
		}
	}
	if _, err := strconv.ParseUint(suffix, 10, 64); err == nil {
		return base, "numeric", true
	}
	switch suffix {
	case "second", "minute", "hour", "day", "month", "year", "decade", "century", "millennium":
		return base, "time", true
	}
	return "", "", false
}
