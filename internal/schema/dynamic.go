package schema

import (
	"strconv"
	"strings"

	"github.com/puer99miss/Xapiand/internal/accuracy"
	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/schema/uuidschema"
	"github.com/puer99miss/Xapiand/internal/serialiser"
)

// SubfieldInfo is the public view of one resolved subfield exposed by
// GetDynamicSubproperties: the concrete specification plus, when the
// caller asked about a query-time accuracy suffix, the parsed suffix
// detail needed to pick the right accuracy bucket (spec.md §4.4).
type SubfieldInfo struct {
	Path      string
	Spec      RequiredSpc
	Found     bool
	IsDynamic bool
	AccSuffix string // "" unless the path's last segment matched an accuracy-suffix form
	AccIndex  int    // index into Spec.Accuracy/AccPrefix for AccSuffix, or -1

	// Namespace is set when resolution ran out of known schema under an
	// ancestor flagged _is_namespace (spec.md §4.4's inside_namespace
	// case): the remaining segments are free-form and were never typed
	// by Schema.Index, so Spec is meaningless and callers should match
	// the "N"+Path boolean term Schema.indexNamespacePrefixes writes for
	// that ancestor's own path instead of a typed term/range query.
	Namespace bool

	// Err carries a hard failure (e.g. path exceeds
	// LimitPartialPathsDepth) that callers should surface verbatim
	// rather than collapsing into a generic "unknown field".
	Err error
}

// GetDynamicSubproperties resolves path against the schema without
// mutating it, implementing spec.md §4.4's query-time resolution in
// full: existing-key descent, UUID-segment detection against the
// canonical uuidschema.ReservedSegment sub-schema, the accuracy-suffix
// forms ("price_1000", "created_month", "location_geo10") against an
// already-typed ancestor, and namespace fallthrough once descent runs
// out of known schema under a field flagged _is_namespace. Unlike
// Schema.Index/Update/Write this never writes to the overlay -- it is a
// read-only helper for query planning.
func (s *Schema) GetDynamicSubproperties(path string) SubfieldInfo {
	if path == "" {
		root := s.resolve("")
		return SubfieldInfo{Path: "", Spec: specFromNode(root), Found: root != nil}
	}
	if strings.Count(path, ".") > LimitPartialPathsDepth {
		return SubfieldInfo{Path: path, Err: &ClientError{Path: path, Msg: "path exceeds the maximum partial-path depth"}}
	}

	segs := strings.Split(path, ".")
	var cur *PropertiesNode = s.resolve("")
	walked := ""
	var uuidOverride []byte
	for i, seg := range segs {
		if cur == nil {
			return SubfieldInfo{Path: path, Found: false}
		}
		child, ok := cur.Subfield(seg)
		if ok {
			cur = child
			uuidOverride = nil
			walked = joinPath(walked, seg)
			continue
		}

		if uuidChild, prefix, ok := resolveUUIDSegment(cur, seg); ok {
			cur = uuidChild
			uuidOverride = prefix
			walked = joinPath(walked, seg)
			continue
		}

		// Last segment only: try the accuracy-suffix forms against the
		// current (already-resolved) ancestor.
		if i == len(segs)-1 {
			if accField, accType, ok := looksLikeAccuracySuffix(seg); ok {
				if sibling, ok := cur.Subfield(accField); ok {
					info := resolveAccuracySuffix(walked, accField, accType, seg, sibling)
					if info.Found {
						return info
					}
				}
			}
		}

		if cur.Flags().Has(FlagIsNamespace) {
			return SubfieldInfo{
				Path:      joinPath(walked, strings.Join(segs[i:], ".")),
				Found:     true,
				IsDynamic: true,
				Namespace: true,
			}
		}
		return SubfieldInfo{Path: path, Found: false}
	}
	spec := specFromNode(cur)
	if uuidOverride != nil {
		spec.PrefixUUID = uuidOverride
	}
	return SubfieldInfo{Path: path, Spec: spec, Found: true}
}

func joinPath(walked, seg string) string {
	if walked == "" {
		return seg
	}
	return walked + "." + seg
}

// resolveUUIDSegment mirrors walkField's index-time UUID detection
// (schema.go): a segment that isn't a literal key but passes the cheap
// serialiser.PossiblyUUID syntactic check descends into the canonical
// uuidschema.ReservedSegment sub-schema every UUID-named field shares,
// with its own computed, segment-derived term prefix standing in for
// the generic placeholder's.
func resolveUUIDSegment(cur *PropertiesNode, seg string) (*PropertiesNode, []byte, bool) {
	if !serialiser.PossiblyUUID(seg) {
		return nil, nil, false
	}
	uuidChild, ok := cur.Subfield(uuidschema.ReservedSegment)
	if !ok {
		return nil, nil, false
	}
	prefix, err := uuidschema.Prefix(seg)
	if err != nil {
		return nil, nil, false
	}
	return uuidChild, prefix, true
}

func specFromNode(n *PropertiesNode) RequiredSpc {
	if n == nil {
		return RequiredSpc{Slot: BadSlot}
	}
	spec := RequiredSpc{Slot: BadSlot, Flags: n.Flags()}
	if n.HasType() {
		spec.SepTypes = n.Type()
	}
	if n.HasSlot() {
		spec.Slot = n.Slot()
	}
	if n.HasAccuracy() {
		spec.Accuracy = n.Accuracy()
		spec.AccPrefix = n.AccPrefix()
	}
	if field, uid := n.Prefix(); field != nil {
		spec.PrefixField = field
		spec.PrefixUUID = uid
	}
	if lang, ok := n.Language(); ok {
		spec.Language = lang
	}
	if lang, ok := n.StemLanguage(); ok {
		spec.StemLanguage = lang
	}
	if strat, ok := n.StopStrategy(); ok {
		spec.StopStrategy = strat
	}
	if strat, ok := n.StemStrategy(); ok {
		spec.StemStrategy = strat
	}
	return spec
}

// resolveAccuracySuffix matches a query-time accuracy segment (the
// field name plus a suffix: "price_1000", "created_month", "loc_geo10"),
// passed whole as suffix, against the field's configured accuracy list, per spec.md
// §4.4: the suffix must name a bucket width/unit/level that the field
// was actually indexed with; arbitrary suffixes do not auto-create a
// bucket.
func resolveAccuracySuffix(parentPath, accField, accType, suffix string, field *PropertiesNode) SubfieldInfo {
	spec := specFromNode(field)
	idx := -1
	switch accType {
	case "numeric":
		width, err := strconv.ParseUint(suffix[strings.LastIndex(suffix, "_")+1:], 10, 64)
		if err == nil {
			for i, w := range spec.Accuracy {
				if w == width {
					idx = i
					break
				}
			}
		}
	case "geo":
		lvl, err := strconv.Atoi(strings.TrimPrefix(suffix[strings.LastIndex(suffix, "_")+1:], "geo"))
		if err == nil {
			for i, w := range spec.Accuracy {
				if int(w) == lvl {
					idx = i
					break
				}
			}
		}
	case "time":
		unit := suffix[strings.LastIndex(suffix, "_")+1:]
		ordinal, ok := unitTimeOrdinalByName(unit)
		if ok {
			for i, w := range spec.Accuracy {
				if w == ordinal {
					idx = i
					break
				}
			}
		}
	}
	if idx < 0 {
		return SubfieldInfo{Found: false}
	}
	return SubfieldInfo{
		Path:      parentPathJoin(parentPath, suffix),
		Spec:      spec,
		Found:     true,
		IsDynamic: true,
		AccSuffix: suffix,
		AccIndex:  idx,
	}
}

func unitTimeOrdinalByName(name string) (uint64, bool) {
	switch name {
	case "second":
		return uint64(accuracy.Second), true
	case "minute":
		return uint64(accuracy.Minute), true
	case "hour":
		return uint64(accuracy.Hour), true
	case "day":
		return uint64(accuracy.Day), true
	case "month":
		return uint64(accuracy.Month), true
	case "year":
		return uint64(accuracy.Year), true
	case "decade":
		return uint64(accuracy.Decade), true
	case "century":
		return uint64(accuracy.Century), true
	case "millennium":
		return uint64(accuracy.Millennium), true
	default:
		return 0, false
	}
}

// fieldIsOrdered reports whether concrete's serialised form sorts the
// same way the underlying value compares, i.e. range queries against it
// are meaningful (spec.md §4.1's ordered-types list).
func fieldIsOrdered(t fieldtype.FieldType) bool {
	switch t {
	case fieldtype.Integer, fieldtype.Positive, fieldtype.Floating,
		fieldtype.Date, fieldtype.DateTime, fieldtype.Time, fieldtype.TimeDelta, fieldtype.UUID:
		return true
	default:
		return false
	}
}
