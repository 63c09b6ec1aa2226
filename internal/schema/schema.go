// Package schema implements the Schema Engine of spec.md §4.3-§4.5: the
// self-describing, dynamically-evolvable typed schema that drives how
// every field of every document is tokenised, indexed and stored.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/puer99miss/Xapiand/internal/accuracy"
	"github.com/puer99miss/Xapiand/internal/backend"
	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/htm"
	"github.com/puer99miss/Xapiand/internal/schema/script"
	"github.com/puer99miss/Xapiand/internal/schema/uuidschema"
	"github.com/puer99miss/Xapiand/internal/serialiser"
	"github.com/puer99miss/Xapiand/internal/typeindex"
	"github.com/puer99miss/Xapiand/internal/value"
)

// LimitPartialPathsDepth bounds namespace partial-path expansion and
// dynamic-field resolution depth (spec.md §4.3.1 step 6, §4.4).
const LimitPartialPathsDepth = 10

// idPathKey is the internal-only tree path the `_id` field's
// specification is stored under. It cannot collide with a real
// document field because document field names are split on "." and
// "_id" itself is a single reserved top-level key in documents, never
// a path segment of another field (spec.md §4.3.1 step 2).
const idPathKey = "\x00id"

// scriptPathKey stores the root-level `_script` hook, when configured
// (spec.md §4.3.1 step 4).
const scriptPathKey = "\x00script"

// ShardSelector resolves which shard index a newly-generated document
// id should land on, implementing the least-loaded-shard policy of
// spec.md §4.6.4. It is implemented by internal/dbpool and injected
// here so the Schema Engine stays free of any ShardQueue/DatabasePool
// dependency.
type ShardSelector interface {
	SelectShard(ctx context.Context, endpoints []string) (shardIndex int, err error)
}

// Schema wraps an immutable properties tree plus a per-walk mutable
// overlay (spec.md §9, §4.3.3): reads during a walk prefer the overlay,
// writes clone-on-write into it, and a successful walk commits the
// overlay into a fresh origin pointer; a failed walk simply discards
// it, leaving the published schema untouched.
type Schema struct {
	origin *PropertiesNode
	mut    map[string]*PropertiesNode
}

func New(origin *PropertiesNode) *Schema {
	if origin == nil {
		origin = NewPropertiesNode()
	}
	return &Schema{origin: origin}
}

// Origin exposes the current immutable root, e.g. for persistence
// (spec.md §6.4).
func (s *Schema) Origin() *PropertiesNode { return s.origin }

// MarshalSchema encodes s's persisted origin with the same tagged-value
// encoding the wire codec uses, for storage under the Index Backend's
// "schema" metadata key (spec.md §6.4).
func MarshalSchema(s *Schema) ([]byte, error) {
	return value.ToMsgPack(value.Map(s.Origin().raw))
}

// UnmarshalSchema is MarshalSchema's inverse. An empty payload yields a
// fresh, empty Schema (spec.md §8's schema round-trip property covers
// non-empty payloads; a never-written index starts empty).
func UnmarshalSchema(data []byte) (*Schema, error) {
	if len(data) == 0 {
		return New(nil), nil
	}
	v, err := value.FromMsgPack(data)
	if err != nil {
		return nil, fmt.Errorf("schema: unmarshalling persisted schema: %w", err)
	}
	m, ok := v.Map()
	if !ok {
		return nil, &CorruptionError{Path: "", Msg: "persisted schema is not an object"}
	}
	return New(wrapNode(m)), nil
}

func splitParent(path string) (parent, segment string) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// resolve looks up path (dotted, relative to root) preferring the
// overlay, falling back to the committed origin. Returns nil if the
// path does not exist anywhere.
func (s *Schema) resolve(path string) *PropertiesNode {
	if path == "" {
		if n, ok := s.mut[""]; ok {
			return n
		}
		return s.origin
	}
	if n, ok := s.mut[path]; ok {
		return n
	}
	parent, seg := splitParent(path)
	parentNode := s.resolve(parent)
	if parentNode == nil {
		return nil
	}
	child, ok := parentNode.Subfield(seg)
	if !ok {
		return nil
	}
	return child
}

// mutable returns a private, writable clone of the node at path,
// registering every ancestor along the way into the overlay so commit
// can fold bottom-up changes back into a fresh root.
func (s *Schema) mutable(path string) *PropertiesNode {
	if s.mut == nil {
		s.mut = make(map[string]*PropertiesNode)
	}
	if n, ok := s.mut[path]; ok {
		return n
	}
	src := s.resolve(path)
	var clone *PropertiesNode
	if src == nil {
		clone = NewPropertiesNode()
	} else {
		clone = src.Clone()
	}
	s.mut[path] = clone
	if path != "" {
		parent, seg := splitParent(path)
		parentNode := s.mutable(parent)
		parentNode.SetSubfield(seg, clone)
	}
	return clone
}

// commit folds the overlay into a fresh origin pointer. Called only
// after a walk completes without error (spec.md §4.3.3).
func (s *Schema) commit() {
	if root, ok := s.mut[""]; ok {
		s.origin = root
	}
	s.mut = nil
}

// discard drops the overlay, leaving origin exactly as it was before
// the walk began.
func (s *Schema) discard() { s.mut = nil }

// feed copies a stored node's persisted RequiredSpc fields into a
// Specification, inheriting flags from the parent per spec.md §3.3,
// §4.3.1 step 5 ("feeding... copies persisted settings into the
// traversal state without marking the field as user-set").
func feed(parent Specification, stored *PropertiesNode) Specification {
	spec := Specification{RequiredSpc: parent.RequiredSpc}
	spec.Index = parent.Index
	if stored == nil {
		spec.Flags = Inherit(parent.Flags, 0, 0)
		return spec
	}
	storedFlags := stored.Flags()
	storedMask := stored.FlagStoredMask()
	spec.Flags = Inherit(parent.Flags, storedFlags, storedMask)
	if stored.HasType() {
		spec.SepTypes = stored.Type()
	}
	if stored.HasSlot() {
		spec.Slot = stored.Slot()
	}
	if field, uid := stored.Prefix(); field != nil {
		spec.PrefixField = field
		spec.PrefixUUID = uid
	}
	if stored.HasAccuracy() {
		spec.Accuracy = stored.Accuracy()
		spec.AccPrefix = stored.AccPrefix()
	}
	if idx, ok := stored.raw.Get(KeyIndex); ok {
		if s, ok := idx.String(); ok {
			if ti, err := typeindex.Parse(s); err == nil {
				spec.Index = ti
			}
		}
	}
	if ep, ok := stored.Endpoint(); ok {
		spec.Endpoint = ep
	}
	if lang, ok := stored.Language(); ok {
		spec.Language = lang
	}
	if lang, ok := stored.StemLanguage(); ok {
		spec.StemLanguage = lang
	}
	if strat, ok := stored.StopStrategy(); ok {
		spec.StopStrategy = strat
	}
	if strat, ok := stored.StemStrategy(); ok {
		spec.StemStrategy = strat
	}
	spec.FieldFound = true
	return spec
}

func rootSpecification() Specification {
	return Specification{
		RequiredSpc: RequiredSpc{Slot: BadSlot, Flags: DefaultRootFlags},
		Index:       typeindex.All,
	}
}

// walkState accumulates the output of one Index/Update/Write traversal.
type walkState struct {
	doc         *backend.Document
	data        *value.OrderedMap
	nextSlot    int32
	fieldPrefix map[string]byte
	write       bool // true for Index (a document is produced), false for Update
}

func newWalkState(write bool) *walkState {
	return &walkState{
		doc:         &backend.Document{Fields: map[string]interface{}{}},
		data:        value.NewOrderedMap(),
		nextSlot:    1,
		fieldPrefix: map[string]byte{},
		write:       write,
	}
}

// IndexResult is the tuple Schema.Index returns (spec.md §4.3.1).
type IndexResult struct {
	TermID   string
	Document *backend.Document
	Stored   value.Value
}

// Index implements spec.md §4.3.1: walk obj, producing one Index-Backend
// document plus an echo of the persisted stored data. id, if non-nil,
// is the caller-supplied document id (step 3's first branch); endpoints
// is the endpoint set used for autogeneration (step 3's second branch).
func (s *Schema) Index(ctx context.Context, obj value.Value, id *value.Value, endpoints []string, selector ShardSelector) (IndexResult, error) {
	res, err := s.run(ctx, obj, id, endpoints, selector, true)
	if err != nil {
		s.discard()
		return IndexResult{}, err
	}
	s.commit()
	return res, nil
}

// Update implements spec.md §4.3.2: same walk, widening-only, no
// document is produced.
func (s *Schema) Update(ctx context.Context, obj value.Value) error {
	_, err := s.run(ctx, obj, nil, nil, nil, false)
	if err != nil {
		s.discard()
		return err
	}
	s.commit()
	return nil
}

// Write implements spec.md §4.3.2's destructive variant: with
// replace=true, clears properties before installing obj as the new
// schema wholesale.
func (s *Schema) Write(ctx context.Context, obj value.Value, replace bool) error {
	if replace {
		s.mut = map[string]*PropertiesNode{"": NewPropertiesNode()}
	}
	_, err := s.run(ctx, obj, nil, nil, nil, false)
	if err != nil {
		s.discard()
		return err
	}
	s.commit()
	return nil
}

func (s *Schema) run(ctx context.Context, obj value.Value, id *value.Value, endpoints []string, selector ShardSelector, write bool) (IndexResult, error) {
	m, ok := obj.Map()
	if !ok {
		return IndexResult{}, &ClientError{Path: "", Msg: "document body must be an object"}
	}

	if scriptSpec := s.resolve(scriptPathKey); scriptSpec != nil {
		if expr, ok := scriptSpec.Script(); ok && expr != "" {
			replaced, changed, err := script.Run(expr, obj)
			if err != nil {
				return IndexResult{}, fmt.Errorf("schema: script hook: %w", err)
			}
			if changed {
				obj = replaced
				m, _ = obj.Map()
			}
		}
	}

	ws := newWalkState(write)
	root := rootSpecification()

	var termID string
	var err error
	if write {
		termID, err = s.resolveDocumentID(ctx, m, id, endpoints, selector, ws)
		if err != nil {
			return IndexResult{}, err
		}
	}

	if err := m.Each(func(key string, v value.Value) error {
		if key == "_id" || key == "_script" {
			if key == "_script" {
				return s.processScriptOverride(v)
			}
			return nil
		}
		return s.walkField(ctx, ws, &root, "", key, v)
	}); err != nil {
		return IndexResult{}, err
	}

	if write && termID != "" {
		idSpec := s.idSpecification()
		idBytes, _ := serialiser.Serialise(idSpec.SepTypes.Concrete, value.String(termID))
		if idSpec.SepTypes.Concrete == fieldtype.Empty {
			idBytes = []byte(termID)
		}
		ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "Q" + string(idBytes)})
		ws.doc.ID = termID
		ws.data.Set("_id", value.String(termID))
	}

	return IndexResult{TermID: termID, Document: ws.doc, Stored: value.Map(ws.data)}, nil
}

func (s *Schema) processScriptOverride(v value.Value) error {
	str, ok := v.String()
	if !ok {
		return &ClientError{Key: KeyScript, Msg: "_script must be a string expression"}
	}
	node := s.mutable(scriptPathKey)
	node.raw.Set(KeyScript, value.String(str))
	return nil
}

// idSpecification resolves the `_id` field spec (spec.md §4.3.1 step 2):
// feed from the stored node if present, else default to uuid with
// bool_term=true.
func (s *Schema) idSpecification() RequiredSpc {
	stored := s.resolve(idPathKey)
	if stored == nil {
		return defaultIDSpec()
	}
	spec := feed(Specification{RequiredSpc: RequiredSpc{Slot: BadSlot}}, stored)
	if spec.SepTypes.Concrete == fieldtype.Empty {
		d := defaultIDSpec()
		spec.SepTypes = d.SepTypes
		spec.Flags = d.Flags
	}
	return spec.RequiredSpc
}

// resolveDocumentID implements spec.md §4.3.1 step 3: cast a
// caller-supplied id, or autogenerate one via the shard-selection
// policy for UUID/text-ish ids.
func (s *Schema) resolveDocumentID(ctx context.Context, m *value.OrderedMap, id *value.Value, endpoints []string, selector ShardSelector, ws *walkState) (string, error) {
	idSpec := s.idSpecification()
	node := s.mutable(idPathKey)
	if !node.HasType() {
		node.SetType(idSpec.SepTypes)
		node.SetFlags(idSpec.Flags)
		node.SetFlagStoredMask(FlagBoolTerm)
	}

	if id != nil {
		s, err := idToString(*id)
		if err != nil {
			return "", &SerialisationError{Path: "_id", Type: idSpec.SepTypes.Concrete.String(), Err: err}
		}
		return s, nil
	}
	if v, ok := m.Get("_id"); ok {
		s, err := idToString(v)
		if err != nil {
			return "", &SerialisationError{Path: "_id", Type: idSpec.SepTypes.Concrete.String(), Err: err}
		}
		return s, nil
	}

	switch idSpec.SepTypes.Concrete {
	case fieldtype.UUID, fieldtype.Text, fieldtype.StringT, fieldtype.Keyword:
		return generateID(ctx, endpoints, selector)
	default:
		return generateMonotonicID(), nil
	}
}

// monotonicIDCounter backs generateMonotonicID for fields whose _id type
// is not UUID/text-ish (e.g. an integer id space), per-process only --
// durable id allocation across restarts belongs to internal/bookkeeping.
var monotonicIDCounter uint64

// maxIDCandidates bounds the id-generation retry loop of spec.md
// §4.6.4 ("generate up to 10 candidate ids").
const maxIDCandidates = 10

// generateID implements spec.md §4.3.1 step 3's autogeneration branch
// for uuid/text-ish id fields together with the shard-selection policy
// of §4.6.4: ask the selector for the least-loaded shard, then try
// candidate UUIDs until one hashes onto that shard, falling back to
// the last candidate tried if none do.
func generateID(ctx context.Context, endpoints []string, selector ShardSelector) (string, error) {
	if selector == nil || len(endpoints) == 0 {
		return uuid.NewString(), nil
	}
	minShard, err := selector.SelectShard(ctx, endpoints)
	if err != nil {
		return "", fmt.Errorf("schema: selecting shard for id generation: %w", err)
	}
	n := len(endpoints)
	candidate := uuid.NewString()
	for i := 0; i < maxIDCandidates; i++ {
		candidate = uuid.NewString()
		if shardForID(candidate, n) == minShard {
			return candidate, nil
		}
	}
	return candidate, nil
}

// shardForID implements spec.md §4.6.4's "shard = hash(serialised
// prefixed id) mod N" and the round-trip invariant of §8 ("hash(term_id)
// mod N of every indexed document equals the shard it ended up in").
// xxhash is grounded on the pack's own id-routing use of it
// (drpcorg-chotki's index_manager.go hashes object ids the same way to
// place them into the hash index) and is already present, via bleve's
// own dependency tree, in this module's go.sum.
func shardForID(id string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(id) % uint64(n))
}

// ShardForID exports shardForID for callers (internal/dbpool, tests)
// that need to verify a term id landed on the shard its generation
// targeted (spec.md §8's shard-routing invariant).
func ShardForID(id string, n int) int { return shardForID(id, n) }

func generateMonotonicID() string {
	n := atomic.AddUint64(&monotonicIDCounter, 1)
	return fmt.Sprintf("%d", n)
}

func idToString(v value.Value) (string, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.String()
		return s, nil
	case value.KindIntS:
		i, _ := v.IntS()
		return fmt.Sprintf("%d", i), nil
	case value.KindIntU:
		u, _ := v.IntU()
		return fmt.Sprintf("%d", u), nil
	default:
		return "", fmt.Errorf("unsupported _id value kind %s", v.Kind())
	}
}

// walkField implements the per-component recursive descent of spec.md
// §4.3.1 step 5: restart per-field state, feed or create the subtree,
// detect UUID-named dynamic segments, and dispatch to indexing at the
// leaf.
func (s *Schema) walkField(ctx context.Context, ws *walkState, parent *Specification, parentPath, key string, v value.Value) error {
	if isReserved(key) {
		return nil // reserved overrides at this level were already consumed by processOverrides on the parent map.
	}
	path := key
	if parentPath != "" {
		path = parentPath + "." + key
	}
	if strings.Count(path, ".") > LimitPartialPathsDepth {
		return &ClientError{Path: path, Msg: "path exceeds the maximum partial-path depth"}
	}

	stored := s.resolve(path)
	uuidSegment := stored == nil && serialiser.PossiblyUUID(key)
	var child Specification
	if uuidSegment {
		uuidStored := s.resolve(parentPathJoin(parentPath, uuidschema.ReservedSegment))
		child = feed(*parent, uuidStored)
		child.UUIDPath = true
		child.HasUUIDPrefix = true
		prefix, err := uuidschema.Prefix(key)
		if err == nil {
			child.PrefixUUID = prefix
		}
	} else {
		child = feed(*parent, stored)
	}
	child.MetaName = key
	child.FullMetaName = path
	if len(child.PrefixField) == 0 {
		child.PrefixField = fieldPrefixFor(ws, path)
	}

	m, isMap := v.Map()
	if isMap {
		overrideKeys, subfieldKeys := splitOverridesAndSubfields(m)
		if err := s.processOverrides(&child, path, overrideKeys, m); err != nil {
			return err
		}
		if err := s.persistFieldMeta(ws, path, &child); err != nil {
			return err
		}

		if len(subfieldKeys) > 0 && (child.SepTypes.Concrete == fieldtype.Empty || child.SepTypes.ObjectMod) {
			if !child.Flags.Has(FlagRecurse) {
				return &ClientError{Path: path, Msg: "field does not allow nested subfields (recurse=false)"}
			}
			child.SepTypes.ObjectMod = true
			for _, sk := range subfieldKeys {
				sv, _ := m.Get(sk)
				if err := s.walkField(ctx, ws, &child, path, sk, sv); err != nil {
					return err
				}
			}
			if child.Flags.Has(FlagIsNamespace) {
				s.indexNamespacePrefixes(ws, path)
			}
			return nil
		}
		if vv, ok := m.Get(KeyValue); ok {
			child.Value = vv
		} else {
			child.Value = v
		}
	} else {
		child.Value = v
	}

	if child.Flags.Has(FlagStrict) && child.SepTypes.Concrete == fieldtype.Empty && !isMap {
		if guessed, assigned := s.guessType(&child); assigned {
			child.SepTypes.Concrete = guessed
		} else {
			return &MissingTypeError{Path: path}
		}
	}
	if child.SepTypes.Concrete == fieldtype.Empty {
		guessed, assigned := s.guessType(&child)
		if assigned {
			child.SepTypes.Concrete = guessed
		}
	}

	if err := s.persistFieldMeta(ws, path, &child); err != nil {
		return err
	}
	return s.indexItemValue(ws, &child)
}

func parentPathJoin(parentPath, seg string) string {
	if parentPath == "" {
		return seg
	}
	return parentPath + "." + seg
}

func fieldPrefixFor(ws *walkState, path string) []byte {
	if b, ok := ws.fieldPrefix[path]; ok {
		return []byte{b}
	}
	n := byte(len(ws.fieldPrefix) + 1)
	ws.fieldPrefix[path] = n
	return []byte{n}
}

func splitOverridesAndSubfields(m *value.OrderedMap) (overrides, subfields []string) {
	for _, k := range m.Keys() {
		if isReserved(k) || strings.HasPrefix(k, "_") {
			overrides = append(overrides, k)
		} else {
			subfields = append(subfields, k)
		}
	}
	return
}

// processOverrides applies user-supplied reserved keys at path,
// enforcing the immutability invariants of spec.md §3.5 (type never
// changes once non-empty; slot and accuracy are immutable once
// assigned).
func (s *Schema) processOverrides(child *Specification, path string, overrideKeys []string, m *value.OrderedMap) error {
	for _, key := range overrideKeys {
		v, _ := m.Get(key)
		switch key {
		case KeyType:
			str, ok := v.String()
			if !ok {
				return &ClientError{Path: path, Key: key, Msg: "_type must be a string"}
			}
			ft, err := fieldtype.ParseFullType(str)
			if err != nil {
				return &ClientError{Path: path, Key: key, Msg: err.Error()}
			}
			if child.SepTypes.Concrete != fieldtype.Empty && ft.Concrete != fieldtype.Empty && child.SepTypes.Concrete != ft.Concrete {
				return &ClientError{Path: path, Key: key, Msg: "field type cannot change once set"}
			}
			child.SepTypes = child.SepTypes.Merge(ft)
		case KeySlot:
			slot, ok := asInt32(v)
			if !ok {
				return &ClientError{Path: path, Key: key, Msg: "_slot must be an integer"}
			}
			if child.Slot != BadSlot && child.Slot != slot {
				return &ClientError{Path: path, Key: key, Msg: "_slot is immutable once assigned"}
			}
			child.Slot = slot
		case KeyAccuracy:
			acc, err := asUint64Array(v)
			if err != nil {
				return &ClientError{Path: path, Key: key, Msg: err.Error()}
			}
			if len(child.Accuracy) > 0 && !accuracyEqual(child.Accuracy, acc) {
				return &ClientError{Path: path, Key: key, Msg: "_accuracy is immutable once assigned"}
			}
			child.Accuracy = acc
		case KeyIndex:
			str, ok := v.String()
			if !ok {
				return &ClientError{Path: path, Key: key, Msg: "_index must be a string"}
			}
			ti, err := typeindex.Parse(str)
			if err != nil {
				return &ClientError{Path: path, Key: key, Msg: err.Error()}
			}
			child.Index = ti
		case KeyBoolTerm:
			setFlag(child, FlagBoolTerm, v)
		case KeyStore:
			setFlag(child, FlagStore, v)
		case KeyRecurse:
			setFlag(child, FlagRecurse, v)
		case KeyDynamic:
			setFlag(child, FlagDynamic, v)
		case KeyStrict:
			setFlag(child, FlagStrict, v)
		case KeyNamespace:
			setFlag(child, FlagIsNamespace, v)
		case KeyPartialPaths:
			setFlag(child, FlagPartialPaths, v)
		case KeyPartials:
			setFlag(child, FlagPartials, v)
		case KeyEndpoint:
			str, _ := v.String()
			child.Endpoint = str
			child.SepTypes.ForeignMod = true
		case KeyLanguage:
			str, _ := v.String()
			child.Language = str
		case KeyStemLanguage:
			str, _ := v.String()
			child.StemLanguage = str
		case KeyStopStrategy:
			str, _ := v.String()
			child.StopStrategy = str
		case KeyStemStrategy:
			str, _ := v.String()
			child.StemStrategy = str
		case KeyError:
			f, _ := v.AsNumber()
			child.Error = f
		case KeyValue, KeyData, KeyScript, KeySettings, KeyIgnore, KeyWeight, KeyPosition,
			KeyPositions, KeySpelling, KeyAccPrefix, KeyPrefix, KeyIndexUUID, KeyNgram,
			KeyCJKNgram, KeyCJKWords,
			KeyDateDetect, KeyDateTimeDetect, KeyTimeDetect, KeyTimeDeltaDetect,
			KeyNumericDetect, KeyGeoDetect, KeyPositiveDetect, KeyTextDetect, KeyUUIDDetect:
			// Accepted without error, but processOverrides neither applies
			// nor persists these keys (_value is read later by walkField).
			// The keys it acts on are type, slot, accuracy, index, the
			// boolean flags, endpoint, language and error.
		default:
			if ft, ok := castKeys[key]; ok {
				parsed, err := fieldtype.ParseFieldType(ft)
				if err != nil {
					return &ClientError{Path: path, Key: key, Msg: err.Error()}
				}
				if child.SepTypes.Concrete != fieldtype.Empty && child.SepTypes.Concrete != parsed {
					return &ClientError{Path: path, Key: key, Msg: "cast type conflicts with stored type"}
				}
				child.SepTypes.Concrete = parsed
				child.Value = v
				continue
			}
			if !ignoredKey(m, key) {
				return &ClientError{Path: path, Key: key, Msg: fmt.Sprintf("unknown reserved key %q", key)}
			}
		}
	}
	return nil
}

func ignoredKey(m *value.OrderedMap, key string) bool {
	ig, ok := m.Get(KeyIgnore)
	if !ok {
		return false
	}
	arr, ok := ig.Array()
	if !ok {
		return false
	}
	for _, e := range arr {
		if s, ok := e.String(); ok && s == key {
			return true
		}
	}
	return false
}

func setFlag(spec *Specification, flag SpecFlags, v value.Value) {
	b, ok := v.Bool()
	if !ok {
		return
	}
	if b {
		spec.Flags = spec.Flags.Set(flag)
	} else {
		spec.Flags = spec.Flags.Clear(flag)
	}
}

func asInt32(v value.Value) (int32, bool) {
	i, ok := v.IntS()
	if !ok {
		return 0, false
	}
	return int32(i), true
}

func asUint64Array(v value.Value) ([]uint64, error) {
	arr, ok := v.Array()
	if !ok {
		return nil, fmt.Errorf("_accuracy must be an array")
	}
	out := make([]uint64, 0, len(arr))
	for _, e := range arr {
		u, ok := e.IntU()
		if !ok {
			if i, ok2 := e.IntS(); ok2 {
				u = uint64(i)
			} else {
				return nil, fmt.Errorf("_accuracy entries must be integers")
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func accuracyEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// guessType implements the *_detection-gated heuristic classification
// of an untyped value via serialiser.GuessSerialise (spec.md §4.1,
// §3.3's *_detection flags).
func (s *Schema) guessType(spec *Specification) (fieldtype.FieldType, bool) {
	switch spec.Value.Kind() {
	case value.KindBool:
		return fieldtype.Boolean, true
	case value.KindIntS:
		i, _ := spec.Value.IntS()
		if i >= 0 && spec.Flags.Has(FlagNumericDetection) {
			return fieldtype.Positive, true
		}
		return fieldtype.Integer, true
	case value.KindIntU:
		return fieldtype.Positive, true
	case value.KindFloat:
		return fieldtype.Floating, true
	case value.KindString:
		str, _ := spec.Value.String()
		if spec.Flags.Has(FlagUUIDDetection) && serialiser.PossiblyUUID(str) {
			return fieldtype.UUID, true
		}
		ft, _, err := serialiser.GuessSerialise(str)
		if err == nil {
			switch ft {
			case fieldtype.DateTime:
				if spec.Flags.Has(FlagDateTimeDetection) {
					return fieldtype.DateTime, true
				}
			case fieldtype.Boolean:
				if spec.Flags.Has(FlagBoolDetection) {
					return fieldtype.Boolean, true
				}
			case fieldtype.Geo:
				if spec.Flags.Has(FlagGeoDetection) {
					return fieldtype.Geo, true
				}
			case fieldtype.Keyword:
				return fieldtype.Keyword, true
			case fieldtype.Text:
				if spec.Flags.Has(FlagTextDetection) {
					return fieldtype.Text, true
				}
			}
		}
		return fieldtype.Keyword, true
	case value.KindArray:
		return fieldtype.Empty, false
	default:
		return fieldtype.Empty, false
	}
}

// persistFieldMeta writes the resolved, widened specification back into
// the overlay node for path, enforcing type monotonicity (spec.md §8.1)
// and slot/accuracy immutability (§8.2). Fields that reach their first
// write without an explicit _slot are assigned the next free slot from
// ws, mirroring the source's per-commit slot counter.
func (s *Schema) persistFieldMeta(ws *walkState, path string, spec *Specification) error {
	node := s.mutable(path)
	if node.HasType() {
		existing := node.Type()
		if existing.Concrete != fieldtype.Empty && spec.SepTypes.Concrete != fieldtype.Empty && existing.Concrete != spec.SepTypes.Concrete {
			return &ClientError{Path: path, Key: KeyType, Msg: "type of field cannot be changed"}
		}
		spec.SepTypes = existing.Merge(spec.SepTypes)
	}
	node.SetType(spec.SepTypes)
	if node.HasSlot() && node.Slot() != BadSlot {
		spec.Slot = node.Slot()
	} else {
		if spec.Slot == BadSlot {
			spec.Slot = ws.nextSlot
			ws.nextSlot++
		}
		node.SetSlot(spec.Slot)
	}
	if len(spec.Accuracy) == 0 && spec.SepTypes.Concrete != fieldtype.Empty {
		spec.Accuracy = DefaultAccuracy(spec.SepTypes.Concrete)
	}
	if !node.HasAccuracy() && len(spec.Accuracy) > 0 {
		node.SetAccuracy(spec.Accuracy)
		prefixes := make([][]byte, len(spec.Accuracy))
		for i := range spec.Accuracy {
			prefixes[i] = []byte(fmt.Sprintf("%s#%d", path, i))
		}
		node.SetAccPrefix(prefixes)
		spec.AccPrefix = prefixes
	} else {
		spec.Accuracy = node.Accuracy()
		spec.AccPrefix = node.AccPrefix()
	}
	node.SetIndex(spec.Index)
	node.SetPrefix(spec.PrefixField, spec.PrefixUUID)
	node.SetFlags(spec.Flags)
	if spec.Endpoint != "" {
		node.SetEndpoint(spec.Endpoint)
	}
	if spec.Language != "" {
		node.SetLanguage(spec.Language)
	} else if lang, ok := node.Language(); ok {
		spec.Language = lang
	}
	if spec.StemLanguage != "" {
		node.SetStemLanguage(spec.StemLanguage)
	} else if lang, ok := node.StemLanguage(); ok {
		spec.StemLanguage = lang
	}
	if spec.StopStrategy != "" {
		node.SetStopStrategy(spec.StopStrategy)
	} else if strat, ok := node.StopStrategy(); ok {
		spec.StopStrategy = strat
	}
	if spec.StemStrategy != "" {
		node.SetStemStrategy(spec.StemStrategy)
	} else if strat, ok := node.StemStrategy(); ok {
		spec.StemStrategy = strat
	}
	return nil
}

// indexNamespacePrefixes implements spec.md §4.3.1 step 6: for a
// namespace path, every partial prefix up to LimitPartialPathsDepth
// becomes an individually indexed boolean term.
func (s *Schema) indexNamespacePrefixes(ws *walkState, path string) {
	segs := strings.Split(path, ".")
	for depth := 1; depth <= len(segs) && depth <= LimitPartialPathsDepth; depth++ {
		prefix := strings.Join(segs[:depth], ".")
		ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "N" + prefix})
	}
}

// indexItemValue dispatches to the 16-entry TypeIndex matrix of spec.md
// §4.3.1 step 7, then layers accuracy terms (step 8) and value-slot
// packing (step 9) on top.
func (s *Schema) indexItemValue(ws *walkState, spec *Specification) error {
	if spec.Value.IsNil() {
		if spec.Index.HasAnyTerms() {
			ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "E" + string(spec.PrefixField)})
		}
		return nil
	}

	concrete := spec.SepTypes.Concrete
	raw, err := serialiser.Serialise(concrete, spec.Value)
	if err != nil {
		// Arrays of scalars are serialised element-by-element below;
		// a direct Serialise failure here for a non-array leaf is a
		// genuine serialisation error.
		if _, isArray := spec.Value.Array(); !isArray {
			return &SerialisationError{Path: spec.FullMetaName, Type: concrete.String(), Err: err}
		}
	}

	if arr, ok := spec.Value.Array(); ok {
		return s.indexArrayValue(ws, spec, arr)
	}

	if spec.Index.HasFieldTerms() {
		term := backend.Term{Text: "F" + string(spec.PrefixField) + string(raw)}
		if !spec.Flags.Has(FlagBoolTerm) && (concrete == fieldtype.Text || concrete == fieldtype.Keyword || concrete == fieldtype.StringT) {
			if s, ok := spec.Value.String(); ok {
				term.Text = "F" + string(spec.PrefixField) + strings.ToLower(s)
			}
		}
		ws.doc.Terms = append(ws.doc.Terms, term)
	}
	if spec.Index.HasGlobalTerms() {
		ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "G" + string(raw)})
	}
	if spec.Index.HasFieldValues() && spec.Slot != BadSlot {
		ws.doc.Slots = append(ws.doc.Slots, backend.ValueSlot{Slot: spec.Slot, Data: raw})
	}
	if spec.Index.HasGlobalValues() && spec.Slot != BadSlot {
		ws.doc.Slots = append(ws.doc.Slots, backend.ValueSlot{Slot: spec.Slot, Data: raw})
	}

	if (concrete.IsNumeric() || concrete.IsTemporal() || concrete == fieldtype.Geo) && spec.Index.HasAnyTerms() {
		var ranges []htm.Range
		terms, err := accuracy.Terms(concrete, spec.Value, spec.Accuracy, spec.AccPrefix, ranges)
		if err != nil {
			return &SerialisationError{Path: spec.FullMetaName, Type: concrete.String(), Err: err}
		}
		for _, t := range terms {
			ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "A" + string(t.Bytes())})
		}
	}

	if ws.write && spec.Flags.Has(FlagStore) {
		ws.data.Set(spec.MetaName, storedValue(concrete, spec.Value))
	}
	if ws.write && spec.SepTypes.ForeignMod && spec.Endpoint != "" {
		ws.data.Set("_endpoint", value.String(spec.Endpoint))
	}
	ws.doc.Fields[spec.FullMetaName] = bleveFieldValue(concrete, spec.Value)
	return nil
}

// indexArrayValue implements the array branch of spec.md §4.3.1 step 7
// and 9. Per the Open Question in §9, an array containing only
// null/undefined elements must still surface the field's empty-marker
// term rather than being silently dropped -- resolved explicitly here
// (see DESIGN.md).
func (s *Schema) indexArrayValue(ws *walkState, spec *Specification, arr []value.Value) error {
	concrete := spec.SepTypes.Concrete
	var packed [][]byte
	anyNonNil := false
	for _, e := range arr {
		if e.IsNil() {
			continue
		}
		anyNonNil = true
		raw, err := serialiser.Serialise(concrete, e)
		if err != nil {
			return &SerialisationError{Path: spec.FullMetaName, Type: concrete.String(), Err: err}
		}
		packed = append(packed, raw)
		if spec.Index.HasFieldTerms() {
			ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "F" + string(spec.PrefixField) + string(raw)})
		}
		if spec.Index.HasGlobalTerms() {
			ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "G" + string(raw)})
		}
		if concrete.IsNumeric() || concrete.IsTemporal() {
			terms, err := accuracy.Terms(concrete, e, spec.Accuracy, spec.AccPrefix, nil)
			if err == nil {
				for _, t := range terms {
					ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "A" + string(t.Bytes())})
				}
			}
		}
	}
	if !anyNonNil {
		if spec.Index.HasAnyTerms() {
			ws.doc.Terms = append(ws.doc.Terms, backend.Term{Text: "E" + string(spec.PrefixField)})
		}
		return nil
	}
	if spec.Index.HasAnyValues() && spec.Slot != BadSlot {
		ws.doc.Slots = append(ws.doc.Slots, backend.ValueSlot{Slot: spec.Slot, Data: packStringList(packed)})
	}
	if ws.write && spec.Flags.Has(FlagStore) {
		ws.data.Set(spec.MetaName, value.Array(arr))
	}
	ws.doc.Fields[spec.FullMetaName] = arrayToBleve(concrete, arr)
	return nil
}

// packStringList implements the length-prefixed StringList packing of
// spec.md §4.3.1 step 9 for array value slots.
func packStringList(items [][]byte) []byte {
	var out []byte
	for _, it := range items {
		var lenBuf [4]byte
		n := uint32(len(it))
		lenBuf[0] = byte(n >> 24)
		lenBuf[1] = byte(n >> 16)
		lenBuf[2] = byte(n >> 8)
		lenBuf[3] = byte(n)
		out = append(out, lenBuf[:]...)
		out = append(out, it...)
	}
	return out
}

func storedValue(concrete fieldtype.FieldType, v value.Value) value.Value {
	switch concrete {
	case fieldtype.Date, fieldtype.DateTime:
		canon, err := serialiser.Unserialise(fieldtype.DateTime, mustSerialise(concrete, v))
		if err == nil {
			return canon
		}
	case fieldtype.UUID:
		if s, ok := v.String(); ok {
			return value.String(s)
		}
	}
	return v
}

func mustSerialise(t fieldtype.FieldType, v value.Value) []byte {
	b, _ := serialiser.Serialise(t, v)
	return b
}

func bleveFieldValue(concrete fieldtype.FieldType, v value.Value) interface{} {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.String()
		return s
	case value.KindIntS:
		i, _ := v.IntS()
		return float64(i)
	case value.KindIntU:
		u, _ := v.IntU()
		return float64(u)
	case value.KindFloat:
		f, _ := v.Float()
		return f
	case value.KindBool:
		b, _ := v.Bool()
		return b
	default:
		return nil
	}
}

func arrayToBleve(concrete fieldtype.FieldType, arr []value.Value) []interface{} {
	out := make([]interface{}, 0, len(arr))
	for _, e := range arr {
		out = append(out, bleveFieldValue(concrete, e))
	}
	return out
}
