package schema

// SpecFlags is the bit-set of per-field flags from spec.md §3.3. Each
// flag's inheritance behaviour is implemented by Inherit below, matching
// the table in the spec exactly.
type SpecFlags uint32

const (
	FlagBoolTerm SpecFlags = 1 << iota
	FlagPartials
	FlagStore
	FlagRecurse
	FlagDynamic
	FlagStrict
	FlagDateDetection
	FlagDateTimeDetection
	FlagTimeDetection
	FlagTimeDeltaDetection
	FlagNumericDetection
	FlagGeoDetection
	FlagBoolDetection
	FlagTextDetection
	FlagUUIDDetection
	FlagPartialPaths
	FlagIsNamespace
	FlagNgram
	FlagCJKNgram
	FlagCJKWords
	FlagFieldFound
	FlagConcrete
	FlagComplete
	FlagUUIDField
	FlagUUIDPath
	FlagHasUUIDPrefix
	FlagStaticEndpoint
)

// inheritedMask is the set of flags that are heritable along a path per
// spec.md §3.3's "Inherited" column. Non-inherited flags always reset to
// the node's own stored value (or the default) at each new path
// component; inherited flags copy down from the parent unless the child
// node overrides them.
const inheritedMask = FlagStore | FlagRecurse | FlagDynamic | FlagStrict |
	FlagDateDetection | FlagDateTimeDetection | FlagTimeDetection | FlagTimeDeltaDetection |
	FlagNumericDetection | FlagGeoDetection | FlagBoolDetection | FlagTextDetection | FlagUUIDDetection |
	FlagPartialPaths

// Has reports whether f has every bit in mask set.
func (f SpecFlags) Has(mask SpecFlags) bool { return f&mask == mask }

func (f SpecFlags) Set(mask SpecFlags) SpecFlags   { return f | mask }
func (f SpecFlags) Clear(mask SpecFlags) SpecFlags { return f &^ mask }

// Inherit computes the flags a child path component starts with, given
// the parent's resolved flags and the child node's own stored flags.
// Inherited bits copy down from parent when the child hasn't explicitly
// stored them; "store" is explicitly called out in spec.md §3.3 as
// "monotone off" — once turned off by an ancestor it cannot be turned
// back on by a descendant's mere inheritance (it can still be
// re-enabled by an explicit user override during processing).
func Inherit(parent, childStored SpecFlags, childStoredMask SpecFlags) SpecFlags {
	out := childStored &^ inheritedMask
	inheritedFromParent := parent & inheritedMask
	if !parent.Has(FlagStore) {
		inheritedFromParent = inheritedFromParent.Clear(FlagStore)
	}
	explicitlyStoredByChild := childStoredMask & inheritedMask
	out |= (inheritedFromParent &^ explicitlyStoredByChild) | (childStored & explicitlyStoredByChild)
	return out
}

// DefaultRootFlags is the flag set a fresh, empty schema root starts
// with: store, recurse and dynamic on; strict, namespace and the
// various *_detection flags follow the source's conservative defaults
// (all detections enabled except bool, which the source reserves for
// explicit bool_term).
var DefaultRootFlags = FlagStore | FlagRecurse | FlagDynamic |
	FlagDateDetection | FlagDateTimeDetection | FlagTimeDetection | FlagTimeDeltaDetection |
	FlagNumericDetection | FlagGeoDetection | FlagTextDetection | FlagUUIDDetection | FlagPartialPaths
