package value

// OrderedMap is a string-keyed map that preserves key insertion order.
// The schema tree (spec.md §3.1, §3.5) relies on this: reserved keys and
// subfield keys must iterate in the order they were first set.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]Value)}
}

// Set inserts or updates key. Updating an existing key keeps its original
// position.
func (m *OrderedMap) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *OrderedMap) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *OrderedMap) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *OrderedMap) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

func (m *OrderedMap) Len() int { return len(m.keys) }

// Keys returns keys in insertion order. Callers must not mutate the slice.
func (m *OrderedMap) Keys() []string { return m.keys }

// Each iterates in insertion order.
func (m *OrderedMap) Each(fn func(key string, v Value) error) error {
	for _, k := range m.keys {
		if err := fn(k, m.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Clone performs a shallow copy: nested Values are shared, but the key
// list and the top-level slot table are independent, so mutating the
// clone never touches the original. This backs the schema engine's
// mutable-overlay-over-immutable-origin design (spec.md §9).
func (m *OrderedMap) Clone() *OrderedMap {
	clone := &OrderedMap{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]Value, len(m.values)),
	}
	for k, v := range m.values {
		clone.values[k] = v
	}
	return clone
}

func (m *OrderedMap) Equal(o *OrderedMap) bool {
	if m == o {
		return true
	}
	if m == nil || o == nil {
		return false
	}
	if len(m.keys) != len(o.keys) {
		return false
	}
	for i, k := range m.keys {
		if o.keys[i] != k {
			return false
		}
		ov, ok := o.values[k]
		if !ok || !Equal(m.values[k], ov) {
			return false
		}
	}
	return true
}
