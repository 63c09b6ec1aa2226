package value

import "testing"

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("age", IntS(37))
	m.Set("name", String("ana"))
	m.Set("age", IntS(38)) // update, must not move position

	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "age" || keys[1] != "name" {
		t.Fatalf("unexpected key order: %v", keys)
	}
	got, ok := m.Get("age")
	if !ok {
		t.Fatalf("expected age to be present")
	}
	if i, _ := got.IntS(); i != 38 {
		t.Fatalf("expected updated value 38, got %d", i)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := []byte(`{"age":37,"name":"ana","tags":["x","y"],"score":3.14,"ok":true,"nothing":null}`)
	v, err := FromJSON(in)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	out, err := ToJSON(v)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	v2, err := FromJSON(out)
	if err != nil {
		t.Fatalf("FromJSON(round-trip): %v", err)
	}
	if !Equal(v, v2) {
		t.Fatalf("round-trip mismatch:\n%s\n%s", in, out)
	}
}

func TestMsgPackRoundTrip(t *testing.T) {
	m := NewOrderedMap()
	m.Set("a", IntS(1))
	m.Set("b", Array([]Value{String("x"), Bool(false)}))
	in := Map(m)

	packed, err := ToMsgPack(in)
	if err != nil {
		t.Fatalf("ToMsgPack: %v", err)
	}
	out, err := FromMsgPack(packed)
	if err != nil {
		t.Fatalf("FromMsgPack: %v", err)
	}
	if !Equal(in, out) {
		t.Fatalf("msgpack round-trip mismatch")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewOrderedMap()
	m.Set("x", IntS(1))
	clone := m.Clone()
	clone.Set("y", IntS(2))

	if m.Has("y") {
		t.Fatalf("mutation of clone leaked into original")
	}
	if !clone.Has("x") {
		t.Fatalf("clone lost original key")
	}
}
