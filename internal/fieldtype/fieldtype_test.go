package fieldtype

import "testing"

func TestFullTypeCanonicalOrder(t *testing.T) {
	cases := []string{
		"array/object/foreign/integer",
		"foreign/array/object/integer",
		"object/foreign/array/integer",
	}
	for _, in := range cases {
		ft, err := ParseFullType(in)
		if err != nil {
			t.Fatalf("ParseFullType(%q): %v", in, err)
		}
		if got := ft.String(); got != "foreign/object/array/integer" {
			t.Errorf("ParseFullType(%q).String() = %q, want canonical order", in, got)
		}
	}
}

func TestFullTypeRoundTrip(t *testing.T) {
	cases := []string{"object/array/integer", "foreign/object", "text", "empty"}
	for _, in := range cases {
		ft, err := ParseFullType(in)
		if err != nil {
			t.Fatalf("ParseFullType(%q): %v", in, err)
		}
		if got := ft.String(); got != in {
			t.Errorf("round trip %q -> %q", in, got)
		}
	}
}

func TestWidenedByRejectsConcreteChange(t *testing.T) {
	a, _ := ParseFullType("positive")
	b, _ := ParseFullType("text")
	if a.WidenedBy(b) {
		t.Fatalf("expected widening positive -> text to be rejected")
	}
}

func TestWidenedByAllowsModifierGrowth(t *testing.T) {
	a, _ := ParseFullType("integer")
	b, _ := ParseFullType("array/integer")
	if !a.WidenedBy(b) {
		t.Fatalf("expected array modifier to widen cleanly")
	}
	if b.WidenedBy(a) {
		t.Fatalf("narrowing array -> non-array must be rejected")
	}
}
