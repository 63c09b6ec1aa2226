package typeindex

import "testing"

func TestParseAcceptsAnyOrder(t *testing.T) {
	a, err := Parse("global_values,field_terms")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse("field_terms,global_values")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a != b {
		t.Fatalf("expected order-independent parse, got %v vs %v", a, b)
	}
}

func TestNamedCombinationsRoundTrip(t *testing.T) {
	for _, name := range []string{"none", "all", "terms", "values", "field_all", "global_all"} {
		ti, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
		if got := ti.String(); got != name {
			t.Errorf("Parse(%q).String() = %q", name, got)
		}
	}
}

func TestSixteenEntryMatrix(t *testing.T) {
	ti := FieldTerms | GlobalValues
	if !ti.HasFieldTerms() || ti.HasFieldValues() || ti.HasGlobalTerms() || !ti.HasGlobalValues() {
		t.Fatalf("cross FieldTerms|GlobalValues decoded incorrectly: %+v", ti.Atoms())
	}
}
