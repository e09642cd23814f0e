package scope

import "testing"

func TestUseKeyEqualityIsStructural(t *testing.T) {
	a := UseKey{Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	b := UseKey{Application: "Domestic Refrigeration", Substance: "HFC-134a"}
	m := map[UseKey]int{a: 1}
	if m[b] != 1 {
		t.Fatal("expected structurally equal UseKeys to collide in a map")
	}
}

func TestScopeUseKeyDropsStanza(t *testing.T) {
	s := Scope{Stanza: "bau", Application: "Foam", Substance: "HFC-245fa"}
	uk := s.UseKey()
	if uk.Application != "Foam" || uk.Substance != "HFC-245fa" {
		t.Errorf("got %+v", uk)
	}
}

func TestWithSubstanceDoesNotMutateOriginal(t *testing.T) {
	original := Scope{Stanza: "policy-a", Application: "Foam", Substance: "HFC-245fa"}
	displaced := original.WithSubstance("HFO-1234ze")

	if original.Substance != "HFC-245fa" {
		t.Errorf("original scope was mutated: %+v", original)
	}
	if displaced.Substance != "HFO-1234ze" || displaced.Stanza != "policy-a" {
		t.Errorf("got %+v", displaced)
	}
}
