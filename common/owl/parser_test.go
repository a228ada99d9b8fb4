package owl

import (
	"sort"
	"testing"
)

func parse(t *testing.T, expression string) []int64 {
	t.Helper()
	set, err := NewParser().ReferencedConcepts(expression)
	if err != nil {
		t.Fatalf("ReferencedConcepts(%q): %v", expression, err)
	}
	values := set.Values()
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

func TestReferencedConceptsSubClassOf(t *testing.T) {
	got := parse(t, "SubClassOf(:73211009 :362969004)")
	want := []int64{73211009, 362969004}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReferencedConceptsNested(t *testing.T) {
	expr := "EquivalentClasses(:73211009 ObjectIntersectionOf(:362969004 ObjectSomeValuesFrom(:609096000 ObjectSomeValuesFrom(:363698007 :113331007))))"
	got := parse(t, expr)
	if len(got) != 5 {
		t.Fatalf("expected 5 concepts, got %v", got)
	}
	for _, want := range []int64{73211009, 362969004, 609096000, 363698007, 113331007} {
		found := false
		for _, g := range got {
			if g == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %d in %v", want, got)
		}
	}
}

func TestReferencedConceptsFullIRI(t *testing.T) {
	expr := "SubClassOf(<http://snomed.info/id/73211009> <http://snomed.info/id/362969004>)"
	got := parse(t, expr)
	if len(got) != 2 || got[0] != 73211009 || got[1] != 362969004 {
		t.Errorf("got %v", got)
	}
}

func TestReferencedConceptsExcludesLiteralsAndDatatypes(t *testing.T) {
	expr := `SubClassOf(:3311482005 ObjectIntersectionOf(:763158003 DataHasValue(:3264475007 "250"^^xsd:decimal)))`
	got := parse(t, expr)
	if len(got) != 3 {
		t.Fatalf("expected 3 concepts, got %v", got)
	}
	for _, g := range got {
		if g == 250 {
			t.Errorf("literal value leaked into references: %v", got)
		}
	}
}

func TestReferencedConceptsExcludesForeignIRIs(t *testing.T) {
	expr := "AnnotationAssertion(<http://www.w3.org/2000/01/rdf-schema#label> :73211009 \"Diabetes mellitus\")"
	got := parse(t, expr)
	if len(got) != 1 || got[0] != 73211009 {
		t.Errorf("got %v", got)
	}
}

func TestReferencedConceptsDeduplicates(t *testing.T) {
	got := parse(t, "SubClassOf(:73211009 ObjectIntersectionOf(:73211009 :73211009))")
	if len(got) != 1 || got[0] != 73211009 {
		t.Errorf("got %v", got)
	}
}

func TestReferencedConceptsErrors(t *testing.T) {
	p := NewParser()
	cases := []string{
		"",
		"   ",
		"SubClassOf(:73211009 :362969004",
		"SubClassOf :73211009 :362969004)",
		`SubClassOf(:73211009 "unterminated)`,
		"SubClassOf(<http://snomed.info/id/73211009 :362969004)",
	}
	for _, expr := range cases {
		if _, err := p.ReferencedConcepts(expr); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}
