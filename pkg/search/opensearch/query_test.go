package opensearch

import (
	"reflect"
	"testing"

	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/search"
	"stratum-hq/bastion/pkg/security"
)

func TestQuery_TextClause(t *testing.T) {
	q := Query(search.Predicate{Query: "border activity"})
	boolQ := q["bool"].(map[string]any)
	must := boolQ["must"].([]any)
	mm := must[0].(map[string]any)["multi_match"].(map[string]any)
	if mm["query"] != "border activity" {
		t.Errorf("query = %v", mm["query"])
	}
	if mm["fuzziness"] != "AUTO" {
		t.Errorf("fuzziness = %v", mm["fuzziness"])
	}
	fields := mm["fields"].([]string)
	if fields[0] != "title^3" || fields[1] != "content^2" {
		t.Errorf("boosted fields = %v", fields)
	}

	q = Query(search.Predicate{Query: "   "})
	must = q["bool"].(map[string]any)["must"].([]any)
	if _, ok := must[0].(map[string]any)["match_all"]; !ok {
		t.Errorf("blank query did not render match_all: %v", must[0])
	}
}

func TestQuery_ClauseShapes(t *testing.T) {
	pred := search.Predicate{
		Filters: []search.FilterClause{
			{Any: []search.Term{{Field: "classification", Values: []string{"UNCLASSIFIED", "CONFIDENTIAL"}}}},
			{Any: []search.Term{
				{Field: "organization", Values: []string{"agency-bravo"}},
				{Field: "shared_with", Values: []string{"all"}},
			}},
		},
	}

	filters := Query(pred)["bool"].(map[string]any)["filter"].([]any)
	if len(filters) != 2 {
		t.Fatalf("got %d filters, want 2", len(filters))
	}

	// Single term with multiple values collapses to a bare terms query.
	terms := filters[0].(map[string]any)["terms"].(map[string]any)
	want := []any{"UNCLASSIFIED", "CONFIDENTIAL"}
	if !reflect.DeepEqual(terms["classification"], want) {
		t.Errorf("terms = %v, want %v", terms["classification"], want)
	}

	// Multi-term OR-group becomes should with minimum_should_match=1.
	group := filters[1].(map[string]any)["bool"].(map[string]any)
	if group["minimum_should_match"] != 1 {
		t.Errorf("minimum_should_match = %v", group["minimum_should_match"])
	}
	should := group["should"].([]any)
	if len(should) != 2 {
		t.Fatalf("got %d should entries, want 2", len(should))
	}
	term := should[0].(map[string]any)["term"].(map[string]any)
	if term["organization"] != "agency-bravo" {
		t.Errorf("term = %v", term)
	}
}

// TestQuery_BuiltPredicate renders a full need_to_know predicate end to end.
func TestQuery_BuiltPredicate(t *testing.T) {
	p := &security.Principal{
		ID:              "u-200",
		Organization:    "agency-bravo",
		Clearance:       classification.Secret,
		Compartments:    []string{"PROJECT_ALPHA"},
		CellMemberships: []string{"cell-east"},
	}
	pred, err := search.BuildFilter(p, "summary", search.ModeNeedToKnow)
	if err != nil {
		t.Fatalf("BuildFilter: %v", err)
	}

	filters := Query(pred)["bool"].(map[string]any)["filter"].([]any)
	if len(filters) != 4 {
		t.Fatalf("got %d filters, want 4", len(filters))
	}

	ntk := filters[3].(map[string]any)["bool"].(map[string]any)
	should := ntk["should"].([]any)
	if len(should) != 3 {
		t.Fatalf("ntk should has %d entries, want 3", len(should))
	}
	first := should[0].(map[string]any)["term"].(map[string]any)
	if first["ntk_required"] != "false" {
		t.Errorf("ntk_required term = %v", first)
	}
}

func TestIndexSettings(t *testing.T) {
	s := IndexSettings()
	props := s["mappings"].(map[string]any)["properties"].(map[string]any)
	for _, field := range []string{"classification", "cell_tags", "shared_with", "ntk_required", "source_name", "handler_id", "raw_intel"} {
		if _, ok := props[field]; !ok {
			t.Errorf("mapping missing field %s", field)
		}
	}
	if props["ntk_required"].(map[string]any)["type"] != "boolean" {
		t.Errorf("ntk_required type = %v", props["ntk_required"])
	}
}
