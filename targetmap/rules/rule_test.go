package rules

import (
	"testing"

	"github.com/evalgo/eve-build/expr"
)

func TestNewRuleRejectsFieldCollision(t *testing.T) {
	_, err := New(Config{
		Name:         "bad",
		StringFields: []string{"srcs"},
		TargetFields: []string{"srcs"},
		Body:         expr.None(),
	})
	if err == nil {
		t.Fatalf("expected a disjointness error for duplicate field name")
	}
}

func TestNewRuleRejectsReservedKeyword(t *testing.T) {
	_, err := New(Config{
		Name:         "bad",
		StringFields: []string{"tainted"},
		Body:         expr.None(),
	})
	if err == nil {
		t.Fatalf("expected rejection of reserved keyword as a field name")
	}
}

func TestNewRuleRejectsUnknownTransitionKey(t *testing.T) {
	_, err := New(Config{
		Name:         "bad",
		TargetFields: []string{"deps"},
		ConfigTransitions: map[string]expr.Value{
			"not_a_field": expr.List(),
		},
		Body: expr.None(),
	})
	if err == nil {
		t.Fatalf("expected rejection of a config_transitions key outside target/implicit/anonymous")
	}
}

func TestExpectedFieldsIncludesReservedAndDeclared(t *testing.T) {
	r, err := New(Config{
		Name:         "library",
		StringFields: []string{"name"},
		TargetFields: []string{"deps"},
		Body:         expr.None(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"type", "arguments_config", "tainted", "name", "deps"} {
		if !r.IsExpectedField(want) {
			t.Fatalf("expected field %q to be in the closed vocabulary", want)
		}
	}
	if r.IsExpectedField("nonexistent") {
		t.Fatalf("field outside the declared sets must not be expected")
	}
}

func TestIdentityTransitionDefault(t *testing.T) {
	r, err := New(Config{
		Name:         "library",
		TargetFields: []string{"deps"},
		Body:         expr.None(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	transition := r.TransitionFor("deps")
	items, ok := transition.(*expr.ListValue)
	if !ok || len(items.Items) != 1 {
		t.Fatalf("expected identity transition to be a singleton list")
	}
	m, ok := items.Items[0].(*expr.MapValue)
	if !ok || m.Map.Size() != 0 {
		t.Fatalf("expected identity transition's element to be the empty map")
	}
}

func TestImplicitListsLiftedToNames(t *testing.T) {
	r, err := New(Config{
		Name:      "binary",
		Implicit:  map[string][]string{"link_deps": {"//base:runtime"}},
		TargetFields: []string{},
		Body:      expr.None(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lifted, ok := r.ImplicitExpr("link_deps")
	if !ok {
		t.Fatalf("expected a lifted expression for implicit field link_deps")
	}
	lst, ok := lifted.(*expr.ListValue)
	if !ok || len(lst.Items) != 1 {
		t.Fatalf("expected a one-element list")
	}
	name, ok := lst.Items[0].(*expr.NameValue)
	if !ok || name.Name != "//base:runtime" {
		t.Fatalf("expected lifted element to be a NAME value naming //base:runtime, got %v", lifted.ToString())
	}
}
