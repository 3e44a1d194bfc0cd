package rules

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/evalgo/eve-build/sourceroot"
)

func TestFileRuleProviderLoadsRule(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "RULES", []byte(`{
		"library": {
			"string_fields": ["name"],
			"target_fields": ["srcs", "deps"],
			"config_vars": ["ARCH"],
			"tainted": [],
			"expression": {"type": "CALL", "name": "RESULT", "argument": {}},
			"config_transitions": {
				"deps": {"type": "singleton_map", "key": "ARCH", "value": "ARCH"}
			}
		}
	}`), 0o644)

	provider := NewFileRuleProvider(sourceroot.New(mem, ""), "")

	rule, err := provider.Rule("library")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Name != "library" {
		t.Fatalf("expected rule name library, got %q", rule.Name)
	}
	if !rule.IsExpectedField("srcs") || !rule.IsExpectedField("name") {
		t.Fatalf("expected declared fields to be part of the rule's vocabulary")
	}
	if rule.Body == nil {
		t.Fatalf("expected a decoded body expression")
	}
	if _, ok := rule.ConfigTransitions["deps"]; !ok {
		t.Fatalf("expected the deps config_transitions entry to survive decoding")
	}
}

func TestFileRuleProviderUnknownRule(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "RULES", []byte(`{"library": {"expression": {}}}`), 0o644)

	provider := NewFileRuleProvider(sourceroot.New(mem, ""), "")
	if _, err := provider.Rule("missing"); err == nil {
		t.Fatalf("expected an error for an undefined rule")
	}
}

func TestFileRuleProviderRejectsDuplicateFields(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "RULES", []byte(`{
		"bad": {
			"string_fields": ["name"],
			"target_fields": ["name"],
			"expression": {}
		}
	}`), 0o644)

	provider := NewFileRuleProvider(sourceroot.New(mem, ""), "")
	if _, err := provider.Rule("bad"); err == nil {
		t.Fatalf("expected rule validation to reject a field declared twice")
	}
}
