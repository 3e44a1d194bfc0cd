package targetmap

import (
	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/targetmap/rules"
)

// TargetDescription is one target's raw entry from a target-description
// file: a "type" discriminator plus whatever fields the named rule (or
// built-in kind) expects.
type TargetDescription struct {
	Repository string
	Module     string
	Name       string
	Type       string
	Fields     map[string]expr.Value
}

// Field returns the raw (unevaluated) expression for a field, or ok=false
// if the description doesn't carry it.
func (d *TargetDescription) Field(name string) (expr.Value, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// TargetLoader loads a named target's raw description from its
// repository/module (§4.12.1 step "load the target-description file").
type TargetLoader interface {
	Load(repository, module, name string) (*TargetDescription, error)
}

// RuleProvider resolves a rule name to its schema, recursively (a rule
// map may itself be assembled from several layered sources, e.g. a
// project's own rules overlaying a shared rule library).
type RuleProvider interface {
	Rule(name string) (*rules.Rule, error)
}

// StaticRuleMap is the simplest RuleProvider: a fixed, pre-populated
// table, suitable for tests and for a single project's fully-resolved
// rule set.
type StaticRuleMap map[string]*rules.Rule

func (m StaticRuleMap) Rule(name string) (*rules.Rule, error) {
	r, ok := m[name]
	if !ok {
		return nil, &unknownRuleError{name: name}
	}
	return r, nil
}

type unknownRuleError struct{ name string }

func (e *unknownRuleError) Error() string { return "unknown rule: " + e.name }

// builtinRuleKinds are the target "type" values the analyzer handles
// directly rather than by loading a user rule (§4.12.1 step 1).
var builtinRuleKinds = map[string]bool{
	"export":                 true,
	"generic":                true,
	"install":                true,
	"configure":              true,
	"file_gen":               true,
	"tree":                   true,
	"tree_overlay":           true,
	"disjoint_tree_overlay":  true,
}
