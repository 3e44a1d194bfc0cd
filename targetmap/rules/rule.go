// Package rules implements the user rule (C8): the schema a rule
// definition must satisfy before the analyzer can apply it to a target.
package rules

import (
	"fmt"
	"sort"

	"github.com/evalgo/eve-build/expr"
)

// reservedFieldNames are the keywords every target description carries
// regardless of rule, and therefore cannot also be declared as a rule
// field (§3.4).
var reservedFieldNames = map[string]bool{
	"type":             true,
	"arguments_config": true,
	"tainted":          true,
}

// Rule is a user rule (§3.4): a schema naming five disjoint field sets,
// a list of free configuration variables, a set of taints, a body
// expression and a configuration-transitions map.
type Rule struct {
	Name string

	StringFields []string
	ConfigFields []string
	TargetFields []string
	// Implicit maps an implicit target field name to its literal,
	// rule-fixed list of target name strings.
	Implicit  map[string][]string
	Anonymous []string

	ConfigVars []string
	Taints     map[string]bool

	Body expr.Value

	// ConfigTransitions maps a target-field name (from TargetFields,
	// Implicit or Anonymous) to an expression that, evaluated under the
	// rule's own config_vars, produces a list of configuration overlay
	// maps — one per transition.
	ConfigTransitions map[string]expr.Value

	expectedFields map[string]bool
	// implicitExprs holds each Implicit list lifted into expression form
	// (a list of NAME values) for substitution into rule-body evaluation.
	implicitExprs map[string]expr.Value
}

// Config bundles the raw fields a rule definition supplies; New validates
// and normalizes it into a Rule.
type Config struct {
	Name              string
	StringFields      []string
	ConfigFields      []string
	TargetFields      []string
	Implicit          map[string][]string
	Anonymous         []string
	ConfigVars        []string
	Taints            []string
	Body              expr.Value
	ConfigTransitions map[string]expr.Value
}

// New validates field disjointness and transition keys (§3.4), then
// materializes the expected-fields set and lifts each implicit target
// list into expression form.
func New(cfg Config) (*Rule, error) {
	r := &Rule{
		Name:              cfg.Name,
		StringFields:      cfg.StringFields,
		ConfigFields:      cfg.ConfigFields,
		TargetFields:      cfg.TargetFields,
		Implicit:          cfg.Implicit,
		Anonymous:         cfg.Anonymous,
		ConfigVars:        cfg.ConfigVars,
		Body:              cfg.Body,
		ConfigTransitions: cfg.ConfigTransitions,
	}
	if r.Implicit == nil {
		r.Implicit = map[string][]string{}
	}
	if r.ConfigTransitions == nil {
		r.ConfigTransitions = map[string]expr.Value{}
	}
	r.Taints = make(map[string]bool, len(cfg.Taints))
	for _, t := range cfg.Taints {
		r.Taints[t] = true
	}

	if err := r.validateDisjoint(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if err := r.validateTransitionKeys(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}

	r.expectedFields = r.buildExpectedFields()
	r.implicitExprs = r.liftImplicit()

	return r, nil
}

// validateDisjoint enforces that every declared field name appears in
// exactly one of the five field sets, and none collides with a reserved
// keyword.
func (r *Rule) validateDisjoint() error {
	seen := make(map[string]string, len(r.StringFields)+len(r.ConfigFields)+len(r.TargetFields)+len(r.Implicit)+len(r.Anonymous))
	claim := func(name, set string) error {
		if reservedFieldNames[name] {
			return fmt.Errorf("field %q collides with reserved keyword", name)
		}
		if owner, dup := seen[name]; dup {
			return fmt.Errorf("field %q declared in both %q and %q", name, owner, set)
		}
		seen[name] = set
		return nil
	}
	for _, f := range r.StringFields {
		if err := claim(f, "string_fields"); err != nil {
			return err
		}
	}
	for _, f := range r.ConfigFields {
		if err := claim(f, "config_fields"); err != nil {
			return err
		}
	}
	for _, f := range r.TargetFields {
		if err := claim(f, "target_fields"); err != nil {
			return err
		}
	}
	for f := range r.Implicit {
		if err := claim(f, "implicit"); err != nil {
			return err
		}
	}
	for _, f := range r.Anonymous {
		if err := claim(f, "anonymous"); err != nil {
			return err
		}
	}
	return nil
}

// validateTransitionKeys enforces that config_transitions is a subset of
// target_fields ∪ implicit ∪ anonymous.
func (r *Rule) validateTransitionKeys() error {
	allowed := make(map[string]bool, len(r.TargetFields)+len(r.Implicit)+len(r.Anonymous))
	for _, f := range r.TargetFields {
		allowed[f] = true
	}
	for f := range r.Implicit {
		allowed[f] = true
	}
	for _, f := range r.Anonymous {
		allowed[f] = true
	}
	for key := range r.ConfigTransitions {
		if !allowed[key] {
			return fmt.Errorf("config_transitions key %q is not a target_fields/implicit/anonymous field", key)
		}
	}
	return nil
}

func (r *Rule) buildExpectedFields() map[string]bool {
	fields := make(map[string]bool)
	for name := range reservedFieldNames {
		fields[name] = true
	}
	for _, f := range r.StringFields {
		fields[f] = true
	}
	for _, f := range r.ConfigFields {
		fields[f] = true
	}
	for _, f := range r.TargetFields {
		fields[f] = true
	}
	for f := range r.Implicit {
		fields[f] = true
	}
	for _, f := range r.Anonymous {
		fields[f] = true
	}
	return fields
}

// liftImplicit converts each implicit target-name list into an
// expression-form list of NAME values, ready for substitution into the
// rule body the same way a declared target field would be.
func (r *Rule) liftImplicit() map[string]expr.Value {
	out := make(map[string]expr.Value, len(r.Implicit))
	for field, names := range r.Implicit {
		items := make([]expr.Value, len(names))
		for i, n := range names {
			items[i] = expr.NewName("", "", n, expr.RefTarget)
		}
		out[field] = expr.ListFrom(items)
	}
	return out
}

// ExpectedFields returns the closed field vocabulary this rule accepts on
// a target description: every declared field plus the reserved keywords.
func (r *Rule) ExpectedFields() map[string]bool { return r.expectedFields }

// IsExpectedField reports whether name is part of this rule's closed
// vocabulary.
func (r *Rule) IsExpectedField(name string) bool { return r.expectedFields[name] }

// ImplicitExpr returns the lifted expression-form list for an implicit
// target field, or nil if field does not name one.
func (r *Rule) ImplicitExpr(field string) (expr.Value, bool) {
	v, ok := r.implicitExprs[field]
	return v, ok
}

// TransitionFor returns the configuration-transition expression for a
// target field, defaulting to the identity transition — the singleton
// list containing the empty configuration overlay — when none is
// declared (§3.4).
func (r *Rule) TransitionFor(field string) expr.Value {
	if t, ok := r.ConfigTransitions[field]; ok {
		return t
	}
	return identityTransition()
}

// identityTransition is the pre-evaluated (not an expression to be
// evaluated) default: a singleton list containing one empty overlay map.
// Callers that mean to run a field's transition through the evaluator
// must check ConfigTransitions for an explicit entry first — see
// Analyzer's use of TransitionFor vs. direct ConfigTransitions lookup.
func identityTransition() expr.Value {
	return expr.List(expr.MapFromGo(map[string]expr.Value{}))
}

// SortedFieldNames returns every declared field name (string, config,
// target, implicit, anonymous) in sorted order, for stable error
// messages and documentation generation.
func (r *Rule) SortedFieldNames() []string {
	names := make([]string, 0, len(r.expectedFields))
	for name := range r.expectedFields {
		if reservedFieldNames[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
