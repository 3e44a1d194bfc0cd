package targetmap

import (
	"fmt"
	"sort"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/eval"
	"github.com/evalgo/eve-build/targetmap/rules"
)

func (a *Analyzer) analyzeNamedTarget(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	desc, err := a.Loader.Load(key.Target.Repository, key.Target.Module, key.Target.Name)
	if err != nil {
		return nil, fmt.Errorf("loading target %s: %w", key.Target.String(), err)
	}
	if builtinRuleKinds[desc.Type] {
		return a.analyzeBuiltinRule(key, desc)
	}
	rule, err := a.Rules.Rule(desc.Type)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", key.Target.String(), err)
	}
	return a.analyzeUserRule(key, desc, rule)
}

// targetVarsOf reads the description's arguments_config field, the set of
// configuration variables this specific target instance exposes as
// config_fields parameters (§4.12.1 step 4).
func targetVarsOf(desc *TargetDescription) ([]string, error) {
	raw, ok := desc.Field("arguments_config")
	if !ok {
		return nil, nil
	}
	list, ok := raw.(*expr.ListValue)
	if !ok {
		return nil, fmt.Errorf("arguments_config must be a list of strings")
	}
	out := make([]string, len(list.Items))
	for i, item := range list.Items {
		s, ok := item.(*expr.StringValue)
		if !ok {
			return nil, fmt.Errorf("arguments_config[%d] must be a string", i)
		}
		out[i] = s.V
	}
	return out, nil
}

// analyzeUserRule implements §4.12.1 (steps 2-8) and §4.12.2.
func (a *Analyzer) analyzeUserRule(key ConfiguredTargetKey, desc *TargetDescription, rule *rules.Rule) (*AnalyzedTarget, error) {
	// Step 3: unknown keys are fatal.
	for name := range desc.Fields {
		if !rule.IsExpectedField(name) {
			return nil, fmt.Errorf("target %s: unknown field %q for rule %q", key.Target.String(), name, rule.Name)
		}
	}

	targetVars, err := targetVarsOf(desc)
	if err != nil {
		return nil, err
	}
	targetVarsEnv := key.Config.Prune(targetVars)
	configVarsEnv := key.Config.Prune(rule.ConfigVars)
	ev := eval.New(nil, a.Logger)

	// Step 4: config_fields.
	params := map[string]expr.Value{}
	for _, name := range rule.ConfigFields {
		raw, ok := desc.Field(name)
		if !ok {
			params[name] = expr.ListFrom(nil)
			continue
		}
		val, err := ev.Eval(raw, targetVarsEnv)
		if err != nil {
			return nil, fmt.Errorf("target %s: config_fields.%s: %w", key.Target.String(), name, err)
		}
		if _, ok := val.(*expr.ListValue); !ok {
			return nil, fmt.Errorf("target %s: config_fields.%s must evaluate to a list of strings", key.Target.String(), name)
		}
		params[name] = val
	}

	// Step 5: config_transitions, with FIELD(name) bound to params.
	transitionFunctions := eval.DefaultFunctionMap().Overlay(map[string]eval.Function{
		"FIELD": fieldBuiltin(newRuleState(params, nil)),
	})
	transitions := map[string][]*expr.MapValue{}
	allTargetFieldNames := append(append(append([]string{}, rule.TargetFields...), fieldNamesOf(rule.Implicit)...), rule.Anonymous...)
	for _, field := range allTargetFieldNames {
		// A field with no explicit config_transitions entry gets the
		// literal identity transition (one empty overlay) directly,
		// without running it through the evaluator: TransitionFor's
		// default is pre-evaluated data, not an expression (it carries no
		// "type" tag and would be rejected by the map-dispatch rule).
		transitionExpr, explicit := rule.ConfigTransitions[field]
		if !explicit {
			transitions[field] = []*expr.MapValue{expr.MapFromGo(map[string]expr.Value{}).(*expr.MapValue)}
			continue
		}
		val, err := ev.EvalWithFunctions(transitionExpr, configVarsEnv, transitionFunctions)
		if err != nil {
			return nil, fmt.Errorf("target %s: config_transitions.%s: %w", key.Target.String(), field, err)
		}
		list, ok := val.(*expr.ListValue)
		if !ok {
			return nil, fmt.Errorf("target %s: config_transitions.%s must evaluate to a list of maps", key.Target.String(), field)
		}
		overlays := make([]*expr.MapValue, len(list.Items))
		for i, item := range list.Items {
			m, ok := item.(*expr.MapValue)
			if !ok {
				return nil, fmt.Errorf("target %s: config_transitions.%s[%d] must be a map", key.Target.String(), field, i)
			}
			overlays[i] = m
		}
		transitions[field] = overlays
	}

	// Step 6: emit dependency requests for declared/implicit fields.
	depKeysByField := map[string][]ConfiguredTargetKey{}
	var allDepKeys []ConfiguredTargetKey
	for _, field := range append(append([]string{}, rule.TargetFields...), fieldNamesOf(rule.Implicit)...) {
		names, err := a.fieldNames(desc, rule, field, key.Config)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", key.Target.String(), err)
		}
		for _, name := range names {
			for _, overlay := range transitions[field] {
				childConfig := key.Config.UpdateOverlay(overlay.Map.ToMap())
				childKey := ConfiguredTargetKey{
					Target: TargetName{Repository: name.Repository, Module: name.Module, Name: name.Name, Kind: name.ReferenceKind()},
					Config: childConfig,
				}
				depKeysByField[field] = append(depKeysByField[field], childKey)
				allDepKeys = append(allDepKeys, childKey)
			}
		}
	}
	allDeps, err := a.resolveWave(allDepKeys)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", key.Target.String(), err)
	}
	depsByKey := map[string]*AnalyzedTarget{}
	for _, d := range allDeps {
		depsByKey[d.Key.String()] = d
	}
	depsByField := map[string][]*AnalyzedTarget{}
	graph := NewGraphInfo(key)
	for _, field := range rule.TargetFields {
		for _, k := range depKeysByField[field] {
			depsByField[field] = append(depsByField[field], depsByKey[k.String()])
			graph.AddDeclared(k)
		}
	}
	for field := range rule.Implicit {
		for _, k := range depKeysByField[field] {
			depsByField[field] = append(depsByField[field], depsByKey[k.String()])
			graph.AddImplicit(k)
		}
	}

	// Step 7: anonymous wave — each anonymous field reads a named
	// provider's node list off one of the already-resolved deps.
	for _, field := range rule.Anonymous {
		nodes, providerDep, err := a.anonymousNodesFor(desc, field, depsByField)
		if err != nil {
			return nil, fmt.Errorf("target %s: anonymous field %q: %w", key.Target.String(), field, err)
		}
		for _, overlay := range transitions[field] {
			childConfig := key.Config.UpdateOverlay(overlay.Map.ToMap())
			for _, node := range nodes {
				anonKey := a.registerAnonymousNode(node, childConfig, key.Target.Repository, key.Target.Module)
				at, err := a.Analyze(anonKey)
				if err != nil {
					return nil, fmt.Errorf("target %s: anonymous field %q: %w", key.Target.String(), field, err)
				}
				depsByField[field] = append(depsByField[field], at)
				graph.AddAnonymous(anonKey)
			}
		}
		_ = providerDep
	}

	// §4.12.2.
	taintExpr, ok := desc.Field("tainted")
	if !ok {
		taintExpr = expr.ListFrom(nil)
	}
	stringFieldValues := map[string]expr.Value{}
	st := newRuleState(params, depsByField)
	stringFunctions := eval.DefaultFunctionMap().Overlay(map[string]eval.Function{
		"outs":     outsBuiltin(st),
		"runfiles": runfilesBuiltin(st),
	})
	for _, name := range rule.StringFields {
		raw, ok := desc.Field(name)
		if !ok {
			stringFieldValues[name] = expr.ListFrom(nil)
			continue
		}
		val, err := ev.EvalWithFunctions(raw, targetVarsEnv, stringFunctions)
		if err != nil {
			return nil, fmt.Errorf("target %s: string_fields.%s: %w", key.Target.String(), name, err)
		}
		if _, ok := val.(*expr.ListValue); !ok {
			return nil, fmt.Errorf("target %s: string_fields.%s must evaluate to a list of strings", key.Target.String(), name)
		}
		stringFieldValues[name] = val
	}
	for name, val := range stringFieldValues {
		params[name] = val
	}

	at, err := a.runWithDependencies(key, rule, params, depsByField, taintExpr, configVarsEnv, targetVars, graph)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", key.Target.String(), err)
	}
	return at, nil
}

func fieldNamesOf(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// fieldNames evaluates a declared or implicit target field into its list
// of dependency names.
func (a *Analyzer) fieldNames(desc *TargetDescription, rule *rules.Rule, field string, env *expr.Configuration) ([]*expr.NameValue, error) {
	var raw expr.Value
	if implicitExpr, ok := rule.ImplicitExpr(field); ok {
		raw = implicitExpr
	} else {
		v, ok := desc.Field(field)
		if !ok {
			return nil, nil
		}
		raw = v
	}
	ev := eval.New(nil, a.Logger)
	val, err := ev.Eval(raw, env)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	list, ok := val.(*expr.ListValue)
	if !ok {
		return nil, fmt.Errorf("field %q must evaluate to a list of names", field)
	}
	out := make([]*expr.NameValue, len(list.Items))
	for i, item := range list.Items {
		n, ok := item.(*expr.NameValue)
		if !ok {
			return nil, fmt.Errorf("field %q[%d] must be a name", field, i)
		}
		out[i] = n
	}
	return out, nil
}

// anonymousNodesFor reads {dep, provider} off the description for an
// anonymous field, looking up the named provider's node list on the
// already-resolved dependency named by dep (§4.12.1 step 7).
func (a *Analyzer) anonymousNodesFor(desc *TargetDescription, field string, depsByField map[string][]*AnalyzedTarget) ([]*expr.NodeValue, string, error) {
	raw, ok := desc.Field(field)
	if !ok {
		return nil, "", nil
	}
	m, ok := raw.(*expr.MapValue)
	if !ok {
		return nil, "", fmt.Errorf("must be a map naming {dep, provider}")
	}
	depField, err := findStringField(m, "dep")
	if err != nil {
		return nil, "", err
	}
	provider, err := findStringField(m, "provider")
	if err != nil {
		return nil, "", err
	}
	deps := depsByField[depField]
	if len(deps) == 0 {
		return nil, depField, fmt.Errorf("dep field %q has no resolved dependencies", depField)
	}
	v, ok := deps[0].Result.Provides.Find(provider)
	if !ok {
		return nil, depField, fmt.Errorf("dependency %q has no provider %q", depField, provider)
	}
	list, ok := v.(*expr.ListValue)
	if !ok {
		return nil, depField, fmt.Errorf("provider %q must be a list of nodes", provider)
	}
	out := make([]*expr.NodeValue, len(list.Items))
	for i, item := range list.Items {
		n, ok := item.(*expr.NodeValue)
		if !ok {
			return nil, depField, fmt.Errorf("provider %q[%d] must be a node", provider, i)
		}
		out[i] = n
	}
	return out, depField, nil
}

func findStringField(m *expr.MapValue, key string) (string, error) {
	v, ok := m.Find(key)
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	s, ok := v.(*expr.StringValue)
	if !ok {
		return "", fmt.Errorf("%q must be a string", key)
	}
	return s.V, nil
}
