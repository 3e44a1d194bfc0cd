package targetmap

import (
	"fmt"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/eval"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetmap/rules"
)

// runWithDependencies implements §4.12.2: effective variables, taint
// superset enforcement, implied-exports union, and rule-body evaluation
// with the full provider built-in catalog, producing the registered
// analysed_target bundle deduplicated by (target, effective_config).
func (a *Analyzer) runWithDependencies(
	key ConfiguredTargetKey,
	rule *rules.Rule,
	params map[string]expr.Value,
	depsByField map[string][]*AnalyzedTarget,
	taintExpr expr.Value,
	ruleBodyEnv *expr.Configuration,
	targetVars []string,
	graph *GraphInfo,
) (*AnalyzedTarget, error) {
	// Step 1: effective variables.
	effectiveVars := map[string]bool{}
	for _, v := range targetVars {
		effectiveVars[v] = true
	}
	for _, v := range rule.ConfigVars {
		effectiveVars[v] = true
	}
	var allDeps []*AnalyzedTarget
	for _, deps := range depsByField {
		allDeps = append(allDeps, deps...)
	}
	for _, dep := range allDeps {
		for _, v := range dep.Vars {
			effectiveVars[v] = true
		}
	}
	effectiveVarsList := sortedStringKeys(effectiveVars)

	// Step 2: the effective configuration (used for cache-key dedup, §4.12.2
	// step 7 and §4.13's cache key).
	effectiveConfig := key.Config.Prune(effectiveVarsList)

	// Step 3: taint, with the superset rule.
	ev := eval.New(nil, a.Logger)
	taintVal, err := ev.Eval(taintExpr, ruleBodyEnv)
	if err != nil {
		return nil, fmt.Errorf("tainted: %w", err)
	}
	taints := map[string]bool{}
	if list, ok := taintVal.(*expr.ListValue); ok {
		for _, item := range list.Items {
			if s, ok := item.(*expr.StringValue); ok {
				taints[s.V] = true
			}
		}
	}
	for t := range rule.Taints {
		taints[t] = true
	}
	for _, dep := range allDeps {
		for t := range dep.Tainted {
			if !taints[t] {
				return nil, fmt.Errorf("taint superset violated: dependency carries taint %q the target does not declare", t)
			}
		}
	}

	// Step 4: implied-exports union.
	impliedExports := map[string]bool{}
	for _, dep := range allDeps {
		for e := range dep.ImpliedExports {
			impliedExports[e] = true
		}
	}

	// Step 6: rule body, with the full provider built-in catalog.
	st := newRuleState(params, depsByField)
	overlay := builtinOverlay(eval.DefaultFunctionMap(), st)
	resultVal, err := ev.EvalWithFunctions(rule.Body, ruleBodyEnv, overlay)
	if err != nil {
		return nil, fmt.Errorf("rule body: %w", err)
	}
	result, ok := resultVal.(*expr.ResultValue)
	if !ok {
		return nil, fmt.Errorf("rule body must evaluate to a result value, got %s", resultVal.TypeString())
	}

	at := &AnalyzedTarget{
		Key:            ConfiguredTargetKey{Target: key.Target, Config: effectiveConfig},
		Result:         result,
		Actions:        st.actions,
		Blobs:          st.blobs,
		Trees:          st.trees,
		Vars:           effectiveVarsList,
		Tainted:        taints,
		ImpliedExports: impliedExports,
		Graph:          graph,
	}

	effKeyStr := at.Key.String()
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.byEffective[effKeyStr]; ok {
		return existing, nil
	}
	a.byEffective[effKeyStr] = at
	return at, nil
}

// analyzeBuiltinRule handles the eight built-in target kinds directly
// (§4.12.1 step 1), without loading a user rule.
func (a *Analyzer) analyzeBuiltinRule(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	switch desc.Type {
	case "export":
		return a.analyzeExport(key, desc)
	case "file_gen":
		return a.analyzeFileGen(key, desc)
	case "generic":
		return a.analyzeGeneric(key, desc)
	case "install":
		return a.analyzeInstall(key, desc)
	case "configure":
		return a.analyzeConfigure(key, desc)
	case "tree":
		return a.analyzeTreeRule(key, desc)
	case "tree_overlay", "disjoint_tree_overlay":
		return a.analyzeTreeOverlay(key, desc, desc.Type == "disjoint_tree_overlay")
	default:
		return nil, fmt.Errorf("unrecognized built-in rule %q", desc.Type)
	}
}

func evalStringList(ev *eval.Evaluator, v expr.Value, env *expr.Configuration) ([]*expr.NameValue, error) {
	val, err := ev.Eval(v, env)
	if err != nil {
		return nil, err
	}
	list, ok := val.(*expr.ListValue)
	if !ok {
		return nil, fmt.Errorf("expected a list of names")
	}
	out := make([]*expr.NameValue, len(list.Items))
	for i, item := range list.Items {
		n, ok := item.(*expr.NameValue)
		if !ok {
			return nil, fmt.Errorf("element %d is not a name", i)
		}
		out[i] = n
	}
	return out, nil
}

// analyzeExport re-exposes a single dependency's result unchanged — the
// simplest built-in rule, a pass-through target boundary.
func (a *Analyzer) analyzeExport(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	raw, ok := desc.Field("src")
	if !ok {
		return nil, fmt.Errorf("export target %s: missing %q field", key.Target.String(), "src")
	}
	ev := eval.New(nil, a.Logger)
	names, err := evalStringList(ev, raw, key.Config)
	if err != nil || len(names) != 1 {
		return nil, fmt.Errorf("export target %s: %q must name exactly one dependency", key.Target.String(), "src")
	}
	n := names[0]
	childKey := ConfiguredTargetKey{
		Target: TargetName{Repository: n.Repository, Module: n.Module, Name: n.Name, Kind: n.ReferenceKind()},
		Config: key.Config,
	}
	dep, err := a.Analyze(childKey)
	if err != nil {
		return nil, err
	}
	graph := NewGraphInfo(key)
	graph.AddDeclared(childKey)
	return &AnalyzedTarget{Key: key, Result: dep.Result, Vars: dep.Vars, Tainted: dep.Tainted, ImpliedExports: dep.ImpliedExports, Graph: graph}, nil
}

// analyzeGeneric, analyzeInstall, analyzeConfigure, analyzeTreeRule and
// analyzeTreeOverlay are thin built-in rules expressed the same way a
// user rule's with-dependencies phase would be, minus config_fields/
// config_transitions. All but analyzeConfigure take their dependencies
// under the target's own configuration, unchanged; analyzeConfigure
// analyzes its one dependency under that configuration updated with its
// evaluated "config" overlay.
func (a *Analyzer) analyzeGeneric(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	depsKeys, err := a.namesField(desc, "deps", key.Config)
	if err != nil {
		return nil, err
	}
	deps, err := a.resolveWave(depsKeys)
	if err != nil {
		return nil, err
	}
	outs, err := a.stringsField(desc, "outs", key.Config)
	if err != nil {
		return nil, err
	}
	cmd, err := a.stringsField(desc, "cmd", key.Config)
	if err != nil {
		return nil, err
	}
	st := newRuleState(nil, map[string][]*AnalyzedTarget{"deps": deps})
	inputs := st.mergedArtifactStage("deps")
	action := &Action{Inputs: inputs, Outs: outs, Cmd: cmd, Cwd: "."}
	action.ID = actionIdentifier(action)
	refs := map[string]expr.Value{}
	for _, out := range outs {
		refs[out] = expr.NewActionArtifact(action.ID, out)
	}
	result := expr.NewResult(expr.MapFromGo(refs).(*expr.MapValue), nil, nil).(*expr.ResultValue)
	graph := NewGraphInfo(key)
	for _, k := range depsKeys {
		graph.AddDeclared(k)
	}
	return &AnalyzedTarget{Key: key, Result: result, Actions: []*Action{action}, Graph: graph}, nil
}

func (a *Analyzer) analyzeInstall(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	depsKeys, err := a.namesField(desc, "deps", key.Config)
	if err != nil {
		return nil, err
	}
	deps, err := a.resolveWave(depsKeys)
	if err != nil {
		return nil, err
	}
	st := newRuleState(nil, map[string][]*AnalyzedTarget{"deps": deps})
	stage := st.mergedArtifactStage("deps")
	if dirs, err := a.stringsField(desc, "dirs", key.Config); err == nil {
		_ = dirs // best-effort: install's dirs remapping is left to callers that need it.
	}
	result := expr.NewResult(expr.MapFromGo(stage).(*expr.MapValue), nil, nil).(*expr.ResultValue)
	graph := NewGraphInfo(key)
	for _, k := range depsKeys {
		graph.AddDeclared(k)
	}
	return &AnalyzedTarget{Key: key, Result: result, Graph: graph}, nil
}

func (a *Analyzer) analyzeConfigure(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	targetRaw, ok := desc.Field("target")
	if !ok {
		return nil, fmt.Errorf("configure target %s: missing %q field", key.Target.String(), "target")
	}
	configRaw, ok := desc.Field("config")
	if !ok {
		return nil, fmt.Errorf("configure target %s: missing %q field", key.Target.String(), "config")
	}
	ev := eval.New(nil, a.Logger)
	names, err := evalStringList(ev, targetRaw, key.Config)
	if err != nil || len(names) != 1 {
		return nil, fmt.Errorf("configure target %s: %q must name exactly one dependency", key.Target.String(), "target")
	}
	overlayVal, err := ev.Eval(configRaw, key.Config)
	if err != nil {
		return nil, err
	}
	overlayMap, ok := overlayVal.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("configure target %s: %q must evaluate to a map", key.Target.String(), "config")
	}
	n := names[0]
	childConfig := key.Config.UpdateOverlay(overlayMap.Map.ToMap())
	childKey := ConfiguredTargetKey{
		Target: TargetName{Repository: n.Repository, Module: n.Module, Name: n.Name, Kind: n.ReferenceKind()},
		Config: childConfig,
	}
	dep, err := a.Analyze(childKey)
	if err != nil {
		return nil, err
	}
	graph := NewGraphInfo(key)
	graph.AddDeclared(childKey)
	return &AnalyzedTarget{Key: key, Result: dep.Result, Vars: dep.Vars, Tainted: dep.Tainted, ImpliedExports: dep.ImpliedExports, Graph: graph}, nil
}

func (a *Analyzer) analyzeTreeRule(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	depsKeys, err := a.namesField(desc, "deps", key.Config)
	if err != nil {
		return nil, err
	}
	deps, err := a.resolveWave(depsKeys)
	if err != nil {
		return nil, err
	}
	st := newRuleState(nil, map[string][]*AnalyzedTarget{"deps": deps})
	stage := st.mergedArtifactStage("deps")
	stageMap := expr.MapFromGo(stage).(*expr.MapValue)
	treeID := stageMap.ToHash()
	artifact := expr.NewTreeArtifact(treeID).(*expr.ArtifactValue)
	result := expr.NewResult(expr.MapFromGo(map[string]expr.Value{".": artifact}).(*expr.MapValue), nil, nil).(*expr.ResultValue)
	graph := NewGraphInfo(key)
	for _, k := range depsKeys {
		graph.AddDeclared(k)
	}
	return &AnalyzedTarget{Key: key, Result: result, Trees: []*Tree{{ID: treeID, Stage: stage}}, Graph: graph}, nil
}

func (a *Analyzer) analyzeTreeOverlay(key ConfiguredTargetKey, desc *TargetDescription, disjoint bool) (*AnalyzedTarget, error) {
	depsKeys, err := a.namesField(desc, "deps", key.Config)
	if err != nil {
		return nil, err
	}
	deps, err := a.resolveWave(depsKeys)
	if err != nil {
		return nil, err
	}
	stage := map[string]expr.Value{}
	for _, dep := range deps {
		for _, kv := range dep.Result.ArtifactStage.Map.Items() {
			if disjoint {
				if _, conflict := stage[kv.Key]; conflict {
					return nil, fmt.Errorf("disjoint_tree_overlay: conflicting path %q", kv.Key)
				}
			}
			stage[kv.Key] = kv.Value
		}
	}
	stageMap := expr.MapFromGo(stage).(*expr.MapValue)
	treeID := stageMap.ToHash()
	artifact := expr.NewTreeArtifact(treeID).(*expr.ArtifactValue)
	result := expr.NewResult(expr.MapFromGo(map[string]expr.Value{".": artifact}).(*expr.MapValue), nil, nil).(*expr.ResultValue)
	graph := NewGraphInfo(key)
	for _, k := range depsKeys {
		graph.AddDeclared(k)
	}
	return &AnalyzedTarget{Key: key, Result: result, Trees: []*Tree{{ID: treeID, Stage: stage}}, Graph: graph}, nil
}

func (a *Analyzer) analyzeFileGen(key ConfiguredTargetKey, desc *TargetDescription) (*AnalyzedTarget, error) {
	nameField, err := a.stringsField(desc, "out", key.Config)
	if err != nil || len(nameField) != 1 {
		return nil, fmt.Errorf("file_gen target %s: %q must be a single-element list", key.Target.String(), "out")
	}
	data, err := a.stringsField(desc, "data", key.Config)
	if err != nil || len(data) != 1 {
		return nil, fmt.Errorf("file_gen target %s: %q must be a single-element list", key.Target.String(), "data")
	}
	blobData := []byte(data[0])
	digest := exhash.Compute(blobData)
	artifact := expr.NewKnownArtifact(digest, expr.ObjectFile)
	stage := expr.MapFromGo(map[string]expr.Value{nameField[0]: artifact}).(*expr.MapValue)
	result := expr.NewResult(stage, nil, nil).(*expr.ResultValue)
	return &AnalyzedTarget{
		Key:    key,
		Result: result,
		Blobs:  []*Blob{{Digest: digest, Data: blobData}},
		Graph:  NewGraphInfo(key),
	}, nil
}

// namesField evaluates a field that must be a list of dependency names and
// maps it straight to configured target keys under the target's own
// (unmodified) configuration.
func (a *Analyzer) namesField(desc *TargetDescription, field string, config *expr.Configuration) ([]ConfiguredTargetKey, error) {
	raw, ok := desc.Field(field)
	if !ok {
		return nil, nil
	}
	ev := eval.New(nil, a.Logger)
	names, err := evalStringList(ev, raw, config)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	out := make([]ConfiguredTargetKey, len(names))
	for i, n := range names {
		out[i] = ConfiguredTargetKey{
			Target: TargetName{Repository: n.Repository, Module: n.Module, Name: n.Name, Kind: n.ReferenceKind()},
			Config: config,
		}
	}
	return out, nil
}

func (a *Analyzer) stringsField(desc *TargetDescription, field string, config *expr.Configuration) ([]string, error) {
	raw, ok := desc.Field(field)
	if !ok {
		return nil, nil
	}
	ev := eval.New(nil, a.Logger)
	val, err := ev.Eval(raw, config)
	if err != nil {
		return nil, err
	}
	list, ok := val.(*expr.ListValue)
	if !ok {
		return nil, fmt.Errorf("field %q must be a list of strings", field)
	}
	out := make([]string, len(list.Items))
	for i, item := range list.Items {
		s, ok := item.(*expr.StringValue)
		if !ok {
			return nil, fmt.Errorf("field %q[%d] must be a string", field, i)
		}
		out[i] = s.V
	}
	return out, nil
}
