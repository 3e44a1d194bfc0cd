package targetmap

import (
	"path"
	"sort"
	"strings"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/eval"
	"github.com/evalgo/eve-build/expr/exhash"
)

// ruleState accumulates everything a rule body's evaluation produces
// through the provider built-ins (§4.12.2 step 6): actions, blobs, trees,
// plus the resolved dependency results and evaluated parameters the
// built-ins read from.
type ruleState struct {
	params map[string]expr.Value
	deps   map[string][]*AnalyzedTarget

	actions []*Action
	blobs   []*Blob
	trees   []*Tree
}

func newRuleState(params map[string]expr.Value, deps map[string][]*AnalyzedTarget) *ruleState {
	return &ruleState{params: params, deps: deps}
}

// mergedArtifactStage unions the artifact stages of every dependency
// registered under field, last-dep-wins on key conflicts (mirroring
// map_union's left-to-right semantics).
func (s *ruleState) mergedArtifactStage(field string) map[string]expr.Value {
	out := map[string]expr.Value{}
	for _, dep := range s.deps[field] {
		for _, kv := range dep.Result.ArtifactStage.Map.Items() {
			out[kv.Key] = kv.Value
		}
	}
	return out
}

func (s *ruleState) mergedRunfiles(field string) map[string]expr.Value {
	out := map[string]expr.Value{}
	for _, dep := range s.deps[field] {
		for _, kv := range dep.Result.Runfiles.Map.Items() {
			out[kv.Key] = kv.Value
		}
	}
	return out
}

func sortedValueMapKeys(m map[string]expr.Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func stringListOf(keys []string) expr.Value {
	items := make([]expr.Value, len(keys))
	for i, k := range keys {
		items[i] = expr.String(k)
	}
	return expr.ListFrom(items)
}

// builtinOverlay builds the FunctionMap overlay §4.12.2 step 6 requires
// for rule-body evaluation (FIELD/DEP_*/ACTION/BLOB/SYMLINK/TREE/VALUE_NODE
// /ABSTRACT_NODE/RESULT) plus the outs/runfiles builtins §4.12.2 step 5
// requires for string_fields evaluation. Both sets are harmless to expose
// together since operator names never collide.
func builtinOverlay(base *eval.FunctionMap, st *ruleState) *eval.FunctionMap {
	return base.Overlay(map[string]eval.Function{
		"FIELD":         fieldBuiltin(st),
		"DEP_ARTIFACTS": depArtifactsBuiltin(st),
		"DEP_RUNFILES":  depRunfilesBuiltin(st),
		"DEP_PROVIDES":  depProvidesBuiltin(st),
		"outs":          outsBuiltin(st),
		"runfiles":      runfilesBuiltin(st),
		"ACTION":        actionBuiltin(st),
		"BLOB":          blobBuiltin(st),
		"SYMLINK":       symlinkBuiltin(st),
		"TREE":          treeBuiltin(st),
		"VALUE_NODE":    valueNodeBuiltin(),
		"ABSTRACT_NODE": abstractNodeBuiltin(),
		"RESULT":        resultBuiltin(),
	})
}

func argString(ctx *eval.Context, args *expr.MapValue, key string) (string, error) {
	raw, ok := args.Find(key)
	if !ok {
		return "", eval.Fatalf("%s: missing %q argument", key, key)
	}
	v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
	if err != nil {
		return "", err
	}
	s, ok := v.(*expr.StringValue)
	if !ok {
		return "", eval.Fatalf("%q must be a string, got %s", key, v.TypeString())
	}
	return s.V, nil
}

func argValue(ctx *eval.Context, args *expr.MapValue, key string) (expr.Value, bool, error) {
	raw, ok := args.Find(key)
	if !ok {
		return nil, false, nil
	}
	v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func fieldBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		name, err := argString(ctx, args, "name")
		if err != nil {
			return nil, err
		}
		v, ok := st.params[name]
		if !ok {
			return nil, eval.Fatalf("FIELD: no such parameter %q", name)
		}
		return v, nil
	}
}

func depArtifactsBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		name, err := argString(ctx, args, "name")
		if err != nil {
			return nil, err
		}
		return expr.MapFromGo(st.mergedArtifactStage(name)), nil
	}
}

func depRunfilesBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		name, err := argString(ctx, args, "name")
		if err != nil {
			return nil, err
		}
		return expr.MapFromGo(st.mergedRunfiles(name)), nil
	}
}

func depProvidesBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		name, err := argString(ctx, args, "name")
		if err != nil {
			return nil, err
		}
		provider, err := argString(ctx, args, "provider")
		if err != nil {
			return nil, err
		}
		def, hasDef, err := argValue(ctx, args, "default")
		if err != nil {
			return nil, err
		}
		for _, dep := range st.deps[name] {
			if v, ok := dep.Result.Provides.Find(provider); ok {
				return v, nil
			}
		}
		if hasDef {
			return def, nil
		}
		return nil, eval.Fatalf("DEP_PROVIDES: %q has no provider %q", name, provider)
	}
}

func outsBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		name, err := argString(ctx, args, "dep")
		if err != nil {
			return nil, err
		}
		return stringListOf(sortedValueMapKeys(st.mergedArtifactStage(name))), nil
	}
}

func runfilesBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		name, err := argString(ctx, args, "dep")
		if err != nil {
			return nil, err
		}
		return stringListOf(sortedValueMapKeys(st.mergedRunfiles(name))), nil
	}
}

func blobBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		data, err := argString(ctx, args, "data")
		if err != nil {
			return nil, err
		}
		digest := exhash.Compute([]byte(data))
		st.blobs = append(st.blobs, &Blob{Digest: digest, Data: []byte(data)})
		return expr.NewKnownArtifact(digest, expr.ObjectFile), nil
	}
}

func symlinkBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		data, err := argString(ctx, args, "data")
		if err != nil {
			return nil, err
		}
		if path.IsAbs(data) || strings.HasPrefix(path.Clean(data), "..") {
			return nil, eval.Fatalf("SYMLINK: target %q is not a non-upwards relative path", data)
		}
		digest := exhash.Compute([]byte(data))
		st.blobs = append(st.blobs, &Blob{Digest: digest, Data: []byte(data)})
		return expr.NewKnownArtifact(digest, expr.ObjectSymlink), nil
	}
}

func treeBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		raw, ok := args.Find("stage")
		if !ok {
			return nil, eval.Fatalf("TREE: missing %q argument", "stage")
		}
		v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
		if err != nil {
			return nil, err
		}
		stageMap, ok := v.(*expr.MapValue)
		if !ok {
			return nil, eval.Fatalf("TREE: stage must be a map, got %s", v.TypeString())
		}
		if _, fatal := conflictingTreePaths(stageMap); fatal {
			return nil, eval.Fatalf("TREE: conflicting paths in stage")
		}
		id := stageMap.ToHash()
		st.trees = append(st.trees, &Tree{ID: id, Stage: stageMap.Map.ToMap()})
		return expr.NewTreeArtifact(id), nil
	}
}

// conflictingTreePaths is a conservative check: it only flags the case
// where one staged path is a strict prefix of another (file vs. would-be
// directory ambiguity), not full filesystem semantics.
func conflictingTreePaths(stage *expr.MapValue) (string, bool) {
	keys := stage.Keys()
	sort.Strings(keys)
	// Every key starting with keys[i] sorts in one run right after it, so
	// scanning that run finds a nested path even when a sibling such as
	// "a-b" sorts between "a" and "a/c".
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys) && strings.HasPrefix(keys[j], keys[i]); j++ {
			if strings.HasPrefix(keys[j], keys[i]+"/") {
				return keys[i], true
			}
		}
	}
	return "", false
}

func actionBuiltin(st *ruleState) eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		cmdRaw, ok := args.Find("cmd")
		if !ok {
			return nil, eval.Fatalf("ACTION: missing %q argument", "cmd")
		}
		cmdVal, err := ctx.Eval.EvalWithFunctions(cmdRaw, ctx.Env, ctx.Functions)
		if err != nil {
			return nil, err
		}
		cmdList, ok := cmdVal.(*expr.ListValue)
		if !ok || len(cmdList.Items) == 0 {
			return nil, eval.Fatalf("ACTION: cmd must be a non-empty list of strings")
		}
		cmd := make([]string, len(cmdList.Items))
		for i, item := range cmdList.Items {
			s, ok := item.(*expr.StringValue)
			if !ok {
				return nil, eval.Fatalf("ACTION: cmd[%d] must be a string", i)
			}
			cmd[i] = s.V
		}

		cwd := "."
		if raw, ok := args.Find("cwd"); ok {
			v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			s, ok := v.(*expr.StringValue)
			if !ok {
				return nil, eval.Fatalf("ACTION: cwd must be a string")
			}
			if path.IsAbs(s.V) || strings.HasPrefix(path.Clean(s.V), "..") {
				return nil, eval.Fatalf("ACTION: cwd %q is not a non-upwards relative path", s.V)
			}
			cwd = s.V
		}

		outs, err := stringsArg(ctx, args, "outs")
		if err != nil {
			return nil, err
		}
		outDirs, err := stringsArg(ctx, args, "out_dirs")
		if err != nil {
			return nil, err
		}
		if conflict := disjointOutputs(outs, outDirs); conflict != "" {
			return nil, eval.Fatalf("ACTION: outs and out_dirs are not disjoint: %q", conflict)
		}

		inputsVal, _, err := argValue(ctx, args, "inputs")
		if err != nil {
			return nil, err
		}
		var inputs map[string]expr.Value
		if m, ok := inputsVal.(*expr.MapValue); ok {
			inputs = m.Map.ToMap()
		}

		envVars := map[string]string{}
		if raw, ok := args.Find("env"); ok {
			v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			if m, ok := v.(*expr.MapValue); ok {
				for _, kv := range m.Map.Items() {
					if s, ok := kv.Value.(*expr.StringValue); ok {
						envVars[kv.Key] = s.V
					}
				}
			}
		}

		mayFail, err := stringsArg(ctx, args, "may_fail")
		if err != nil {
			return nil, err
		}
		noCache := false
		if raw, ok := args.Find("no_cache"); ok {
			v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			noCache = expr.Truthy(v)
		}

		action := &Action{
			Inputs:  inputs,
			Outs:    outs,
			OutDirs: outDirs,
			Cmd:     cmd,
			Cwd:     cwd,
			Env:     envVars,
			MayFail: mayFail,
			NoCache: noCache,
		}
		action.ID = actionIdentifier(action)
		st.actions = append(st.actions, action)

		refs := map[string]expr.Value{}
		for _, out := range append(append([]string{}, outs...), outDirs...) {
			refs[out] = expr.NewActionArtifact(action.ID, out)
		}
		return expr.MapFromGo(refs), nil
	}
}

func stringsArg(ctx *eval.Context, args *expr.MapValue, key string) ([]string, error) {
	raw, ok := args.Find(key)
	if !ok {
		return nil, nil
	}
	v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
	if err != nil {
		return nil, err
	}
	list, ok := v.(*expr.ListValue)
	if !ok {
		return nil, eval.Fatalf("%q must be a list of strings", key)
	}
	out := make([]string, len(list.Items))
	for i, item := range list.Items {
		s, ok := item.(*expr.StringValue)
		if !ok {
			return nil, eval.Fatalf("%q[%d] must be a string", key, i)
		}
		out[i] = s.V
	}
	return out, nil
}

func disjointOutputs(outs, outDirs []string) string {
	seen := map[string]bool{}
	for _, o := range outs {
		seen[path.Clean(o)] = true
	}
	for _, d := range outDirs {
		if seen[path.Clean(d)] {
			return d
		}
	}
	return ""
}

func actionIdentifier(a *Action) string {
	var b strings.Builder
	b.WriteString(a.Cwd)
	for _, c := range a.Cmd {
		b.WriteString("\x00")
		b.WriteString(c)
	}
	for _, o := range a.Outs {
		b.WriteString("\x01")
		b.WriteString(o)
	}
	return exhash.Compute([]byte(b.String())).String()
}

func valueNodeBuiltin() eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		raw, ok := args.Find("result")
		if !ok {
			return nil, eval.Fatalf("VALUE_NODE: missing %q argument", "result")
		}
		v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
		if err != nil {
			return nil, err
		}
		result, ok := v.(*expr.ResultValue)
		if !ok {
			return nil, eval.Fatalf("VALUE_NODE: result must be a result value, got %s", v.TypeString())
		}
		return expr.NewValueNode(result), nil
	}
}

func abstractNodeBuiltin() eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		nodeType, err := argString(ctx, args, "node_type")
		if err != nil {
			return nil, err
		}
		stringFields, err := mapArg(ctx, args, "string_fields")
		if err != nil {
			return nil, err
		}
		targetFields, err := mapArg(ctx, args, "target_fields")
		if err != nil {
			return nil, err
		}
		return expr.NewAbstractNode(nodeType, stringFields, targetFields), nil
	}
}

func mapArg(ctx *eval.Context, args *expr.MapValue, key string) (*expr.MapValue, error) {
	raw, ok := args.Find(key)
	if !ok {
		return expr.MapFromGo(map[string]expr.Value{}).(*expr.MapValue), nil
	}
	v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*expr.MapValue)
	if !ok {
		return nil, eval.Fatalf("%q must be a map, got %s", key, v.TypeString())
	}
	return m, nil
}

func resultBuiltin() eval.Function {
	return func(ctx *eval.Context, args *expr.MapValue) (expr.Value, error) {
		artifacts, err := mapArg(ctx, args, "artifacts")
		if err != nil {
			return nil, err
		}
		if _, fatal := conflictingTreePaths(artifacts); fatal {
			return nil, eval.Fatalf("RESULT: conflicting paths in artifacts")
		}
		runfiles, err := mapArg(ctx, args, "runfiles")
		if err != nil {
			return nil, err
		}
		if _, fatal := conflictingTreePaths(runfiles); fatal {
			return nil, eval.Fatalf("RESULT: conflicting paths in runfiles")
		}
		provides, err := mapArg(ctx, args, "provides")
		if err != nil {
			return nil, err
		}
		return expr.NewResult(artifacts, runfiles, provides), nil
	}
}
