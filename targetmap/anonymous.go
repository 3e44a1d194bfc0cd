package targetmap

import (
	"fmt"

	"github.com/evalgo/eve-build/expr"
)

// RefAnonymous is the local reference-kind sentinel for anonymous target
// names (§4.12 entry table "anonymous"), distinct from expr's four
// source-facing reference kinds since anonymous targets never appear in a
// target description, only synthesized by the analyzer itself.
const RefAnonymous expr.ReferenceKind = "anonymous"

// registerAnonymousNode stores node under a synthesized name so it can be
// requested, analyzed and memoized exactly like any other configured
// target (§4.12.3).
func (a *Analyzer) registerAnonymousNode(node *expr.NodeValue, config *expr.Configuration, repository, module string) ConfiguredTargetKey {
	name := "anon:" + node.ToIdentifier()
	a.anonMu.Lock()
	a.anonNodes[name] = node
	a.anonMu.Unlock()
	return ConfiguredTargetKey{
		Target: TargetName{Repository: repository, Module: module, Name: name, Kind: RefAnonymous},
		Config: config,
	}
}

// analyzeAnonymous implements §4.12.3: a value node yields its wrapped
// result directly; an abstract node is looked up by node_type in the
// analyzer's rule map and instantiated via the with-dependencies phase,
// using the node's pre-evaluated string_fields and recursively-resolved
// target_fields in place of a named target's raw description.
func (a *Analyzer) analyzeAnonymous(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	a.anonMu.Lock()
	node, ok := a.anonNodes[key.Target.Name]
	a.anonMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown anonymous target %q", key.Target.Name)
	}

	if node.Shape == expr.ShapeValueNode {
		return &AnalyzedTarget{Key: key, Result: node.Result, Graph: NewGraphInfo(key)}, nil
	}

	rule, err := a.Rules.Rule(node.NodeType)
	if err != nil {
		return nil, fmt.Errorf("anonymous node_type %q: %w", node.NodeType, err)
	}

	params := map[string]expr.Value{}
	for _, kv := range node.StringFields.Map.Items() {
		params[kv.Key] = kv.Value
	}

	graph := NewGraphInfo(key)
	depsByField := map[string][]*AnalyzedTarget{}
	for _, kv := range node.TargetFields.Map.Items() {
		list, ok := kv.Value.(*expr.ListValue)
		if !ok {
			return nil, fmt.Errorf("anonymous node %q: target_fields.%s must be a list of nodes", node.NodeType, kv.Key)
		}
		for _, item := range list.Items {
			childNode, ok := item.(*expr.NodeValue)
			if !ok {
				return nil, fmt.Errorf("anonymous node %q: target_fields.%s must contain nodes", node.NodeType, kv.Key)
			}
			childKey := a.registerAnonymousNode(childNode, key.Config, key.Target.Repository, key.Target.Module)
			at, err := a.Analyze(childKey)
			if err != nil {
				return nil, err
			}
			depsByField[kv.Key] = append(depsByField[kv.Key], at)
			graph.AddAnonymous(childKey)
		}
	}

	taintExpr := expr.ListFrom(nil)
	return a.runWithDependencies(key, rule, params, depsByField, taintExpr, key.Config, nil, graph)
}
