package eval

import "github.com/evalgo/eve-build/expr"

// Context is threaded through every built-in/user operator invocation: it
// carries the evaluator to recurse into, the current environment, and the
// function map active for this call (so CALL_EXPRESSION and
// provider-injected builtins can install an overlay for one evaluation).
type Context struct {
	Eval      *Evaluator
	Env       *expr.Configuration
	Functions *FunctionMap
}

// Function is an operator implementation: given the call-site arguments
// (the full `type`-tagged map, including "type" itself), it returns the
// operator's result or an error.
type Function func(ctx *Context, args *expr.MapValue) (expr.Value, error)

// FunctionMap is the linked map from operator name to evaluator function
// (C5). Operator dispatch is a single Find. Overlay is how
// rule-imported callees (CALL_EXPRESSION) and provider-injected builtins
// (DEP_*, ACTION, BLOB, TREE, FIELD, ...) are introduced for the duration
// of one evaluation.
type FunctionMap struct {
	table map[string]Function
	next  *FunctionMap
}

// NewFunctionMap builds a single-table function map.
func NewFunctionMap(table map[string]Function) *FunctionMap {
	return &FunctionMap{table: table}
}

// Find looks up name, consulting this layer first then the shadowed base.
func (fm *FunctionMap) Find(name string) (Function, bool) {
	for cur := fm; cur != nil; cur = cur.next {
		if cur.table != nil {
			if f, ok := cur.table[name]; ok {
				return f, true
			}
		}
	}
	return nil, false
}

// Overlay returns a new function map with table shadowing fm.
func (fm *FunctionMap) Overlay(table map[string]Function) *FunctionMap {
	return &FunctionMap{table: table, next: fm}
}
