package eval

import "github.com/evalgo/eve-build/expr"

// UserFunction is the C7 expression function: a callable whose body is
// evaluated over a pruned copy of the caller's environment (see Invoke),
// plus an import map of other callees it may invoke through the
// CALL_EXPRESSION dispatch operator.
type UserFunction struct {
	Vars    []string
	Imports map[string]*UserFunction
	Body    expr.Value
}

// NewUserFunction constructs an expression function over the given free
// variables, import table and unevaluated body.
func NewUserFunction(vars []string, imports map[string]*UserFunction, body expr.Value) *UserFunction {
	if imports == nil {
		imports = map[string]*UserFunction{}
	}
	return &UserFunction{Vars: vars, Imports: imports, Body: body}
}

// Invoke runs the three-step protocol from §4.7: prune the caller's
// environment down to the function's declared free variables, overlay a
// CALL_EXPRESSION dispatcher bound to the import map, and evaluate the
// body under that pruned environment.
func (f *UserFunction) Invoke(ev *Evaluator, callerEnv *expr.Configuration, baseFunctions *FunctionMap) (expr.Value, error) {
	prunedEnv := callerEnv.Prune(f.Vars)
	overlay := baseFunctions.Overlay(map[string]Function{
		"CALL_EXPRESSION": f.callExpression,
	})
	v, err := ev.EvalWithFunctions(f.Body, prunedEnv, overlay)
	if err != nil {
		return nil, WrapWhileEval("while evaluating expression function body", err)
	}
	return v, nil
}

// callExpression implements the CALL_EXPRESSION built-in installed for
// the duration of this function's invocation: given {name: ..., ...} it
// looks up name in imports and invokes that callee with the current
// environment. Unknown names are fatal.
func (f *UserFunction) callExpression(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	nameVal, err := evalArg(ctx, args, "name", nil)
	if err != nil {
		return nil, err
	}
	name, err := requireString(nameVal, "CALL_EXPRESSION name")
	if err != nil {
		return nil, err
	}
	callee, ok := f.Imports[name]
	if !ok {
		return nil, Fatalf("CALL_EXPRESSION: unknown imported expression %q", name)
	}
	return callee.Invoke(ctx.Eval, ctx.Env, ctx.Functions)
}
