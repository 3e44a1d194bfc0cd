package eval

import (
	"fmt"

	"github.com/evalgo/eve-build/expr"
)

// Logger receives every evaluation failure the top-level entry point
// catches, with fatal=true for errors that abort analysis and
// fatal=false for downgraded warnings.
type Logger func(fatal bool, message string)

// Evaluator recursively interprets expressions under an environment and a
// function map (§4.6). It never allows an internal error to escape
// uncaught past EvalTop.
type Evaluator struct {
	Functions *FunctionMap
	Log       Logger
	// LogWidth bounds how much of the expression/environment is
	// serialized into an error message (§4.4 Enumerate, §4.6 traceback).
	LogWidth int
}

// New constructs an Evaluator with the default built-in catalog unless
// fm is non-nil, in which case it is used in place of (not in addition
// to) the defaults — callers wanting both should build fm as
// DefaultFunctionMap().Overlay(extra).
func New(fm *FunctionMap, logger Logger) *Evaluator {
	if fm == nil {
		fm = DefaultFunctionMap()
	}
	if logger == nil {
		logger = func(bool, string) {}
	}
	return &Evaluator{Functions: fm, Log: logger, LogWidth: 200}
}

// Eval is the recursive dispatch core (§4.6 "Dispatch rules"):
//  1. list evaluates element-wise;
//  2. a non-map value evaluates to itself;
//  3. a map value must carry a string "type" key naming the operator;
//  4. unknown operators are fatal.
func (ev *Evaluator) Eval(v expr.Value, env *expr.Configuration) (expr.Value, error) {
	switch t := v.(type) {
	case *expr.ListValue:
		out := make([]expr.Value, len(t.Items))
		for i, item := range t.Items {
			r, err := ev.Eval(item, env)
			if err != nil {
				return nil, WrapWhileEval(fmt.Sprintf("while evaluating list element %d", i), err)
			}
			out[i] = r
		}
		return expr.ListFrom(out), nil
	case *expr.MapValue:
		return ev.evalOperator(t, env, ev.Functions)
	default:
		return v, nil
	}
}

// EvalWithFunctions evaluates v under an overridden function map, used by
// expression functions (C7) and by the target analyzer's provider
// built-ins to inject DEP_*/ACTION/FIELD for one evaluation.
func (ev *Evaluator) EvalWithFunctions(v expr.Value, env *expr.Configuration, fm *FunctionMap) (expr.Value, error) {
	switch t := v.(type) {
	case *expr.ListValue:
		out := make([]expr.Value, len(t.Items))
		for i, item := range t.Items {
			r, err := ev.EvalWithFunctions(item, env, fm)
			if err != nil {
				return nil, WrapWhileEval(fmt.Sprintf("while evaluating list element %d", i), err)
			}
			out[i] = r
		}
		return expr.ListFrom(out), nil
	case *expr.MapValue:
		return ev.evalOperator(t, env, fm)
	default:
		return v, nil
	}
}

func (ev *Evaluator) evalOperator(t *expr.MapValue, env *expr.Configuration, fm *FunctionMap) (expr.Value, error) {
	typeVal, ok := t.Find("type")
	if !ok {
		return nil, Fatalf("map value has no 'type' key: %s", t.ToAbbrevString(ev.logWidth()))
	}
	typeStr, ok := typeVal.(*expr.StringValue)
	if !ok {
		return nil, Fatalf("'type' key must be a string, got %s", typeVal.TypeString())
	}
	op, ok := fm.Find(typeStr.V)
	if !ok {
		return nil, Fatalf("unknown operator: %q", typeStr.V)
	}
	ctx := &Context{Eval: ev, Env: env, Functions: fm}
	result, err := op(ctx, t)
	if err != nil {
		return nil, WrapWhileEval(fmt.Sprintf("while evaluating %q", typeStr.V), err)
	}
	return result, nil
}

func (ev *Evaluator) logWidth() int {
	if ev.LogWidth <= 0 {
		return 200
	}
	return ev.LogWidth
}

// EvalTop is the top-level entry point (§4.6): it catches everything,
// including Go panics raised by the scalar accessor family, serializes
// the expression and environment to the log width and invokes Log, and
// never lets an error escape. It returns ok=false on any failure.
func (ev *Evaluator) EvalTop(v expr.Value, env *expr.Configuration) (result expr.Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ev.Log(true, fmt.Sprintf("panic during evaluation: %v\nexpression: %s\nenv:\n%s",
				r, v.ToAbbrevString(ev.logWidth()), env.Enumerate("  ", ev.logWidth())))
			result, ok = nil, false
		}
	}()
	res, err := ev.Eval(v, env)
	if err != nil {
		ee := asEvalError(err)
		ev.Log(true, fmt.Sprintf("%s\nexpression: %s\nenv:\n%s",
			ee.Message, v.ToAbbrevString(ev.logWidth()), env.Enumerate("  ", ev.logWidth())))
		return nil, false
	}
	return res, true
}

// getRaw returns the raw (unevaluated) argument value for key.
func getRaw(args *expr.MapValue, key string) (expr.Value, bool) {
	return args.Find(key)
}

// evalArg evaluates the argument at key, or returns def (evaluated under
// the same context if it is itself an expression) if key is absent. A nil
// def defaults to none.
func evalArg(ctx *Context, args *expr.MapValue, key string, def expr.Value) (expr.Value, error) {
	raw, ok := getRaw(args, key)
	if !ok {
		if def == nil {
			return expr.None(), nil
		}
		return ctx.Eval.EvalWithFunctions(def, ctx.Env, ctx.Functions)
	}
	return ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
}

// requireString evaluates the coercion from a Value to its Go string,
// failing fatally (not via panic) if the kind mismatches.
func requireString(v expr.Value, what string) (string, error) {
	s, ok := v.(*expr.StringValue)
	if !ok {
		return "", Fatalf("expected %s to be a string, got %s", what, v.TypeString())
	}
	return s.V, nil
}

func requireNumber(v expr.Value, what string) (float64, error) {
	n, ok := v.(*expr.NumberValue)
	if !ok {
		return 0, Fatalf("expected %s to be a number, got %s", what, v.TypeString())
	}
	return n.V, nil
}

func requireList(v expr.Value, what string) ([]expr.Value, error) {
	l, ok := v.(*expr.ListValue)
	if !ok {
		return nil, Fatalf("expected %s to be a list, got %s", what, v.TypeString())
	}
	return l.Items, nil
}

func requireMap(v expr.Value, what string) (*expr.MapValue, error) {
	m, ok := v.(*expr.MapValue)
	if !ok {
		return nil, Fatalf("expected %s to be a map, got %s", what, v.TypeString())
	}
	return m, nil
}
