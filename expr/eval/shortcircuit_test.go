package eval

import (
	"testing"

	"github.com/evalgo/eve-build/expr"
)

// TestShortCircuitLostOnComputedList exercises the committed Open Question
// decision: when $1 is a literal list in the parsed tree, and/or stop as
// soon as the outcome is known; when $1 must itself be evaluated to
// produce the list, every element is evaluated first and short-circuiting
// is lost.
func TestShortCircuitLostOnComputedList(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()

	literalArg := expr.List(expr.Bool(false), call("fail", "msg", expr.String("must not run")))
	if _, err := ev.Eval(call("and", "$1", literalArg), env); err != nil {
		t.Fatalf("literal list: expected short-circuit to avoid the failure, got %v", err)
	}

	// ++ must fully evaluate its nested lists (including the failing
	// element) to build its result, before 'and' ever sees the list — so
	// wrapping the literal in a non-identity computation loses the
	// short-circuit the literal-list case enjoys.
	computedArg := call("++", "$1", expr.List(
		expr.List(expr.Bool(false)),
		expr.List(call("fail", "msg", expr.String("runs because $1 is computed"))),
	))
	if _, err := ev.Eval(call("and", "$1", computedArg), env); err == nil {
		t.Fatalf("computed list: expected short-circuit to be lost, forcing evaluation of every element")
	}
}

func TestOrShortCircuitsOnFirstTruthy(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	arg := expr.List(expr.Bool(true), call("fail", "msg", expr.String("must not run")))
	res, err := ev.Eval(call("or", "$1", arg), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expr.Truthy(res) {
		t.Fatalf("expected truthy result")
	}
}
