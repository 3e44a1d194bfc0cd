package eval

import (
	"testing"

	"github.com/evalgo/eve-build/expr"
)

func mustEval(t *testing.T, ev *Evaluator, v expr.Value, env *expr.Configuration) expr.Value {
	t.Helper()
	res, err := ev.Eval(v, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func call(op string, kv ...interface{}) expr.Value {
	m := map[string]expr.Value{"type": expr.String(op)}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1].(expr.Value)
	}
	return expr.MapFromGo(m)
}

func TestQuoteReturnsUnevaluated(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	inner := call("fail", "msg", expr.String("must not run"))
	res := mustEval(t, ev, call("'", "$1", inner), env)
	if !res.Equal(inner) {
		t.Fatalf("expected quote to return its argument unevaluated")
	}
}

func TestQuasiQuoteWithoutSplicesEqualsQuote(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	literal := expr.List(expr.Number(1), expr.String("a"))
	quoted := mustEval(t, ev, call("'", "$1", literal), env)
	quasi := mustEval(t, ev, call("`", "$1", literal), env)
	if !quoted.Equal(quasi) {
		t.Fatalf("expected quote and quasi-quote without splices to agree")
	}
}

func TestQuasiQuoteSplicesOneAndList(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	single := mustEval(t, ev, call("`", "$1", expr.List(call(",", "$1", expr.Number(7)))), env)
	list, err := requireList(single, "result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].(*expr.NumberValue).V != 7 {
		t.Fatalf("expected splice-one to replace with evaluated value")
	}

	spliceList := expr.List(call(",@", "$1", call("'", "$1", expr.List(expr.Number(1), expr.Number(2)))))
	out := mustEval(t, ev, call("`", "$1", spliceList), env)
	items, err := requireList(out, "result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].(*expr.NumberValue).V != 1 || items[1].(*expr.NumberValue).V != 2 {
		t.Fatalf("expected splice-list to flatten into the enclosing list, got %v", out.ToString())
	}
}

func TestIfTruthyAndFalsy(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	res := mustEval(t, ev, call("if", "cond", expr.Bool(true), "then", expr.String("yes"), "else", expr.String("no")), env)
	if res.(*expr.StringValue).V != "yes" {
		t.Fatalf("expected then-branch")
	}
	res = mustEval(t, ev, call("if", "cond", expr.Bool(false), "then", expr.String("yes"), "else", expr.String("no")), env)
	if res.(*expr.StringValue).V != "no" {
		t.Fatalf("expected else-branch")
	}
}

func TestConcatListsFlattensOneLevel(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	arg := expr.List(
		expr.List(expr.Number(1), expr.Number(2)),
		expr.List(expr.Number(3)),
	)
	res := mustEval(t, ev, call("++", "$1", arg), env)
	items, _ := requireList(res, "result")
	if len(items) != 3 {
		t.Fatalf("expected 3 flattened elements, got %d", len(items))
	}
}

func TestFoldlSumsRange(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	body := call("+", "$1", expr.List(call("var", "name", expr.String("acc")), call("var", "name", expr.String("x"))))
	res := mustEval(t, ev, call("foldl",
		"range", expr.List(expr.Number(1), expr.Number(2), expr.Number(3)),
		"var", expr.String("x"),
		"accum_var", expr.String("acc"),
		"start", expr.Number(0),
		"body", body,
	), env)
	n, ok := res.(*expr.NumberValue)
	if !ok || n.V != 6 {
		t.Fatalf("expected foldl sum 6, got %v", res.ToString())
	}
}

func TestNubRightKeepsRightmost(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	arg := expr.List(expr.Number(1), expr.Number(2), expr.Number(1), expr.Number(3), expr.Number(2))
	res := mustEval(t, ev, call("nub_right", "$1", arg), env)
	items, _ := requireList(res, "result")
	got := make([]float64, len(items))
	for i, v := range items {
		got[i] = v.(*expr.NumberValue).V
	}
	want := []float64{1, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("nub_right mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestMapUnionLeftToRightLastWins(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	arg := expr.List(
		expr.MapFromGo(map[string]expr.Value{"a": expr.Number(1), "b": expr.Number(2)}),
		expr.MapFromGo(map[string]expr.Value{"b": expr.Number(99)}),
	)
	res := mustEval(t, ev, call("map_union", "$1", arg), env)
	m, _ := requireMap(res, "result")
	a, _ := m.Find("a")
	b, _ := m.Find("b")
	if a.(*expr.NumberValue).V != 1 || b.(*expr.NumberValue).V != 99 {
		t.Fatalf("expected last map to win on conflicting keys")
	}
}

func TestDisjointMapUnionFailsOnConflict(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	arg := expr.List(
		expr.MapFromGo(map[string]expr.Value{"a": expr.Number(1)}),
		expr.MapFromGo(map[string]expr.Value{"a": expr.Number(2)}),
	)
	_, err := ev.Eval(call("disjoint_map_union", "$1", arg), env)
	if err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestAndOrShortCircuitOnLiteralList(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	// A literal list lets 'and' stop before evaluating the failing element.
	arg := expr.List(expr.Bool(false), call("fail", "msg", expr.String("must not run")))
	res, err := ev.Eval(call("and", "$1", arg), env)
	if err != nil {
		t.Fatalf("unexpected error (expected short-circuit before failure): %v", err)
	}
	if expr.Truthy(res) {
		t.Fatalf("expected false result")
	}
}

func TestUnknownOperatorIsFatal(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	_, err := ev.Eval(call("definitely_not_a_real_operator"), env)
	if err == nil {
		t.Fatalf("expected fatal error for unknown operator")
	}
}

func TestEvalTopNeverPanics(t *testing.T) {
	var logged string
	ev := New(nil, func(fatal bool, msg string) { logged = msg })
	env := expr.EmptyConfiguration()
	_, ok := ev.EvalTop(call("fail", "msg", expr.String("boom")), env)
	if ok {
		t.Fatalf("expected ok=false on failure")
	}
	if logged == "" {
		t.Fatalf("expected the logger to be invoked")
	}
}

func TestLetStarSequentialBinding(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration()
	bindings := expr.List(
		expr.List(expr.String("x"), expr.Number(1)),
		expr.List(expr.String("y"), call("+", "$1", expr.List(call("var", "name", expr.String("x")), expr.Number(1)))),
	)
	res := mustEval(t, ev, call("let*", "bindings", bindings, "body", call("var", "name", expr.String("y"))), env)
	if res.(*expr.NumberValue).V != 2 {
		t.Fatalf("expected y = x + 1 = 2, got %v", res.ToString())
	}
}

func TestUserFunctionPrunesEnvironment(t *testing.T) {
	ev := New(nil, nil)
	env := expr.EmptyConfiguration().Update("kept", expr.Number(1)).Update("dropped", expr.Number(2))
	fn := NewUserFunction([]string{"kept"}, nil, call("var", "name", expr.String("dropped")))
	res, err := fn.Invoke(ev, env, DefaultFunctionMap())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, isNone := res.(*expr.NoneValue); !isNone {
		t.Fatalf("expected pruned variable to read as none, got %v", res.ToString())
	}
}
