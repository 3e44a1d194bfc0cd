package eval

import "github.com/evalgo/eve-build/expr"

func opEquals(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	a, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	b, err := evalArg(ctx, args, "$2", nil)
	if err != nil {
		return nil, err
	}
	if !a.IsCacheable() || !b.IsCacheable() {
		return nil, Fatalf("'==' operands must be cacheable")
	}
	return expr.Bool(a.Equal(b)), nil
}

func opNot(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	return expr.Bool(!expr.Truthy(v)), nil
}

// evalBooleanList implements the and/or short-circuit rule (§4.6): when
// $1 is a literal list in the source, elements are evaluated one at a
// time and evaluation stops as soon as the outcome is decided. When $1 is
// a computed expression, it must be evaluated in full to obtain the list
// first, so short-circuiting is lost.
func evalBooleanList(ctx *Context, args *expr.MapValue, identity bool, stopOn bool) (expr.Value, error) {
	raw, ok := getRaw(args, "$1")
	if !ok {
		return expr.Bool(identity), nil
	}
	if lst, ok := raw.(*expr.ListValue); ok {
		for _, item := range lst.Items {
			v, err := ctx.Eval.EvalWithFunctions(item, ctx.Env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			if expr.Truthy(v) == stopOn {
				return expr.Bool(stopOn), nil
			}
		}
		return expr.Bool(!stopOn), nil
	}
	v, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'and'/'or' argument")
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if expr.Truthy(item) == stopOn {
			return expr.Bool(stopOn), nil
		}
	}
	return expr.Bool(!stopOn), nil
}

func opAnd(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	return evalBooleanList(ctx, args, true, false)
}

func opOr(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	return evalBooleanList(ctx, args, false, true)
}
