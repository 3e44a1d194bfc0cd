package eval

import "github.com/evalgo/eve-build/expr"

// quasiExpand recursively expands a raw (unevaluated) expression under
// quasi-quote, evaluating only "," (splice-one) and ",@" (splice-list,
// list context only) nodes (§4.6).
func quasiExpand(ctx *Context, v expr.Value) (expr.Value, error) {
	switch t := v.(type) {
	case *expr.ListValue:
		out, err := quasiExpandList(ctx, t.Items)
		if err != nil {
			return nil, err
		}
		return expr.ListFrom(out), nil
	case *expr.MapValue:
		if typ, ok := t.Find("type"); ok {
			if ts, ok := typ.(*expr.StringValue); ok {
				switch ts.V {
				case ",":
					raw, _ := getRaw(t, "$1")
					return ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
				case ",@":
					return nil, Fatalf("',@' is only valid inside a list")
				}
			}
		}
		out := make(map[string]expr.Value, len(t.Keys()))
		for _, k := range t.Keys() {
			val, _ := t.Find(k)
			if k == "type" {
				out[k] = val
				continue
			}
			nv, err := quasiExpand(ctx, val)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return expr.MapFromGo(out), nil
	default:
		return v, nil
	}
}

func quasiExpandList(ctx *Context, items []expr.Value) ([]expr.Value, error) {
	var out []expr.Value
	for _, item := range items {
		if mv, ok := item.(*expr.MapValue); ok {
			if typ, ok := mv.Find("type"); ok {
				if ts, ok := typ.(*expr.StringValue); ok && ts.V == ",@" {
					raw, _ := getRaw(mv, "$1")
					val, err := ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
					if err != nil {
						return nil, err
					}
					lst, ok := val.(*expr.ListValue)
					if !ok {
						return nil, Fatalf("',@' requires a list, got %s", val.TypeString())
					}
					out = append(out, lst.Items...)
					continue
				}
			}
		}
		nv, err := quasiExpand(ctx, item)
		if err != nil {
			return nil, err
		}
		out = append(out, nv)
	}
	return out, nil
}

func opQuote(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	if raw, ok := getRaw(args, "$1"); ok {
		return raw, nil
	}
	return expr.None(), nil
}

func opQuasiQuote(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	raw, ok := getRaw(args, "$1")
	if !ok {
		return expr.None(), nil
	}
	return quasiExpand(ctx, raw)
}

func opSpliceBare(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	return nil, Fatalf("',' is only valid inside a quasi-quote")
}

func opSpliceListBare(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	return nil, Fatalf("',@' is only valid inside a quasi-quote")
}

func opIf(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	cond, err := evalArg(ctx, args, "cond", nil)
	if err != nil {
		return nil, err
	}
	if expr.Truthy(cond) {
		return evalArg(ctx, args, "then", expr.List())
	}
	return evalArg(ctx, args, "else", expr.List())
}

func opCond(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	raw, ok := getRaw(args, "cond")
	if ok {
		pairs, err := requireList(raw, "'cond' argument")
		if err != nil {
			return nil, err
		}
		for i, p := range pairs {
			pair, err := requireList(p, "cond pair")
			if err != nil {
				return nil, err
			}
			if len(pair) != 2 {
				return nil, Fatalf("cond pair %d must have exactly 2 elements", i)
			}
			predicate, err := ctx.Eval.EvalWithFunctions(pair[0], ctx.Env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			if expr.Truthy(predicate) {
				return ctx.Eval.EvalWithFunctions(pair[1], ctx.Env, ctx.Functions)
			}
		}
	}
	return evalArg(ctx, args, "default", expr.List())
}

func opCase(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	keyVal, err := evalArg(ctx, args, "expr", nil)
	if err != nil {
		return nil, err
	}
	key, err := requireString(keyVal, "'case' expr")
	if err != nil {
		return nil, err
	}
	if raw, ok := getRaw(args, "case"); ok {
		cm, err := requireMap(raw, "'case' branches")
		if err != nil {
			return nil, err
		}
		if branch, ok := cm.Find(key); ok {
			return ctx.Eval.EvalWithFunctions(branch, ctx.Env, ctx.Functions)
		}
	}
	return evalArg(ctx, args, "default", expr.List())
}

func opCaseStar(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	subject, err := evalArg(ctx, args, "expr", nil)
	if err != nil {
		return nil, err
	}
	if !subject.IsCacheable() {
		return nil, Fatalf("'case*' subject must be cacheable")
	}
	if raw, ok := getRaw(args, "case"); ok {
		pairs, err := requireList(raw, "'case*' argument")
		if err != nil {
			return nil, err
		}
		for i, p := range pairs {
			pair, err := requireList(p, "case* pair")
			if err != nil {
				return nil, err
			}
			if len(pair) != 2 {
				return nil, Fatalf("case* pair %d must have exactly 2 elements", i)
			}
			candidate, err := ctx.Eval.EvalWithFunctions(pair[0], ctx.Env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			if candidate.Equal(subject) {
				return ctx.Eval.EvalWithFunctions(pair[1], ctx.Env, ctx.Functions)
			}
		}
	}
	return evalArg(ctx, args, "default", expr.List())
}

func opFail(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	msgVal, err := evalArg(ctx, args, "msg", expr.String("evaluation failed"))
	if err != nil {
		return nil, err
	}
	msg, err := requireString(msgVal, "'fail' msg")
	if err != nil {
		return nil, err
	}
	return nil, Fail(msg)
}

func opAssert(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	val, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	varName := "_"
	if v, err := evalArg(ctx, args, "var", expr.String("_")); err == nil {
		if s, err := requireString(v, "'assert' var"); err == nil {
			varName = s
		}
	}
	newEnv := ctx.Env.Update(varName, val)
	innerCtx := &Context{Eval: ctx.Eval, Env: newEnv, Functions: ctx.Functions}
	predicate, err := evalArg(innerCtx, args, "predicate", expr.Bool(false))
	if err != nil {
		return nil, err
	}
	if expr.Truthy(predicate) {
		return val, nil
	}
	msgVal, err := evalArg(innerCtx, args, "msg", expr.String("assertion failed"))
	if err != nil {
		return nil, err
	}
	msg, err := requireString(msgVal, "'assert' msg")
	if err != nil {
		return nil, err
	}
	return nil, Fail(msg).WithInvolved(val)
}

func opAssertNonEmpty(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	val, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	nonEmpty := false
	switch t := val.(type) {
	case *expr.StringValue:
		nonEmpty = t.V != ""
	case *expr.ListValue:
		nonEmpty = len(t.Items) != 0
	case *expr.MapValue:
		nonEmpty = t.Map.Size() != 0
	}
	if nonEmpty {
		return val, nil
	}
	msgVal, err := evalArg(ctx, args, "msg", expr.String("expected a non-empty value"))
	if err != nil {
		return nil, err
	}
	msg, err := requireString(msgVal, "'assert_non_empty' msg")
	if err != nil {
		return nil, err
	}
	return nil, Fail(msg)
}

func opContext(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	val, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		msgVal, merr := evalArg(ctx, args, "msg", expr.String(""))
		if merr != nil {
			return nil, err
		}
		msg, _ := requireString(msgVal, "'context' msg")
		return nil, WrapWhileEval(msg, err)
	}
	return val, nil
}

func opLetStar(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	env := ctx.Env
	if raw, ok := getRaw(args, "bindings"); ok {
		bindings, err := requireList(raw, "'let*' bindings")
		if err != nil {
			return nil, err
		}
		for i, b := range bindings {
			pair, err := requireList(b, "let* binding")
			if err != nil {
				return nil, err
			}
			if len(pair) != 2 {
				return nil, Fatalf("let* binding %d must have exactly 2 elements", i)
			}
			name, err := requireString(pair[0], "let* binding name")
			if err != nil {
				return nil, err
			}
			val, err := ctx.Eval.EvalWithFunctions(pair[1], env, ctx.Functions)
			if err != nil {
				return nil, err
			}
			env = env.Update(name, val)
		}
	}
	bodyCtx := &Context{Eval: ctx.Eval, Env: env, Functions: ctx.Functions}
	return evalArg(bodyCtx, args, "body", expr.List())
}

func opEnv(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	varsVal, err := evalArg(ctx, args, "vars", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(varsVal, "'env' vars")
	if err != nil {
		return nil, err
	}
	out := make(map[string]expr.Value, len(items))
	for _, item := range items {
		name, err := requireString(item, "'env' var name")
		if err != nil {
			return nil, err
		}
		out[name] = ctx.Env.Get(name)
	}
	return expr.MapFromGo(out), nil
}

func opVar(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	nameVal, err := evalArg(ctx, args, "name", nil)
	if err != nil {
		return nil, err
	}
	name, err := requireString(nameVal, "'var' name")
	if err != nil {
		return nil, err
	}
	if v, ok := ctx.Env.Lookup(name); ok {
		return v, nil
	}
	return evalArg(ctx, args, "default", expr.None())
}
