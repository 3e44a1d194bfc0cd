package eval

import "github.com/evalgo/eve-build/expr"

func opForeach(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	rangeVal, err := evalArg(ctx, args, "range", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(rangeVal, "'foreach' range")
	if err != nil {
		return nil, err
	}
	varVal, err := evalArg(ctx, args, "var", expr.String("_"))
	if err != nil {
		return nil, err
	}
	varName, err := requireString(varVal, "'foreach' var")
	if err != nil {
		return nil, err
	}
	raw, hasBody := getRaw(args, "body")
	out := make([]expr.Value, len(items))
	for i, item := range items {
		env := ctx.Env.Update(varName, item)
		if !hasBody {
			out[i] = expr.None()
			continue
		}
		v, err := ctx.Eval.EvalWithFunctions(raw, env, ctx.Functions)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return expr.ListFrom(out), nil
}

func opForeachMap(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	rangeVal, err := evalArg(ctx, args, "range", nil)
	if err != nil {
		return nil, err
	}
	m, err := requireMap(rangeVal, "'foreach_map' range")
	if err != nil {
		return nil, err
	}
	keyVarVal, err := evalArg(ctx, args, "var_key", expr.String("_key"))
	if err != nil {
		return nil, err
	}
	keyVar, err := requireString(keyVarVal, "'foreach_map' var_key")
	if err != nil {
		return nil, err
	}
	valVarVal, err := evalArg(ctx, args, "var_val", expr.String("_value"))
	if err != nil {
		return nil, err
	}
	valVar, err := requireString(valVarVal, "'foreach_map' var_val")
	if err != nil {
		return nil, err
	}
	raw, hasBody := getRaw(args, "body")
	items := m.Map.Items()
	out := make([]expr.Value, len(items))
	for i, kv := range items {
		env := ctx.Env.Update(keyVar, expr.String(kv.Key)).Update(valVar, kv.Value)
		if !hasBody {
			out[i] = expr.None()
			continue
		}
		v, err := ctx.Eval.EvalWithFunctions(raw, env, ctx.Functions)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return expr.ListFrom(out), nil
}

func opFoldl(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	rangeVal, err := evalArg(ctx, args, "range", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(rangeVal, "'foldl' range")
	if err != nil {
		return nil, err
	}
	varVal, err := evalArg(ctx, args, "var", expr.String("_"))
	if err != nil {
		return nil, err
	}
	varName, err := requireString(varVal, "'foldl' var")
	if err != nil {
		return nil, err
	}
	accumVarVal, err := evalArg(ctx, args, "accum_var", expr.String("_accum"))
	if err != nil {
		return nil, err
	}
	accumVar, err := requireString(accumVarVal, "'foldl' accum_var")
	if err != nil {
		return nil, err
	}
	accum, err := evalArg(ctx, args, "start", expr.None())
	if err != nil {
		return nil, err
	}
	raw, hasBody := getRaw(args, "body")
	for _, item := range items {
		env := ctx.Env.Update(varName, item).Update(accumVar, accum)
		if !hasBody {
			continue
		}
		v, err := ctx.Eval.EvalWithFunctions(raw, env, ctx.Functions)
		if err != nil {
			return nil, err
		}
		accum = v
	}
	return accum, nil
}
