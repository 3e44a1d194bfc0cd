package eval

import (
	"fmt"
	"strconv"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

func opPlus(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'+' argument")
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, item := range items {
		n, err := requireNumber(item, "'+' operand")
		if err != nil {
			return nil, err
		}
		sum += n
	}
	return expr.Number(sum), nil
}

func opTimes(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'*' argument")
	if err != nil {
		return nil, err
	}
	product := 1.0
	for _, item := range items {
		n, err := requireNumber(item, "'*' operand")
		if err != nil {
			return nil, err
		}
		product *= n
	}
	return expr.Number(product), nil
}

func opConcatLists(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	outer, err := requireList(v, "'++' argument")
	if err != nil {
		return nil, err
	}
	var out []expr.Value
	for _, item := range outer {
		inner, err := requireList(item, "'++' inner list")
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	return expr.ListFrom(out), nil
}

func opLength(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *expr.StringValue:
		return expr.Number(float64(len([]rune(t.V)))), nil
	case *expr.ListValue:
		return expr.Number(float64(len(t.Items))), nil
	case *expr.MapValue:
		return expr.Number(float64(t.Map.Size())), nil
	default:
		return nil, Fatalf("'length' expects a string, list, or map, got %s", v.TypeString())
	}
}

func opReverse(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'reverse' argument")
	if err != nil {
		return nil, err
	}
	out := make([]expr.Value, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return expr.ListFrom(out), nil
}

func opRange(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.Number(0))
	if err != nil {
		return nil, err
	}
	n, err := requireNumber(v, "'range' argument")
	if err != nil {
		return nil, err
	}
	count := int(n)
	if count < 0 {
		return nil, Fatalf("'range' argument must be non-negative, got %d", count)
	}
	out := make([]expr.Value, count)
	for i := 0; i < count; i++ {
		out[i] = expr.String(strconv.Itoa(i))
	}
	return expr.ListFrom(out), nil
}

func opKeys(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	m, err := requireMap(v, "'keys' argument")
	if err != nil {
		return nil, err
	}
	keys := m.Keys()
	out := make([]expr.Value, len(keys))
	for i, k := range keys {
		out[i] = expr.String(k)
	}
	return expr.ListFrom(out), nil
}

func opValues(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	m, err := requireMap(v, "'values' argument")
	if err != nil {
		return nil, err
	}
	items := m.Map.Items()
	out := make([]expr.Value, len(items))
	for i, kv := range items {
		out[i] = kv.Value
	}
	return expr.ListFrom(out), nil
}

func opEnumerate(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'enumerate' argument")
	if err != nil {
		return nil, err
	}
	out := make(map[string]expr.Value, len(items))
	for i, item := range items {
		out[fmt.Sprintf("%010d", i)] = item
	}
	return expr.MapFromGo(out), nil
}

func opSet(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'set' argument")
	if err != nil {
		return nil, err
	}
	out := make(map[string]expr.Value, len(items))
	for _, item := range items {
		s, err := requireString(item, "'set' element")
		if err != nil {
			return nil, err
		}
		out[s] = expr.Bool(true)
	}
	return expr.MapFromGo(out), nil
}

func opNubRight(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	if !v.IsCacheable() {
		return nil, Fatalf("'nub_right' argument must be cacheable")
	}
	items, err := requireList(v, "'nub_right' argument")
	if err != nil {
		return nil, err
	}
	seen := make(map[exhash.Digest]bool, len(items))
	kept := make([]bool, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		h := items[i].ToHash()
		if seen[h] {
			continue
		}
		seen[h] = true
		kept[i] = true
	}
	out := make([]expr.Value, 0, len(items))
	for i, item := range items {
		if kept[i] {
			out = append(out, item)
		}
	}
	return expr.ListFrom(out), nil
}

func opLookup(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	mv, err := evalArg(ctx, args, "map", nil)
	if err != nil {
		return nil, err
	}
	m, err := requireMap(mv, "'lookup' map")
	if err != nil {
		return nil, err
	}
	keyVal, err := evalArg(ctx, args, "key", nil)
	if err != nil {
		return nil, err
	}
	key, err := requireString(keyVal, "'lookup' key")
	if err != nil {
		return nil, err
	}
	if v, ok := m.Find(key); ok {
		return v, nil
	}
	return evalArg(ctx, args, "default", expr.None())
}

func opIndex(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	lv, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	items, err := requireList(lv, "'[]' argument")
	if err != nil {
		return nil, err
	}
	idxVal, err := evalArg(ctx, args, "index", nil)
	if err != nil {
		return nil, err
	}
	var idx int
	switch t := idxVal.(type) {
	case *expr.NumberValue:
		idx = int(t.V)
	case *expr.StringValue:
		n, convErr := strconv.Atoi(t.V)
		if convErr != nil {
			return nil, Fatalf("'[]' index string %q is not an integer", t.V)
		}
		idx = n
	default:
		return nil, Fatalf("'[]' index must be a number or string, got %s", idxVal.TypeString())
	}
	if idx < 0 {
		idx += len(items)
	}
	if idx < 0 || idx >= len(items) {
		if raw, ok := getRaw(args, "default"); ok {
			return ctx.Eval.EvalWithFunctions(raw, ctx.Env, ctx.Functions)
		}
		return nil, Fatalf("'[]' index out of range")
	}
	return items[idx], nil
}
