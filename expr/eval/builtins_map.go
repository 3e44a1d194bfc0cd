package eval

import (
	"path"
	"strings"

	"github.com/evalgo/eve-build/expr"
)

func opEmptyMap(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	return expr.MapFromGo(map[string]expr.Value{}), nil
}

func opSingletonMap(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	keyVal, err := evalArg(ctx, args, "key", nil)
	if err != nil {
		return nil, err
	}
	key, err := requireString(keyVal, "'singleton_map' key")
	if err != nil {
		return nil, err
	}
	val, err := evalArg(ctx, args, "value", nil)
	if err != nil {
		return nil, err
	}
	return expr.MapFromGo(map[string]expr.Value{key: val}), nil
}

func opMapUnion(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'map_union' argument")
	if err != nil {
		return nil, err
	}
	acc := expr.EmptyMap()
	for i, item := range items {
		m, err := requireMap(item, "map_union element")
		if err != nil {
			return nil, Fatalf("map_union element %d: %v", i, err)
		}
		acc = acc.UpdateMap(m.Map.ToMap())
	}
	return expr.Map(acc), nil
}

func opDisjointMapUnion(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'disjoint_map_union' argument")
	if err != nil {
		return nil, err
	}
	acc := expr.EmptyMap()
	for i, item := range items {
		m, err := requireMap(item, "disjoint_map_union element")
		if err != nil {
			return nil, Fatalf("disjoint_map_union element %d: %v", i, err)
		}
		if key, found := acc.FindConflictingDuplicate(m.Map); found {
			msgVal, merr := evalArg(ctx, args, "msg", expr.String(""))
			if merr == nil {
				if msg, merr2 := requireString(msgVal, "msg"); merr2 == nil && msg != "" {
					return nil, Fail(msg)
				}
			}
			return nil, Fatalf("disjoint_map_union: conflicting key %q", key)
		}
		acc = acc.UpdateMap(m.Map.ToMap())
	}
	return expr.Map(acc), nil
}

func opToSubdir(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	subdirVal, err := evalArg(ctx, args, "subdir", nil)
	if err != nil {
		return nil, err
	}
	subdir, err := requireString(subdirVal, "'to_subdir' subdir")
	if err != nil {
		return nil, err
	}
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	m, err := requireMap(v, "'to_subdir' map")
	if err != nil {
		return nil, err
	}
	flatVal, err := evalArg(ctx, args, "flat", expr.Bool(false))
	if err != nil {
		return nil, err
	}
	flat := expr.Truthy(flatVal)

	out := map[string]expr.Value{}
	for _, kv := range m.Map.Items() {
		var newKey string
		if flat {
			newKey = path.Join(subdir, path.Base(kv.Key))
		} else {
			newKey = path.Join(subdir, kv.Key)
		}
		if existing, conflict := out[newKey]; conflict {
			if existing.Equal(kv.Value) && existing.IsCacheable() {
				continue
			}
			msgVal, merr := evalArg(ctx, args, "msg", expr.String(""))
			if merr == nil {
				if msg, merr2 := requireString(msgVal, "msg"); merr2 == nil && msg != "" {
					return nil, Fail(msg)
				}
			}
			return nil, Fatalf("'to_subdir' collision at %q", newKey)
		}
		out[newKey] = kv.Value
	}
	return expr.MapFromGo(out), nil
}

func opFromSubdir(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	subdirVal, err := evalArg(ctx, args, "subdir", nil)
	if err != nil {
		return nil, err
	}
	subdir, err := requireString(subdirVal, "'from_subdir' subdir")
	if err != nil {
		return nil, err
	}
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	m, err := requireMap(v, "'from_subdir' map")
	if err != nil {
		return nil, err
	}
	prefix := path.Clean(subdir) + "/"
	out := map[string]expr.Value{}
	for _, kv := range m.Map.Items() {
		cleaned := path.Clean(kv.Key)
		if !strings.HasPrefix(cleaned+"/", prefix) {
			continue
		}
		newKey := strings.TrimPrefix(cleaned, prefix)
		if newKey == "" || strings.HasPrefix(newKey, "../") || newKey == ".." {
			return nil, Fatalf("'from_subdir' produced a non-local path for key %q", kv.Key)
		}
		if existing, conflict := out[newKey]; conflict {
			if existing.Equal(kv.Value) && existing.IsCacheable() {
				continue
			}
			return nil, Fatalf("'from_subdir' collision at %q", newKey)
		}
		out[newKey] = kv.Value
	}
	return expr.MapFromGo(out), nil
}
