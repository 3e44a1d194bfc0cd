package eval

import (
	"fmt"
	"path"
	"strings"

	"github.com/evalgo/eve-build/expr"
)

func opJoin(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	sepVal, err := evalArg(ctx, args, "sep", expr.String(""))
	if err != nil {
		return nil, err
	}
	sep, err := requireString(sepVal, "'join' sep")
	if err != nil {
		return nil, err
	}
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'join' argument")
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := requireString(item, "join element")
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return expr.String(strings.Join(parts, sep)), nil
}

// shellQuote mirrors POSIX sh single-quoting: a non-empty word without
// whitespace or shell metacharacters is returned as-is; anything else is
// wrapped in single quotes, escaping any embedded single quote as '\''.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, "\t\n '\"$&();<>|\\`*?[]#~=%!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func opJoinCmd(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'join_cmd' argument")
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := requireString(item, "join_cmd element")
		if err != nil {
			return nil, err
		}
		parts[i] = shellQuote(s)
	}
	return expr.String(strings.Join(parts, " ")), nil
}

func opJSONEncode(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	data, err := v.ToJSON(expr.NullForNonJSON)
	if err != nil {
		return nil, Fatalf("'json_encode': %v", err)
	}
	return expr.String(string(data)), nil
}

func opEscapeChars(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	s, err := requireString(v, "'escape_chars' argument")
	if err != nil {
		return nil, err
	}
	charsVal, err := evalArg(ctx, args, "chars", expr.String(""))
	if err != nil {
		return nil, err
	}
	chars, err := requireString(charsVal, "'escape_chars' chars")
	if err != nil {
		return nil, err
	}
	prefixVal, err := evalArg(ctx, args, "escape_prefix", expr.String(`\`))
	if err != nil {
		return nil, err
	}
	prefix, err := requireString(prefixVal, "'escape_chars' escape_prefix")
	if err != nil {
		return nil, err
	}
	toEscape := make(map[byte]bool, len(chars))
	for i := 0; i < len(chars); i++ {
		toEscape[chars[i]] = true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if toEscape[s[i]] {
			b.WriteString(prefix)
		}
		b.WriteByte(s[i])
	}
	return expr.String(b.String()), nil
}

func opChangeEnding(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	s, err := requireString(v, "'change_ending' argument")
	if err != nil {
		return nil, err
	}
	endingVal, err := evalArg(ctx, args, "ending", expr.String(""))
	if err != nil {
		return nil, err
	}
	ending, err := requireString(endingVal, "'change_ending' ending")
	if err != nil {
		return nil, err
	}
	if ext := path.Ext(s); ext != "" {
		s = strings.TrimSuffix(s, ext)
	}
	return expr.String(s + ending), nil
}

func opBasename(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", nil)
	if err != nil {
		return nil, err
	}
	s, err := requireString(v, "'basename' argument")
	if err != nil {
		return nil, err
	}
	return expr.String(path.Base(s)), nil
}

// opConcatTargetName implements "concat" as taught by target-name
// concatenation: most arguments are plain strings, but a target name may
// itself be given in list form (repository-qualified); concatenation
// appends the trailing string argument onto that list's last element
// rather than stringifying the whole list.
func opConcatTargetName(ctx *Context, args *expr.MapValue) (expr.Value, error) {
	v, err := evalArg(ctx, args, "$1", expr.List())
	if err != nil {
		return nil, err
	}
	items, err := requireList(v, "'concat_target_name' argument")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return expr.String(""), nil
	}
	if lst, ok := items[0].(*expr.ListValue); ok {
		out := make([]expr.Value, len(lst.Items))
		copy(out, lst.Items)
		var tail strings.Builder
		for _, item := range items[1:] {
			s, err := requireString(item, "concat_target_name tail element")
			if err != nil {
				return nil, err
			}
			tail.WriteString(s)
		}
		if len(out) == 0 {
			return nil, Fatalf("'concat_target_name' list form must be non-empty")
		}
		last, err := requireString(out[len(out)-1], "concat_target_name list tail")
		if err != nil {
			return nil, err
		}
		out[len(out)-1] = expr.String(last + tail.String())
		return expr.ListFrom(out), nil
	}
	var b strings.Builder
	for i, item := range items {
		s, err := requireString(item, fmt.Sprintf("concat_target_name element %d", i))
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return expr.String(b.String()), nil
}
