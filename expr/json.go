package expr

import "encoding/json"

// FromJSON is the only route from raw JSON to a Value. It yields
// none/bool/number/string/list/map — never names, artifacts, results or
// nodes — and reports ok=false on structural failure.
func FromJSON(data []byte) (Value, bool) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	return fromGoValue(raw)
}

func fromGoValue(raw interface{}) (Value, bool) {
	switch v := raw.(type) {
	case nil:
		return None(), true
	case bool:
		return Bool(v), true
	case float64:
		return Number(v), true
	case string:
		return String(v), true
	case []interface{}:
		items := make([]Value, 0, len(v))
		for _, elem := range v {
			val, ok := fromGoValue(elem)
			if !ok {
				return nil, false
			}
			items = append(items, val)
		}
		return ListFrom(items), true
	case map[string]interface{}:
		table := make(map[string]Value, len(v))
		for k, elem := range v {
			val, ok := fromGoValue(elem)
			if !ok {
				return nil, false
			}
			table[k] = val
		}
		return MapFromGo(table), true
	default:
		return nil, false
	}
}

// ToRawJSONTree renders a Value built exclusively from FromJSON-
// constructible kinds back into a generic interface{} tree suitable for
// json.Marshal, bypassing the canonical-hash JSON encoding. No code in
// this module calls it apart from its own recursion.
func ToRawJSONTree(v Value) (interface{}, bool) {
	switch t := v.(type) {
	case *NoneValue:
		return nil, true
	case *BoolValue:
		return t.V, true
	case *NumberValue:
		return t.V, true
	case *StringValue:
		return t.V, true
	case *ListValue:
		out := make([]interface{}, 0, len(t.Items))
		for _, elem := range t.Items {
			raw, ok := ToRawJSONTree(elem)
			if !ok {
				return nil, false
			}
			out = append(out, raw)
		}
		return out, true
	case *MapValue:
		out := make(map[string]interface{}, t.Map.Size())
		for _, kv := range t.Map.Items() {
			raw, ok := ToRawJSONTree(kv.Value)
			if !ok {
				return nil, false
			}
			out[kv.Key] = raw
		}
		return out, true
	default:
		return nil, false
	}
}
