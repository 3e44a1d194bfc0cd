package expr

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// KV is one materialized (key, value) binding of a LinkedMap.
type KV struct {
	Key   string
	Value Value
}

// LinkedMap is the persistent, shadowing associative container described
// in §4.1: string keys to expression values, O(1) Update without copying
// the base, and a lazily computed, key-sorted, set-once-memoized items
// vector.
//
// Internally it takes one of four shapes: empty (table, content and next
// all nil); a single ordered table (table set, next nil); a next map
// shadowed by an inline table (table and next set); or a next map
// shadowed by another linked map (content and next set). Shapes three and
// four are how Update and UpdateLinked avoid copying the base.
type LinkedMap struct {
	table   map[string]Value
	content *LinkedMap
	next    *LinkedMap

	itemsCache atomic.Pointer[[]KV]
}

// EmptyMap returns the empty linked map.
func EmptyMap() *LinkedMap { return &LinkedMap{} }

// NewMap builds a single-table linked map from a plain Go map.
func NewMap(m map[string]Value) *LinkedMap {
	if len(m) == 0 {
		return EmptyMap()
	}
	table := make(map[string]Value, len(m))
	for k, v := range m {
		table[k] = v
	}
	return &LinkedMap{table: table}
}

// Update returns a new linked map with k bound to v, shadowing any prior
// binding for k in this map, in O(1).
func (lm *LinkedMap) Update(k string, v Value) *LinkedMap {
	return &LinkedMap{table: map[string]Value{k: v}, next: lm}
}

// UpdateMap returns a new linked map whose top layer is overlay, shadowing lm.
func (lm *LinkedMap) UpdateMap(overlay map[string]Value) *LinkedMap {
	if len(overlay) == 0 {
		return lm
	}
	table := make(map[string]Value, len(overlay))
	for k, v := range overlay {
		table[k] = v
	}
	return &LinkedMap{table: table, next: lm}
}

// UpdateLinked returns a new linked map whose top layer is another linked
// map (content), shadowing lm; this is shape (d) of §4.1.
func (lm *LinkedMap) UpdateLinked(content *LinkedMap) *LinkedMap {
	return &LinkedMap{content: content, next: lm}
}

// Find returns the topmost (most recently shadowed) binding for k, if any.
func (lm *LinkedMap) Find(k string) (Value, bool) {
	for cur := lm; cur != nil; cur = cur.next {
		if cur.table != nil {
			if v, ok := cur.table[k]; ok {
				return v, true
			}
		} else if cur.content != nil {
			if v, ok := cur.content.Find(k); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// TopLayerContains reports whether k is bound in this layer specifically
// (not in any shadowed base), used by Configuration.VariableFixed.
func (lm *LinkedMap) TopLayerContains(k string) bool {
	if lm == nil {
		return false
	}
	if lm.table != nil {
		_, ok := lm.table[k]
		return ok
	}
	if lm.content != nil {
		return lm.content.Contains(k)
	}
	return false
}

// Contains reports whether k is bound.
func (lm *LinkedMap) Contains(k string) bool {
	_, ok := lm.Find(k)
	return ok
}

// At returns the binding for k, or an out-of-range error if absent. This
// is the only accessor that signals failure; every other accessor returns
// an optional (ok bool).
func (lm *LinkedMap) At(k string) (Value, error) {
	if v, ok := lm.Find(k); ok {
		return v, nil
	}
	return nil, fmt.Errorf("linked map: key %q out of range", k)
}

// Empty reports whether both this layer and next contribute no bindings.
func (lm *LinkedMap) Empty() bool {
	return lm.Size() == 0
}

// Size is the number of distinct keys bound, after shadowing.
func (lm *LinkedMap) Size() int {
	return len(lm.Items())
}

func (lm *LinkedMap) ownItems() []KV {
	switch {
	case lm.table != nil:
		out := make([]KV, 0, len(lm.table))
		for k, v := range lm.table {
			out = append(out, KV{k, v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out
	case lm.content != nil:
		return lm.content.Items()
	default:
		return nil
	}
}

// Items materializes the lazily-computed, key-sorted, shadow-resolved
// vector of bindings. The computation is memoized under a set-once
// discipline: racers may both compute it, but only one published result
// is visible afterward.
func (lm *LinkedMap) Items() []KV {
	if lm == nil {
		return nil
	}
	if cached := lm.itemsCache.Load(); cached != nil {
		return *cached
	}
	own := lm.ownItems()
	var base []KV
	if lm.next != nil {
		base = lm.next.Items()
	}
	merged := mergeShadowed(own, base)
	lm.itemsCache.CompareAndSwap(nil, &merged)
	return *lm.itemsCache.Load()
}

// mergeShadowed walks two key-sorted sequences in lockstep; top shadows
// base on matching keys.
func mergeShadowed(top, base []KV) []KV {
	result := make([]KV, 0, len(top)+len(base))
	i, j := 0, 0
	for i < len(top) && j < len(base) {
		switch {
		case top[i].Key == base[j].Key:
			result = append(result, top[i])
			i++
			j++
		case top[i].Key < base[j].Key:
			result = append(result, top[i])
			i++
		default:
			result = append(result, base[j])
			j++
		}
	}
	result = append(result, top[i:]...)
	result = append(result, base[j:]...)
	return result
}

// Keys returns the sorted, shadow-resolved key list.
func (lm *LinkedMap) Keys() []string {
	items := lm.Items()
	out := make([]string, len(items))
	for i, kv := range items {
		out[i] = kv.Key
	}
	return out
}

// Values returns values in key-sorted order.
func (lm *LinkedMap) Values() []Value {
	items := lm.Items()
	out := make([]Value, len(items))
	for i, kv := range items {
		out[i] = kv.Value
	}
	return out
}

// Equal reports whether lm and other have identical materialized items;
// empty maps compare equal regardless of construction history.
func (lm *LinkedMap) Equal(other *LinkedMap) bool {
	a, b := lm.Items(), other.Items()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

// FindConflictingDuplicate walks lm's and other's sorted items in
// lockstep and returns the first key present in both with unequal
// (structural) values. Matching-valued duplicates are not conflicts.
func (lm *LinkedMap) FindConflictingDuplicate(other *LinkedMap) (string, bool) {
	a, b := lm.Items(), other.Items()
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Key == b[j].Key:
			if !a[i].Value.Equal(b[j].Value) {
				return a[i].Key, true
			}
			i++
			j++
		case a[i].Key < b[j].Key:
			i++
		default:
			j++
		}
	}
	return "", false
}

// ToMap returns a plain Go map snapshot of the shadow-resolved bindings.
func (lm *LinkedMap) ToMap() map[string]Value {
	items := lm.Items()
	out := make(map[string]Value, len(items))
	for _, kv := range items {
		out[kv.Key] = kv.Value
	}
	return out
}
