package expr

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/evalgo/eve-build/expr/exhash"
)

// MapValue is the string-keyed, finite-mapping variant, implemented by
// the persistent LinkedMap so updates are O(1) and iteration order is
// always key-sorted.
type MapValue struct {
	memo
	Map *LinkedMap
}

func Map(m *LinkedMap) Value {
	if m == nil {
		m = EmptyMap()
	}
	return &MapValue{Map: m}
}

// MapFromGo builds a MapValue from a plain Go map in one shot.
func MapFromGo(m map[string]Value) Value {
	return &MapValue{Map: NewMap(m)}
}

func (m *MapValue) Kind() Kind         { return KindMap }
func (m *MapValue) TypeString() string { return "map" }
func (m *MapValue) Equal(o Value) bool { return equalByHash(m, o) }

func (m *MapValue) IsCacheable() bool {
	return m.getCacheable(func() bool {
		for _, kv := range m.Map.Items() {
			if !kv.Value.IsCacheable() {
				return false
			}
		}
		return true
	})
}

// ToHash feeds "{" then, for each key in sorted order, hash(key) followed
// by hash(value) into a fresh hasher. Keys are already sorted by Items().
func (m *MapValue) ToHash() exhash.Digest {
	return m.getHash(func() exhash.Digest {
		h := exhash.NewHasher()
		h.Update([]byte{discriminatorMapTag})
		for _, kv := range m.Map.Items() {
			kd := exhash.Compute([]byte(kv.Key))
			h.Update(kd[:])
			vd := kv.Value.ToHash()
			h.Update(vd[:])
		}
		return h.Finalize()
	})
}
func (m *MapValue) ToIdentifier() string { return m.ToHash().String() }

func (m *MapValue) ToJSON(mode JSONMode) ([]byte, error) {
	items := m.Map.Items()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		kdata, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kdata)
		buf.WriteByte(':')
		vdata, err := kv.Value.ToJSON(mode)
		if err != nil {
			return nil, err
		}
		buf.Write(vdata)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *MapValue) ToString() string {
	data, _ := m.ToJSON(SerializeAll)
	return string(data)
}

func (m *MapValue) ToAbbrevString(limit int) string { return toAbbrev(m.ToString(), limit) }

// Find is a thin convenience delegating to the underlying linked map.
func (m *MapValue) Find(key string) (Value, bool) { return m.Map.Find(key) }

// Keys returns the sorted key list.
func (m *MapValue) Keys() []string { return m.Map.Keys() }

// sortedKeysOf returns the keys of a plain Go map (not a LinkedMap) in
// sorted order. No code in this package calls it.
func sortedKeysOf(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
