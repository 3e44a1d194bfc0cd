package expr

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// internCache is a process-wide LRU of strings and small integers,
// backing InternString and InternNumber. No other code in this module
// calls those two helpers.
var internCache *lru.Cache[string, Value]

func init() {
	c, err := lru.New[string, Value](4096)
	if err != nil {
		panic(err)
	}
	internCache = c
}

// InternString returns a shared StringValue for s, constructing and
// caching one on first use. Values are immutable, so sharing is safe.
func InternString(s string) Value {
	key := "s:" + s
	if v, ok := internCache.Get(key); ok {
		return v
	}
	v := String(s)
	internCache.Add(key, v)
	return v
}

// InternNumber returns a shared NumberValue for small integral values
// (the loop-index / array-length common case); values outside the cached
// range are constructed fresh without caching.
func InternNumber(n float64) Value {
	if n < -256 || n > 4096 || n != float64(int64(n)) {
		return Number(n)
	}
	key := "n:" + Number(n).ToString()
	if v, ok := internCache.Get(key); ok {
		return v
	}
	v := Number(n)
	internCache.Add(key, v)
	return v
}
