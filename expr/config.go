package expr

import (
	"fmt"
	"strings"
)

// Configuration is a thin wrapper over a map-valued expression (§3.3 /
// §4.4): operator[] returns none for missing keys, Update produces a new
// Configuration whose map shadows the old one, and Prune restricts to a
// given variable set, filling absent keys with none.
type Configuration struct {
	vars *MapValue
}

// NewConfiguration wraps a map value as a configuration.
func NewConfiguration(vars *MapValue) *Configuration {
	if vars == nil {
		vars = &MapValue{Map: EmptyMap()}
	}
	return &Configuration{vars: vars}
}

// EmptyConfiguration is the configuration binding no variables.
func EmptyConfiguration() *Configuration {
	return NewConfiguration(&MapValue{Map: EmptyMap()})
}

// Get is Configuration's operator[]: returns the bound value, or None for
// a missing key.
func (c *Configuration) Get(key string) Value {
	if v, ok := c.vars.Find(key); ok {
		return v
	}
	return None()
}

// Lookup is Get plus a presence flag.
func (c *Configuration) Lookup(key string) (Value, bool) {
	return c.vars.Find(key)
}

// Update returns a new Configuration whose map shadows this one with a
// single additional binding.
func (c *Configuration) Update(key string, value Value) *Configuration {
	return &Configuration{vars: &MapValue{Map: c.vars.Map.Update(key, value)}}
}

// UpdateOverlay returns a new Configuration shadowed by every binding in
// overlay (applied as a single new top layer).
func (c *Configuration) UpdateOverlay(overlay map[string]Value) *Configuration {
	if len(overlay) == 0 {
		return c
	}
	return &Configuration{vars: &MapValue{Map: c.vars.Map.UpdateMap(overlay)}}
}

// Prune returns a Configuration restricted to the given key set; keys
// absent from the current configuration are filled with None.
func (c *Configuration) Prune(keys []string) *Configuration {
	table := make(map[string]Value, len(keys))
	for _, k := range keys {
		table[k] = c.Get(k)
	}
	return &Configuration{vars: &MapValue{Map: NewMap(table)}}
}

// VariableFixed reports whether k is bound in the topmost map layer
// specifically (i.e. was fixed by the most recent Update/UpdateOverlay),
// as opposed to being inherited from a shadowed base.
func (c *Configuration) VariableFixed(k string) bool {
	return c.vars.Map.TopLayerContains(k)
}

// Vars returns the underlying map value.
func (c *Configuration) Vars() *MapValue { return c.vars }

// Hash returns the configuration's content hash, used as part of the
// configured-target memoization key (§3.6).
func (c *Configuration) Hash() string { return c.vars.ToIdentifier() }

// Enumerate pretty-prints the configuration's bindings for error
// messages, one per line prefixed by prefix, each value truncated to fit
// width. Used by the evaluator to attach environment snapshots to
// traceback frames (§4.4).
func (c *Configuration) Enumerate(prefix string, width int) string {
	items := c.vars.Map.Items()
	if len(items) == 0 {
		return prefix + "(empty)"
	}
	var b strings.Builder
	for i, kv := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s%s = %s", prefix, kv.Key, kv.Value.ToAbbrevString(width))
	}
	return b.String()
}
