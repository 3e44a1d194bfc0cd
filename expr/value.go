// Package expr implements the expression value model: a closed sum type
// of ten variants with memoized content hashing and cacheability, plus
// the persistent linked map (C1) that backs the map variant and the
// evaluator's lexical environments.
package expr

import (
	"sync/atomic"

	"github.com/evalgo/eve-build/expr/exhash"
)

// JSONMode selects how non-JSON-native variants (name, artifact, result,
// node) are rendered by ToJSON.
type JSONMode int

const (
	// SerializeAll expands artifacts, results and nodes to full structural JSON.
	SerializeAll JSONMode = iota
	// SerializeAllButNodes renders nodes as {"type":"NODE","id":...} to break
	// cycles when hashing results that embed node values.
	SerializeAllButNodes
	// NullForNonJSON collapses artifacts, results, nodes and names to JSON null.
	NullForNonJSON
)

// Discriminator bytes prefixed onto the canonical JSON before hashing, one
// per non-container variant family. The spec names four bytes for five
// families (scalar/name/artifact/result/node); this implementation keeps
// the four named bytes for scalar/name/artifact/result and assigns node a
// fifth, undocumented-in-spec byte so that a value node's hash can never
// collide with a result's hash even though their JSON shapes are related.
// See DESIGN.md for this decision.
const (
	discriminatorScalar   = '@'
	discriminatorName     = '='
	discriminatorArtifact = '#'
	discriminatorResult   = '$'
	discriminatorNode     = '~'
	discriminatorListTag  = '['
	discriminatorMapTag   = '{'
)

// Value is the common interface every one of the ten closed variants
// implements. Values are immutable once constructed; copying a Value is
// pointer-equivalent.
type Value interface {
	Kind() Kind
	TypeString() string

	// ToHash returns this value's stable content-addressed identifier,
	// computed once and memoized under a set-once discipline.
	ToHash() exhash.Digest
	// ToIdentifier is the hex form of ToHash.
	ToIdentifier() string

	// IsCacheable reports whether this value is transitively free of
	// names and other non-cacheable opaque references.
	IsCacheable() bool

	// ToJSON renders the value as JSON under the given mode.
	ToJSON(mode JSONMode) ([]byte, error)
	// ToString is the compact JSON dump (SerializeAll mode).
	ToString() string
	// ToAbbrevString truncates ToString to at most limit characters,
	// appending an elision marker if truncated.
	ToAbbrevString(limit int) string

	// Equal reports value equality, defined as ToHash equality.
	Equal(other Value) bool
}

// memo holds the set-once memoized hash and cacheability flags shared by
// every concrete variant. Races are resolved by letting every racer
// compute the (deterministic) value and using CompareAndSwap so exactly
// one published result is visible thereafter; no lock guards the read
// path.
type memo struct {
	hash      atomic.Pointer[exhash.Digest]
	cacheable atomic.Int32 // 0 = unknown, 1 = true, 2 = false
}

func (m *memo) getHash(compute func() exhash.Digest) exhash.Digest {
	if p := m.hash.Load(); p != nil {
		return *p
	}
	d := compute()
	m.hash.CompareAndSwap(nil, &d)
	return *m.hash.Load()
}

func (m *memo) getCacheable(compute func() bool) bool {
	if v := m.cacheable.Load(); v != 0 {
		return v == 1
	}
	result := compute()
	published := int32(2)
	if result {
		published = 1
	}
	m.cacheable.CompareAndSwap(0, published)
	return m.cacheable.Load() == 1
}

// equalByHash is the shared Equal implementation: value equality is
// defined purely by ToHash equality, so every variant delegates to this.
func equalByHash(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ToHash() == b.ToHash()
}

func toAbbrev(full string, limit int) string {
	if limit <= 0 || len(full) <= limit {
		return full
	}
	if limit <= 3 {
		return full[:limit]
	}
	return full[:limit-3] + "..."
}

func hashScalarJSON(json []byte) exhash.Digest {
	h := exhash.NewHasher()
	h.Update([]byte{discriminatorScalar})
	h.Update(json)
	return h.Finalize()
}

func hashNameJSON(json []byte) exhash.Digest {
	h := exhash.NewHasher()
	h.Update([]byte{discriminatorName})
	h.Update(json)
	return h.Finalize()
}

func hashArtifactJSON(json []byte) exhash.Digest {
	h := exhash.NewHasher()
	h.Update([]byte{discriminatorArtifact})
	h.Update(json)
	return h.Finalize()
}

func hashResultJSON(json []byte) exhash.Digest {
	h := exhash.NewHasher()
	h.Update([]byte{discriminatorResult})
	h.Update(json)
	return h.Finalize()
}

func hashNodeJSON(json []byte) exhash.Digest {
	h := exhash.NewHasher()
	h.Update([]byte{discriminatorNode})
	h.Update(json)
	return h.Finalize()
}
