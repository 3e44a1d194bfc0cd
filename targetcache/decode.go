package targetcache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

// decodeValueTree reconstructs an expression value from its SerializeAll
// JSON rendering. expr.FromJSON only ever yields the six JSON-native
// variants (§3.5's closed sum type excludes names, results and nodes
// from cacheable content); this adds the one variant a cache entry can
// still carry that FromJSON cannot: known and tree artifacts, recognized
// by their {"type":"ARTIFACT",...} tag before falling through to a plain
// map.
func decodeValueTree(data json.RawMessage) (expr.Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return expr.None(), nil
	}
	switch trimmed[0] {
	case '{':
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(trimmed, &probe); err == nil && probe.Type == "ARTIFACT" {
			return decodeArtifact(trimmed)
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		out := make(map[string]expr.Value, len(raw))
		for k, v := range raw {
			val, err := decodeValueTree(v)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return expr.MapFromGo(out), nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		items := make([]expr.Value, len(raw))
		for i, v := range raw {
			val, err := decodeValueTree(v)
			if err != nil {
				return nil, err
			}
			items[i] = val
		}
		return expr.ListFrom(items), nil
	default:
		v, ok := expr.FromJSON(trimmed)
		if !ok {
			return nil, fmt.Errorf("cannot decode cache value: %s", trimmed)
		}
		return v, nil
	}
}

type artifactWire struct {
	Shape      string `json:"shape"`
	Digest     string `json:"digest,omitempty"`
	ObjectType string `json:"object_type,omitempty"`
	TreeID     string `json:"tree_id,omitempty"`
}

// decodeArtifact rejects local and action shapes: §4.13 entries only
// ever carry known or tree artifacts, every other shape having been
// resolved away before the result became cacheable.
func decodeArtifact(data json.RawMessage) (expr.Value, error) {
	var w artifactWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch expr.ArtifactShape(w.Shape) {
	case expr.ArtifactKnown:
		d, err := exhash.FromHex(w.Digest)
		if err != nil {
			return nil, fmt.Errorf("artifact digest: %w", err)
		}
		return expr.NewKnownArtifact(d, expr.ObjectType(w.ObjectType)), nil
	case expr.ArtifactTree:
		d, err := exhash.FromHex(w.TreeID)
		if err != nil {
			return nil, fmt.Errorf("artifact tree id: %w", err)
		}
		return expr.NewTreeArtifact(d), nil
	default:
		return nil, fmt.Errorf("cache entry contains non-cacheable artifact shape %q", w.Shape)
	}
}
