package targetmap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

// DeserializeResult inverts SerializeResult: given the deduplicated wire
// form, it walks the nodes table starting from Root and reconstructs the
// original artifact/result/node tree, resolving each shared
// sub-expression once. Only known and tree artifacts decode: a local or
// action artifact, which SerializeResult writes when called without a
// known-artifact map, makes DeserializeResult return an error.
func DeserializeResult(sr *SerializedResult) (*expr.ResultValue, error) {
	d := &resultDeserializer{sr: sr, done: map[string]expr.Value{}, visiting: map[string]bool{}}
	v, err := d.resolve(sr.Root)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*expr.ResultValue)
	if !ok {
		return nil, fmt.Errorf("deserialize result: root %q is not a result", sr.Root)
	}
	return r, nil
}

type resultDeserializer struct {
	sr       *SerializedResult
	done     map[string]expr.Value
	visiting map[string]bool
}

// resolve decodes the nodes-table entry named id, memoizing so a
// sub-expression referenced from multiple places decodes once.
func (d *resultDeserializer) resolve(id string) (expr.Value, error) {
	if v, ok := d.done[id]; ok {
		return v, nil
	}
	if d.visiting[id] {
		return nil, fmt.Errorf("deserialize result: cycle through node %q", id)
	}
	raw, ok := d.sr.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("deserialize result: unknown node id %q", id)
	}
	d.visiting[id] = true
	defer delete(d.visiting, id)

	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("deserialize result: decoding node %q: %w", id, err)
	}

	var v expr.Value
	var err error
	switch tag.Type {
	case "ARTIFACT":
		v, err = d.decodeArtifact(raw)
	case "RESULT":
		v, err = d.decodeResultNode(raw)
	case "NODE":
		v, err = d.decodeNode(raw)
	default:
		return nil, fmt.Errorf("deserialize result: unknown node type %q for %q", tag.Type, id)
	}
	if err != nil {
		return nil, err
	}
	d.done[id] = v
	return v, nil
}

// decodeRef decodes a value that is either a {type,id} reference into the
// shared nodes table, or a JSON-native literal (map/list/scalar).
func (d *resultDeserializer) decodeRef(raw json.RawMessage) (expr.Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return expr.None(), nil
	}
	if trimmed[0] == '{' {
		var probe struct {
			Type string  `json:"type"`
			ID   *string `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &probe); err == nil && probe.ID != nil &&
			(probe.Type == "ARTIFACT" || probe.Type == "RESULT" || probe.Type == "NODE") {
			return d.resolve(*probe.ID)
		}
		var raw2 map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw2); err != nil {
			return nil, err
		}
		out := make(map[string]expr.Value, len(raw2))
		for k, v := range raw2 {
			val, err := d.decodeRef(v)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return expr.MapFromGo(out), nil
	}
	if trimmed[0] == '[' {
		var raw2 []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw2); err != nil {
			return nil, err
		}
		items := make([]expr.Value, len(raw2))
		for i, v := range raw2 {
			val, err := d.decodeRef(v)
			if err != nil {
				return nil, err
			}
			items[i] = val
		}
		return expr.ListFrom(items), nil
	}
	v, ok := expr.FromJSON(trimmed)
	if !ok {
		return nil, fmt.Errorf("deserialize result: cannot decode value: %s", trimmed)
	}
	return v, nil
}

func (d *resultDeserializer) decodeArtifact(raw json.RawMessage) (expr.Value, error) {
	var w struct {
		Shape      string `json:"shape"`
		Digest     string `json:"digest,omitempty"`
		ObjectType string `json:"object_type,omitempty"`
		TreeID     string `json:"tree_id,omitempty"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	switch expr.ArtifactShape(w.Shape) {
	case expr.ArtifactKnown:
		digest, err := exhash.FromHex(w.Digest)
		if err != nil {
			return nil, fmt.Errorf("deserialize result: artifact digest: %w", err)
		}
		return expr.NewKnownArtifact(digest, expr.ObjectType(w.ObjectType)), nil
	case expr.ArtifactTree:
		digest, err := exhash.FromHex(w.TreeID)
		if err != nil {
			return nil, fmt.Errorf("deserialize result: artifact tree id: %w", err)
		}
		return expr.NewTreeArtifact(digest), nil
	default:
		return nil, fmt.Errorf("deserialize result: non-cacheable artifact shape %q", w.Shape)
	}
}

func (d *resultDeserializer) decodeResultNode(raw json.RawMessage) (expr.Value, error) {
	var w struct {
		Artifacts json.RawMessage `json:"artifacts"`
		Runfiles  json.RawMessage `json:"runfiles"`
		Provides  json.RawMessage `json:"provides"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	stage, err := d.decodeRef(w.Artifacts)
	if err != nil {
		return nil, err
	}
	runfiles, err := d.decodeRef(w.Runfiles)
	if err != nil {
		return nil, err
	}
	provides, err := d.decodeRef(w.Provides)
	if err != nil {
		return nil, err
	}
	stageMap, ok := stage.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("deserialize result: artifacts must decode to a map")
	}
	runfilesMap, ok := runfiles.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("deserialize result: runfiles must decode to a map")
	}
	providesMap, ok := provides.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("deserialize result: provides must decode to a map")
	}
	return expr.NewResult(stageMap, runfilesMap, providesMap), nil
}

func (d *resultDeserializer) decodeNode(raw json.RawMessage) (expr.Value, error) {
	var w struct {
		Shape        string          `json:"shape"`
		Result       json.RawMessage `json:"result,omitempty"`
		NodeType     string          `json:"node_type,omitempty"`
		StringFields json.RawMessage `json:"string_fields,omitempty"`
		TargetFields json.RawMessage `json:"target_fields,omitempty"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Shape == string(expr.ShapeValueNode) {
		resultVal, err := d.decodeRef(w.Result)
		if err != nil {
			return nil, err
		}
		result, ok := resultVal.(*expr.ResultValue)
		if !ok {
			return nil, fmt.Errorf("deserialize result: value node's result must decode to a result")
		}
		return expr.NewValueNode(result), nil
	}
	sf, err := d.decodeRef(w.StringFields)
	if err != nil {
		return nil, err
	}
	tf, err := d.decodeRef(w.TargetFields)
	if err != nil {
		return nil, err
	}
	sfMap, ok := sf.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("deserialize result: string_fields must decode to a map")
	}
	tfMap, ok := tf.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("deserialize result: target_fields must decode to a map")
	}
	return expr.NewAbstractNode(w.NodeType, sfMap, tfMap), nil
}
