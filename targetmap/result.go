package targetmap

import (
	"encoding/json"
	"fmt"

	"github.com/evalgo/eve-build/expr"
)

// SerializedResult is the deduplicating wire form of a target result
// (§4.10): every structurally distinct artifact/result/node
// sub-expression is written once into Nodes, keyed by its expression
// identifier; Root names the entry for the result itself. The three
// membership sets let a reader distinguish what kind of entry an id
// refers to, since plain JSON cannot otherwise tell an artifact id from
// a result id from a node id.
type SerializedResult struct {
	Root             string                     `json:"root"`
	Nodes            map[string]json.RawMessage `json:"nodes"`
	ProvidedArtifacts map[string]bool           `json:"provided_artifacts"`
	ProvidedResults   map[string]bool           `json:"provided_results"`
	ProvidedNodes     map[string]bool           `json:"provided_nodes"`
}

// ArtifactDescription derives the lookup key used by the optional
// known-artifact replacement pass: every shape but "known" carries
// enough identifying fields to describe where its content will come
// from once known.
func ArtifactDescription(a *expr.ArtifactValue) string {
	switch a.Shape {
	case expr.ArtifactLocal:
		return "local:" + a.Repository + ":" + a.Path
	case expr.ArtifactAction:
		return "action:" + a.ActionID + ":" + a.PathInAction
	case expr.ArtifactTree:
		return "tree:" + a.TreeID.String()
	default:
		return "known:" + a.ToIdentifier()
	}
}

type resultSerializer struct {
	nodes    map[string]json.RawMessage
	artifacts map[string]bool
	results   map[string]bool
	nodeKinds map[string]bool
	known     map[string]expr.Value
}

// SerializeResult walks result's three maps, producing the deduplicated
// wire form. When known is non-nil, every non-known artifact encountered
// is replaced by looking up ArtifactDescription(a) in known; a missing
// entry is a fatal error (§4.10 "missing entries are fatal").
func SerializeResult(result *expr.ResultValue, known map[string]expr.Value) (*SerializedResult, error) {
	s := &resultSerializer{
		nodes:     map[string]json.RawMessage{},
		artifacts: map[string]bool{},
		results:   map[string]bool{},
		nodeKinds: map[string]bool{},
		known:     known,
	}
	ref, err := s.visitResult(result)
	if err != nil {
		return nil, err
	}
	var idHolder struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ref, &idHolder); err != nil {
		return nil, fmt.Errorf("serialize result: %w", err)
	}
	return &SerializedResult{
		Root:              idHolder.ID,
		Nodes:             s.nodes,
		ProvidedArtifacts: s.artifacts,
		ProvidedResults:   s.results,
		ProvidedNodes:     s.nodeKinds,
	}, nil
}

func reference(kind, id string) json.RawMessage {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{kind, id})
	return data
}

func (s *resultSerializer) visitValue(v expr.Value) (json.RawMessage, error) {
	switch t := v.(type) {
	case *expr.ListValue:
		parts := make([]json.RawMessage, len(t.Items))
		for i, item := range t.Items {
			p, err := s.visitValue(item)
			if err != nil {
				return nil, err
			}
			parts[i] = p
		}
		return json.Marshal(parts)
	case *expr.MapValue:
		out := map[string]json.RawMessage{}
		for _, kv := range t.Map.Items() {
			p, err := s.visitValue(kv.Value)
			if err != nil {
				return nil, err
			}
			out[kv.Key] = p
		}
		return json.Marshal(out)
	case *expr.ArtifactValue:
		return s.visitArtifact(t)
	case *expr.ResultValue:
		return s.visitResult(t)
	case *expr.NodeValue:
		return s.visitNode(t)
	default:
		return v.ToJSON(expr.SerializeAll)
	}
}

func (s *resultSerializer) visitArtifact(a *expr.ArtifactValue) (json.RawMessage, error) {
	resolved := a
	if s.known != nil && a.Shape != expr.ArtifactKnown {
		desc := ArtifactDescription(a)
		v, ok := s.known[desc]
		if !ok {
			return nil, fmt.Errorf("serialize result: no known artifact for %q", desc)
		}
		known, ok := v.(*expr.ArtifactValue)
		if !ok {
			return nil, fmt.Errorf("serialize result: known-artifact replacement for %q is not an artifact", desc)
		}
		resolved = known
	}
	id := resolved.ToIdentifier()
	if _, ok := s.nodes[id]; !ok {
		data, err := resolved.ToJSON(expr.SerializeAll)
		if err != nil {
			return nil, err
		}
		s.nodes[id] = data
		s.artifacts[id] = true
	}
	return reference("ARTIFACT", id), nil
}

func (s *resultSerializer) visitResult(r *expr.ResultValue) (json.RawMessage, error) {
	id := r.ToIdentifier()
	if _, ok := s.nodes[id]; !ok {
		// Reserve the slot before recursing so a result that (indirectly,
		// via a node) refers back to itself terminates instead of looping.
		s.nodes[id] = reference("RESULT", id)
		s.results[id] = true
		stage, err := s.visitValue(r.ArtifactStage)
		if err != nil {
			return nil, err
		}
		runfiles, err := s.visitValue(r.Runfiles)
		if err != nil {
			return nil, err
		}
		provides, err := s.visitValue(r.Provides)
		if err != nil {
			return nil, err
		}
		entry := map[string]json.RawMessage{
			"type":      json.RawMessage(`"RESULT"`),
			"artifacts": stage,
			"runfiles":  runfiles,
			"provides":  provides,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		s.nodes[id] = data
	}
	return reference("RESULT", id), nil
}

func (s *resultSerializer) visitNode(n *expr.NodeValue) (json.RawMessage, error) {
	id := n.ToIdentifier()
	if _, ok := s.nodes[id]; !ok {
		s.nodes[id] = reference("NODE", id)
		s.nodeKinds[id] = true
		if n.Shape == expr.ShapeValueNode {
			resultRef, err := s.visitResult(n.Result)
			if err != nil {
				return nil, err
			}
			entry := map[string]json.RawMessage{
				"type":   json.RawMessage(`"NODE"`),
				"shape":  json.RawMessage(`"value"`),
				"result": resultRef,
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return nil, err
			}
			s.nodes[id] = data
		} else {
			stringFields, err := s.visitValue(n.StringFields)
			if err != nil {
				return nil, err
			}
			targetFields, err := s.visitValue(n.TargetFields)
			if err != nil {
				return nil, err
			}
			entry := map[string]json.RawMessage{
				"type":          json.RawMessage(`"NODE"`),
				"shape":         json.RawMessage(`"abstract"`),
				"node_type":     mustMarshalString(n.NodeType),
				"string_fields": stringFields,
				"target_fields": targetFields,
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return nil, err
			}
			s.nodes[id] = data
		}
	}
	return reference("NODE", id), nil
}

func mustMarshalString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
