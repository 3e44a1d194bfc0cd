package expr

import (
	"bytes"

	"github.com/evalgo/eve-build/expr/exhash"
)

// NodeShape distinguishes a value node (wraps a result) from an abstract
// node (an uninstantiated rule application, to be resolved during
// anonymous-target instantiation).
type NodeShape string

const (
	ShapeValueNode    NodeShape = "value"
	ShapeAbstractNode NodeShape = "abstract"
)

// NodeValue is a node: either a value node wrapping a Result, or an
// abstract node naming a rule plus its string/target fields.
type NodeValue struct {
	memo
	Shape NodeShape

	// Value-node payload.
	Result *ResultValue

	// Abstract-node payload.
	NodeType     string
	StringFields *MapValue
	TargetFields *MapValue
}

func NewValueNode(result *ResultValue) Value {
	return &NodeValue{Shape: ShapeValueNode, Result: result}
}

func NewAbstractNode(nodeType string, stringFields, targetFields *MapValue) Value {
	if stringFields == nil {
		stringFields = &MapValue{Map: EmptyMap()}
	}
	if targetFields == nil {
		targetFields = &MapValue{Map: EmptyMap()}
	}
	return &NodeValue{Shape: ShapeAbstractNode, NodeType: nodeType, StringFields: stringFields, TargetFields: targetFields}
}

func (n *NodeValue) Kind() Kind         { return KindNode }
func (n *NodeValue) TypeString() string { return "node" }
func (n *NodeValue) Equal(o Value) bool { return equalByHash(n, o) }

// IsCacheable: a value node is cacheable iff its result is; an abstract
// node is cacheable iff its target_fields are (§3.1).
func (n *NodeValue) IsCacheable() bool {
	return n.getCacheable(func() bool {
		if n.Shape == ShapeValueNode {
			return n.Result.IsCacheable()
		}
		return n.TargetFields.IsCacheable()
	})
}

func (n *NodeValue) ToJSON(mode JSONMode) ([]byte, error) {
	if mode == NullForNonJSON {
		return []byte("null"), nil
	}
	if mode == SerializeAllButNodes {
		return []byte(`{"type":"NODE","id":"` + n.ToIdentifier() + `"}`), nil
	}
	if n.Shape == ShapeValueNode {
		resultJSON, err := n.Result.ToJSON(mode)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.WriteString(`{"type":"NODE","shape":"value","result":`)
		buf.Write(resultJSON)
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	sf, err := n.StringFields.ToJSON(mode)
	if err != nil {
		return nil, err
	}
	tf, err := n.TargetFields.ToJSON(mode)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":"NODE","shape":"abstract","node_type":"`)
	buf.WriteString(n.NodeType)
	buf.WriteString(`","string_fields":`)
	buf.Write(sf)
	buf.WriteString(`,"target_fields":`)
	buf.Write(tf)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToHash always uses the non-node-expanding canonical form for its
// result payload, the same way a node embeds into a result's provides
// map without causing unbounded expansion.
func (n *NodeValue) ToHash() exhash.Digest {
	return n.getHash(func() exhash.Digest {
		var data []byte
		if n.Shape == ShapeValueNode {
			rdata, err := n.Result.ToJSON(SerializeAllButNodes)
			if err != nil {
				rdata = []byte("null")
			}
			data = append([]byte(`{"type":"NODE","shape":"value","result":`), rdata...)
			data = append(data, '}')
		} else {
			data, _ = n.ToJSON(SerializeAllButNodes)
		}
		return hashNodeJSON(data)
	})
}
func (n *NodeValue) ToIdentifier() string { return n.ToHash().String() }

func (n *NodeValue) ToString() string {
	data, _ := n.ToJSON(SerializeAll)
	return string(data)
}
func (n *NodeValue) ToAbbrevString(limit int) string { return toAbbrev(n.ToString(), limit) }
