package expr

import (
	"encoding/json"

	"github.com/evalgo/eve-build/expr/exhash"
)

// ReferenceKind is the kind of entity a Name refers to.
type ReferenceKind string

const (
	RefTarget  ReferenceKind = "target"
	RefFile    ReferenceKind = "file"
	RefTree    ReferenceKind = "tree"
	RefSymlink ReferenceKind = "symlink"
	RefGlob    ReferenceKind = "glob"
)

// NameValue is an entity reference: a {repository, module, name} triple
// plus the kind of thing it refers to. Names carry identity but no
// content, so they are never cacheable.
type NameValue struct {
	memo
	Repository string        `json:"repository"`
	Module     string        `json:"module"`
	Name       string        `json:"name"`
	Kind_      ReferenceKind `json:"reference_kind"`
}

func NewName(repository, module, name string, kind ReferenceKind) Value {
	return &NameValue{Repository: repository, Module: module, Name: name, Kind_: kind}
}

func (n *NameValue) Kind() Kind           { return KindName }
func (n *NameValue) TypeString() string   { return "name" }
func (n *NameValue) IsCacheable() bool    { return false }
func (n *NameValue) Equal(o Value) bool   { return equalByHash(n, o) }
func (n *NameValue) ReferenceKind() ReferenceKind { return n.Kind_ }

func (n *NameValue) canonicalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string `json:"type"`
		Repository string `json:"repository"`
		Module     string `json:"module"`
		Name       string `json:"name"`
		Kind       string `json:"reference_kind"`
	}{"NAME", n.Repository, n.Module, n.Name, string(n.Kind_)})
}

func (n *NameValue) ToHash() exhash.Digest {
	return n.getHash(func() exhash.Digest {
		data, _ := n.canonicalJSON()
		return hashNameJSON(data)
	})
}
func (n *NameValue) ToIdentifier() string { return n.ToHash().String() }

func (n *NameValue) ToJSON(mode JSONMode) ([]byte, error) {
	if mode == NullForNonJSON {
		return []byte("null"), nil
	}
	return n.canonicalJSON()
}

func (n *NameValue) ToString() string {
	data, _ := n.ToJSON(SerializeAll)
	return string(data)
}
func (n *NameValue) ToAbbrevString(limit int) string { return toAbbrev(n.ToString(), limit) }
