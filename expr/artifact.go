package expr

import (
	"encoding/json"

	"github.com/evalgo/eve-build/expr/exhash"
)

// ArtifactShape distinguishes the four ways an artifact can reference a
// file-system object.
type ArtifactShape string

const (
	ArtifactLocal  ArtifactShape = "local"
	ArtifactKnown  ArtifactShape = "known"
	ArtifactAction ArtifactShape = "action"
	ArtifactTree   ArtifactShape = "tree"
)

// ObjectType is the kind of file-system object a known artifact denotes.
type ObjectType string

const (
	ObjectFile       ObjectType = "file"
	ObjectExecutable ObjectType = "executable"
	ObjectTree       ObjectType = "tree"
	ObjectSymlink    ObjectType = "symlink"
)

// ArtifactValue is a reference to a produced or known file-system object.
// Only the Known and Tree shapes are cacheable.
type ArtifactValue struct {
	memo

	Shape ArtifactShape

	// Local shape.
	Path       string
	Repository string

	// Known shape.
	Digest     exhash.Digest
	ObjectType ObjectType

	// Action shape.
	ActionID     string
	PathInAction string

	// Tree shape.
	TreeID exhash.Digest
}

func NewLocalArtifact(path, repository string) Value {
	return &ArtifactValue{Shape: ArtifactLocal, Path: path, Repository: repository}
}

func NewKnownArtifact(digest exhash.Digest, objectType ObjectType) Value {
	return &ArtifactValue{Shape: ArtifactKnown, Digest: digest, ObjectType: objectType}
}

func NewActionArtifact(actionID, pathInAction string) Value {
	return &ArtifactValue{Shape: ArtifactAction, ActionID: actionID, PathInAction: pathInAction}
}

func NewTreeArtifact(treeID exhash.Digest) Value {
	return &ArtifactValue{Shape: ArtifactTree, TreeID: treeID}
}

func (a *ArtifactValue) Kind() Kind         { return KindArtifact }
func (a *ArtifactValue) TypeString() string { return "artifact" }
func (a *ArtifactValue) Equal(o Value) bool { return equalByHash(a, o) }

func (a *ArtifactValue) IsCacheable() bool {
	switch a.Shape {
	case ArtifactKnown, ArtifactTree:
		return true
	default:
		return false
	}
}

type artifactJSON struct {
	Type         string `json:"type"`
	Shape        string `json:"shape"`
	Path         string `json:"path,omitempty"`
	Repository   string `json:"repository,omitempty"`
	Digest       string `json:"digest,omitempty"`
	ObjectType   string `json:"object_type,omitempty"`
	ActionID     string `json:"action_id,omitempty"`
	PathInAction string `json:"path_in_action,omitempty"`
	TreeID       string `json:"tree_id,omitempty"`
}

func (a *ArtifactValue) canonical() artifactJSON {
	j := artifactJSON{Type: "ARTIFACT", Shape: string(a.Shape)}
	switch a.Shape {
	case ArtifactLocal:
		j.Path = a.Path
		j.Repository = a.Repository
	case ArtifactKnown:
		j.Digest = a.Digest.String()
		j.ObjectType = string(a.ObjectType)
	case ArtifactAction:
		j.ActionID = a.ActionID
		j.PathInAction = a.PathInAction
	case ArtifactTree:
		j.TreeID = a.TreeID.String()
	}
	return j
}

func (a *ArtifactValue) ToHash() exhash.Digest {
	return a.getHash(func() exhash.Digest {
		data, _ := json.Marshal(a.canonical())
		return hashArtifactJSON(data)
	})
}
func (a *ArtifactValue) ToIdentifier() string { return a.ToHash().String() }

func (a *ArtifactValue) ToJSON(mode JSONMode) ([]byte, error) {
	if mode == NullForNonJSON {
		return []byte("null"), nil
	}
	return json.Marshal(a.canonical())
}

func (a *ArtifactValue) ToString() string {
	data, _ := a.ToJSON(SerializeAll)
	return string(data)
}
func (a *ArtifactValue) ToAbbrevString(limit int) string { return toAbbrev(a.ToString(), limit) }
