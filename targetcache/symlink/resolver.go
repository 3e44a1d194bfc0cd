// Package symlink implements the symlink resolver (C14): given an
// artifact stage and a resolution policy, it produces the stage with
// every traversable symlink replaced by the artifact it ultimately
// targets, and the content-address of the result.
package symlink

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

// Policy selects how the resolver treats a symlink whose target escapes
// the stage: absolute, or relative with a leading ".." segment.
type Policy string

const (
	// PolicyIgnore leaves the stage untouched; no symlink is followed.
	PolicyIgnore Policy = "ignore"
	// PolicyPartial follows every traversable symlink but stops, leaving
	// the symlink entry as-is, the moment one escapes the stage.
	PolicyPartial Policy = "resolve-partially"
	// PolicyComplete follows every symlink and fails if any escapes.
	PolicyComplete Policy = "resolve-completely"
)

// ContentReader resolves a known symlink artifact to the literal target
// text it was written with. Injected rather than read directly from
// local CAS, mirroring the way targetcache.Downloader keeps the store
// from touching the filesystem itself.
type ContentReader interface {
	ReadSymlink(artifact *expr.ArtifactValue) (string, error)
}

// Stage is a path→artifact map, the shape a target result's
// artifact_stage (and runfiles) carries.
type Stage map[string]*expr.ArtifactValue

// TreeID is the content-address of a stage.
type TreeID = exhash.Digest

// ResolveStage applies policy to stage, returning the resolved stage and
// its tree id. PolicyIgnore returns stage unchanged.
func ResolveStage(stage Stage, policy Policy, reader ContentReader) (Stage, TreeID, error) {
	if policy == PolicyIgnore {
		id, err := hashStage(stage)
		return stage, id, err
	}
	r := &resolution{stage: stage, reader: reader, policy: policy, resolved: map[string]*expr.ArtifactValue{}}
	out := make(Stage, len(stage))
	for p, a := range stage {
		v, err := r.resolve(p, a, nil)
		if err != nil {
			return nil, TreeID{}, err
		}
		out[p] = v
	}
	id, err := hashStage(out)
	if err != nil {
		return nil, TreeID{}, err
	}
	return out, id, nil
}

type resolution struct {
	stage    Stage
	reader   ContentReader
	policy   Policy
	resolved map[string]*expr.ArtifactValue
}

// resolve follows p's artifact through its chain of symlink targets,
// tracking paths already seen in the current chain to reject cycles.
func (r *resolution) resolve(p string, a *expr.ArtifactValue, visiting map[string]bool) (*expr.ArtifactValue, error) {
	if a.Shape != expr.ArtifactKnown || a.ObjectType != expr.ObjectSymlink {
		return a, nil
	}
	if v, ok := r.resolved[p]; ok {
		return v, nil
	}
	if visiting == nil {
		visiting = map[string]bool{}
	}
	if visiting[p] {
		return nil, fmt.Errorf("symlink resolution: cycle through %q", p)
	}
	visiting[p] = true

	target, err := r.reader.ReadSymlink(a)
	if err != nil {
		return nil, fmt.Errorf("reading symlink %q: %w", p, err)
	}

	resolvedPath, escapes := joinRelative(path.Dir(p), target)
	if escapes {
		if r.policy == PolicyComplete {
			return nil, fmt.Errorf("symlink resolution: %q targets %q, which escapes the stage", p, target)
		}
		r.resolved[p] = a
		return a, nil
	}

	next, ok := r.stage[resolvedPath]
	if !ok {
		if r.policy == PolicyComplete {
			return nil, fmt.Errorf("symlink resolution: %q targets %q, which is not in the stage", p, resolvedPath)
		}
		r.resolved[p] = a
		return a, nil
	}

	v, err := r.resolve(resolvedPath, next, visiting)
	if err != nil {
		return nil, err
	}
	r.resolved[p] = v
	return v, nil
}

// joinRelative resolves target against a symlink's containing
// directory, reporting whether the result is absolute or climbs above
// the stage root.
func joinRelative(dir, target string) (string, bool) {
	if strings.HasPrefix(target, "/") {
		return "", true
	}
	joined := path.Join(dir, target)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", true
	}
	return joined, false
}

// hashStage computes the content-address of a resolved stage: the hash
// of its path-sorted canonical JSON rendering.
func hashStage(stage Stage) (TreeID, error) {
	paths := make([]string, 0, len(stage))
	for p := range stage {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	entries := make(map[string]json.RawMessage, len(stage))
	for _, p := range paths {
		data, err := stage[p].ToJSON(expr.SerializeAll)
		if err != nil {
			return TreeID{}, fmt.Errorf("hashing stage: %w", err)
		}
		entries[p] = data
	}
	data, err := json.Marshal(struct {
		Paths   []string                   `json:"paths"`
		Entries map[string]json.RawMessage `json:"entries"`
	}{Paths: paths, Entries: entries})
	if err != nil {
		return TreeID{}, fmt.Errorf("hashing stage: %w", err)
	}
	return exhash.Compute(data), nil
}
