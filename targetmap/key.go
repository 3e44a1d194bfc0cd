// Package targetmap implements the target analyzer (C12) and the
// supporting per-target records (C9, C10) that make up its memoization
// domain.
package targetmap

import "github.com/evalgo/eve-build/expr"

// TargetName is a {repository, module, name} triple naming a target
// definition, independent of any configuration it might be analyzed
// under.
type TargetName struct {
	Repository string
	Module     string
	Name       string
	// Kind is the reference kind this name was resolved under (file, tree,
	// glob, symlink, anonymous or target). The zero value is treated as
	// expr.RefTarget, the common case of naming another analyzable target.
	Kind expr.ReferenceKind
}

func (t TargetName) String() string {
	return t.Repository + "@" + t.Module + ":" + t.Name
}

// EffectiveKind returns Kind, defaulting to expr.RefTarget.
func (t TargetName) EffectiveKind() expr.ReferenceKind {
	if t.Kind == "" {
		return expr.RefTarget
	}
	return t.Kind
}

// ConfiguredTargetKey is {target name, configuration} (§3.6), the
// memoization key the async consumer map (C11) indexes its in-flight and
// completed analyses by. Two configured targets are equal iff their
// names are equal and their configurations hash-equal.
type ConfiguredTargetKey struct {
	Target TargetName
	Config *expr.Configuration
}

// String renders a stable, human-readable form suitable as a map key or
// log field: the configuration's hash stands in for its full content.
func (k ConfiguredTargetKey) String() string {
	return k.Target.String() + "#" + k.Config.Hash()
}

// Equal reports whether k and other name the same target under
// hash-equal configurations.
func (k ConfiguredTargetKey) Equal(other ConfiguredTargetKey) bool {
	return k.Target == other.Target && k.Config.Hash() == other.Config.Hash()
}
