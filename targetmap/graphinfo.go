package targetmap

// SourceKind sentinels the leaf reference kinds a target's declared
// fields may resolve to when they name a source rather than another
// target (§4.9).
type SourceKind string

const (
	SourceFile    SourceKind = "file"
	SourceTree    SourceKind = "tree"
	SourceGlob    SourceKind = "glob"
	SourceSymlink SourceKind = "symlink"
)

// GraphInfo is the per-target record (C9) holding the configured-target
// identity plus the three lists of configured-target children the
// analyzer discovers while resolving a target's declared, implicit and
// anonymous fields.
type GraphInfo struct {
	Self ConfiguredTargetKey

	Declared  []ConfiguredTargetKey
	Implicit  []ConfiguredTargetKey
	Anonymous []ConfiguredTargetKey

	// Sources records the leaf kind of the implicit children a tree or
	// glob reference expands to (SourceFile for tree entries, SourceGlob
	// for glob matches). A declared or implicit dependency that names a
	// source file directly is not recorded here.
	Sources map[ConfiguredTargetKey]SourceKind
}

// NewGraphInfo constructs an empty record rooted at self.
func NewGraphInfo(self ConfiguredTargetKey) *GraphInfo {
	return &GraphInfo{Self: self, Sources: map[ConfiguredTargetKey]SourceKind{}}
}

// AddDeclared records a declared-field child dependency.
func (g *GraphInfo) AddDeclared(key ConfiguredTargetKey) { g.Declared = append(g.Declared, key) }

// AddImplicit records an implicit-field child dependency.
func (g *GraphInfo) AddImplicit(key ConfiguredTargetKey) { g.Implicit = append(g.Implicit, key) }

// AddAnonymous records an anonymous-target child dependency.
func (g *GraphInfo) AddAnonymous(key ConfiguredTargetKey) { g.Anonymous = append(g.Anonymous, key) }

// MarkSource tags key as resolving to a source leaf of the given kind,
// rather than to another analyzable target.
func (g *GraphInfo) MarkSource(key ConfiguredTargetKey, kind SourceKind) {
	g.Sources[key] = kind
}

// AllChildren returns every child key across the three lists, in
// declared/implicit/anonymous order, for callers that only need full
// traversal. The analyzer itself does not call it.
func (g *GraphInfo) AllChildren() []ConfiguredTargetKey {
	out := make([]ConfiguredTargetKey, 0, len(g.Declared)+len(g.Implicit)+len(g.Anonymous))
	out = append(out, g.Declared...)
	out = append(out, g.Implicit...)
	out = append(out, g.Anonymous...)
	return out
}
