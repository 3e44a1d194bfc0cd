package targetmap

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/eval"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/sourceroot"
)

// Action is a constructed action description (§4.12.2 ACTION), recorded
// against the analyzed target that created it.
type Action struct {
	ID                  string
	Inputs              map[string]expr.Value
	Outs                []string
	OutDirs             []string
	Cmd                 []string
	Cwd                 string
	Env                 map[string]string
	MayFail             []string
	NoCache             bool
	TimeoutScaling      float64
	ExecutionProperties map[string]string
}

// Blob is a known-file artifact constructed inline via BLOB(data).
type Blob struct {
	Digest exhash.Digest
	Data   []byte
}

// Tree is a synthesized tree artifact constructed inline via TREE(stage).
type Tree struct {
	ID    exhash.Digest
	Stage map[string]expr.Value
}

// AnalyzedTarget is the §4.12.2 step 7 "analysed_target" bundle: a
// completed analysis, deduplicated by (target, effective_config).
type AnalyzedTarget struct {
	Key            ConfiguredTargetKey
	Result         *expr.ResultValue
	Actions        []*Action
	Blobs          []*Blob
	Trees          []*Tree
	Vars           []string
	Tainted        map[string]bool
	ImpliedExports map[string]bool
	Graph          *GraphInfo
}

// Analyzer is the target analyzer (C12): given a configured target key, it
// produces (and memoizes) the corresponding AnalyzedTarget. An Analyze call
// blocks until its analysis is done; inside it, each wave of dependencies
// is analyzed concurrently by resolveWave (at most 8 at a time). Sharing
// work across independently-requested keys is the caller's concern,
// typically by running Analyzer.Analyze as the Reader of an asyncmap.Map
// so concurrent requests for the same key share one analysis.
type Analyzer struct {
	Rules  RuleProvider
	Loader TargetLoader
	Source *sourceroot.FS
	Logger eval.Logger

	// ServeClient is the injected service-facing interface of §6
	// ("service-facing interface, consumed not provided"). It is nil by
	// default and can be set directly by a binary wiring up a serve
	// endpoint (a *serveapi.HTTPClient satisfies this interface without
	// this package importing serveapi). No binary in this repository sets
	// it, and the analyzer itself does not call it.
	ServeClient ServeClient

	mu    sync.Mutex
	cache map[string]*AnalyzedTarget

	// byEffective dedupes named-target analyses by (target, effective
	// config) rather than by the full requested config (§4.12.2 step 7
	// "deduplicates by (target, effective_config)"), since two different
	// requested configurations can prune down to the same effective one.
	byEffective map[string]*AnalyzedTarget

	anonMu    sync.Mutex
	anonNodes map[string]*expr.NodeValue
}

// New constructs an Analyzer. logger defaults to a no-op.
func New(rulesProvider RuleProvider, loader TargetLoader, source *sourceroot.FS, logger eval.Logger) *Analyzer {
	if logger == nil {
		logger = func(bool, string) {}
	}
	return &Analyzer{
		Rules: rulesProvider, Loader: loader, Source: source, Logger: logger,
		cache:       map[string]*AnalyzedTarget{},
		byEffective: map[string]*AnalyzedTarget{},
		anonNodes:   map[string]*expr.NodeValue{},
	}
}

// Analyze dispatches on key's reference kind (§4.12 "Entry") and returns
// the memoized analysis.
func (a *Analyzer) Analyze(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	cacheKey := key.String()
	a.mu.Lock()
	if at, ok := a.cache[cacheKey]; ok {
		a.mu.Unlock()
		return at, nil
	}
	a.mu.Unlock()

	at, err := a.analyzeUncached(key)
	if err != nil {
		a.Logger(true, fmt.Sprintf("analysis of %s failed: %v", key.String(), err))
		return nil, err
	}

	a.mu.Lock()
	if existing, ok := a.cache[cacheKey]; ok {
		a.mu.Unlock()
		return existing, nil
	}
	a.cache[cacheKey] = at
	a.mu.Unlock()
	return at, nil
}

func (a *Analyzer) analyzeUncached(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	switch key.Target.EffectiveKind() {
	case expr.RefFile:
		return a.analyzeFile(key)
	case expr.RefSymlink:
		return a.analyzeSymlink(key)
	case expr.RefTree:
		return a.analyzeTree(key)
	case expr.RefGlob:
		return a.analyzeGlob(key)
	case RefAnonymous:
		return a.analyzeAnonymous(key)
	default:
		return a.analyzeNamedTarget(key)
	}
}

func (a *Analyzer) analyzeFile(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	data, err := a.Source.ReadFile(key.Target.Name)
	if err != nil {
		return nil, fmt.Errorf("reading file %q: %w", key.Target.Name, err)
	}
	digest := exhash.Compute(data)
	artifact := expr.NewKnownArtifact(digest, expr.ObjectFile).(*expr.ArtifactValue)
	stage := expr.MapFromGo(map[string]expr.Value{key.Target.Name: artifact}).(*expr.MapValue)
	result := expr.NewResult(stage, nil, nil).(*expr.ResultValue)
	return &AnalyzedTarget{Key: key, Result: result, Graph: NewGraphInfo(key)}, nil
}

func (a *Analyzer) analyzeSymlink(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	target, err := a.Source.ReadLink(key.Target.Name)
	if err != nil {
		return nil, fmt.Errorf("reading symlink %q: %w", key.Target.Name, err)
	}
	digest := exhash.Compute([]byte(target))
	artifact := expr.NewKnownArtifact(digest, expr.ObjectSymlink).(*expr.ArtifactValue)
	stage := expr.MapFromGo(map[string]expr.Value{key.Target.Name: artifact}).(*expr.MapValue)
	result := expr.NewResult(stage, nil, nil).(*expr.ResultValue)
	return &AnalyzedTarget{Key: key, Result: result, Graph: NewGraphInfo(key)}, nil
}

func (a *Analyzer) analyzeTree(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	children, err := a.Source.ListTree(key.Target.Name)
	if err != nil {
		return nil, fmt.Errorf("listing tree %q: %w", key.Target.Name, err)
	}
	graph := NewGraphInfo(key)
	stage := map[string]expr.Value{}
	for _, child := range children {
		childKey := ConfiguredTargetKey{
			Target: TargetName{Repository: key.Target.Repository, Module: key.Target.Module, Name: child, Kind: expr.RefFile},
			Config: key.Config,
		}
		childResult, err := a.Analyze(childKey)
		if err != nil {
			return nil, err
		}
		graph.AddImplicit(childKey)
		graph.MarkSource(childKey, SourceFile)
		for _, kv := range childResult.Result.ArtifactStage.Map.Items() {
			stage[kv.Key] = kv.Value
		}
	}
	stageMap := expr.MapFromGo(stage).(*expr.MapValue)
	treeID := stageMap.ToHash()
	artifact := expr.NewTreeArtifact(treeID).(*expr.ArtifactValue)
	result := expr.NewResult(expr.MapFromGo(map[string]expr.Value{key.Target.Name: artifact}).(*expr.MapValue), nil, nil).(*expr.ResultValue)
	return &AnalyzedTarget{
		Key:     key,
		Result:  result,
		Trees:   []*Tree{{ID: treeID, Stage: stage}},
		Graph:   graph,
	}, nil
}

func (a *Analyzer) analyzeGlob(key ConfiguredTargetKey) (*AnalyzedTarget, error) {
	dir, pattern := splitGlob(key.Target.Name)
	matches, err := a.Source.Glob(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %q: %w", key.Target.Name, err)
	}
	graph := NewGraphInfo(key)
	stage := map[string]expr.Value{}
	for _, m := range matches {
		childKey := ConfiguredTargetKey{
			Target: TargetName{Repository: key.Target.Repository, Module: key.Target.Module, Name: m, Kind: expr.RefFile},
			Config: key.Config,
		}
		childResult, err := a.Analyze(childKey)
		if err != nil {
			return nil, err
		}
		graph.AddImplicit(childKey)
		graph.MarkSource(childKey, SourceGlob)
		for _, kv := range childResult.Result.ArtifactStage.Map.Items() {
			stage[kv.Key] = kv.Value
		}
	}
	result := expr.NewResult(expr.MapFromGo(stage).(*expr.MapValue), nil, nil).(*expr.ResultValue)
	return &AnalyzedTarget{Key: key, Result: result, Graph: graph}, nil
}

func splitGlob(name string) (dir, pattern string) {
	idx := lastSlash(name)
	if idx < 0 {
		return ".", name
	}
	return name[:idx], name[idx+1:]
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// resolveWave analyzes every key in keys concurrently (bounded fan-out via
// errgroup), returning results in input order or the first error.
func (a *Analyzer) resolveWave(keys []ConfiguredTargetKey) ([]*AnalyzedTarget, error) {
	out := make([]*AnalyzedTarget, len(keys))
	var g errgroup.Group
	g.SetLimit(8)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			at, err := a.Analyze(k)
			if err != nil {
				return err
			}
			out[i] = at
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// sortedStringKeys is a small shared helper for deterministic iteration
// over a Go map of strings during rule-body evaluation.
func sortedStringKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
