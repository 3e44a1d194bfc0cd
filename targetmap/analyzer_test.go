package targetmap

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/sourceroot"
	"github.com/evalgo/eve-build/targetmap/rules"
)

// op builds a map-form operator invocation expression, mirroring the
// evaluator package's own test helper since it is unexported there.
func op(name string, kv ...interface{}) expr.Value {
	m := map[string]expr.Value{"type": expr.String(name)}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1].(expr.Value)
	}
	return expr.MapFromGo(m)
}

func strList(items ...string) expr.Value {
	vs := make([]expr.Value, len(items))
	for i, s := range items {
		vs[i] = expr.String(s)
	}
	return expr.ListFrom(vs)
}

func nameList(names ...*expr.NameValue) expr.Value {
	vs := make([]expr.Value, len(names))
	for i, n := range names {
		vs[i] = n
	}
	return expr.ListFrom(vs)
}

type fakeLoader map[string]*TargetDescription

func (f fakeLoader) Load(repository, module, name string) (*TargetDescription, error) {
	d, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no such target %q", name)
	}
	return d, nil
}

func newTestSource(t *testing.T) *sourceroot.FS {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "data.txt", []byte("payload"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	if err := afero.WriteFile(fs, "dir/a.txt", []byte("a"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	if err := afero.WriteFile(fs, "dir/b.txt", []byte("b"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	return sourceroot.New(fs, "")
}

func TestAnalyzeFileDispatch(t *testing.T) {
	an := New(StaticRuleMap{}, fakeLoader{}, newTestSource(t), nil)
	key := ConfiguredTargetKey{
		Target: TargetName{Name: "data.txt", Kind: expr.RefFile},
		Config: expr.EmptyConfiguration(),
	}
	at, err := an.Analyze(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := at.Result.ArtifactStage.Find("data.txt")
	if !ok {
		t.Fatalf("expected an artifact staged at %q", "data.txt")
	}
	artifact, ok := v.(*expr.ArtifactValue)
	if !ok || artifact.Shape != expr.ArtifactKnown {
		t.Fatalf("expected a known artifact, got %#v", v)
	}
	want := exhash.Compute([]byte("payload"))
	if artifact.Digest != want {
		t.Fatalf("digest mismatch: got %s want %s", artifact.Digest, want)
	}
}

func TestAnalyzeTreeAndGlobDispatch(t *testing.T) {
	an := New(StaticRuleMap{}, fakeLoader{}, newTestSource(t), nil)

	treeKey := ConfiguredTargetKey{
		Target: TargetName{Name: "dir", Kind: expr.RefTree},
		Config: expr.EmptyConfiguration(),
	}
	at, err := an.Analyze(treeKey)
	if err != nil {
		t.Fatalf("unexpected tree error: %v", err)
	}
	if len(at.Trees) != 1 {
		t.Fatalf("expected exactly one synthesized tree, got %d", len(at.Trees))
	}
	if len(at.Trees[0].Stage) != 2 {
		t.Fatalf("expected the tree to stage both files, got %d entries", len(at.Trees[0].Stage))
	}

	globKey := ConfiguredTargetKey{
		Target: TargetName{Name: "dir/*.txt", Kind: expr.RefGlob},
		Config: expr.EmptyConfiguration(),
	}
	gat, err := an.Analyze(globKey)
	if err != nil {
		t.Fatalf("unexpected glob error: %v", err)
	}
	if len(gat.Result.ArtifactStage.Keys()) != 2 {
		t.Fatalf("expected the glob to match both files, got %v", gat.Result.ArtifactStage.Keys())
	}
}

// simpleRule builds a one-string-field, one-target-field rule whose body
// re-exposes its single dependency's artifacts and its string field as a
// provider, enough to exercise the full named-target pipeline end to end.
func simpleRule(t *testing.T, name string, taints ...string) *rules.Rule {
	t.Helper()
	body := op("RESULT",
		"artifacts", op("DEP_ARTIFACTS", "name", expr.String("deps")),
		"provides", op("singleton_map", "key", expr.String("msg"), "value", op("FIELD", "name", expr.String("msg"))),
	)
	r, err := rules.New(rules.Config{
		Name:         name,
		StringFields: []string{"msg"},
		TargetFields: []string{"deps"},
		Taints:       taints,
		Body:         body,
	})
	if err != nil {
		t.Fatalf("building rule %q: %v", name, err)
	}
	return r
}

func TestAnalyzeUserRuleRoundTrip(t *testing.T) {
	rule := simpleRule(t, "mytest")
	loader := fakeLoader{
		"target1": {
			Type: "mytest",
			Fields: map[string]expr.Value{
				"msg":  strList("hello"),
				"deps": nameList(expr.NewName("", "", "data.txt", expr.RefFile).(*expr.NameValue)),
			},
		},
	}
	an := New(StaticRuleMap{"mytest": rule}, loader, newTestSource(t), nil)

	key := ConfiguredTargetKey{Target: TargetName{Name: "target1"}, Config: expr.EmptyConfiguration()}
	at, err := an.Analyze(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := at.Result.ArtifactStage.Find("data.txt"); !ok {
		t.Fatalf("expected the dependency's artifact to be re-exposed, got %v", at.Result.ArtifactStage.Keys())
	}
	msg, ok := at.Result.Provides.Find("msg")
	if !ok {
		t.Fatalf("expected a %q provider", "msg")
	}
	if !msg.Equal(strList("hello")) {
		t.Fatalf("provider mismatch: got %s", msg.ToAbbrevString(200))
	}
}

func TestAnalyzeDedupesByEffectiveConfig(t *testing.T) {
	rule := simpleRule(t, "mytest")
	loader := fakeLoader{
		"target1": {
			Type: "mytest",
			Fields: map[string]expr.Value{
				"msg":  strList("hello"),
				"deps": nameList(expr.NewName("", "", "data.txt", expr.RefFile).(*expr.NameValue)),
			},
		},
	}
	an := New(StaticRuleMap{"mytest": rule}, loader, newTestSource(t), nil)

	cfgA := expr.EmptyConfiguration().Update("unused", expr.String("a"))
	cfgB := expr.EmptyConfiguration().Update("unused", expr.String("b"))
	keyA := ConfiguredTargetKey{Target: TargetName{Name: "target1"}, Config: cfgA}
	keyB := ConfiguredTargetKey{Target: TargetName{Name: "target1"}, Config: cfgB}

	atA, err := an.Analyze(keyA)
	if err != nil {
		t.Fatalf("unexpected error analyzing A: %v", err)
	}
	atB, err := an.Analyze(keyB)
	if err != nil {
		t.Fatalf("unexpected error analyzing B: %v", err)
	}
	if atA != atB {
		t.Fatalf("expected both requests to converge on the same canonical analysed_target instance")
	}
}

func TestAnalyzeTaintSupersetViolation(t *testing.T) {
	taintedRule := simpleRule(t, "taintedrule", "unsafe")
	untaintedRule := simpleRule(t, "parentrule")

	loader := fakeLoader{
		"taintedtarget": {
			Type: "taintedrule",
			Fields: map[string]expr.Value{
				"msg":  strList("x"),
				"deps": nameList(expr.NewName("", "", "data.txt", expr.RefFile).(*expr.NameValue)),
			},
		},
		"parenttarget": {
			Type: "parentrule",
			Fields: map[string]expr.Value{
				"msg":  strList("y"),
				"deps": nameList(expr.NewName("", "", "taintedtarget", expr.RefTarget).(*expr.NameValue)),
			},
		},
	}
	an := New(StaticRuleMap{"taintedrule": taintedRule, "parentrule": untaintedRule}, loader, newTestSource(t), nil)

	_, err := an.Analyze(ConfiguredTargetKey{Target: TargetName{Name: "parenttarget"}, Config: expr.EmptyConfiguration()})
	if err == nil {
		t.Fatalf("expected a taint superset violation")
	}
}

func TestAnalyzeTaintSupersetPropagated(t *testing.T) {
	taintedRule := simpleRule(t, "taintedrule", "unsafe")
	parentRule := simpleRule(t, "parentrule", "unsafe")

	loader := fakeLoader{
		"taintedtarget": {
			Type: "taintedrule",
			Fields: map[string]expr.Value{
				"msg":  strList("x"),
				"deps": nameList(expr.NewName("", "", "data.txt", expr.RefFile).(*expr.NameValue)),
			},
		},
		"parenttarget2": {
			Type: "parentrule",
			Fields: map[string]expr.Value{
				"msg":  strList("y"),
				"deps": nameList(expr.NewName("", "", "taintedtarget", expr.RefTarget).(*expr.NameValue)),
			},
		},
	}
	an := New(StaticRuleMap{"taintedrule": taintedRule, "parentrule": parentRule}, loader, newTestSource(t), nil)

	at, err := an.Analyze(ConfiguredTargetKey{Target: TargetName{Name: "parenttarget2"}, Config: expr.EmptyConfiguration()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !at.Tainted["unsafe"] {
		t.Fatalf("expected the declared taint to be recorded")
	}
}

func TestAnalyzeGenericBuiltinRule(t *testing.T) {
	loader := fakeLoader{
		"gen1": {
			Type: "generic",
			Fields: map[string]expr.Value{
				"deps": nameList(expr.NewName("", "", "data.txt", expr.RefFile).(*expr.NameValue)),
				"outs": strList("out.bin"),
				"cmd":  strList("/bin/true"),
			},
		},
	}
	an := New(StaticRuleMap{}, loader, newTestSource(t), nil)

	at, err := an.Analyze(ConfiguredTargetKey{Target: TargetName{Name: "gen1"}, Config: expr.EmptyConfiguration()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(at.Actions) != 1 {
		t.Fatalf("expected exactly one action, got %d", len(at.Actions))
	}
	if len(at.Actions[0].Inputs) != 1 {
		t.Fatalf("expected the action to carry the file dependency as an input")
	}
	v, ok := at.Result.ArtifactStage.Find("out.bin")
	if !ok {
		t.Fatalf("expected an artifact reference for %q", "out.bin")
	}
	artifact, ok := v.(*expr.ArtifactValue)
	if !ok || artifact.Shape != expr.ArtifactAction {
		t.Fatalf("expected an action-shaped artifact, got %#v", v)
	}
}

func TestAnalyzeAnonymousValueNode(t *testing.T) {
	an := New(StaticRuleMap{}, fakeLoader{}, newTestSource(t), nil)
	result := expr.NewResult(
		expr.MapFromGo(map[string]expr.Value{}).(*expr.MapValue),
		nil,
		expr.MapFromGo(map[string]expr.Value{"k": expr.String("v")}).(*expr.MapValue),
	).(*expr.ResultValue)
	node := expr.NewValueNode(result).(*expr.NodeValue)

	key := an.registerAnonymousNode(node, expr.EmptyConfiguration(), "", "")
	at, err := an.Analyze(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := at.Result.Provides.Find("k")
	if !ok || !v.Equal(expr.String("v")) {
		t.Fatalf("expected the value node's result to pass through unchanged")
	}
}

func TestAnalyzeAnonymousAbstractNode(t *testing.T) {
	rule := simpleRule(t, "mytest")
	an := New(StaticRuleMap{"mytest": rule}, fakeLoader{}, newTestSource(t), nil)

	depArtifact := expr.NewKnownArtifact(exhash.Compute([]byte("dep")), expr.ObjectFile)
	depResult := expr.NewResult(
		expr.MapFromGo(map[string]expr.Value{"dep.out": depArtifact}).(*expr.MapValue),
		nil, nil,
	).(*expr.ResultValue)
	depNode := expr.NewValueNode(depResult)

	stringFields := expr.MapFromGo(map[string]expr.Value{"msg": strList("abstract-hello")}).(*expr.MapValue)
	targetFields := expr.MapFromGo(map[string]expr.Value{
		"deps": expr.ListFrom([]expr.Value{depNode}),
	}).(*expr.MapValue)
	node := expr.NewAbstractNode("mytest", stringFields, targetFields).(*expr.NodeValue)

	key := an.registerAnonymousNode(node, expr.EmptyConfiguration(), "", "")
	at, err := an.Analyze(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, ok := at.Result.Provides.Find("msg")
	if !ok || !msg.Equal(strList("abstract-hello")) {
		t.Fatalf("expected the string field to be threaded through as a provider")
	}
}
