package targetmap

import (
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

func TestSerializeResultDedupesSharedArtifact(t *testing.T) {
	shared := expr.NewKnownArtifact(exhash.Compute([]byte("payload")), expr.ObjectFile)
	stage := expr.MapFromGo(map[string]expr.Value{"out/a": shared, "out/b": shared})
	result := expr.NewResult(stage.(*expr.MapValue), nil, nil).(*expr.ResultValue)

	s, err := SerializeResult(result, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.ProvidedArtifacts) != 1 {
		t.Fatalf("expected exactly one deduplicated artifact entry, got %d", len(s.ProvidedArtifacts))
	}
	if len(s.ProvidedResults) != 1 {
		t.Fatalf("expected exactly one result entry, got %d", len(s.ProvidedResults))
	}
	if _, ok := s.Nodes[s.Root]; !ok {
		t.Fatalf("expected the root id to be present in the nodes table")
	}
}

func TestSerializeResultReplacesNonKnownArtifacts(t *testing.T) {
	local := expr.NewLocalArtifact("gen/output.txt", "").(*expr.ArtifactValue)
	known := expr.NewKnownArtifact(exhash.Compute([]byte("resolved")), expr.ObjectFile)
	provides := expr.MapFromGo(map[string]expr.Value{"out": local})
	result := expr.NewResult(nil, nil, provides.(*expr.MapValue)).(*expr.ResultValue)

	_, err := SerializeResult(result, map[string]expr.Value{})
	if err == nil {
		t.Fatalf("expected a fatal error for a missing known-artifact replacement")
	}

	desc := ArtifactDescription(local)
	s, err := SerializeResult(result, map[string]expr.Value{desc: known})
	if err != nil {
		t.Fatalf("unexpected error with replacement supplied: %v", err)
	}
	if len(s.ProvidedArtifacts) != 1 {
		t.Fatalf("expected the replaced artifact to appear once, got %d", len(s.ProvidedArtifacts))
	}
}

func TestGraphInfoAllChildrenOrder(t *testing.T) {
	self := ConfiguredTargetKey{Target: TargetName{Name: "self"}, Config: expr.EmptyConfiguration()}
	g := NewGraphInfo(self)
	d := ConfiguredTargetKey{Target: TargetName{Name: "d"}, Config: expr.EmptyConfiguration()}
	i := ConfiguredTargetKey{Target: TargetName{Name: "i"}, Config: expr.EmptyConfiguration()}
	a := ConfiguredTargetKey{Target: TargetName{Name: "a"}, Config: expr.EmptyConfiguration()}
	g.AddDeclared(d)
	g.AddImplicit(i)
	g.AddAnonymous(a)
	all := g.AllChildren()
	if len(all) != 3 || all[0].Target.Name != "d" || all[1].Target.Name != "i" || all[2].Target.Name != "a" {
		t.Fatalf("expected declared/implicit/anonymous order, got %v", all)
	}
}
