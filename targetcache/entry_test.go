package targetcache

import (
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

func TestEntryRoundTrip(t *testing.T) {
	shared := expr.NewKnownArtifact(exhash.Compute([]byte("payload")), expr.ObjectFile)
	stage := expr.MapFromGo(map[string]expr.Value{"out/a": shared, "out/b": shared}).(*expr.MapValue)
	runfiles := expr.MapFromGo(map[string]expr.Value{"run/a": shared}).(*expr.MapValue)
	provides := expr.MapFromGo(map[string]expr.Value{
		"lib":  shared,
		"name": expr.String("mytarget"),
	}).(*expr.MapValue)

	result := expr.NewResult(stage, runfiles, provides).(*expr.ResultValue)
	entry := NewEntry(result, []string{"lib", "name"}, "local-backend")

	data, err := entry.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalEntry(data, "local-backend")
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(got.Implied) != 2 || got.Implied[0] != "lib" || got.Implied[1] != "name" {
		t.Fatalf("unexpected implied exports: %v", got.Implied)
	}
	if got.Tooling != "local-backend" {
		t.Fatalf("unexpected tooling: %q", got.Tooling)
	}

	a, ok := got.ArtifactStage.Find("out/a")
	if !ok {
		t.Fatalf("expected out/a in artifact stage")
	}
	b, ok := got.ArtifactStage.Find("out/b")
	if !ok {
		t.Fatalf("expected out/b in artifact stage")
	}
	if !a.Equal(b) {
		t.Fatalf("expected out/a and out/b to round-trip to the same artifact")
	}
	if !a.Equal(shared) {
		t.Fatalf("expected artifact stage entries to equal the original shared artifact")
	}

	lib, ok := got.Provides.Find("lib")
	if !ok {
		t.Fatalf("expected provides to carry 'lib'")
	}
	if !lib.Equal(shared) {
		t.Fatalf("expected provides['lib'] to round-trip to the shared artifact")
	}
	name, ok := got.Provides.Find("name")
	if !ok || name.ToString() != `"mytarget"` {
		t.Fatalf("expected provides['name'] to round-trip to the string value, got %v", name)
	}

	gotResult := got.Result()
	if !gotResult.IsCacheable() {
		t.Fatalf("expected the round-tripped result to be cacheable")
	}
}

func TestEntryRoundTripEmpty(t *testing.T) {
	result := expr.NewResult(nil, nil, nil).(*expr.ResultValue)
	entry := NewEntry(result, nil, "backend")

	data, err := entry.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalEntry(data, "backend")
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Implied) != 0 {
		t.Fatalf("expected no implied exports, got %v", got.Implied)
	}
}
