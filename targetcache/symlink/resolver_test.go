package symlink

import (
	"path/filepath"
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

// fakeReader maps a symlink artifact's digest to its literal target
// text, standing in for a CAS-backed reader in tests.
type fakeReader map[exhash.Digest]string

func (f fakeReader) ReadSymlink(a *expr.ArtifactValue) (string, error) {
	return f[a.Digest], nil
}

func knownFile(seed string) *expr.ArtifactValue {
	return expr.NewKnownArtifact(exhash.Compute([]byte(seed)), expr.ObjectFile).(*expr.ArtifactValue)
}

func knownSymlink(target string) *expr.ArtifactValue {
	return expr.NewKnownArtifact(exhash.Compute([]byte(target)), expr.ObjectSymlink).(*expr.ArtifactValue)
}

func TestResolveStageIgnorePassesThrough(t *testing.T) {
	link := knownSymlink("real.txt")
	stage := Stage{"link.txt": link, "real.txt": knownFile("payload")}

	out, _, err := ResolveStage(stage, PolicyIgnore, fakeReader{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["link.txt"] != link {
		t.Fatalf("expected PolicyIgnore to leave the symlink untouched")
	}
}

func TestResolveStagePartialFollowsRelativeSymlink(t *testing.T) {
	link := knownSymlink("real.txt")
	real := knownFile("payload")
	stage := Stage{"link.txt": link, "real.txt": real}
	reader := fakeReader{link.Digest: "real.txt"}

	out, _, err := ResolveStage(stage, PolicyPartial, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["link.txt"] != real {
		t.Fatalf("expected link.txt to resolve to the real artifact, got %+v", out["link.txt"])
	}
}

func TestResolveStageFollowsNestedDirectoryRelativeSymlink(t *testing.T) {
	link := knownSymlink("../real.txt")
	real := knownFile("payload")
	stage := Stage{"sub/link.txt": link, "real.txt": real}
	reader := fakeReader{link.Digest: "../real.txt"}

	out, _, err := ResolveStage(stage, PolicyComplete, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["sub/link.txt"] != real {
		t.Fatalf("expected sub/link.txt to resolve to the real artifact, got %+v", out["sub/link.txt"])
	}
}

func TestResolveStagePartialStopsOnEscapingSymlink(t *testing.T) {
	link := knownSymlink("../../outside.txt")
	stage := Stage{"link.txt": link}
	reader := fakeReader{link.Digest: "../../outside.txt"}

	out, _, err := ResolveStage(stage, PolicyPartial, reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["link.txt"] != link {
		t.Fatalf("expected the escaping symlink to be left as-is under PolicyPartial")
	}
}

func TestResolveStageCompleteFailsOnEscapingSymlink(t *testing.T) {
	link := knownSymlink("/etc/passwd")
	stage := Stage{"link.txt": link}
	reader := fakeReader{link.Digest: "/etc/passwd"}

	if _, _, err := ResolveStage(stage, PolicyComplete, reader); err == nil {
		t.Fatalf("expected PolicyComplete to fail on an absolute symlink target")
	}
}

func TestResolveStageCompleteFailsOnCycle(t *testing.T) {
	a := knownSymlink("b.txt")
	b := knownSymlink("a.txt")
	stage := Stage{"a.txt": a, "b.txt": b}
	reader := fakeReader{a.Digest: "b.txt", b.Digest: "a.txt"}

	if _, _, err := ResolveStage(stage, PolicyComplete, reader); err == nil {
		t.Fatalf("expected a cycle to be rejected")
	}
}

func TestResolveStageDeterministicHash(t *testing.T) {
	stage := Stage{"a.txt": knownFile("1"), "b.txt": knownFile("2")}
	_, id1, err := ResolveStage(stage, PolicyIgnore, fakeReader{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, id2, err := ResolveStage(stage, PolicyIgnore, fakeReader{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected hashStage to be deterministic")
	}
}

func TestResolverCachesResult(t *testing.T) {
	cache, err := OpenIDCache(filepath.Join(t.TempDir(), "symlink.db"))
	if err != nil {
		t.Fatalf("opening id cache: %v", err)
	}
	defer cache.Close()

	link := knownSymlink("real.txt")
	real := knownFile("payload")
	stage := Stage{"link.txt": link, "real.txt": real}
	reader := fakeReader{link.Digest: "real.txt"}
	resolver := NewResolver(cache, reader)

	id1, err := resolver.Resolve(stage, PolicyPartial)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// A second resolution through a reader that knows no symlink target
	// must still return the original id by serving the cached entry:
	// resolving afresh would leave link.txt unresolved and hash differently.
	brokenResolver := NewResolver(cache, fakeReader{})
	id2, err := brokenResolver.Resolve(stage, PolicyPartial)
	if err != nil {
		t.Fatalf("resolve from cache: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected the cached resolution to match the original")
	}
}
