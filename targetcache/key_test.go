package targetcache

import (
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetmap"
)

func TestComputeKeyDeterministic(t *testing.T) {
	repoKey := exhash.Compute([]byte("repo-fingerprint"))
	target := targetmap.TargetName{Repository: "", Module: "src", Name: "lib"}
	cfg := expr.NewConfiguration(expr.MapFromGo(map[string]expr.Value{"OS": expr.String("linux")}).(*expr.MapValue))

	k1, err := ComputeKey(repoKey, target, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := ComputeKey(repoKey, target, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected compute_key to be deterministic, got %s != %s", k1, k2)
	}
	if k1.IsZero() {
		t.Fatalf("expected a non-zero key")
	}
}

func TestComputeKeyDiffersByTarget(t *testing.T) {
	repoKey := exhash.Compute([]byte("repo-fingerprint"))
	cfg := expr.EmptyConfiguration()

	k1, err := ComputeKey(repoKey, targetmap.TargetName{Module: "src", Name: "a"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := ComputeKey(repoKey, targetmap.TargetName{Module: "src", Name: "b"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("expected different targets to produce different keys")
	}
}

func TestComputeKeyDiffersByConfig(t *testing.T) {
	repoKey := exhash.Compute([]byte("repo-fingerprint"))
	target := targetmap.TargetName{Module: "src", Name: "a"}

	k1, err := ComputeKey(repoKey, target, expr.EmptyConfiguration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := expr.NewConfiguration(expr.MapFromGo(map[string]expr.Value{"OS": expr.String("darwin")}).(*expr.MapValue))
	k2, err := ComputeKey(repoKey, target, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("expected different effective configs to produce different keys")
	}
}

func TestShardIDDeterministicByDescription(t *testing.T) {
	a := ShardID("backend-a")
	b := ShardID("backend-a")
	c := ShardID("backend-b")
	if a != b {
		t.Fatalf("expected the same description to produce the same shard id")
	}
	if a == c {
		t.Fatalf("expected different descriptions to produce different shard ids")
	}
}
