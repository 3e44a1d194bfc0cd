package serveapi

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetcache"
	"github.com/evalgo/eve-build/targetmap"
)

func openTestCache(t *testing.T) *targetcache.Cache {
	t.Helper()
	store, err := targetcache.OpenBoltStore(filepath.Join(t.TempDir(), "serve.db"))
	if err != nil {
		t.Fatalf("opening bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return targetcache.NewCache(store, "test-backend")
}

func testTarget() targetmap.TargetName {
	return targetmap.TargetName{Repository: "main", Module: "src", Name: "lib"}
}

func startTestServer(t *testing.T, archives ArchiveResolver, variables VariableLookup) (*httptest.Server, *targetcache.Cache) {
	t.Helper()
	cache := openTestCache(t)
	srv := NewServer(cache, archives, variables)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, cache
}

func TestServeTargetMiss(t *testing.T) {
	ts, _ := startTestServer(t, nil, nil)
	client := NewHTTPClient(DefaultHTTPClientConfig(ts.URL))

	resp, err := client.ServeTarget(context.Background(), TargetRequest{
		RepoRootTreeID: exhash.Compute([]byte("root")),
		Config:         expr.EmptyConfiguration(),
		Target:         testTarget(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Found {
		t.Fatalf("expected a cache miss to report Found: false")
	}
}

func TestServeTargetHit(t *testing.T) {
	ts, cache := startTestServer(t, nil, nil)
	client := NewHTTPClient(DefaultHTTPClientConfig(ts.URL))

	repoRoot := exhash.Compute([]byte("root"))
	config := expr.EmptyConfiguration()
	target := testTarget()

	key, err := targetcache.ComputeKey(repoRoot, target, config)
	if err != nil {
		t.Fatalf("computing key: %v", err)
	}
	result := expr.NewResult(nil, nil, nil).(*expr.ResultValue)
	entry := targetcache.NewEntry(result, []string{"out"}, "")
	if err := cache.Store(key, entry, targetcache.NoopDownloader); err != nil {
		t.Fatalf("storing entry: %v", err)
	}

	resp, err := client.ServeTarget(context.Background(), TargetRequest{
		RepoRootTreeID: repoRoot,
		Config:         config,
		Target:         target,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Found {
		t.Fatalf("expected a cache hit")
	}
	if resp.ResultDigest.IsZero() {
		t.Fatalf("expected a non-zero result digest")
	}
}

func TestServeTargetVariablesNoLookup(t *testing.T) {
	ts, _ := startTestServer(t, nil, nil)
	client := NewHTTPClient(DefaultHTTPClientConfig(ts.URL))

	resp, err := client.ServeTargetVariables(context.Background(), TargetRequest{
		RepoRootTreeID: exhash.Compute([]byte("root")),
		Config:         expr.EmptyConfiguration(),
		Target:         testTarget(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Found {
		t.Fatalf("expected Found: false with no variable lookup configured")
	}
}

type fakeVariables map[targetmap.TargetName][]string

func (f fakeVariables) Variables(target targetmap.TargetName) ([]string, bool) {
	vars, ok := f[target]
	return vars, ok
}

func TestServeTargetVariablesHit(t *testing.T) {
	target := testTarget()
	ts, _ := startTestServer(t, nil, fakeVariables{target: {"OS", "ARCH"}})
	client := NewHTTPClient(DefaultHTTPClientConfig(ts.URL))

	resp, err := client.ServeTargetVariables(context.Background(), TargetRequest{
		RepoRootTreeID: exhash.Compute([]byte("root")),
		Config:         expr.EmptyConfiguration(),
		Target:         target,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Found || len(resp.Variables) != 2 {
		t.Fatalf("expected the configured variables, got %+v", resp)
	}
}

type fakeArchives map[exhash.Digest]exhash.Digest

func (f fakeArchives) ResolveTree(_ context.Context, archiveDigest exhash.Digest) (exhash.Digest, bool, error) {
	tree, ok := f[archiveDigest]
	return tree, ok, nil
}

func TestRetrieveTreeFromArchive(t *testing.T) {
	archiveDigest := exhash.Compute([]byte("archive"))
	treeID := exhash.Compute([]byte("tree"))
	ts, _ := startTestServer(t, fakeArchives{archiveDigest: treeID}, nil)
	client := NewHTTPClient(DefaultHTTPClientConfig(ts.URL))

	resp, err := client.RetrieveTreeFromArchive(context.Background(), RetrieveTreeRequest{ArchiveDigest: archiveDigest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Found || resp.TreeID != treeID {
		t.Fatalf("expected the resolved tree id, got %+v", resp)
	}
}

func TestRetrieveTreeFromArchiveNoResolver(t *testing.T) {
	ts, _ := startTestServer(t, nil, nil)
	client := NewHTTPClient(DefaultHTTPClientConfig(ts.URL))

	resp, err := client.RetrieveTreeFromArchive(context.Background(), RetrieveTreeRequest{ArchiveDigest: exhash.Compute([]byte("x"))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Found {
		t.Fatalf("expected Found: false with no archive resolver configured")
	}
}
