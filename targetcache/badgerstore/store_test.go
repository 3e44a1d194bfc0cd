package badgerstore

import (
	"path/filepath"
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetcache"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("opening badger store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testEntry(seed string) *targetcache.Entry {
	artifact := expr.NewKnownArtifact(exhash.Compute([]byte(seed)), expr.ObjectFile)
	stage := expr.MapFromGo(map[string]expr.Value{"out": artifact}).(*expr.MapValue)
	provides := expr.MapFromGo(map[string]expr.Value{"out": artifact}).(*expr.MapValue)
	result := expr.NewResult(stage, nil, provides).(*expr.ResultValue)
	return targetcache.NewEntry(result, []string{"out"}, "shard")
}

func TestStoreStoreAndRead(t *testing.T) {
	store := openTestStore(t)
	shard := "s1"
	key := targetcache.Key{Digest: exhash.Compute([]byte("k1"))}
	entry := testEntry("v1")

	if err := store.Store(shard, key, entry, targetcache.NoopDownloader); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, info, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a hit")
	}
	if info.Generation != targetcache.GenerationCurrent || info.Uplinked {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestStoreReadMiss(t *testing.T) {
	store := openTestStore(t)
	got, info, err := store.Read("s1", targetcache.Key{Digest: exhash.Compute([]byte("missing"))})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil || info != nil {
		t.Fatalf("expected a miss, got %+v / %+v", got, info)
	}
}

func TestStoreGCRotatesAndUplinks(t *testing.T) {
	store := openTestStore(t)
	shard := "s1"
	key := targetcache.Key{Digest: exhash.Compute([]byte("k1"))}
	entry := testEntry("v1")

	if err := store.Store(shard, key, entry, targetcache.NoopDownloader); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.GC(shard); err != nil {
		t.Fatalf("gc: %v", err)
	}

	got, info, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read after gc: %v", err)
	}
	if got == nil {
		t.Fatalf("expected the entry to survive gc via the previous generation")
	}
	if info.Generation != targetcache.GenerationPrevious || !info.Uplinked {
		t.Fatalf("expected a previous-generation hit with uplink, got %+v", info)
	}

	got2, info2, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read after uplink: %v", err)
	}
	if got2 == nil || info2.Generation != targetcache.GenerationCurrent {
		t.Fatalf("expected the uplinked entry to now be served from current, got %+v", info2)
	}
}

func TestStoreShardIsolation(t *testing.T) {
	store := openTestStore(t)
	key := targetcache.Key{Digest: exhash.Compute([]byte("k1"))}
	entry := testEntry("v1")

	if err := store.Store("shard-a", key, entry, targetcache.NoopDownloader); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, _, err := store.Read("shard-b", key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Fatalf("expected shard-b to be isolated from shard-a's write")
	}
}
