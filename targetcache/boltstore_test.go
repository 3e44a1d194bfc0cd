package targetcache

import (
	"path/filepath"
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

func openTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("opening bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testKey(t *testing.T, seed string) Key {
	t.Helper()
	return Key{Digest: exhash.Compute([]byte(seed))}
}

func testEntry(seed string) *Entry {
	artifact := expr.NewKnownArtifact(exhash.Compute([]byte(seed)), expr.ObjectFile)
	stage := expr.MapFromGo(map[string]expr.Value{"out": artifact}).(*expr.MapValue)
	provides := expr.MapFromGo(map[string]expr.Value{"out": artifact}).(*expr.MapValue)
	result := expr.NewResult(stage, nil, provides).(*expr.ResultValue)
	return NewEntry(result, []string{"out"}, "shard")
}

func TestBoltStoreStoreAndReadCurrentGeneration(t *testing.T) {
	store := openTestBoltStore(t)
	shard := "s1"
	key := testKey(t, "k1")
	entry := testEntry("v1")

	if err := store.Store(shard, key, entry, NoopDownloader); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, info, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a hit")
	}
	if info.Generation != GenerationCurrent || info.Uplinked {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestBoltStoreReadMiss(t *testing.T) {
	store := openTestBoltStore(t)
	got, info, err := store.Read("s1", testKey(t, "missing"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil || info != nil {
		t.Fatalf("expected a miss, got %+v / %+v", got, info)
	}
}

func TestBoltStoreGCRotatesAndUplinks(t *testing.T) {
	store := openTestBoltStore(t)
	shard := "s1"
	key := testKey(t, "k1")
	entry := testEntry("v1")

	if err := store.Store(shard, key, entry, NoopDownloader); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.GC(shard); err != nil {
		t.Fatalf("gc: %v", err)
	}

	// The entry should now only be reachable via the previous generation,
	// and reading it should uplink it back into current.
	got, info, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read after gc: %v", err)
	}
	if got == nil {
		t.Fatalf("expected the entry to survive gc via the previous generation")
	}
	if info.Generation != GenerationPrevious || !info.Uplinked {
		t.Fatalf("expected a previous-generation hit with uplink, got %+v", info)
	}

	got2, info2, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read after uplink: %v", err)
	}
	if got2 == nil || info2.Generation != GenerationCurrent {
		t.Fatalf("expected the uplinked entry to now be served from current, got %+v", info2)
	}

	// A second GC drops the old previous generation; since the entry was
	// uplinked into current before this GC, it survives into the new
	// previous generation again.
	if err := store.GC(shard); err != nil {
		t.Fatalf("second gc: %v", err)
	}
	got3, _, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read after second gc: %v", err)
	}
	if got3 == nil {
		t.Fatalf("expected the uplinked entry to survive a second gc")
	}
}

func TestBoltStoreUplinkDoesNotClobberFresherWrite(t *testing.T) {
	store := openTestBoltStore(t)
	shard := "s1"
	key := testKey(t, "k1")
	old := testEntry("old")
	fresh := testEntry("fresh")

	if err := store.Store(shard, key, old, NoopDownloader); err != nil {
		t.Fatalf("store old: %v", err)
	}
	if err := store.GC(shard); err != nil {
		t.Fatalf("gc: %v", err)
	}
	if err := store.Store(shard, key, fresh, NoopDownloader); err != nil {
		t.Fatalf("store fresh: %v", err)
	}

	// A concurrent uplink of the (now stale) previous-generation entry
	// must not clobber the fresher current-generation write.
	if err := store.uplink(shard, key, mustMarshal(t, old)); err != nil {
		t.Fatalf("uplink: %v", err)
	}
	got, info, err := store.Read(shard, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if info.Generation != GenerationCurrent {
		t.Fatalf("expected a current-generation hit, got %+v", info)
	}
	stage, ok := got.ArtifactStage.Find("out")
	if !ok {
		t.Fatalf("expected artifact stage to carry 'out'")
	}
	freshStage, _ := fresh.ArtifactStage.Find("out")
	if !stage.Equal(freshStage) {
		t.Fatalf("expected the fresher write to survive the uplink attempt")
	}
}

func mustMarshal(t *testing.T, e *Entry) []byte {
	t.Helper()
	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestCacheBindsShard(t *testing.T) {
	store := openTestBoltStore(t)
	cache := NewCache(store, "backend-description")
	key := testKey(t, "k1")
	entry := testEntry("v1")

	if err := cache.Store(key, entry, NoopDownloader); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, info, err := cache.Read(key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || info.Generation != GenerationCurrent {
		t.Fatalf("expected a current-generation hit through the bound cache")
	}
	if err := cache.GC(); err != nil {
		t.Fatalf("gc: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
