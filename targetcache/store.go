package targetcache

import "fmt"

// Generation distinguishes the newest, writable generation from the
// immutable previous one a read may uplink from (§4.13, §5).
type Generation int

const (
	GenerationCurrent Generation = iota
	GenerationPrevious
)

func (g Generation) String() string {
	if g == GenerationCurrent {
		return "current"
	}
	return "previous"
}

// Info describes how a Read was served.
type Info struct {
	Generation Generation
	// Uplinked reports whether this read copied the entry from the
	// previous generation into the current one.
	Uplinked bool
}

// Downloader synchronizes an entry's referenced digests into local CAS
// before Store persists it (§4.13 store()): "guaranteeing that reading
// the entry later is sufficient to reconstruct all artifacts locally."
type Downloader interface {
	Sync(entry *Entry) error
}

// DownloaderFunc adapts a plain function to Downloader.
type DownloaderFunc func(entry *Entry) error

func (f DownloaderFunc) Sync(entry *Entry) error { return f(entry) }

// NoopDownloader treats every entry as already synchronized. Only valid
// when the store and the local CAS are known to coincide (tests, or a
// single-machine cache with no remote execution backend).
var NoopDownloader Downloader = DownloaderFunc(func(*Entry) error { return nil })

// Store is the target cache (C13): a sharded, two-generation,
// content-addressed map from Key to Entry.
type Store interface {
	// Store persists entry under key within shard's current generation,
	// after downloader has synchronized every artifact entry references.
	Store(shard string, key Key, entry *Entry, downloader Downloader) error
	// Read looks up key within shard: the current generation first, the
	// previous generation second, uplinking a previous-generation hit
	// into the current generation before returning it.
	Read(shard string, key Key) (*Entry, *Info, error)
	// GC rotates shard's generations: the previous generation is
	// discarded, the current generation becomes the new previous
	// generation, and a fresh current generation takes its place.
	GC(shard string) error
	Close() error
}

// Cache binds a Store to a single execution-backend shard, the common
// case: one build invocation targets one execution backend and never
// needs to address another shard by name.
type Cache struct {
	store Store
	shard string
}

// NewCache derives the shard id from backendDescription (§4.13) and
// binds it to store.
func NewCache(store Store, backendDescription string) *Cache {
	return &Cache{store: store, shard: ShardID(backendDescription)}
}

func (c *Cache) Store(key Key, entry *Entry, downloader Downloader) error {
	if err := c.store.Store(c.shard, key, entry, downloader); err != nil {
		return fmt.Errorf("target cache store: %w", err)
	}
	return nil
}

func (c *Cache) Read(key Key) (*Entry, *Info, error) {
	entry, info, err := c.store.Read(c.shard, key)
	if err != nil {
		return nil, nil, fmt.Errorf("target cache read: %w", err)
	}
	return entry, info, nil
}

func (c *Cache) GC() error {
	if err := c.store.GC(c.shard); err != nil {
		return fmt.Errorf("target cache gc: %w", err)
	}
	return nil
}

func (c *Cache) Close() error { return c.store.Close() }
