package targetcache

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evalgo/eve-build/common"
)

const boltOpenTimeout = 1 * time.Second

// BoltStore is the primary target-cache backend (§4.13), an embedded
// bbolt database opened the way the teacher's db/bolt wrapper opens one.
// Each shard is a pair of buckets, "<shard>/cur" and "<shard>/prev",
// standing in for the newest and previous on-disk generation; a bbolt
// bucket entry keyed by the cache key's hex digest realizes the
// content-addressed file-store §6 describes, without the file-handle
// proliferation literal per-entry files would cost.
type BoltStore struct {
	db     *bolt.DB
	gcMu   sync.Mutex
	logger *common.ContextLogger
}

// OpenBoltStore opens or creates the bbolt database backing the cache.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening target cache %q: %w", path, err)
	}
	logger := common.NewContextLogger(common.Logger, map[string]interface{}{
		"component": "targetcache", "backend": "bolt", "path": path,
	})
	return &BoltStore{db: db, logger: logger}, nil
}

var _ Store = (*BoltStore)(nil)

func (s *BoltStore) Close() error { return s.db.Close() }

func curBucket(shard string) []byte  { return []byte(shard + "/cur") }
func prevBucket(shard string) []byte { return []byte(shard + "/prev") }

func (s *BoltStore) Store(shard string, key Key, entry *Entry, downloader Downloader) error {
	if downloader != nil {
		if err := downloader.Sync(entry); err != nil {
			return fmt.Errorf("synchronizing cache entry artifacts: %w", err)
		}
	}
	data, err := entry.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(curBucket(shard))
		if err != nil {
			return fmt.Errorf("opening shard %q: %w", shard, err)
		}
		return b.Put([]byte(key.String()), data)
	})
}

func (s *BoltStore) Read(shard string, key Key) (*Entry, *Info, error) {
	var data []byte
	var info *Info
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(curBucket(shard)); b != nil {
			if v := b.Get([]byte(key.String())); v != nil {
				data = append([]byte(nil), v...)
				info = &Info{Generation: GenerationCurrent}
				return nil
			}
		}
		if b := tx.Bucket(prevBucket(shard)); b != nil {
			if v := b.Get([]byte(key.String())); v != nil {
				data = append([]byte(nil), v...)
				info = &Info{Generation: GenerationPrevious}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return nil, nil, nil
	}
	entry, err := UnmarshalEntry(data, shard)
	if err != nil {
		return nil, nil, err
	}
	if info.Generation == GenerationPrevious {
		if err := s.uplink(shard, key, data); err != nil {
			return nil, nil, fmt.Errorf("uplinking cache entry: %w", err)
		}
		info.Uplinked = true
		s.logger.WithField("shard", shard).WithField("key", key.String()).Debug("uplinked previous-generation cache entry")
	}
	return entry, info, nil
}

// uplink copies a previous-generation hit into the current generation,
// deferring to whatever is already there: a concurrent writer's fresher
// entry must not be clobbered by a stale uplink (§5 "per-key
// last-writer-wins policy holds in the newest generation").
func (s *BoltStore) uplink(shard string, key Key, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(curBucket(shard))
		if err != nil {
			return err
		}
		if existing := b.Get([]byte(key.String())); existing != nil {
			return nil
		}
		return b.Put([]byte(key.String()), data)
	})
}

// GC rotates shard's generations under gcMu, standing in for the
// exclusive file lock §5 assigns to garbage collection.
func (s *BoltStore) GC(shard string) error {
	s.gcMu.Lock()
	defer s.gcMu.Unlock()
	s.logger.WithField("shard", shard).Info("rotating target cache generations")
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(prevBucket(shard)); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("dropping previous generation: %w", err)
		}
		cur := tx.Bucket(curBucket(shard))
		if cur == nil {
			return nil
		}
		prev, err := tx.CreateBucket(prevBucket(shard))
		if err != nil {
			return fmt.Errorf("creating previous generation: %w", err)
		}
		if err := cur.ForEach(func(k, v []byte) error {
			return prev.Put(append([]byte(nil), k...), append([]byte(nil), v...))
		}); err != nil {
			return fmt.Errorf("rotating generation: %w", err)
		}
		return tx.DeleteBucket(curBucket(shard))
	})
}
