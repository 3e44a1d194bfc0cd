// Package badgerstore is the alternate target-cache backend (C13),
// selected by the --cache-backend=badger CLI flag in place of the
// default bbolt-backed store.
package badgerstore

import (
	badger "github.com/dgraph-io/badger/v4"

	"fmt"

	"github.com/evalgo/eve-build/common"
	"github.com/evalgo/eve-build/targetcache"
)

// Store implements targetcache.Store on top of an embedded badger
// key-value database. Generations are key-prefix namespaces ("cur/" and
// "prev/") rather than separate buckets, since badger has no bucket
// concept of its own.
type Store struct {
	db     *badger.DB
	logger *common.ContextLogger
}

// Open opens or creates the badger database backing the cache at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger target cache %q: %w", path, err)
	}
	logger := common.NewContextLogger(common.Logger, map[string]interface{}{
		"component": "targetcache", "backend": "badger", "path": path,
	})
	return &Store{db: db, logger: logger}, nil
}

var _ targetcache.Store = (*Store)(nil)

func (s *Store) Close() error { return s.db.Close() }

func curKey(shard, key string) []byte  { return []byte("cur/" + shard + "/" + key) }
func prevKey(shard, key string) []byte { return []byte("prev/" + shard + "/" + key) }

func (s *Store) Store(shard string, key targetcache.Key, entry *targetcache.Entry, downloader targetcache.Downloader) error {
	if downloader != nil {
		if err := downloader.Sync(entry); err != nil {
			return fmt.Errorf("synchronizing cache entry artifacts: %w", err)
		}
	}
	data, err := entry.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(curKey(shard, key.String()), data)
	})
}

func (s *Store) Read(shard string, key targetcache.Key) (*targetcache.Entry, *targetcache.Info, error) {
	var data []byte
	var info *targetcache.Info
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(curKey(shard, key.String()))
		switch err {
		case nil:
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			data = v
			info = &targetcache.Info{Generation: targetcache.GenerationCurrent}
			return nil
		case badger.ErrKeyNotFound:
			// fall through to the previous generation
		default:
			return err
		}

		item, err = txn.Get(prevKey(shard, key.String()))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data = v
		info = &targetcache.Info{Generation: targetcache.GenerationPrevious}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return nil, nil, nil
	}
	entry, err := targetcache.UnmarshalEntry(data, shard)
	if err != nil {
		return nil, nil, err
	}
	if info.Generation == targetcache.GenerationPrevious {
		if err := s.uplink(shard, key, data); err != nil {
			return nil, nil, fmt.Errorf("uplinking cache entry: %w", err)
		}
		info.Uplinked = true
		s.logger.WithField("shard", shard).WithField("key", key.String()).Debug("uplinked previous-generation cache entry")
	}
	return entry, info, nil
}

func (s *Store) uplink(shard string, key targetcache.Key, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(curKey(shard, key.String())); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(curKey(shard, key.String()), data)
	})
}

// GC rotates shard's generations: the previous-generation namespace is
// dropped, the current-generation namespace is renamed into it, and a
// fresh current namespace is implicitly ready (badger needs no explicit
// creation step for an empty key prefix).
func (s *Store) GC(shard string) error {
	s.logger.WithField("shard", shard).Info("rotating target cache generations")
	prevPrefix := []byte("prev/" + shard + "/")
	if err := s.db.Update(func(txn *badger.Txn) error {
		return deletePrefix(txn, prevPrefix)
	}); err != nil {
		return fmt.Errorf("dropping previous generation: %w", err)
	}

	curPrefix := []byte("cur/" + shard + "/")
	moved := map[string][]byte{}
	if err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(curPrefix); it.ValidForPrefix(curPrefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			moved[string(item.KeyCopy(nil))] = v
		}
		return nil
	}); err != nil {
		return fmt.Errorf("scanning current generation: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range moved {
			newKey := append([]byte("prev/"), []byte(k[len("cur/"):])...)
			if err := txn.Set(newKey, v); err != nil {
				return err
			}
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
