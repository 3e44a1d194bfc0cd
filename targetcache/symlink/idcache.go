package symlink

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evalgo/eve-build/common"
	"github.com/evalgo/eve-build/expr/exhash"
)

var idCacheBucket = []byte("resolved")

// IDCache is the persistent ID-file §4.14 requires: it remembers the
// resolved tree id for a given (input stage tree id, policy) pair so a
// repeated resolution is a lookup rather than a re-walk.
type IDCache struct {
	db     *bolt.DB
	logger *common.ContextLogger
}

// OpenIDCache opens or creates the bbolt-backed id-file at path.
func OpenIDCache(path string) (*IDCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening symlink id-file %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(idCacheBucket)
		return err
	}); err != nil {
		return nil, fmt.Errorf("initializing symlink id-file %q: %w", path, err)
	}
	logger := common.NewContextLogger(common.Logger, map[string]interface{}{
		"component": "symlink", "path": path,
	})
	return &IDCache{db: db, logger: logger}, nil
}

func (c *IDCache) Close() error { return c.db.Close() }

func idCacheKey(stageID TreeID, policy Policy) []byte {
	return []byte(stageID.String() + "/" + string(policy))
}

// Lookup returns the cached resolved tree id for (stageID, policy), if
// present.
func (c *IDCache) Lookup(stageID TreeID, policy Policy) (TreeID, bool, error) {
	var found TreeID
	var ok bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(idCacheBucket)
		v := b.Get(idCacheKey(stageID, policy))
		if v == nil {
			return nil
		}
		digest, err := exhash.FromHex(string(v))
		if err != nil {
			return fmt.Errorf("decoding cached tree id: %w", err)
		}
		found = digest
		ok = true
		return nil
	})
	return found, ok, err
}

// Store records the resolved tree id for (stageID, policy).
func (c *IDCache) Store(stageID TreeID, policy Policy, resolved TreeID) error {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(idCacheBucket)
		return b.Put(idCacheKey(stageID, policy), []byte(resolved.String()))
	}); err != nil {
		return err
	}
	c.logger.WithField("policy", string(policy)).Debug("cached symlink resolution")
	return nil
}

// Resolver ties stage resolution to the persistent id-file cache: the
// input stage's tree id gates a lookup before any symlink is walked.
type Resolver struct {
	cache  *IDCache
	reader ContentReader
}

func NewResolver(cache *IDCache, reader ContentReader) *Resolver {
	return &Resolver{cache: cache, reader: reader}
}

// Resolve resolves stage under policy, consulting and then updating the
// persistent id-file cache, and returns the resolved tree id.
func (r *Resolver) Resolve(stage Stage, policy Policy) (TreeID, error) {
	inputID, err := hashStage(stage)
	if err != nil {
		return TreeID{}, err
	}
	if cached, ok, err := r.cache.Lookup(inputID, policy); err != nil {
		return TreeID{}, fmt.Errorf("looking up cached symlink resolution: %w", err)
	} else if ok {
		return cached, nil
	}
	_, resolvedID, err := ResolveStage(stage, policy, r.reader)
	if err != nil {
		return TreeID{}, err
	}
	if err := r.cache.Store(inputID, policy, resolvedID); err != nil {
		return TreeID{}, fmt.Errorf("storing symlink resolution: %w", err)
	}
	return resolvedID, nil
}
