// Package targetcache implements the target cache (C13): a content-
// addressed, generation-rotated store mapping (repository fingerprint,
// target, effective configuration) to a serialized analysis result.
package targetcache

import (
	"encoding/json"
	"fmt"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetmap"
)

// Key is the target-cache lookup key (§4.13): the digest of the
// {repo_key, target, effective_config} encoding (§6 "target-cache key
// encoding"), used directly as the file-store path within a shard.
type Key struct {
	Digest exhash.Digest
}

func (k Key) String() string { return k.Digest.String() }

func (k Key) IsZero() bool { return k.Digest.IsZero() }

// keyEncoding is the three-field JSON object §6 specifies: repo_key as
// hex, target as [repo, module, name], effective_config as its own
// canonical JSON rendering.
type keyEncoding struct {
	RepoKey         string          `json:"repo_key"`
	Target          [3]string       `json:"target"`
	EffectiveConfig json.RawMessage `json:"effective_config"`
}

// ComputeKey implements compute_key(repo_key, target, effective_config).
func ComputeKey(repoKey exhash.Digest, target targetmap.TargetName, effectiveConfig *expr.Configuration) (Key, error) {
	cfgJSON, err := effectiveConfig.Vars().ToJSON(expr.SerializeAll)
	if err != nil {
		return Key{}, fmt.Errorf("encoding effective configuration: %w", err)
	}
	enc := keyEncoding{
		RepoKey:         repoKey.String(),
		Target:          [3]string{target.Repository, target.Module, target.Name},
		EffectiveConfig: cfgJSON,
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return Key{}, fmt.Errorf("encoding target-cache key: %w", err)
	}
	return Key{Digest: exhash.Compute(data)}, nil
}

// ShardID names the filesystem/bucket shard a store segregates results
// into: the digest of an opaque description of the execution backend
// that would produce them (§4.13 "sharded by a description of the
// execution backend").
func ShardID(backendDescription string) string {
	return exhash.Compute([]byte(backendDescription)).String()
}
