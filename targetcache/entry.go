package targetcache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/targetmap"
)

// Entry is a cache entry (§4.13): a target result serialized via §4.10
// with every non-known artifact replaced by its known digest, plus the
// set of implied export names and an opaque execution-backend
// description that never participates in the cache key.
type Entry struct {
	ArtifactStage *expr.MapValue
	Runfiles      *expr.MapValue
	Provides      *expr.MapValue
	Implied       []string
	Tooling       string
}

// NewEntry builds a cache entry from an analyzed target's result. Callers
// are responsible for having already checked result.IsCacheable(); an
// entry built from a result still carrying local or action-shaped
// artifacts will fail to encode.
func NewEntry(result *expr.ResultValue, implied []string, tooling string) *Entry {
	return &Entry{
		ArtifactStage: result.ArtifactStage,
		Runfiles:      result.Runfiles,
		Provides:      result.Provides,
		Implied:       append([]string(nil), implied...),
		Tooling:       tooling,
	}
}

// Result reconstructs the {artifact_stage, runfiles, provides} triple.
func (e *Entry) Result() *expr.ResultValue {
	return expr.NewResult(e.ArtifactStage, e.Runfiles, e.Provides).(*expr.ResultValue)
}

// entryWire is the on-disk blob shape (§6 "target-cache on-disk
// format"): {artifacts, runfiles, provides, implied}.
type entryWire struct {
	Artifacts json.RawMessage `json:"artifacts"`
	Runfiles  json.RawMessage `json:"runfiles"`
	Provides  json.RawMessage `json:"provides"`
	Implied   []string        `json:"implied"`
}

// Marshal renders the entry into its on-disk blob form. The provides
// field is encoded via the §4.10 deduplicated-nodes scheme
// (targetmap.SerializeResult), wrapping it in a synthetic result with
// empty stage maps since that scheme operates on a whole result.
func (e *Entry) Marshal() ([]byte, error) {
	stage, err := e.ArtifactStage.ToJSON(expr.SerializeAll)
	if err != nil {
		return nil, fmt.Errorf("encoding artifact stage: %w", err)
	}
	runfiles, err := e.Runfiles.ToJSON(expr.SerializeAll)
	if err != nil {
		return nil, fmt.Errorf("encoding runfiles: %w", err)
	}
	providesResult := expr.NewResult(nil, nil, e.Provides).(*expr.ResultValue)
	serialized, err := targetmap.SerializeResult(providesResult, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding provides: %w", err)
	}
	provides, err := json.Marshal(serialized)
	if err != nil {
		return nil, fmt.Errorf("encoding provides: %w", err)
	}
	implied, err := json.Marshal(e.Implied)
	if err != nil {
		return nil, fmt.Errorf("encoding implied exports: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"artifacts":`)
	buf.Write(stage)
	buf.WriteString(`,"runfiles":`)
	buf.Write(runfiles)
	buf.WriteString(`,"provides":`)
	buf.Write(provides)
	buf.WriteString(`,"implied":`)
	buf.Write(implied)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalEntry parses a stored blob back into an Entry. tooling is the
// shard-carried execution-backend description, passed in rather than
// encoded in the blob since it is the shard key, not entry content.
func UnmarshalEntry(data []byte, tooling string) (*Entry, error) {
	var wire entryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	stage, err := decodeStageMap(wire.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("decoding artifact stage: %w", err)
	}
	runfiles, err := decodeStageMap(wire.Runfiles)
	if err != nil {
		return nil, fmt.Errorf("decoding runfiles: %w", err)
	}
	var serialized targetmap.SerializedResult
	if err := json.Unmarshal(wire.Provides, &serialized); err != nil {
		return nil, fmt.Errorf("decoding provides: %w", err)
	}
	providesResult, err := targetmap.DeserializeResult(&serialized)
	if err != nil {
		return nil, fmt.Errorf("decoding provides: %w", err)
	}
	return &Entry{
		ArtifactStage: stage,
		Runfiles:      runfiles,
		Provides:      providesResult.Provides,
		Implied:       wire.Implied,
		Tooling:       tooling,
	}, nil
}

// decodeStageMap decodes a path→artifact map, the shape both
// artifact_stage and runfiles share.
func decodeStageMap(data json.RawMessage) (*expr.MapValue, error) {
	v, err := decodeValueTree(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("stage must decode to a map")
	}
	return m, nil
}
