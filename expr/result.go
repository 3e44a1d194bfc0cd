package expr

import (
	"bytes"

	"github.com/evalgo/eve-build/expr/exhash"
)

// ResultValue is the {artifact_stage, runfiles, provides} triple
// representing a target's output.
type ResultValue struct {
	memo
	ArtifactStage *MapValue
	Runfiles      *MapValue
	Provides      *MapValue
}

func NewResult(artifactStage, runfiles, provides *MapValue) Value {
	if artifactStage == nil {
		artifactStage = &MapValue{Map: EmptyMap()}
	}
	if runfiles == nil {
		runfiles = &MapValue{Map: EmptyMap()}
	}
	if provides == nil {
		provides = &MapValue{Map: EmptyMap()}
	}
	return &ResultValue{ArtifactStage: artifactStage, Runfiles: runfiles, Provides: provides}
}

func (r *ResultValue) Kind() Kind         { return KindResult }
func (r *ResultValue) TypeString() string { return "result" }
func (r *ResultValue) Equal(o Value) bool { return equalByHash(r, o) }

// IsCacheable is true iff provides is cacheable (§3.5): the stage maps
// are, by construction post-analysis, already free of names.
func (r *ResultValue) IsCacheable() bool {
	return r.getCacheable(func() bool { return r.Provides.IsCacheable() })
}

func (r *ResultValue) ToJSON(mode JSONMode) ([]byte, error) {
	if mode == NullForNonJSON {
		return []byte("null"), nil
	}
	stage, err := r.ArtifactStage.ToJSON(mode)
	if err != nil {
		return nil, err
	}
	runfiles, err := r.Runfiles.ToJSON(mode)
	if err != nil {
		return nil, err
	}
	provides, err := r.Provides.ToJSON(mode)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":"RESULT","artifacts":`)
	buf.Write(stage)
	buf.WriteString(`,"runfiles":`)
	buf.Write(runfiles)
	buf.WriteString(`,"provides":`)
	buf.Write(provides)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToHash hashes the canonical JSON rendered with SerializeAllButNodes so
// that node values embedded in provides render as opaque id references
// rather than being expanded, which is how result hashing avoids needing
// to detect cycles through node-wrapped results.
func (r *ResultValue) ToHash() exhash.Digest {
	return r.getHash(func() exhash.Digest {
		data, err := r.ToJSON(SerializeAllButNodes)
		if err != nil {
			data = []byte("null")
		}
		return hashResultJSON(data)
	})
}
func (r *ResultValue) ToIdentifier() string { return r.ToHash().String() }

func (r *ResultValue) ToString() string {
	data, _ := r.ToJSON(SerializeAll)
	return string(data)
}
func (r *ResultValue) ToAbbrevString(limit int) string { return toAbbrev(r.ToString(), limit) }
