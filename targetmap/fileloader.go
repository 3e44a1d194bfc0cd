package targetmap

import (
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/sourceroot"
)

// DefaultTargetFileName is the conventional name of a module's
// target-description file, read off its directory the way a module's
// rule file is read off RULES ("Target-description format", §6).
const DefaultTargetFileName = "TARGETS"

// FileTargetLoader is a TargetLoader reading JSON target-description
// files off a source tree through a *sourceroot.FS: "JSON object;
// top-level keys are target names. Each target is an object whose
// `type` key names a built-in or user rule." (§6). A module's
// description file lives at "<module>/<FileName>"; Repository is
// carried through to the returned TargetDescription unchanged (this
// loader serves a single checked-out repository — a multi-repository
// binding layer, if ever built, would wrap several of these, one per
// bound repository).
type FileTargetLoader struct {
	Source   *sourceroot.FS
	FileName string

	cacheMu sync.Mutex
	cache   map[string]map[string]*TargetDescription
}

// NewFileTargetLoader builds a FileTargetLoader reading DefaultTargetFileName
// off source.
func NewFileTargetLoader(source *sourceroot.FS) *FileTargetLoader {
	return &FileTargetLoader{Source: source, FileName: DefaultTargetFileName}
}

// Load implements TargetLoader.
func (l *FileTargetLoader) Load(repository, module, name string) (*TargetDescription, error) {
	targets, err := l.loadModule(repository, module)
	if err != nil {
		return nil, err
	}
	desc, ok := targets[name]
	if !ok {
		return nil, fmt.Errorf("target %q not found in module %q", name, module)
	}
	return desc, nil
}

func (l *FileTargetLoader) loadModule(repository, module string) (map[string]*TargetDescription, error) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	if l.cache == nil {
		l.cache = map[string]map[string]*TargetDescription{}
	}
	cacheKey := repository + "@" + module
	if targets, ok := l.cache[cacheKey]; ok {
		return targets, nil
	}

	fileName := l.FileName
	if fileName == "" {
		fileName = DefaultTargetFileName
	}
	filePath := path.Join(module, fileName)
	data, err := l.Source.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading target description %q: %w", filePath, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing target description %q: %w", filePath, err)
	}

	targets := make(map[string]*TargetDescription, len(raw))
	for name, entryData := range raw {
		desc, err := decodeTargetDescription(repository, module, name, entryData)
		if err != nil {
			return nil, fmt.Errorf("target %q in %q: %w", name, filePath, err)
		}
		targets[name] = desc
	}
	l.cache[cacheKey] = targets
	return targets, nil
}

func decodeTargetDescription(repository, module, name string, data json.RawMessage) (*TargetDescription, error) {
	val, ok := expr.FromJSON(data)
	if !ok {
		return nil, fmt.Errorf("invalid JSON value")
	}
	entry, ok := val.(*expr.MapValue)
	if !ok {
		return nil, fmt.Errorf("target entry must be a JSON object")
	}

	typeVal, ok := entry.Find("type")
	if !ok {
		return nil, fmt.Errorf(`missing required "type" field`)
	}
	typeStr, ok := typeVal.(*expr.StringValue)
	if !ok {
		return nil, fmt.Errorf(`"type" field must be a string`)
	}

	fields := make(map[string]expr.Value)
	for _, kv := range entry.Map.Items() {
		if kv.Key == "type" {
			continue
		}
		fields[kv.Key] = kv.Value
	}

	return &TargetDescription{
		Repository: repository,
		Module:     module,
		Name:       name,
		Type:       typeStr.V,
		Fields:     fields,
	}, nil
}
