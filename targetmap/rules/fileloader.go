package rules

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/sourceroot"
)

// DefaultRuleFileName is the conventional name of a module's rule file.
const DefaultRuleFileName = "RULES"

// ruleFileEntry is one rule definition's on-disk shape: a JSON object
// naming the same five field sets, config_vars, taints, body expression
// and config_transitions map that Config carries, keyed by a rule name
// at the file's top level.
type ruleFileEntry struct {
	StringFields      []string                   `json:"string_fields"`
	ConfigFields      []string                   `json:"config_fields"`
	TargetFields      []string                   `json:"target_fields"`
	Implicit          map[string][]string        `json:"implicit"`
	Anonymous         []string                   `json:"anonymous"`
	ConfigVars        []string                   `json:"config_vars"`
	Taints            []string                   `json:"tainted"`
	Expression        json.RawMessage            `json:"expression"`
	ConfigTransitions map[string]json.RawMessage `json:"config_transitions"`
}

// FileRuleProvider is a RuleProvider-shaped reader (targetmap.RuleProvider
// is declared in the consuming package, but this type already satisfies
// it structurally) that loads a module's rule file, one JSON object per
// RULES file, through a *sourceroot.FS.
type FileRuleProvider struct {
	Source   *sourceroot.FS
	FilePath string

	mu    sync.Mutex
	rules map[string]*Rule
}

// NewFileRuleProvider builds a FileRuleProvider reading filePath (e.g.
// "RULES" at the repository root, or "some/module/RULES") off source.
func NewFileRuleProvider(source *sourceroot.FS, filePath string) *FileRuleProvider {
	if filePath == "" {
		filePath = DefaultRuleFileName
	}
	return &FileRuleProvider{Source: source, FilePath: filePath}
}

// Rule implements targetmap.RuleProvider.
func (p *FileRuleProvider) Rule(name string) (*Rule, error) {
	rules, err := p.load()
	if err != nil {
		return nil, err
	}
	r, ok := rules[name]
	if !ok {
		return nil, fmt.Errorf("unknown rule: %s", name)
	}
	return r, nil
}

func (p *FileRuleProvider) load() (map[string]*Rule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rules != nil {
		return p.rules, nil
	}

	data, err := p.Source.ReadFile(p.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading rule file %q: %w", p.FilePath, err)
	}

	var raw map[string]ruleFileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing rule file %q: %w", p.FilePath, err)
	}

	out := make(map[string]*Rule, len(raw))
	for name, entry := range raw {
		r, err := decodeRuleEntry(name, entry)
		if err != nil {
			return nil, fmt.Errorf("rule %q in %q: %w", name, p.FilePath, err)
		}
		out[name] = r
	}
	p.rules = out
	return out, nil
}

func decodeRuleEntry(name string, entry ruleFileEntry) (*Rule, error) {
	body, err := decodeExpr(entry.Expression)
	if err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}

	transitions := make(map[string]expr.Value, len(entry.ConfigTransitions))
	for field, raw := range entry.ConfigTransitions {
		v, err := decodeExpr(raw)
		if err != nil {
			return nil, fmt.Errorf("config_transitions[%q]: %w", field, err)
		}
		transitions[field] = v
	}

	return New(Config{
		Name:              name,
		StringFields:      entry.StringFields,
		ConfigFields:      entry.ConfigFields,
		TargetFields:      entry.TargetFields,
		Implicit:          entry.Implicit,
		Anonymous:         entry.Anonymous,
		ConfigVars:        entry.ConfigVars,
		Taints:            entry.Taints,
		Body:              body,
		ConfigTransitions: transitions,
	})
}

func decodeExpr(raw json.RawMessage) (expr.Value, error) {
	if len(raw) == 0 {
		return expr.MapFromGo(map[string]expr.Value{}), nil
	}
	v, ok := expr.FromJSON(raw)
	if !ok {
		return nil, fmt.Errorf("invalid expression JSON")
	}
	return v, nil
}
