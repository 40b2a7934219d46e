package lexicon

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Polysemy records a surface form with known alternative readings.
type Polysemy struct {
	Form         string            `json:"form" yaml:"form"`
	Level        schema.Confidence `json:"level" yaml:"level"`
	Alternatives []string          `json:"alternatives" yaml:"alternatives"`
	Note         string            `json:"note,omitempty" yaml:"note"`
}

// PolysemyTable maps surface forms to their polysemy entry. A nil table
// is empty.
type PolysemyTable struct {
	entries map[string]Polysemy
}

// NewPolysemyTable validates and indexes entries. Levels must be MEDIUM or
// LOW; a form may appear once.
func NewPolysemyTable(entries []Polysemy) (*PolysemyTable, error) {
	t := &PolysemyTable{entries: make(map[string]Polysemy, len(entries))}
	for _, p := range entries {
		if p.Form == "" {
			return nil, fmt.Errorf("%w: polysemy entry without form", internalerr.ErrInvalidInput)
		}
		if p.Level != schema.Medium && p.Level != schema.Low {
			return nil, fmt.Errorf("%w: polysemy %q has level %q", internalerr.ErrInvalidInput, p.Form, p.Level)
		}
		if _, dup := t.entries[p.Form]; dup {
			return nil, fmt.Errorf("%w: polysemy form %q", internalerr.ErrDuplicate, p.Form)
		}
		alts := append([]string(nil), p.Alternatives...)
		sort.Strings(alts)
		p.Alternatives = alts
		t.entries[p.Form] = p
	}
	return t, nil
}

// LoadPolysemy reads a polysemy YAML file:
//
//	entries:
//	  - form: ਹਰਿ
//	    level: MEDIUM
//	    alternatives: [HARI, HARI_GREEN]
func LoadPolysemy(path string) (*PolysemyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, internalerr.NewFatal(schema.PhaseLexical, "POLYSEMY_MISSING", "cannot read "+path).Wrap(err)
	}
	var doc struct {
		Entries []Polysemy `yaml:"entries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, internalerr.NewFatal(schema.PhaseLexical, "POLYSEMY_PARSE", "invalid YAML in "+path).Wrap(err)
	}
	t, err := NewPolysemyTable(doc.Entries)
	if err != nil {
		return nil, internalerr.NewFatal(schema.PhaseLexical, "POLYSEMY_INVALID", path).Wrap(err)
	}
	return t, nil
}

// Lookup returns the entry for a form.
func (t *PolysemyTable) Lookup(form string) (Polysemy, bool) {
	if t == nil {
		return Polysemy{}, false
	}
	p, ok := t.entries[form]
	return p, ok
}

// Len returns the number of entries.
func (t *PolysemyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Normalized returns a copy keyed by normalized forms, so lookups use the
// same canonical text as the corpus. Entries that collapse onto one form
// merge their alternatives and keep the lower level.
func (t *PolysemyTable) Normalized(fn func(string) string) *PolysemyTable {
	out := &PolysemyTable{entries: make(map[string]Polysemy, t.Len())}
	if t == nil {
		return out
	}
	for _, form := range t.forms() {
		p := t.entries[form]
		key := fn(form)
		if prev, ok := out.entries[key]; ok {
			if p.Level.Rank() > prev.Level.Rank() {
				p.Level = prev.Level
			}
			p.Alternatives = mergeSorted(prev.Alternatives, p.Alternatives)
		}
		p.Form = key
		out.entries[key] = p
	}
	return out
}

// Hash is a SHA-256 over the entries in form order.
func (t *PolysemyTable) Hash() string {
	list := make([]Polysemy, 0, t.Len())
	for _, f := range t.forms() {
		list = append(list, t.entries[f])
	}
	data, _ := json.Marshal(list)
	return hashBytes(data)
}

func (t *PolysemyTable) forms() []string {
	if t == nil {
		return nil
	}
	forms := make([]string, 0, len(t.entries))
	for f := range t.entries {
		forms = append(forms, f)
	}
	sort.Strings(forms)
	return forms
}

func mergeSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
