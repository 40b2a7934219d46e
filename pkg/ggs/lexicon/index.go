package lexicon

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
)

// Pattern is one compiled alias.
type Pattern struct {
	ID        int       `json:"id"`
	Form      string    `json:"form"`
	EntityID  string    `json:"entity_id"`
	AliasType AliasType `json:"alias_type"`
	// Raw is the alias as written in the lexicon, before normalization.
	Raw  string `json:"raw"`
	size int
}

// Hit is a raw automaton match: pattern Pattern occupies [Start, End) in
// code points.
type Hit struct {
	Start   int
	End     int
	Pattern int
}

type state struct {
	next map[rune]int32
	fail int32
	// dict is the nearest state on the failure chain that ends a pattern,
	// or -1.
	dict int32
	out  []int32
}

// Index is an Aho-Corasick automaton over all alias forms. It is
// immutable after Compile and safe for concurrent use.
type Index struct {
	entities     map[string]*Entity
	ids          []string
	patterns     []Pattern
	states       []state
	formEntities map[string][]string
	hash         string
}

// Options configures compilation.
type Options struct {
	// Normalize is applied to every alias before insertion so that aliases
	// and corpus text share one canonical form. Nil means identity.
	Normalize func(string) string
}

// Stats summarizes a compiled index.
type Stats struct {
	Entities int `json:"entities"`
	Patterns int `json:"patterns"`
	Forms    int `json:"forms"`
	States   int `json:"states"`
}

// Compile builds the automaton. Entities without declared dimensions get
// derived ones. Invalid entities, duplicate IDs and aliases that vanish
// under normalization are rejected.
func Compile(entities []Entity, opts Options) (*Index, error) {
	norm := opts.Normalize
	if norm == nil {
		norm = func(s string) string { return s }
	}

	idx := &Index{
		entities:     make(map[string]*Entity, len(entities)),
		formEntities: make(map[string][]string),
		states:       []state{{next: map[rune]int32{}, dict: -1}},
	}

	for i := range entities {
		e := entities[i]
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := idx.entities[e.ID]; dup {
			return nil, fmt.Errorf("%w: entity %s", internalerr.ErrDuplicate, e.ID)
		}
		e.Aliases = append([]Alias(nil), e.Aliases...)
		if len(e.Dimensions) == 0 {
			e.Dimensions = DeriveDimensions(&e)
		} else {
			e.Dimensions = append(e.Dimensions[:0:0], e.Dimensions...)
		}
		idx.entities[e.ID] = &e
		idx.ids = append(idx.ids, e.ID)
	}
	sort.Strings(idx.ids)

	for _, id := range idx.ids {
		e := idx.entities[id]
		seen := make(map[Alias]struct{})
		for _, a := range e.Aliases {
			form := norm(a.Form)
			if form == "" {
				return nil, fmt.Errorf("%w: entity %s alias %q is empty after normalization", internalerr.ErrInvalidInput, id, a.Form)
			}
			key := Alias{Form: form, Type: a.Type}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			p := Pattern{
				ID:        len(idx.patterns),
				Form:      form,
				EntityID:  id,
				AliasType: a.Type,
				Raw:       a.Form,
				size:      len([]rune(form)),
			}
			idx.patterns = append(idx.patterns, p)
			idx.insert(form, int32(p.ID))
			idx.formEntities[form] = appendUnique(idx.formEntities[form], id)
		}
	}

	idx.link()
	idx.hash = idx.computeHash()
	return idx, nil
}

func appendUnique(ids []string, id string) []string {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	ids = append(ids, id)
	sort.Strings(ids)
	return ids
}

func (idx *Index) insert(form string, pattern int32) {
	cur := int32(0)
	for _, r := range form {
		nxt, ok := idx.states[cur].next[r]
		if !ok {
			nxt = int32(len(idx.states))
			idx.states = append(idx.states, state{next: map[rune]int32{}, dict: -1})
			idx.states[cur].next[r] = nxt
		}
		cur = nxt
	}
	idx.states[cur].out = append(idx.states[cur].out, pattern)
}

// link computes failure and dictionary links breadth first. Children are
// visited in rune order so state numbering never depends on map order.
func (idx *Index) link() {
	queue := make([]int32, 0, len(idx.states))
	for _, r := range sortedKeys(idx.states[0].next) {
		child := idx.states[0].next[r]
		idx.states[child].fail = 0
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, r := range sortedKeys(idx.states[cur].next) {
			child := idx.states[cur].next[r]
			f := idx.states[cur].fail
			for {
				if nxt, ok := idx.states[f].next[r]; ok && nxt != child {
					idx.states[child].fail = nxt
					break
				}
				if f == 0 {
					idx.states[child].fail = 0
					break
				}
				f = idx.states[f].fail
			}
			fs := idx.states[child].fail
			if len(idx.states[fs].out) > 0 {
				idx.states[child].dict = fs
			} else {
				idx.states[child].dict = idx.states[fs].dict
			}
			queue = append(queue, child)
		}
	}
}

func sortedKeys(m map[rune]int32) []rune {
	keys := make([]rune, 0, len(m))
	for r := range m {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Scan reports every occurrence of every pattern in text, in O(len(text)
// + hits). Hits are ordered by (Start, -length, Pattern).
func (idx *Index) Scan(text []rune) []Hit {
	var hits []Hit
	cur := int32(0)
	for i, r := range text {
		for {
			if nxt, ok := idx.states[cur].next[r]; ok {
				cur = nxt
				break
			}
			if cur == 0 {
				break
			}
			cur = idx.states[cur].fail
		}
		for s := cur; s > 0; s = idx.states[s].dict {
			for _, pid := range idx.states[s].out {
				p := &idx.patterns[pid]
				hits = append(hits, Hit{Start: i + 1 - p.size, End: i + 1, Pattern: int(pid)})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.Pattern < b.Pattern
	})
	return hits
}

// Pattern returns a compiled pattern by ID.
func (idx *Index) Pattern(id int) Pattern {
	return idx.patterns[id]
}

// Entity returns an entity by ID.
func (idx *Index) Entity(id string) (*Entity, bool) {
	e, ok := idx.entities[id]
	return e, ok
}

// Entities returns all entities in ID order.
func (idx *Index) Entities() []*Entity {
	out := make([]*Entity, len(idx.ids))
	for i, id := range idx.ids {
		out[i] = idx.entities[id]
	}
	return out
}

// EntitiesForForm returns the IDs of all entities with an alias equal to
// the normalized form.
func (idx *Index) EntitiesForForm(form string) []string {
	return idx.formEntities[form]
}

// Hash identifies the compiled content: entities plus normalized forms.
func (idx *Index) Hash() string {
	return idx.hash
}

func (idx *Index) computeHash() string {
	payload := struct {
		Entities []*Entity `json:"entities"`
		Patterns []Pattern `json:"patterns"`
	}{idx.Entities(), idx.patterns}
	data, _ := json.Marshal(payload)
	return hashBytes(data)
}

// Stats returns index statistics.
func (idx *Index) Stats() Stats {
	return Stats{
		Entities: len(idx.ids),
		Patterns: len(idx.patterns),
		Forms:    len(idx.formEntities),
		States:   len(idx.states),
	}
}
