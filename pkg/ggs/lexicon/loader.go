package lexicon

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// Loaded is the merged result of reading one or more lexicon files.
type Loaded struct {
	Entities   []Entity
	FileHashes map[string]string
	Issues     internalerr.Issues
}

// LoadFiles reads lexicon YAML files.
//
// Expected format:
//
//	entities:
//	  - id: ALLAH
//	    canonical_form: ਅਲਾਹੁ
//	    aliases:
//	      - {form: ਅਲਾਹੁ, type: exact}
//	      - ਅਲਹ
//	    category: divine_name
//	    tradition: islamic
//	    register: perso_arabic
//
// A malformed entry is recorded as an ERROR and skipped. A missing or
// unparseable file, or an ID defined twice, is fatal.
func LoadFiles(paths []string) (*Loaded, error) {
	out := &Loaded{FileHashes: make(map[string]string)}
	seen := make(map[string]string) // id -> file

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, internalerr.NewFatal(schema.PhaseLexical, "LEXICON_MISSING", "cannot read "+path).Wrap(err)
		}
		out.FileHashes[filepath.Base(path)] = hashBytes(data)

		entities, issues, err := parseFile(data, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		out.Issues = append(out.Issues, issues...)

		for _, e := range entities {
			if prev, dup := seen[e.ID]; dup {
				return nil, internalerr.NewFatal(schema.PhaseLexical, "DUPLICATE_ENTITY",
					fmt.Sprintf("entity %s defined in %s and %s", e.ID, prev, e.SourceFile)).Wrap(internalerr.ErrDuplicate)
			}
			seen[e.ID] = e.SourceFile
			out.Entities = append(out.Entities, e)
		}
	}
	return out, nil
}

// ParseEntities decodes one lexicon document held in memory.
func ParseEntities(data []byte, name string) ([]Entity, internalerr.Issues, error) {
	return parseFile(data, name)
}

func parseFile(data []byte, name string) ([]Entity, internalerr.Issues, error) {
	var doc struct {
		Entities []yaml.Node `yaml:"entities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, internalerr.NewFatal(schema.PhaseLexical, "LEXICON_PARSE", "invalid YAML in "+name).Wrap(err)
	}
	if doc.Entities == nil {
		return nil, nil, internalerr.NewFatal(schema.PhaseLexical, "LEXICON_PARSE", name+" has no entities key").
			Wrap(internalerr.ErrSchemaMismatch)
	}

	var (
		entities []Entity
		issues   internalerr.Issues
	)
	for i := range doc.Entities {
		node := &doc.Entities[i]
		var e Entity
		err := node.Decode(&e)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			issues.Add(internalerr.Issue{
				Severity: internalerr.SeverityError,
				Phase:    schema.PhaseLexical,
				Type:     "LEXICON_VALIDATION",
				Message:  err.Error(),
				Context:  map[string]string{"file": name, "line": fmt.Sprint(node.Line)},
			})
			continue
		}
		e.SourceFile = name
		entities = append(entities, e)
	}
	return entities, issues, nil
}
