package lexicon

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
)

// Finding is one lint result.
type Finding struct {
	Severity internalerr.Severity `json:"severity"`
	Check    string               `json:"check"`
	Form     string               `json:"form"`
	Entities []string             `json:"entities"`
	Message  string               `json:"message"`
}

// LintOptions tunes the lint checks.
type LintOptions struct {
	Normalize func(string) string
	// NearDuplicate is the Levenshtein similarity at or above which two
	// aliases of different entities are reported. Zero disables the check.
	NearDuplicate float32
	Polysemy      *PolysemyTable
}

// DefaultLintOptions returns the thresholds used by the lint command.
func DefaultLintOptions() LintOptions {
	return LintOptions{NearDuplicate: 0.8}
}

type aliasRef struct {
	entity string
	raw    string
	form   string
}

// Lint inspects a lexicon for problems the loader tolerates:
//   - shared aliases not declared in the polysemy table
//   - aliases changed by normalization, and distinct aliases that
//     normalize to one form
//   - near-duplicate aliases across entities (likely typos)
//   - aliases with no letters at all
//
// Findings are sorted by check, then form.
func Lint(entities []Entity, opts LintOptions) []Finding {
	norm := opts.Normalize
	if norm == nil {
		norm = func(s string) string { return s }
	}

	var refs []aliasRef
	for _, e := range entities {
		for _, a := range e.Aliases {
			refs = append(refs, aliasRef{entity: e.ID, raw: a.Form, form: norm(a.Form)})
		}
	}

	var out []Finding

	byForm := make(map[string][]aliasRef)
	for _, r := range refs {
		byForm[r.form] = append(byForm[r.form], r)

		if r.raw != r.form {
			out = append(out, Finding{
				Severity: internalerr.SeverityWarning,
				Check:    "normalization_changed",
				Form:     r.raw,
				Entities: []string{r.entity},
				Message:  fmt.Sprintf("alias normalizes to %q", r.form),
			})
		}
		if !hasLetter(r.form) {
			out = append(out, Finding{
				Severity: internalerr.SeverityError,
				Check:    "no_letters",
				Form:     r.raw,
				Entities: []string{r.entity},
				Message:  "alias contains no letters",
			})
		}
	}

	for form, group := range byForm {
		ids := distinctEntities(group)
		raws := distinctRaw(group)
		if len(ids) > 1 {
			if _, declared := opts.Polysemy.Lookup(form); !declared {
				out = append(out, Finding{
					Severity: internalerr.SeverityWarning,
					Check:    "duplicate_alias",
					Form:     form,
					Entities: ids,
					Message:  "alias shared by several entities but missing from the polysemy table",
				})
			}
		}
		if len(raws) > 1 && len(ids) > 1 {
			out = append(out, Finding{
				Severity: internalerr.SeverityWarning,
				Check:    "normalization_collision",
				Form:     form,
				Entities: ids,
				Message:  "distinct aliases collapse to one form: " + strings.Join(raws, ", "),
			})
		}
	}

	if opts.NearDuplicate > 0 {
		out = append(out, nearDuplicates(byForm, opts.NearDuplicate)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Check != out[j].Check {
			return out[i].Check < out[j].Check
		}
		if out[i].Form != out[j].Form {
			return out[i].Form < out[j].Form
		}
		return strings.Join(out[i].Entities, ",") < strings.Join(out[j].Entities, ",")
	})
	return out
}

func nearDuplicates(byForm map[string][]aliasRef, threshold float32) []Finding {
	forms := make([]string, 0, len(byForm))
	for f := range byForm {
		forms = append(forms, f)
	}
	sort.Strings(forms)

	var out []Finding
	for i := 0; i < len(forms); i++ {
		a := forms[i]
		la := len([]rune(a))
		for j := i + 1; j < len(forms); j++ {
			b := forms[j]
			lb := len([]rune(b))
			if la < 3 || lb < 3 || abs(la-lb) > 2 {
				continue
			}
			idsA := distinctEntities(byForm[a])
			idsB := distinctEntities(byForm[b])
			if sameSet(idsA, idsB) {
				continue
			}
			sim, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
			if err != nil || sim < threshold {
				continue
			}
			out = append(out, Finding{
				Severity: internalerr.SeverityWarning,
				Check:    "near_duplicate",
				Form:     a,
				Entities: mergeSorted(idsA, idsB),
				Message:  fmt.Sprintf("similar to %q (%.2f)", b, sim),
			})
		}
	}
	return out
}

func distinctEntities(refs []aliasRef) []string {
	set := make(map[string]struct{})
	for _, r := range refs {
		set[r.entity] = struct{}{}
	}
	return setToSorted(set)
}

func distinctRaw(refs []aliasRef) []string {
	set := make(map[string]struct{})
	for _, r := range refs {
		set[r.raw] = struct{}{}
	}
	return setToSorted(set)
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
