package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/ggs/pkg/ggs/internalerr"
	"github.com/cognicore/ggs/pkg/ggs/normalize"
	"github.com/cognicore/ggs/pkg/ggs/schema"
)

// DefaultMaxTokens is the token count above which a line is flagged.
const DefaultMaxTokens = 200

// Pipeline turns raw lines into tokenized Lines:
// raw text → normalization (unless pre-normalized) → tokenization → checks
type Pipeline struct {
	policy     normalize.Policy
	tokenizer  *Tokenizer
	repertoire []normalize.RuneRange
	maxTokens  int
}

// NewPipeline creates a corpus pipeline with the given components.
func NewPipeline(policy normalize.Policy, tokenizer *Tokenizer) *Pipeline {
	return &Pipeline{
		policy:     policy,
		tokenizer:  tokenizer,
		repertoire: normalize.DefaultRepertoire,
		maxTokens:  DefaultMaxTokens,
	}
}

// SetRepertoire overrides the expected character ranges.
func (p *Pipeline) SetRepertoire(r []normalize.RuneRange) {
	p.repertoire = r
}

// SetMaxTokens overrides the token count warning threshold.
func (p *Pipeline) SetMaxTokens(n int) {
	p.maxTokens = n
}

// Policy returns the normalization policy in effect.
func (p *Pipeline) Policy() normalize.Policy {
	return p.policy
}

// Prepare processes one raw line. ok is false when the line was rejected
// with an ERROR and must be skipped.
func (p *Pipeline) Prepare(raw RawLine) (line Line, issues internalerr.Issues, ok bool) {
	text, alt := raw.Text, ""
	if !raw.PreNormalized {
		text, alt = normalize.NormalizeVariants(raw.Text, p.policy)
	}
	uid := LineUID(raw.Seq, text)

	if strings.TrimSpace(text) == "" {
		issues.Error(schema.PhaseCorpus, "EMPTY_LINE", uid, "line %d is empty after normalization", raw.Seq)
		return Line{}, issues, false
	}

	res := p.tokenizer.Tokenize(text)
	line = Line{
		Seq:         raw.Seq,
		UID:         uid,
		Text:        text,
		AltText:     alt,
		Tokens:      res.Tokens,
		Spans:       res.Spans,
		Markers:     res.Markers,
		Composition: raw.Composition,
		Page:        raw.Page,
	}

	if n := len(line.Tokens); p.maxTokens > 0 && n > p.maxTokens {
		issues.Warn(schema.PhaseCorpus, "HIGH_TOKEN_COUNT", uid, "%d tokens exceeds %d", n, p.maxTokens)
	}
	if bad := normalize.UnexpectedRunes(text, p.repertoire); len(bad) > 0 {
		issues.Add(internalerr.Issue{
			Severity: internalerr.SeverityWarning,
			Phase:    schema.PhaseCorpus,
			Type:     "CHARACTER_REPERTOIRE",
			LineUID:  uid,
			Message:  fmt.Sprintf("%d unexpected characters", len(bad)),
		}.With("runes", formatRunes(bad)))
	}
	return line, issues, true
}

func formatRunes(rs []rune) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = fmt.Sprintf("U+%04X", r)
	}
	return strings.Join(parts, " ")
}

// ValidateCorpus checks corpus-wide invariants that no single line can:
// unique sequence positions and unique identities, plus span alignment.
// Any violation is fatal.
func ValidateCorpus(lines []Line) error {
	seqs := make(map[int]string, len(lines))
	uids := make(map[string]struct{}, len(lines))
	for i := range lines {
		l := &lines[i]
		if prev, dup := seqs[l.Seq]; dup {
			return internalerr.NewFatal(schema.PhaseCorpus, "DUPLICATE_SEQ",
				fmt.Sprintf("seq %d used by %s and %s", l.Seq, prev, l.UID)).WithLine(l.UID)
		}
		seqs[l.Seq] = l.UID
		if _, dup := uids[l.UID]; dup {
			return internalerr.NewFatal(schema.PhaseCorpus, "DUPLICATE_UID", "line identity repeated").WithLine(l.UID)
		}
		uids[l.UID] = struct{}{}
		if err := ValidateSpans(l.Text, l.Tokens, l.Spans); err != nil {
			return internalerr.NewFatal(schema.PhaseCorpus, "SPAN_INVALID", err.Error()).WithLine(l.UID)
		}
	}
	return nil
}

// SortLines orders lines by (Seq, UID) in place.
func SortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool { return Less(&lines[i], &lines[j]) })
}
