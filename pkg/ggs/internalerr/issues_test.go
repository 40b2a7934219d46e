package internalerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsBySeverity(t *testing.T) {
	c := NewCollector("features", DefaultConfig())

	var local Issues
	local.Warn("", "ZERO_TOKENS", "L1:sha256:aaa", "no tokens")
	local.Warn("", "ZERO_TOKENS", "L2:sha256:bbb", "no tokens")
	local.Error("", "EMPTY_LINE", "L3:sha256:ccc", "empty")

	require.NoError(t, c.Add(local...))

	sum := c.Summary()
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 2, sum.Warnings)
	assert.Equal(t, map[string]int{"ZERO_TOKENS": 2}, sum.WarningTypes)
	assert.Equal(t, map[string]int{"EMPTY_LINE": 1}, sum.ErrorTypes)

	for _, iss := range c.Issues() {
		assert.Equal(t, "features", iss.Phase, "phase is filled in by the collector")
	}
}

func TestCollectorThreshold(t *testing.T) {
	c := NewCollector("corpus", Config{MaxRecordErrors: 2})

	var local Issues
	local.Error("corpus", "EMPTY_LINE", "a", "empty")
	local.Error("corpus", "EMPTY_LINE", "b", "empty")
	require.NoError(t, c.Add(local...))

	var more Issues
	more.Error("corpus", "EMPTY_LINE", "c", "empty")
	err := c.Add(more...)
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	var fe *FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "ERROR_THRESHOLD_EXCEEDED", fe.Type)
}

func TestCollectorStrictModeEscalates(t *testing.T) {
	c := NewCollector("lexical", Config{MaxRecordErrors: 0, StrictMode: true})

	var local Issues
	local.Warn("lexical", "LOW_CONFIDENCE", "a", "low")
	err := c.Add(local...)
	require.Error(t, err, "an escalated warning counts against a zero threshold")
	assert.Equal(t, 0, c.Summary().Warnings)
	assert.Equal(t, 1, c.Summary().Errors)
}

func TestCollectorFatalIssue(t *testing.T) {
	c := NewCollector("lexical", Config{MaxRecordErrors: -1})

	err := c.Add(NewFatal("lexical", "SPAN_MISALIGNED", "bad span").WithLine("x").Issue())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Contains(t, err.Error(), "SPAN_MISALIGNED")
	assert.Contains(t, err.Error(), "line x")
}

func TestFatalErrorUnwrap(t *testing.T) {
	err := NewFatal("corpus", "DUPLICATE_UID", "seen twice").Wrap(ErrDuplicate)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestIssueWithCopiesContext(t *testing.T) {
	base := Issue{Type: "T", Context: map[string]string{"a": "1"}}
	derived := base.With("b", "2")
	assert.Len(t, base.Context, 1)
	assert.Len(t, derived.Context, 2)
}
