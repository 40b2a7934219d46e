package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/ggs/pkg/ggs/ingest"
)

func TestPartitionLinesKeepsGroupsTogether(t *testing.T) {
	lines := []ingest.Line{
		{Seq: 1, UID: "a", Composition: "c1"},
		{Seq: 2, UID: "b", Page: "7"},
		{Seq: 3, UID: "c", Composition: "c1"},
		{Seq: 4, UID: "d"},
		{Seq: 5, UID: "e", Page: "7"},
	}

	parts := PartitionLines(lines)
	require.Len(t, parts, 3)

	assert.Equal(t, "c1", parts[0].Key)
	assert.Equal(t, []int{1, 3}, seqs(parts[0].Items))
	assert.Equal(t, "page:7", parts[1].Key)
	assert.Equal(t, []int{2, 5}, seqs(parts[1].Items))
	assert.Equal(t, "line:d", parts[2].Key)
}

func TestPartitionRawKeysUngroupedBySeq(t *testing.T) {
	raw := []ingest.RawLine{
		{Seq: 10, Text: "x"},
		{Seq: 11, Text: "y"},
		{Seq: 12, Text: "z", Composition: "c"},
	}
	parts := PartitionRaw(raw)
	require.Len(t, parts, 3)
	assert.Equal(t, "seq:10", parts[0].Key)
	assert.Equal(t, "seq:11", parts[1].Key)
	assert.Equal(t, "c", parts[2].Key)
}

func TestMapPreservesOrder(t *testing.T) {
	parts := make([]int, 50)
	for i := range parts {
		parts[i] = i
	}
	for _, workers := range []int{0, 1, 3, 16} {
		out, err := Map(context.Background(), workers, parts, func(_ context.Context, p int) (int, error) {
			return p * p, nil
		})
		require.NoError(t, err)
		for i, v := range out {
			assert.Equal(t, i*i, v, "workers=%d", workers)
		}
	}
}

func TestMapStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	parts := make([]int, 100)
	for i := range parts {
		parts[i] = i
	}

	out, err := Map(context.Background(), 1, parts, func(ctx context.Context, p int) (int, error) {
		calls.Add(1)
		if p == 3 {
			return 0, boom
		}
		return p, nil
	})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, out)
	assert.Less(t, int(calls.Load()), len(parts))
}

func TestMapHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, 4, []int{1, 2, 3}, func(context.Context, int) (int, error) {
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func seqs(lines []ingest.Line) []int {
	out := make([]int, len(lines))
	for i := range lines {
		out[i] = lines[i].Seq
	}
	return out
}
