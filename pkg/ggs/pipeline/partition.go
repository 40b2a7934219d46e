package pipeline

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/ggs/pkg/ggs/ingest"
)

// Partition is a unit of work owned by exactly one worker.
type Partition[T any] struct {
	Key   string
	Items []T
}

// Group splits items into partitions by key. Partitions are ordered by
// the position of their first item and items keep their input order, so
// the result depends only on the input.
func Group[T any](items []T, key func(*T) string) []Partition[T] {
	index := make(map[string]int)
	var parts []Partition[T]
	for i := range items {
		k := key(&items[i])
		pi, ok := index[k]
		if !ok {
			pi = len(parts)
			index[k] = pi
			parts = append(parts, Partition[T]{Key: k})
		}
		parts[pi].Items = append(parts[pi].Items, items[i])
	}
	return parts
}

// PartitionLines groups lines so that no composition or page is split.
func PartitionLines(lines []ingest.Line) []Partition[ingest.Line] {
	return Group(lines, func(l *ingest.Line) string { return l.PartitionKey() })
}

// PartitionRaw groups raw lines the same way before they have identities.
// Ungrouped lines are keyed by sequence position.
func PartitionRaw(lines []ingest.RawLine) []Partition[ingest.RawLine] {
	return Group(lines, func(r *ingest.RawLine) string {
		switch {
		case r.Composition != "":
			return r.Composition
		case r.Page != "":
			return "page:" + r.Page
		}
		return "seq:" + strconv.Itoa(r.Seq)
	})
}

// Map runs fn over every partition with at most workers calls in flight
// and returns the results in partition order. The first error cancels the
// context handed to the remaining calls and every result is discarded.
func Map[P, R any](ctx context.Context, workers int, parts []P, fn func(context.Context, P) (R, error)) ([]R, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]R, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, parts[i])
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
