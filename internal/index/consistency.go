package index

import (
	"context"
	"sort"
)

// ConsistencyReport compares the chunk ID sets held by the three stores.
// After a clean build or incremental update they are identical; drift
// indicates a crashed update and means the index should be rebuilt.
type ConsistencyReport struct {
	MetaCount   int
	VectorCount int
	BM25Count   int

	// Chunk IDs present in metadata but missing from the other stores.
	MissingVectors []string
	MissingBM25    []string

	// IDs present in a derived store without a metadata row.
	OrphanVectors []string
	OrphanBM25    []string
}

// Consistent reports whether all three stores agree.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.MissingVectors) == 0 && len(r.MissingBM25) == 0 &&
		len(r.OrphanVectors) == 0 && len(r.OrphanBM25) == 0
}

// CheckConsistency diffs the chunk ID sets of a snapshot's stores. The
// metadata store is treated as the source of truth.
func CheckConsistency(ctx context.Context, snap *Snapshot) (*ConsistencyReport, error) {
	metaIDs, err := snap.Meta.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	vectorIDs := snap.Vectors.AllIDs()
	bm25IDs, err := snap.BM25.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &ConsistencyReport{
		MetaCount:   len(metaIDs),
		VectorCount: len(vectorIDs),
		BM25Count:   len(bm25IDs),
	}

	metaSet := toSet(metaIDs)
	vectorSet := toSet(vectorIDs)
	bm25Set := toSet(bm25IDs)

	for _, id := range metaIDs {
		if _, ok := vectorSet[id]; !ok {
			report.MissingVectors = append(report.MissingVectors, id)
		}
		if _, ok := bm25Set[id]; !ok {
			report.MissingBM25 = append(report.MissingBM25, id)
		}
	}
	for _, id := range vectorIDs {
		if _, ok := metaSet[id]; !ok {
			report.OrphanVectors = append(report.OrphanVectors, id)
		}
	}
	for _, id := range bm25IDs {
		if _, ok := metaSet[id]; !ok {
			report.OrphanBM25 = append(report.OrphanBM25, id)
		}
	}

	sort.Strings(report.OrphanVectors)
	sort.Strings(report.OrphanBM25)
	return report, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
