package match

import (
	"errors"

	"github.com/coder/hnsw"
)

// maxNeighbors is the HNSW M parameter (max connections per node).
const maxNeighbors = 16

// Index wraps an HNSW graph over enrolled encodings for sub-linear
// nearest-neighbor lookup on large enrollment sets. Read-only after
// BuildIndex.
type Index struct {
	graph   *hnsw.Graph[int]
	entries []Entry
}

// BuildIndex builds the ANN index from enrolled entries.
func BuildIndex(entries []Entry) (*Index, error) {
	if len(entries) == 0 {
		return nil, errors.New("no entries to index")
	}

	g := hnsw.NewGraph[int]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for i, e := range entries {
		if len(e.Encoding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, e.Encoding))
	}

	return &Index{graph: g, entries: entries}, nil
}

// Nearest returns the closest indexed encoding to the query.
// The distance is recomputed exactly; the graph is only used to pick
// the candidate.
func (idx *Index) Nearest(query []float32) Result {
	neighbors := idx.graph.Search(query, 1)
	if len(neighbors) == 0 {
		return Result{Distance: 2.0}
	}

	n := neighbors[0]
	return Result{
		Identity: idx.entries[n.Key].Identity,
		Distance: CosineDistance(query, n.Value),
	}
}
