// Package retriever turns nearest-neighbour results into a labelled context
// block and a parallel citation list.
package retriever

import (
	"context"
	"strconv"
	"strings"

	"webrag/internal/domain"
)

// Retriever reads from a vector store. It never retries: a failed query is
// surfaced to the caller as is.
type Retriever struct {
	store domain.VectorStore
}

// New creates a Retriever over store.
func New(store domain.VectorStore) *Retriever {
	return &Retriever{store: store}
}

// Retrieve queries the store once and assembles the results.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (domain.Retrieval, error) {
	results, err := r.store.Query(ctx, query, k)
	if err != nil {
		return domain.Retrieval{}, err
	}
	return Assemble(results), nil
}

// Assemble labels each result "Source i" (1-based) in the order given.
// Citations[i-1] describes the block labelled "Source i". No results yields
// Found == false with an empty context and an empty, non-nil citation list.
func Assemble(results []domain.QueryResult) domain.Retrieval {
	out := domain.Retrieval{Citations: make([]domain.Citation, 0, len(results))}
	if len(results) == 0 {
		return out
	}
	var b strings.Builder
	for i, r := range results {
		b.WriteString("Source ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(":\n")
		b.WriteString(r.Text)
		b.WriteString("\n\n")
		out.Citations = append(out.Citations, domain.Citation{
			Origin:   r.Metadata.Origin,
			Position: r.Metadata.Position,
			Distance: r.Distance,
		})
	}
	out.Context = b.String()
	out.Found = true
	return out
}
