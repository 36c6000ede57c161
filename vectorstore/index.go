package vectorstore

import "context"

// Document is one stored entry: raw text plus metadata and the embedding it
// was indexed under. Seq is a monotonic insertion sequence used to break
// similarity-score ties deterministically.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding"`
	Seq       int64             `json:"seq"`
}

// Result is one ranked retrieval hit.
type Result struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float32
	Seq      int64
}

// Index is the similarity-index backend contract. Implementations own their
// durability: Flush forces any deferred persistence to complete.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Result, error)
	Count(ctx context.Context) (int, error)
	MaxSeq(ctx context.Context) (int64, error)
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}
