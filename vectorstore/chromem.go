package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemIndex is the default similarity-index backend: an in-process
// chromem-go collection holding precomputed embeddings, mirrored to a JSON
// snapshot file by a background persister. Every upsert schedules a
// snapshot write; Flush makes it synchronous for shutdown and tests.
type ChromemIndex struct {
	collection   *chromem.Collection
	snapshotPath string

	mu   sync.Mutex
	docs map[string]Document

	persistCh chan struct{}
	closeCh   chan struct{}
	closedWg  sync.WaitGroup

	logger *zap.Logger
}

// NewChromemIndex opens the collection and, when snapshotPath is non-empty,
// reloads any previous snapshot and starts the background persister. Stored
// embeddings are reused on reload; nothing is recomputed.
func NewChromemIndex(collectionName, snapshotPath string, logger *zap.Logger) (*ChromemIndex, error) {
	db := chromem.NewDB()

	// All embeddings arrive precomputed; the collection must never reach
	// for an embedding function of its own.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("collection holds precomputed embeddings only")
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", collectionName, err)
	}

	idx := &ChromemIndex{
		collection:   collection,
		snapshotPath: snapshotPath,
		docs:         make(map[string]Document),
		persistCh:    make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
		logger:       logger,
	}

	if snapshotPath != "" {
		if err := idx.loadSnapshot(); err != nil {
			return nil, err
		}
		idx.closedWg.Add(1)
		go idx.persistLoop()
	}

	return idx, nil
}

func (idx *ChromemIndex) loadSnapshot() error {
	data, err := os.ReadFile(idx.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index snapshot: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("decode index snapshot %s: %w", idx.snapshotPath, err)
	}

	for _, doc := range docs {
		idx.docs[doc.ID] = doc
		if err := idx.addToCollection(context.Background(), doc); err != nil {
			return fmt.Errorf("restore document %s: %w", doc.ID, err)
		}
	}

	idx.logger.Info("Restored similarity index from snapshot",
		zap.String("path", idx.snapshotPath),
		zap.Int("documents", len(docs)))
	return nil
}

func (idx *ChromemIndex) addToCollection(ctx context.Context, doc Document) error {
	return idx.collection.AddDocuments(ctx, []chromem.Document{{
		ID:        doc.ID,
		Metadata:  doc.Metadata,
		Embedding: doc.Embedding,
		Content:   doc.Content,
	}}, 1)
}

func (idx *ChromemIndex) Upsert(ctx context.Context, doc Document) error {
	if err := idx.addToCollection(ctx, doc); err != nil {
		return fmt.Errorf("add document to collection: %w", err)
	}

	idx.mu.Lock()
	idx.docs[doc.ID] = doc
	idx.mu.Unlock()

	idx.schedulePersist()
	return nil
}

func (idx *ChromemIndex) Query(ctx context.Context, embedding []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	// A metadata filter can narrow the candidate set below k; chromem
	// refuses to return fewer results than asked for, so clamp again
	// against the filtered count.
	if len(filter) > 0 {
		if matched := idx.countMatching(filter); matched < k {
			k = matched
		}
		if k == 0 {
			return nil, nil
		}
	}

	hits, err := idx.collection.QueryEmbedding(ctx, embedding, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		seq := int64(0)
		if doc, ok := idx.docs[hit.ID]; ok {
			seq = doc.Seq
		}
		results = append(results, Result{
			ID:       hit.ID,
			Content:  hit.Content,
			Metadata: hit.Metadata,
			Score:    hit.Similarity,
			Seq:      seq,
		})
	}
	return results, nil
}

func (idx *ChromemIndex) countMatching(filter map[string]string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	matched := 0
	for _, doc := range idx.docs {
		ok := true
		for key, want := range filter {
			if doc.Metadata[key] != want {
				ok = false
				break
			}
		}
		if ok {
			matched++
		}
	}
	return matched
}

func (idx *ChromemIndex) Count(ctx context.Context) (int, error) {
	return idx.collection.Count(), nil
}

func (idx *ChromemIndex) MaxSeq(ctx context.Context) (int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var max int64
	for _, doc := range idx.docs {
		if doc.Seq > max {
			max = doc.Seq
		}
	}
	return max, nil
}

// Flush writes the snapshot synchronously. Safe to call at any time, also
// when persistence is disabled.
func (idx *ChromemIndex) Flush(ctx context.Context) error {
	if idx.snapshotPath == "" {
		return nil
	}
	return idx.writeSnapshot()
}

// Close stops the background persister and writes a final snapshot.
func (idx *ChromemIndex) Close(ctx context.Context) error {
	if idx.snapshotPath == "" {
		return nil
	}
	close(idx.closeCh)
	idx.closedWg.Wait()
	return idx.writeSnapshot()
}

func (idx *ChromemIndex) schedulePersist() {
	if idx.snapshotPath == "" {
		return
	}
	select {
	case idx.persistCh <- struct{}{}:
	default:
		// A write is already pending; it will pick up this change too.
	}
}

func (idx *ChromemIndex) persistLoop() {
	defer idx.closedWg.Done()
	for {
		select {
		case <-idx.persistCh:
			if err := idx.writeSnapshot(); err != nil {
				idx.logger.Error("Background index snapshot failed", zap.Error(err))
			}
		case <-idx.closeCh:
			return
		}
	}
}

func (idx *ChromemIndex) writeSnapshot() error {
	idx.mu.Lock()
	docs := make([]Document, 0, len(idx.docs))
	for _, doc := range idx.docs {
		docs = append(docs, doc)
	}
	idx.mu.Unlock()

	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode index snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(idx.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmpPath := idx.snapshotPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write index snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, idx.snapshotPath); err != nil {
		return fmt.Errorf("replace index snapshot: %w", err)
	}
	return nil
}
