package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// stubEmbedder maps each text to a fixed vector so similarity ordering is
// controlled by the test, not by a model.
type stubEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (e *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func newTestStore(t *testing.T, embedder Embedder, snapshotPath string) *Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	index, err := NewChromemIndex("test_store", snapshotPath, logger)
	if err != nil {
		t.Fatalf("NewChromemIndex: %v", err)
	}
	store, err := New(context.Background(), embedder, index, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreQueryClampsK(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newTestStore(t, embedder, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("doc_%d", i)
		if err := store.Upsert(ctx, id, "nội dung "+id, nil); err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
	}

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"k_within_count", 2, 2},
		{"k_equals_count", 3, 3},
		{"k_above_count", 10, 3},
		{"k_zero", 0, 0},
		{"k_negative", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Query(ctx, "truy vấn", tt.k, nil)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("Query(k=%d) returned %d results, want %d", tt.k, len(results), tt.want)
			}
		})
	}
}

func TestStoreTieBreakByInsertionOrder(t *testing.T) {
	// All documents share one embedding, so every similarity score ties
	// and ranking must fall back to insertion order.
	shared := []float32{0.5, 0.5, 0}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"giống nhau": shared,
		"truy vấn":   shared,
	}}
	store := newTestStore(t, embedder, "")
	ctx := context.Background()

	ids := []string{"doc_b", "doc_a", "doc_c"}
	for _, id := range ids {
		if err := store.Upsert(ctx, id, "giống nhau", map[string]string{"name": id}); err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
	}

	results, err := store.Query(ctx, "truy vấn", 3, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, id := range ids {
		if results[i].ID != id {
			t.Errorf("results[%d].ID = %s, want %s (insertion order)", i, results[i].ID, id)
		}
	}
}

func TestStoreUpsertOverwrites(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newTestStore(t, embedder, "")
	ctx := context.Background()

	if err := store.Upsert(ctx, "diary_2026-08-31", "bản đầu tiên", map[string]string{"mood": "vui"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(ctx, "diary_2026-08-31", "bản sửa lại", map[string]string{"mood": "buồn"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count() = %d after re-upsert of same id, want 1", count)
	}

	results, err := store.Query(ctx, "truy vấn", 1, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if results[0].Content != "bản sửa lại" {
		t.Errorf("Content = %q, want overwritten content", results[0].Content)
	}
	if results[0].Metadata["mood"] != "buồn" {
		t.Errorf("Metadata overwrite failed: %v", results[0].Metadata)
	}
}

func TestStoreMetadataFilter(t *testing.T) {
	embedder := &stubEmbedder{}
	store := newTestStore(t, embedder, "")
	ctx := context.Background()

	if err := store.Upsert(ctx, "diary_1", "nhật ký", map[string]string{"type": "diary_entry"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, "knowledge_1", "tài liệu", map[string]string{"type": "knowledge_document"}); err != nil {
		t.Fatal(err)
	}

	// k exceeds the filtered candidate count; the index must clamp
	// instead of erroring.
	results, err := store.Query(ctx, "truy vấn", 2, map[string]string{"type": "diary_entry"})
	if err != nil {
		t.Fatalf("Query with filter: %v", err)
	}
	if len(results) != 1 || results[0].ID != "diary_1" {
		t.Errorf("filtered query = %v, want only diary_1", results)
	}

	results, err = store.Query(ctx, "truy vấn", 2, map[string]string{"type": "không tồn tại"})
	if err != nil {
		t.Fatalf("Query with non-matching filter: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("non-matching filter returned %d results", len(results))
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "daily_diary.json")
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"ngày đầu": {1, 0, 0},
		"ngày hai": {0, 1, 0},
	}}
	ctx := context.Background()

	store := newTestStore(t, embedder, snapshotPath)
	if err := store.Upsert(ctx, "diary_2026-08-30", "ngày đầu", map[string]string{"date": "2026-08-30"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, "diary_2026-08-31", "ngày hai", map[string]string{"date": "2026-08-31"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	embedsBeforeReload := embedder.calls

	reloaded := newTestStore(t, embedder, snapshotPath)
	defer reloaded.Close(ctx)

	count, err := reloaded.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("Count() = %d after reload, want 2", count)
	}
	if embedder.calls != embedsBeforeReload {
		t.Error("reload recomputed embeddings instead of reusing stored ones")
	}

	results, err := reloaded.Query(ctx, "ngày đầu", 1, nil)
	if err != nil {
		t.Fatalf("Query after reload: %v", err)
	}
	if results[0].ID != "diary_2026-08-30" {
		t.Errorf("nearest after reload = %s, want diary_2026-08-30", results[0].ID)
	}

	// Sequence numbering continues after reload so tie-breaks stay stable.
	if err := reloaded.Upsert(ctx, "diary_2026-09-01", "ngày ba", nil); err != nil {
		t.Fatal(err)
	}
	results, err = reloaded.Query(ctx, "ngày ba", 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.ID == "diary_2026-09-01" && res.Seq <= 2 {
			t.Errorf("new document Seq = %d, want > 2 after reload", res.Seq)
		}
	}
}
