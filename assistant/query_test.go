package assistant

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"diary-assistant/cache"
	"diary-assistant/config"
	"diary-assistant/vectorstore"
)

// hashEmbedder produces a deterministic nonzero vector per text so
// similarity search works without a real embedding model.
type hashEmbedder struct{}

func (hashEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r%31) + 1
	}
	if text == "" {
		return make([]float32, 8), nil
	}
	return vec, nil
}

func TestRetrievalK(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 2},
		{5, 3},
		{19, 3},
		{20, 4},
		{100, 4},
	}

	for _, tt := range tests {
		if got := retrievalK(tt.count); got != tt.want {
			t.Errorf("retrievalK(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no_markers",
			input: "  plain answer  ",
			want:  "plain answer",
		},
		{
			name:  "full_trace",
			input: "<think>reasoning here</think>\nfinal answer",
			want:  "final answer",
		},
		{
			name:  "empty_trace",
			input: "<think></think>answer",
			want:  "answer",
		},
		{
			name:  "missing_close_marker_kept_verbatim",
			input: "<think>never closed, answer follows",
			want:  "<think>never closed, answer follows",
		},
		{
			name:  "marker_text_in_answer_body",
			input: "<think>a</think>the marker </think> can appear again",
			want:  "the marker </think> can appear again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripReasoning(tt.input); got != tt.want {
				t.Errorf("stripReasoning(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSupportsReasoningToggle(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"qwen3:4b", true},
		{"Qwen3:30b-instruct", true},
		{"llama3.2:3b", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := supportsReasoningToggle(tt.model); got != tt.want {
			t.Errorf("supportsReasoningToggle(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestContextBlock(t *testing.T) {
	results := []vectorstore.Result{
		{
			Content:  "đi dạo công viên",
			Metadata: map[string]string{"type": "diary_entry", "date": "2026-08-30", "mood": "vui vẻ"},
		},
		{
			Content:  "ngủ đủ giấc giúp tập trung",
			Metadata: map[string]string{"type": "knowledge_document", "source": "sleep.pdf"},
		},
	}

	got := contextBlock(results)
	if !strings.Contains(got, "Nhật ký ngày 2026-08-30 (tâm trạng: vui vẻ): đi dạo công viên") {
		t.Errorf("diary entry not rendered: %q", got)
	}
	if !strings.Contains(got, "Tài liệu từ 'sleep.pdf': ngủ đủ giấc giúp tập trung") {
		t.Errorf("knowledge document not rendered: %q", got)
	}

	if got := contextBlock(nil); got != "(không có thông tin liên quan)" {
		t.Errorf("contextBlock(nil) = %q", got)
	}
}

func newTestAssistant(t *testing.T, llm ChatBackend) *Assistant {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	index, err := vectorstore.NewChromemIndex("test_diary", "", logger)
	if err != nil {
		t.Fatalf("NewChromemIndex: %v", err)
	}
	store, err := vectorstore.New(context.Background(), hashEmbedder{}, index, logger)
	if err != nil {
		t.Fatalf("vectorstore.New: %v", err)
	}

	cfg := &config.Config{
		ChatModel:   "qwen3:4b",
		Temperature: 0.7,
		TopP:        0.8,
		TopK:        20,
	}
	return New(cfg, llm, store, cache.New(10, time.Minute, logger), logger)
}

func TestQueryCachesAnswer(t *testing.T) {
	llm := &fakeChat{}
	a := newTestAssistant(t, llm)
	ctx := context.Background()

	llm.response = `{"mood": "vui vẻ", "activities": ["đi chơi"]}`
	if _, err := a.AddDiaryEntry(ctx, "hôm nay đi chơi rất vui", "2024-01-01"); err != nil {
		t.Fatalf("AddDiaryEntry: %v", err)
	}
	llm.response = `{"mood": "buồn", "activities": []}`
	if _, err := a.AddDiaryEntry(ctx, "hôm nay trời mưa, tôi thấy buồn", "2024-01-02"); err != nil {
		t.Fatalf("AddDiaryEntry: %v", err)
	}
	callsAfterAdd := llm.chatCalls

	llm.response = "Hôm đầu bạn vui, hôm sau bạn buồn."

	first := a.Query(ctx, "tâm trạng của tôi thế nào?", QueryOptions{})
	if first != "Hôm đầu bạn vui, hôm sau bạn buồn." {
		t.Fatalf("Query() = %q", first)
	}
	if llm.chatCalls != callsAfterAdd+1 {
		t.Fatalf("first query made %d model calls, want 1", llm.chatCalls-callsAfterAdd)
	}

	// Both stored entries fit within the dynamic k and reach the prompt.
	for _, fragment := range []string{"2024-01-01", "2024-01-02", "vui vẻ", "buồn"} {
		if !strings.Contains(llm.lastPrompt, fragment) {
			t.Errorf("prompt missing retrieved context %q", fragment)
		}
	}

	var streamed strings.Builder
	second := a.Query(ctx, "tâm trạng của tôi thế nào?", QueryOptions{
		OnToken: func(token string) { streamed.WriteString(token) },
	})
	if second != first {
		t.Errorf("cached answer %q differs from original %q", second, first)
	}
	if llm.chatCalls != callsAfterAdd+1 {
		t.Errorf("cache hit still called the model (%d calls)", llm.chatCalls-callsAfterAdd)
	}
	if streamed.String() != first {
		t.Errorf("cache hit streamed %q, want full answer", streamed.String())
	}
}

func TestQueryDistinctOptionsBypassCache(t *testing.T) {
	llm := &fakeChat{response: "câu trả lời"}
	a := newTestAssistant(t, llm)
	ctx := context.Background()

	a.Query(ctx, "câu hỏi", QueryOptions{})
	calls := llm.chatCalls

	a.Query(ctx, "câu hỏi", QueryOptions{ThinkingMode: true})
	if llm.chatCalls != calls+1 {
		t.Error("thinking-mode query should not share the cache entry of the plain query")
	}

	a.Query(ctx, "câu hỏi", QueryOptions{Model: "llama3.2:3b"})
	if llm.chatCalls != calls+2 {
		t.Error("different model should not share the cache entry")
	}
}

func TestQueryFailureReturnsErrorAnswer(t *testing.T) {
	llm := &fakeChat{response: "   "}
	a := newTestAssistant(t, llm)
	ctx := context.Background()

	answer := a.Query(ctx, "câu hỏi", QueryOptions{})
	if !strings.HasPrefix(answer, "⚠️ Lỗi:") {
		t.Fatalf("Query() = %q, want error answer", answer)
	}

	// The failure must not be cached: a later successful call answers.
	llm.response = "đã phục hồi"
	answer = a.Query(ctx, "câu hỏi", QueryOptions{})
	if answer != "đã phục hồi" {
		t.Errorf("Query() after recovery = %q", answer)
	}
}

func TestQueryInterruptedStreamNotCached(t *testing.T) {
	llm := &fakeChat{
		response:  "phần đầu của ",
		streamErr: context.DeadlineExceeded,
	}
	a := newTestAssistant(t, llm)
	ctx := context.Background()

	answer := a.Query(ctx, "tuần này tôi đã làm gì?", QueryOptions{})
	if !strings.HasPrefix(answer, "⚠️ Lỗi:") {
		t.Fatalf("Query() = %q, want error answer for an interrupted stream", answer)
	}
	calls := llm.chatCalls

	// The truncated text must not have been cached: the next identical
	// question reaches the model and gets the full answer.
	llm.streamErr = nil
	llm.response = "câu trả lời đầy đủ"
	answer = a.Query(ctx, "tuần này tôi đã làm gì?", QueryOptions{})
	if answer != "câu trả lời đầy đủ" {
		t.Fatalf("Query() after recovery = %q", answer)
	}
	if llm.chatCalls != calls+1 {
		t.Errorf("retry made %d model calls, want 1", llm.chatCalls-calls)
	}
}

func TestQueryStripsReasoningFromStreamedAnswer(t *testing.T) {
	llm := &fakeChat{response: "<think>suy nghĩ</think>\ncâu trả lời cuối"}
	a := newTestAssistant(t, llm)

	answer := a.Query(context.Background(), "câu hỏi", QueryOptions{ThinkingMode: true})
	if answer != "câu trả lời cuối" {
		t.Errorf("Query() = %q, want reasoning stripped", answer)
	}
}
