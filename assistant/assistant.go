package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"diary-assistant/cache"
	"diary-assistant/config"
	apperrors "diary-assistant/errors"
	"diary-assistant/llmclient"
	"diary-assistant/prompts"
	"diary-assistant/vectorstore"
)

// ChatBackend is the language-model contract the assistant depends on:
// a model identifier, an ordered message list, and sampling parameters in;
// one complete text or an ordered fragment stream out.
type ChatBackend interface {
	Chat(ctx context.Context, model string, messages []llmclient.Message, params llmclient.SamplingParams) (string, error)
	ChatStream(ctx context.Context, model string, messages []llmclient.Message, params llmclient.SamplingParams) (<-chan string, <-chan error, error)
}

// Assistant is the journaling core: it persists diary entries and knowledge
// documents into the vector store and answers questions about them through
// the retrieval-augmented query pipeline. Lifecycle of every dependency is
// owned by the composing caller.
type Assistant struct {
	cfg       *config.Config
	llm       ChatBackend
	store     *vectorstore.Store
	responses *cache.ResponseCache
	logger    *zap.Logger
}

func New(cfg *config.Config, llm ChatBackend, store *vectorstore.Store, responses *cache.ResponseCache, logger *zap.Logger) *Assistant {
	return &Assistant{
		cfg:       cfg,
		llm:       llm,
		store:     store,
		responses: responses,
		logger:    logger,
	}
}

// AddDiaryEntry analyzes and stores one diary entry. The entry is keyed by
// date, so re-submitting the same date overwrites instead of duplicating.
// Extraction is best-effort and never blocks storage; a store failure is
// returned so the caller knows the save did not complete.
func (a *Assistant) AddDiaryEntry(ctx context.Context, content, date string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: diary content is empty", apperrors.ErrInvalidInput)
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	info := a.extractDiaryInfo(ctx, content)

	metadata := map[string]string{
		"type":       "diary_entry",
		"date":       date,
		"mood":       info.Mood,
		"activities": strings.Join(info.Activities, ", "),
	}
	if len(info.KeyEvents) > 0 {
		metadata["key_events"] = strings.Join(info.KeyEvents, ", ")
	}
	if info.HealthNotes != "" {
		metadata["health_notes"] = info.HealthNotes
	}

	if err := a.store.Upsert(ctx, "diary_"+date, content, metadata); err != nil {
		return "", err
	}

	a.logger.Info("Stored diary entry",
		zap.String("date", date),
		zap.String("mood", info.Mood),
		zap.Bool("extraction_fallback", info.FallbackUsed))

	return fmt.Sprintf("Đã lưu nhật ký ngày %s.", date), nil
}

// AddKnowledgeDocument stores a free-text knowledge snippet. The id derives
// from a hash of (source, content): identical content from the same source
// is idempotent, different content from the same source is a new entry.
func (a *Assistant) AddKnowledgeDocument(ctx context.Context, content, source string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: knowledge content is empty", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("%w: knowledge source is empty", apperrors.ErrInvalidInput)
	}

	metadata := map[string]string{
		"type":           "knowledge_document",
		"source":         source,
		"import_date":    time.Now().Format("2006-01-02"),
		"content_length": strconv.Itoa(len(content)),
	}

	if err := a.store.Upsert(ctx, knowledgeID(source, content), content, metadata); err != nil {
		return "", err
	}

	a.logger.Info("Stored knowledge document", zap.String("source", source))
	return fmt.Sprintf("Đã lưu tài liệu kiến thức từ nguồn '%s'.", source), nil
}

// GetDailySummaryAndPlan answers the fixed report-and-suggestions question
// with thinking mode enabled.
func (a *Assistant) GetDailySummaryAndPlan(ctx context.Context) string {
	return a.Query(ctx, prompts.DailySummary(), QueryOptions{ThinkingMode: true})
}

// Flush forces pending vector-store persistence to disk.
func (a *Assistant) Flush(ctx context.Context) error {
	return a.store.Flush(ctx)
}

func knowledgeID(source, content string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + content))
	return "knowledge_" + hex.EncodeToString(sum[:8])
}
