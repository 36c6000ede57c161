package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"diary-assistant/llmclient"
	"diary-assistant/prompts"
	"diary-assistant/vectorstore"
)

const (
	thinkOpenMarker  = "<think>"
	thinkCloseMarker = "</think>"
)

// QueryOptions controls one query: which model answers, with which sampling
// parameters, whether the reasoning toggle is on, and an optional callback
// observing streamed fragments in arrival order.
type QueryOptions struct {
	Model        string
	Params       *llmclient.SamplingParams
	ThinkingMode bool
	OnToken      func(string)
}

// Query runs the retrieval-augmented pipeline: cache lookup, top-k
// retrieval, prompt assembly, streamed model invocation, reasoning-trace
// stripping, cache store. Failures never escape as errors; they become a
// user-visible error answer and the cache is left untouched.
func (a *Assistant) Query(ctx context.Context, question string, opts QueryOptions) string {
	answer, err := a.runQuery(ctx, question, opts)
	if err != nil {
		a.logger.Error("Query pipeline failed",
			zap.String("question", question),
			zap.Error(err))
		return fmt.Sprintf("⚠️ Lỗi: %v", err)
	}
	return answer
}

func (a *Assistant) runQuery(ctx context.Context, question string, opts QueryOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = a.cfg.ChatModel
	}
	params := a.samplingParams(opts.Params)
	cacheParams := map[string]any{
		"temperature":    params.Temperature,
		"top_p":          params.TopP,
		"top_k":          params.TopK,
		"repeat_penalty": params.RepeatPenalty,
		"thinking":       opts.ThinkingMode,
	}

	if answer, ok := a.responses.Get(question, model, cacheParams); ok {
		a.logger.Debug("Response cache hit", zap.String("question", question))
		if opts.OnToken != nil {
			opts.OnToken(answer)
		}
		return answer, nil
	}

	if a.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
	}

	count, err := a.store.Count(ctx)
	if err != nil {
		return "", err
	}
	results, err := a.store.Query(ctx, question, retrievalK(count), nil)
	if err != nil {
		return "", err
	}

	finalQuestion := question
	if supportsReasoningToggle(model) {
		if opts.ThinkingMode {
			finalQuestion += " /think"
		} else {
			finalQuestion += " /no_think"
		}
	}

	prompt := prompts.RAGAnswer(contextBlock(results), finalQuestion)

	stream, streamErrs, err := a.llm.ChatStream(ctx, model, []llmclient.Message{{Role: "user", Content: prompt}}, params)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for chunk := range stream {
		builder.WriteString(chunk)
		if opts.OnToken != nil {
			opts.OnToken(chunk)
		}
	}
	// A timeout, disconnect, or daemon failure mid-stream leaves a truncated
	// answer behind. That text must never be returned or cached as if the
	// model had finished.
	if streamErr := <-streamErrs; streamErr != nil {
		return "", fmt.Errorf("chat stream failed: %w", streamErr)
	}
	raw := builder.String()
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("model %q returned an empty response", model)
	}

	answer := stripReasoning(raw)
	a.responses.Put(question, model, cacheParams, answer)

	a.logger.Debug("Answered question",
		zap.String("model", model),
		zap.Int("retrieved", len(results)),
		zap.Int("answer_length", len(answer)))

	return answer, nil
}

func (a *Assistant) samplingParams(override *llmclient.SamplingParams) llmclient.SamplingParams {
	if override != nil {
		return *override
	}
	return llmclient.SamplingParams{
		Temperature:   a.cfg.Temperature,
		TopP:          a.cfg.TopP,
		TopK:          a.cfg.TopK,
		RepeatPenalty: a.cfg.RepeatPenalty,
	}
}

// retrievalK picks how many neighbors to retrieve from the stored-entry
// count: a nearly empty store is not over-retrieved and context size stays
// capped as the store grows.
func retrievalK(count int) int {
	switch {
	case count < 5:
		return min(count, 2)
	case count < 20:
		return 3
	default:
		return 4
	}
}

// supportsReasoningToggle reports whether the model family honors an
// explicit /think suffix.
func supportsReasoningToggle(model string) bool {
	return strings.Contains(strings.ToLower(model), "qwen3")
}

// contextBlock renders retrieved entries into the prompt's context section.
func contextBlock(results []vectorstore.Result) string {
	if len(results) == 0 {
		return "(không có thông tin liên quan)"
	}

	var builder strings.Builder
	for _, res := range results {
		switch res.Metadata["type"] {
		case "diary_entry":
			builder.WriteString(fmt.Sprintf("- Nhật ký ngày %s (tâm trạng: %s): %s\n",
				res.Metadata["date"], res.Metadata["mood"], res.Content))
		case "knowledge_document":
			builder.WriteString(fmt.Sprintf("- Tài liệu từ '%s': %s\n",
				res.Metadata["source"], res.Content))
		default:
			builder.WriteString(fmt.Sprintf("- %s\n", res.Content))
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

// stripReasoning removes a leading reasoning trace from the answer. When
// the closing marker is missing the text is returned unmodified; malformed
// markers must never fail the query.
func stripReasoning(response string) string {
	if !strings.Contains(response, thinkOpenMarker) {
		return strings.TrimSpace(response)
	}
	_, after, found := strings.Cut(response, thinkCloseMarker)
	if !found {
		return response
	}
	return strings.TrimSpace(after)
}
