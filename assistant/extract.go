package assistant

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"diary-assistant/llmclient"
	"diary-assistant/prompts"
)

const unknownMood = "Không xác định"

// ExtractionResult is the structured metadata derived from one diary entry.
// FallbackUsed marks results where the model output could not be parsed and
// the fixed fallback record was substituted.
type ExtractionResult struct {
	Mood         string   `json:"mood"`
	Activities   []string `json:"activities"`
	KeyEvents    []string `json:"key_events"`
	HealthNotes  string   `json:"health_notes"`
	FallbackUsed bool     `json:"-"`
}

func fallbackExtraction() ExtractionResult {
	return ExtractionResult{
		Mood:         unknownMood,
		Activities:   []string{},
		KeyEvents:    []string{},
		FallbackUsed: true,
	}
}

// extractDiaryInfo asks the model to summarize the diary text into JSON
// metadata. Any model or parse failure yields the fallback record instead
// of an error: diary storage is never blocked by extraction.
func (a *Assistant) extractDiaryInfo(ctx context.Context, content string) ExtractionResult {
	response, err := a.llm.Chat(ctx, a.cfg.ChatModel,
		[]llmclient.Message{{Role: "user", Content: prompts.DiaryExtraction(content)}},
		a.samplingParams(nil))
	if err != nil {
		a.logger.Warn("Diary extraction call failed, using fallback", zap.Error(err))
		return fallbackExtraction()
	}

	// A reasoning trace may precede the JSON and can itself contain braces.
	response = stripReasoning(response)

	jsonStr, ok := firstJSONObject(response)
	if !ok {
		a.logger.Warn("No JSON object in extraction response, using fallback",
			zap.String("response", response))
		return fallbackExtraction()
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		a.logger.Warn("Malformed JSON in extraction response, using fallback", zap.Error(err))
		return fallbackExtraction()
	}

	if result.Mood == "" {
		result.Mood = unknownMood
	}
	if result.Activities == nil {
		result.Activities = []string{}
	}
	if result.KeyEvents == nil {
		result.KeyEvents = []string{}
	}
	return result
}

// firstJSONObject returns the first balanced-brace JSON object in s. The
// scan tracks nesting depth and string/escape state, so nested objects in
// the model's output are captured whole where a non-greedy regex would
// truncate them.
func firstJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", false
}
