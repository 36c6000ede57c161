package prompts

import (
	_ "embed"
	"strings"
)

// Embedded prompt files

//go:embed rag_answer.txt
var ragAnswer string

//go:embed diary_extraction.txt
var diaryExtraction string

//go:embed daily_summary.txt
var dailySummary string

// RAGAnswer assembles the grounded answer prompt from retrieved context and
// the literal user question.
func RAGAnswer(context, question string) string {
	prompt := strings.ReplaceAll(ragAnswer, "{context}", context)
	return strings.ReplaceAll(prompt, "{question}", question)
}

// DiaryExtraction asks the model to summarize a diary entry into structured
// JSON metadata.
func DiaryExtraction(content string) string {
	return strings.ReplaceAll(diaryExtraction, "{content}", content)
}

// DailySummary is the fixed question behind the report-and-plan feature.
func DailySummary() string {
	return strings.TrimSpace(dailySummary)
}
