package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PDFService extracts text from uploaded PDF documents so they can be stored
// as knowledge documents.
type PDFService struct {
	logger   *zap.Logger
	maxChars int
}

func NewPDFService(logger *zap.Logger, maxChars int) *PDFService {
	return &PDFService{
		logger:   logger,
		maxChars: maxChars,
	}
}

// ExtractText extracts all text content from a PDF file, with page markers,
// truncated to the configured character budget at a sentence boundary.
func (ps *PDFService) ExtractText(pdfPath string) (string, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var fullText strings.Builder
	totalPages := r.NumPage()

	ps.logger.Debug("Extracting text from PDF",
		zap.String("path", pdfPath),
		zap.Int("pages", totalPages))

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			ps.logger.Warn("Skipping null page", zap.Int("page", pageNum))
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			ps.logger.Warn("Failed to extract text from page",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}

		fullText.WriteString(fmt.Sprintf("--- Page %d ---\n", pageNum))
		fullText.WriteString(text)
		fullText.WriteString("\n\n")
	}

	extracted := ps.truncateAtSentenceBoundary(fullText.String())

	ps.logger.Info("PDF text extraction completed",
		zap.String("path", pdfPath),
		zap.Int("pages", totalPages),
		zap.Int("characters", len(extracted)))

	return extracted, nil
}

// truncateAtSentenceBoundary cuts text to the character budget at the last
// complete sentence that fits. Falls back to a hard cut when sentence
// segmentation fails. Every cut lands on a rune boundary so multibyte text,
// Vietnamese included, never ends in an invalid UTF-8 fragment.
func (ps *PDFService) truncateAtSentenceBoundary(text string) string {
	if ps.maxChars <= 0 || len(text) <= ps.maxChars {
		return text
	}
	hardCut := cutAtRuneBoundary(text, ps.maxChars)

	doc, err := prose.NewDocument(hardCut)
	if err != nil {
		ps.logger.Warn("Sentence detection failed, truncating at character boundary", zap.Error(err))
		return hardCut
	}

	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return hardCut
	}

	var result strings.Builder
	for i, sent := range sentences {
		if result.Len()+len(sent.Text)+1 > ps.maxChars {
			break
		}
		result.WriteString(sent.Text)
		if i < len(sentences)-1 {
			result.WriteString(" ")
		}
	}

	if result.Len() == 0 {
		return hardCut
	}

	ps.logger.Info("Truncated PDF text at sentence boundary",
		zap.Int("characters", result.Len()),
		zap.Int("budget", ps.maxChars))

	return strings.TrimSpace(result.String()) + "\n\n[... Nội dung đã được cắt bớt ...]"
}

// cutAtRuneBoundary truncates s to at most limit bytes, backing up so the cut
// never splits a multibyte rune.
func cutAtRuneBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
