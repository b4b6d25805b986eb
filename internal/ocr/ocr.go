// Package ocr turns PDF files into plain text. Pages are separated by a form
// feed, the way pdftotext emits them.
package ocr

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/config"
)

// PageBreak separates pages in extracted text.
const PageBreak = "\f"

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor from config. When cfg.Fallback names a
// second provider, the result is a Fallback over both.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	primary, err := newProvider(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" || cfg.Fallback == cfg.Provider {
		return primary, nil
	}
	secondary, err := newProvider(cfg.Fallback, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: fallback")
	}
	return NewFallback(primary, secondary, cfg.MinChars), nil
}

func newProvider(name string, cfg config.OCRConfig) (Extractor, error) {
	switch name {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", name)
	}
}

// Pages splits extracted text on page breaks. A trailing empty page left by
// a final form feed is dropped.
func Pages(text string) []string {
	pages := strings.Split(text, PageBreak)
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// CountChars counts non-space characters, the measure used to decide whether
// a text layer is too sparse to trust.
func CountChars(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
