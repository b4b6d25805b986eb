// Package tokens produces positioned words for evidence highlighting.
package tokens

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/ocr"
)

// Source yields the positioned words of a document.
type Source interface {
	Tokens(ctx context.Context, pdfPath string) ([]model.PositionedToken, error)
}

// NewSource builds the configured Source. The plain provider lays out the
// text returned by text.
func NewSource(cfg config.TokensConfig, text ocr.Extractor) (Source, error) {
	switch cfg.Provider {
	case "bbox", "":
		return NewPdfToTextBBox(cfg.PdfToTextPath), nil
	case "plain":
		if text == nil {
			return nil, eris.New("tokens: plain provider needs a text extractor")
		}
		return &PlainText{Text: text}, nil
	default:
		return nil, eris.Errorf("tokens: unknown provider %q", cfg.Provider)
	}
}

// Synthetic grid metrics for FromPlainText, in points.
const (
	charWidth  = 6.0
	lineHeight = 12.0
)

// FromPlainText lays text out on a fixed monospace grid: pages split on form
// feeds, one row per line, one column per rune. The boxes are approximate
// but keep words in reading order with consistent geometry.
func FromPlainText(text string) []model.PositionedToken {
	var out []model.PositionedToken
	for p, page := range ocr.Pages(text) {
		for row, line := range strings.Split(page, "\n") {
			col := 0
			for len(line) > 0 {
				r, size := utf8.DecodeRuneInString(line)
				if r == ' ' || r == '\t' || r == '\r' {
					line = line[size:]
					col++
					continue
				}
				end := strings.IndexAny(line, " \t\r")
				if end < 0 {
					end = len(line)
				}
				word := line[:end]
				n := utf8.RuneCountInString(word)
				out = append(out, model.PositionedToken{
					Text:   word,
					Page:   p + 1,
					X:      float64(col) * charWidth,
					Y:      float64(row) * lineHeight,
					Width:  float64(n) * charWidth,
					Height: lineHeight,
				})
				line = line[end:]
				col += n
			}
		}
	}
	return out
}

// PlainText is a Source for documents without usable geometry.
type PlainText struct {
	Text ocr.Extractor
}

// Tokens implements Source.
func (p *PlainText) Tokens(ctx context.Context, pdfPath string) ([]model.PositionedToken, error) {
	text, err := p.Text.ExtractText(ctx, pdfPath)
	if err != nil {
		return nil, eris.Wrap(err, "tokens: extract text")
	}
	return FromPlainText(text), nil
}
