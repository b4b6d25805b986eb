package tokens

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/fetcher"
	"github.com/sells-group/contract-validator/internal/model"
)

// PdfToTextBBox reads word boxes with `pdftotext -bbox`.
type PdfToTextBBox struct {
	binPath string
}

// NewPdfToTextBBox creates the source. If binPath is empty, "pdftotext" is used.
func NewPdfToTextBBox(binPath string) *PdfToTextBBox {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToTextBBox{binPath: binPath}
}

// Tokens implements Source.
func (b *PdfToTextBBox) Tokens(ctx context.Context, pdfPath string) ([]model.PositionedToken, error) {
	cmd := exec.CommandContext(ctx, b.binPath, "-bbox", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "tokens: pdftotext -bbox failed for %s: %s", pdfPath, stderr.String())
	}
	return ParseBBox(ctx, &stdout)
}

type bboxWord struct {
	XMin float64 `xml:"xMin,attr"`
	YMin float64 `xml:"yMin,attr"`
	XMax float64 `xml:"xMax,attr"`
	YMax float64 `xml:"yMax,attr"`
	Text string  `xml:",chardata"`
}

type bboxPage struct {
	Words []bboxWord `xml:"word"`
}

// ParseBBox decodes pdftotext's bbox XHTML. Each <page> is numbered from 1
// in document order and each <word> becomes a token with its box in points
// from the top-left corner.
func ParseBBox(ctx context.Context, r io.Reader) ([]model.PositionedToken, error) {
	var out []model.PositionedToken
	page := 0
	err := fetcher.EachXML(ctx, r, "page", func(p bboxPage) error {
		page++
		for _, w := range p.Words {
			text := strings.TrimSpace(w.Text)
			if text == "" {
				continue
			}
			out = append(out, model.PositionedToken{
				Text:   text,
				Page:   page,
				X:      w.XMin,
				Y:      w.YMin,
				Width:  w.XMax - w.XMin,
				Height: w.YMax - w.YMin,
			})
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "tokens: parse bbox")
	}
	return out, nil
}
