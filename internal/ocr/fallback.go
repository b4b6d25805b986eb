package ocr

import (
	"context"

	"go.uber.org/zap"
)

const defaultMinChars = 100

// Fallback runs Primary and switches to Secondary when Primary fails or
// returns fewer than MinChars non-space characters. Scanned PDFs have no
// text layer, so pdftotext returns almost nothing for them.
type Fallback struct {
	Primary   Extractor
	Secondary Extractor
	MinChars  int
}

// NewFallback returns a Fallback. minChars <= 0 uses 100.
func NewFallback(primary, secondary Extractor, minChars int) *Fallback {
	if minChars <= 0 {
		minChars = defaultMinChars
	}
	return &Fallback{Primary: primary, Secondary: secondary, MinChars: minChars}
}

// ExtractText implements Extractor.
func (f *Fallback) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	text, err := f.Primary.ExtractText(ctx, pdfPath)
	if err == nil && CountChars(text) >= f.MinChars {
		return text, nil
	}

	log := zap.L().With(zap.String("path", pdfPath))
	if err != nil {
		log.Warn("ocr: primary extractor failed, falling back", zap.Error(err))
	} else {
		log.Info("ocr: sparse text layer, falling back",
			zap.Int("chars", CountChars(text)),
			zap.Int("min_chars", f.MinChars),
		)
	}

	fallback, ferr := f.Secondary.ExtractText(ctx, pdfPath)
	if ferr != nil {
		if err == nil && text != "" {
			// Sparse text beats nothing.
			log.Warn("ocr: fallback failed, keeping sparse text", zap.Error(ferr))
			return text, nil
		}
		return "", ferr
	}
	return fallback, nil
}
