package ocr

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/resilience"
)

// maxStderr bounds how much of pdftotext's stderr is kept in errors.
const maxStderr = 512

// PdfToText reads a PDF's embedded text layer with the pdftotext CLI.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext in layout mode and returns its output, which
// already separates pages with PageBreak. Scanned documents come back empty
// or nearly so.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", p.runError(ctx, pdfPath, err, stderr.String())
	}
	return stdout.String(), nil
}

// runError names the failure using pdftotext's documented exit codes. A
// cancelled or timed-out run is transient; everything else is a property of
// the file or the install and will fail again.
func (p *PdfToText) runError(ctx context.Context, pdfPath string, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return resilience.NewTransientError(eris.Wrapf(ctxErr, "ocr: pdftotext interrupted for %s", pdfPath), 0)
	}

	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderr {
		stderr = stderr[:maxStderr]
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return eris.Wrapf(err, "ocr: pdftotext failed for %s: cannot run %s", pdfPath, p.binPath)
	}
	reason := "unexpected error"
	switch exitErr.ExitCode() {
	case 1:
		reason = "cannot open PDF"
	case 3:
		reason = "PDF permissions forbid text extraction"
	}
	return eris.Wrapf(err, "ocr: pdftotext failed for %s: %s: %s", pdfPath, reason, stderr)
}
