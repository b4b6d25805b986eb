package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"

	// maxMistralPDFBytes is the largest file sent inline.
	maxMistralPDFBytes = 50 << 20
)

// imageRef matches the placeholders Mistral leaves where it cut out images.
var imageRef = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)

// MistralOCR extracts text from scanned PDFs using the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the default is used.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
	}
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractText uploads the PDF inline and returns one text block per page,
// in page order, separated by PageBreak. Retryable HTTP statuses come back
// as transient errors.
func (m *MistralOCR) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	info, err := os.Stat(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read PDF %s", pdfPath)
	}
	if info.Size() > maxMistralPDFBytes {
		return "", eris.Errorf("ocr: %s is %d bytes, over the %d byte inline limit", pdfPath, info.Size(), int64(maxMistralPDFBytes))
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read PDF %s", pdfPath)
	}

	resp, err := m.call(ctx, ocrRequest{
		Model: m.model,
		Document: ocrDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return "", err
	}

	sort.SliceStable(resp.Pages, func(i, j int) bool { return resp.Pages[i].Index < resp.Pages[j].Index })
	pages := make([]string, len(resp.Pages))
	for i, page := range resp.Pages {
		pages[i] = strings.TrimSpace(imageRef.ReplaceAllString(page.Markdown, ""))
	}
	return strings.Join(pages, PageBreak), nil
}

func (m *MistralOCR) call(ctx context.Context, in ocrRequest) (*ocrResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.WrapStatus(
			eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, string(raw)),
			resp.StatusCode)
	}

	var out ocrResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	return &out, nil
}
