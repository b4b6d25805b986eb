package fetcher

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ManifestEntry is one source listed in an ingest manifest.
type ManifestEntry struct {
	Kind       string `json:"kind"`
	Source     string `json:"source"`
	ContractID string `json:"contractId,omitempty"`
}

// manifestColumns maps accepted CSV header names to entry fields.
var manifestColumns = map[string]string{
	"kind":          "kind",
	"type":          "kind",
	"document_type": "kind",
	"source":        "source",
	"path":          "source",
	"url":           "source",
	"contract_id":   "contract",
	"contractid":    "contract",
	"contract":      "contract",
}

// ReadManifest loads a .csv or .json manifest. Relative local sources are
// resolved against the manifest's directory.
func ReadManifest(path string) ([]ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var entries []ManifestEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		entries, err = ParseManifestCSV(f)
	case ".json":
		entries, err = ParseManifestJSON(f)
	default:
		return nil, eris.Errorf("manifest: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: %s", path)
	}

	base := filepath.Dir(path)
	for i := range entries {
		entries[i].Source = resolveSource(base, entries[i].Source)
	}
	return entries, nil
}

// ParseManifestCSV reads a headed CSV manifest. Lines starting with '#' are
// skipped and fields are trimmed. The header must name a kind and a source
// column; a contract column is optional.
func ParseManifestCSV(r io.Reader) ([]ManifestEntry, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, eris.New("csv: empty manifest")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := manifestColumns[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["kind"]; !ok {
		return nil, eris.New("csv: manifest header has no kind column")
	}
	if _, ok := cols["source"]; !ok {
		return nil, eris.New("csv: manifest header has no source column")
	}

	cell := func(rec []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var entries []ManifestEntry
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entries, eris.Wrap(err, "csv: read row")
		}
		e := ManifestEntry{
			Kind:       cell(rec, "kind"),
			Source:     cell(rec, "source"),
			ContractID: cell(rec, "contract"),
		}
		if e.Kind == "" && e.Source == "" {
			continue
		}
		if err := e.check(); err != nil {
			line, _ := reader.FieldPos(0)
			return entries, eris.Wrapf(err, "csv: line %d", line)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseManifestJSON reads a JSON array of entries.
func ParseManifestJSON(r io.Reader) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, eris.Wrap(err, "json: decode manifest")
	}
	for i := range entries {
		e := &entries[i]
		e.Kind = strings.TrimSpace(e.Kind)
		e.Source = strings.TrimSpace(e.Source)
		e.ContractID = strings.TrimSpace(e.ContractID)
		if err := e.check(); err != nil {
			return nil, eris.Wrapf(err, "json: entry %d", i)
		}
	}
	return entries, nil
}

func (e ManifestEntry) check() error {
	if e.Kind == "" {
		return eris.New("missing kind")
	}
	if e.Source == "" {
		return eris.New("missing source")
	}
	return nil
}

func resolveSource(base, src string) string {
	if u, err := url.Parse(src); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return src
	}
	if filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(base, src)
}
