// Package fetcher brings vendor documents and data files onto local disk
// from FTP drops, HTTP links and ZIP bundles, and parses the manifest, XML
// and XLSX inputs the rest of the system consumes.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads one remote file.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// DocumentExts lists the file types accepted as vendor documents.
var DocumentExts = []string{".pdf", ".txt", ".json"}

// IsDocument reports whether name has a document extension.
func IsDocument(name string) bool {
	return hasExt(name, DocumentExts)
}

// Options configures a Resolver.
type Options struct {
	// WorkDir receives downloads and extracted bundles.
	WorkDir string
	FTP     FTPOptions
	HTTP    HTTPOptions
}

// Resolver turns a document source into local file paths. A source is a
// local file or directory, a .zip bundle, an http(s) URL, or an ftp URL.
// FTP URLs ending in "/" are treated as drop directories.
type Resolver struct {
	workDir string
	ftp     *FTPFetcher
	http    Fetcher
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Resolver{
		workDir: opts.WorkDir,
		ftp:     NewFTPFetcher(opts.FTP),
		http:    NewHTTPFetcher(opts.HTTP),
	}
}

// Resolve returns the local document paths for src in a stable order.
func (r *Resolver) Resolve(ctx context.Context, src string) ([]string, error) {
	u, err := url.Parse(src)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return r.remote(ctx, r.http, src, u.Path)
		case "ftp":
			if strings.HasSuffix(u.Path, "/") {
				return r.ftpDir(ctx, src)
			}
			return r.remote(ctx, r.ftp, src, u.Path)
		}
	}
	return r.local(src)
}

func (r *Resolver) local(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: stat %s", src)
	}
	if !info.IsDir() {
		return r.expand(src)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read dir %s", src)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(src, e.Name())
		if !IsDocument(p) && !isZIP(p) {
			continue
		}
		paths, err := r.expand(p)
		if err != nil {
			return out, err
		}
		out = append(out, paths...)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) remote(ctx context.Context, f Fetcher, src, urlPath string) ([]string, error) {
	name := path.Base(urlPath)
	if name == "." || name == "/" || name == "" {
		return nil, eris.Errorf("fetcher: no file name in %s", src)
	}
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetcher: create work dir")
	}
	dest := filepath.Join(r.workDir, name)
	n, err := f.DownloadToFile(ctx, src, dest)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", src)
	}
	zap.L().Info("fetcher: downloaded", zap.String("source", src), zap.Int64("bytes", n))
	return r.expand(dest)
}

func (r *Resolver) ftpDir(ctx context.Context, src string) ([]string, error) {
	files, err := r.ftp.List(ctx, src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: list %s", src)
	}
	var out []string
	for _, f := range files {
		if !IsDocument(f) && !isZIP(f) {
			continue
		}
		u, err := url.Parse(f)
		if err != nil {
			return out, eris.Wrap(err, "fetcher: parse listed url")
		}
		paths, err := r.remote(ctx, r.ftp, f, u.Path)
		if err != nil {
			return out, err
		}
		out = append(out, paths...)
	}
	return out, nil
}

// expand unpacks ZIP bundles and passes documents through.
func (r *Resolver) expand(p string) ([]string, error) {
	if !isZIP(p) {
		if !IsDocument(p) {
			return nil, eris.Errorf("fetcher: unsupported document type %q", filepath.Ext(p))
		}
		return []string{p}, nil
	}
	dest := filepath.Join(r.workDir, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
	paths, err := ExtractZIP(p, dest, DocumentExts...)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func isZIP(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}
