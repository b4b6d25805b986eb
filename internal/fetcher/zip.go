package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// maxBundleBytes caps the total uncompressed size unpacked from one bundle.
const maxBundleBytes = 512 << 20

// ExtractZIP unpacks a document bundle into destDir and returns the written
// paths in archive order. When exts is non-empty only members with one of
// those extensions are kept. Hidden files and macOS resource forks are
// skipped.
func ExtractZIP(zipPath, destDir string, exts ...string) ([]string, error) {
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer archive.Close() //nolint:errcheck

	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, eris.Wrap(err, "zip: resolve destination")
	}

	var (
		written []string
		budget  int64 = maxBundleBytes
	)
	for _, member := range archive.File {
		if !wantMember(member, exts) {
			continue
		}
		target, err := memberPath(root, member.Name)
		if err != nil {
			return written, err
		}
		n, err := unpackMember(member, target, budget)
		if err != nil {
			return written, err
		}
		budget -= n
		written = append(written, target)
	}
	return written, nil
}

func wantMember(f *zip.File, exts []string) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	base := filepath.Base(f.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(f.Name, "__MACOSX/") {
		return false
	}
	return hasExt(f.Name, exts)
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// memberPath joins name below root and rejects names that escape it.
func memberPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return target, nil
}

// unpackMember copies one member to target, failing once more than budget
// bytes have been written.
func unpackMember(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, eris.Wrap(err, "zip: create parent directory")
	}

	src, err := f.Open()
	if err != nil {
		return 0, eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, eris.Wrap(err, "zip: create file")
	}
	defer dst.Close() //nolint:errcheck

	n, err := io.Copy(dst, io.LimitReader(src, budget+1))
	if err != nil {
		return n, eris.Wrapf(err, "zip: write %s", target)
	}
	if n > budget {
		return n, eris.Errorf("zip: bundle exceeds %d bytes uncompressed", int64(maxBundleBytes))
	}
	return n, nil
}
