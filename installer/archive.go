package installer

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decodeTar fully decompresses r (format "tzst"/"tgz"/"" for the package
// archive formats of §4) into a buffered byte slice, mirroring
// repo/archive.go's openTarStream. Buffering lets the caller walk the tar
// stream twice — once to read the +MANIFEST entry, once to extract file
// content — without re-fetching the archive.
// klauspost/compress provides both the zstd and gzip codecs here, the same
// library for both of §4's archive formats rather than splitting between it
// and the standard library.
func decodeTar(r io.Reader, format string) ([]byte, error) {
	switch format {
	case "tzst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("installer: opening zstd archive: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "tgz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("installer: opening gzip archive: %w", err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	case "":
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("installer: unsupported archive format %q", format)
	}
}

func newTarReader(buf []byte) *tar.Reader {
	return tar.NewReader(bytes.NewReader(buf))
}

// isControlEntry reports whether name is one of the archive's own
// bookkeeping entries (§4's +MANIFEST / +COMPACT_MANIFEST / signature /
// <name>.sig / <name>.pub) rather than package content, so the extraction
// pass can skip it.
func isControlEntry(name string) bool {
	if name == "" || name == "signature" {
		return true
	}
	if len(name) > 0 && name[0] == '+' {
		return true
	}
	return hasAnySuffix(name, ".sig", ".pub")
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}
	return false
}
