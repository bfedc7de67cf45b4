package download

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/pesde-pm/pesde/internal/cas"
	"github.com/pesde-pm/pesde/internal/graph"
	"github.com/ulikunitz/xz"
)

// decompress wraps f in the reader matching archivePath's extension. The
// first-class registry and git sources only ever produce gzip, but the
// compat registry mirrors an older tool that also shipped .tar.xz and
// .tar.bz2 archives.
func decompress(archivePath string, f io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(archivePath, ".tar.xz"):
		return xz.NewReader(f)
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		return bzip2.NewReader(f, nil)
	default:
		return gzip.NewReader(f)
	}
}

// Unpack reads a compressed tar archive from path, storing every regular
// file's contents in store by content hash and recording the resulting tree
// as a PackageFS. Directory entries are recorded verbatim so empty
// directories survive materialization. The compression format is chosen by
// archivePath's extension (gzip, xz, or bzip2).
func Unpack(store *cas.Store, archivePath string) (graph.PackageFS, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer func() { _ = f.Close() }()

	dr, err := decompress(archivePath, f)
	if err != nil {
		return nil, fmt.Errorf("reading compressed header of %s: %w", archivePath, err)
	}
	if closer, ok := dr.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	fs := make(graph.PackageFS)
	tr := tar.NewReader(dr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entry of %s: %w", archivePath, err)
		}

		cleanName := path.Clean(hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			fs[cleanName] = graph.Entry{Kind: graph.EntryDirectory}
		case tar.TypeReg, tar.TypeRegA:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading %s from %s: %w", hdr.Name, archivePath, err)
			}
			hash, err := store.Store(data)
			if err != nil {
				return nil, fmt.Errorf("storing %s from %s: %w", hdr.Name, archivePath, err)
			}
			fs[cleanName] = graph.Entry{Kind: graph.EntryFile, Hash: hash}
		default:
			// symlinks and other special entries have no analogue in the
			// tree consumers materialize; skip them rather than fail the
			// whole unpack over one unusual tar member.
			continue
		}
	}

	return fs, nil
}

// Materialize writes every entry of fs under destDir, creating directories
// and hard-linking (or copying) files from store.
func Materialize(store *cas.Store, fs graph.PackageFS, destDir string) error {
	for _, relPath := range fs.Paths() {
		entry := fs[relPath]
		dest := filepath.Join(destDir, filepath.FromSlash(relPath))

		switch entry.Kind {
		case graph.EntryDirectory:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", dest, err)
			}
		case graph.EntryFile:
			if err := store.Materialize(entry.Hash, dest); err != nil {
				return fmt.Errorf("materializing %s: %w", dest, err)
			}
		}
	}
	return nil
}
