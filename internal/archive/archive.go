// Package archive resolves and creates the zip archives that bundle an
// artwork with its attached vector for agencies that want a single file.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/withObsrvr/artwork-uploader/internal/logging"
)

// ErrNoFiles is returned when Create is called without inputs.
var ErrNoFiles = errors.New("no files to archive")

// PathFor returns the archive path for an artwork: the artwork's directory
// joined with its name up to the first dot, plus ".zip".
func PathFor(artworkPath string) string {
	dir := filepath.Dir(artworkPath)
	name := filepath.Base(artworkPath)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return filepath.Join(dir, name+".zip")
}

// Zipper creates archives next to the artwork they bundle.
type Zipper struct {
	log *slog.Logger
}

// NewZipper creates a new Zipper.
func NewZipper() *Zipper {
	return &Zipper{log: logging.Component("archive")}
}

// ArchivePathFor returns the archive path keyed on the artwork's file path.
func (z *Zipper) ArchivePathFor(filePath string) string {
	return PathFor(filePath)
}

// Create writes an archive containing paths. The archive is placed at
// PathFor(paths[0]) and entries are stored under their base names.
func (z *Zipper) Create(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", ErrNoFiles
	}

	archivePath := PathFor(paths[0])
	tempPath := archivePath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create archive %s: %w", tempPath, err)
	}

	if err := writeArchive(f, paths); err != nil {
		f.Close()
		os.Remove(tempPath)
		return "", err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("close archive %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, archivePath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename %s to %s: %w", tempPath, archivePath, err)
	}

	z.log.Debug("archive created", "path", archivePath, "files", len(paths))
	return archivePath, nil
}

func writeArchive(w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)

	for _, p := range paths {
		if err := addFile(zw, p); err != nil {
			zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	return nil
}
