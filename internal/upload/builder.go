package upload

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/withObsrvr/artwork-uploader/internal/archive"
	"github.com/withObsrvr/artwork-uploader/internal/layout"
	"github.com/withObsrvr/artwork-uploader/internal/logging"
	"github.com/withObsrvr/artwork-uploader/internal/metrics"
)

// ResolvePaths returns the two path lists for artworks, in lock-step.
// plain holds each artwork file followed by its vector, if any. archived holds
// the archive path for artworks with a vector and the artwork file otherwise.
func ResolvePaths(artworks []Artwork, archiver Archiver) (plain, archived []string) {
	plain = make([]string, 0, len(artworks)*2)
	archived = make([]string, 0, len(artworks))

	for _, a := range artworks {
		if a.FilePath == "" {
			continue
		}

		plain = append(plain, a.FilePath)
		if a.HasVector() {
			plain = append(plain, a.VectorPath)
			archived = append(archived, archiver.ArchivePathFor(a.FilePath))
		} else {
			archived = append(archived, a.FilePath)
		}
	}

	return plain, archived
}

// SelectPaths picks the path list a destination wants.
func SelectPaths(dest Destination, plain, archived []string) []string {
	if dest.ZipBeforeUpload {
		return archived
	}
	return plain
}

// NewUploadContext builds the transfer context for one destination.
func NewUploadContext(dest Destination, password string, settings Settings, layouts *layout.Table) *UploadContext {
	dirs := layouts.Resolve(dest.Host)

	return &UploadContext{
		Title:          dest.Title,
		Host:           dest.Host,
		Username:       dest.Username,
		Password:       password,
		UsePassiveMode: !dest.DisablePassiveMode,
		UseEPSV:        !dest.DisableEPSV,
		UseProxy:       settings.UseProxy,
		Proxy:          settings.Proxy,
		TimeoutSeconds: settings.TimeoutSeconds,
		RetriesCount:   RetriesCount,
		ImagesDir:      dirs.ImagesDir,
		VectorsDir:     dirs.VectorsDir,
		VerboseLogging: settings.VerboseLogging,
	}
}

type buildOptions struct {
	archiver Archiver
	layouts  *layout.Table
	log      *slog.Logger
}

// BuildOption configures BuildBatches.
type BuildOption func(*buildOptions)

// WithArchiver sets the archiver used to resolve archive paths.
func WithArchiver(a Archiver) BuildOption {
	return func(o *buildOptions) { o.archiver = a }
}

// WithLayouts sets the host directory layout table.
func WithLayouts(t *layout.Table) BuildOption {
	return func(o *buildOptions) { o.layouts = t }
}

// WithBuildLogger sets the logger for skipped destinations.
func WithBuildLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) { o.log = l }
}

// BuildBatches creates one batch per usable destination. Destinations whose
// credentials cannot be decoded or whose context is invalid are skipped with
// a warning. A destination that shares host and login with an earlier one is
// merged into that batch: its paths are appended in order, skipping paths the
// batch already carries.
func BuildBatches(artworks []Artwork, destinations []Destination, decoder CredentialsDecoder, settings Settings, opts ...BuildOption) []*Batch {
	o := buildOptions{
		archiver: archive.NewZipper(),
		layouts:  layout.DefaultTable(),
		log:      logging.Component("batch_builder"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(artworks) == 0 {
		o.log.Warn("no artworks to upload")
		return nil
	}
	if len(destinations) == 0 {
		o.log.Warn("no destinations selected")
		return nil
	}

	plain, archived := ResolvePaths(artworks, o.archiver)

	batches := make([]*Batch, 0, len(destinations))
	byLogin := make(map[string]*Batch, len(destinations))

	for _, dest := range destinations {
		log := o.log.With("destination", dest.Title, "host", dest.Host)

		password, err := decoder.Decode(dest.EncodedPassword)
		if err != nil {
			log.Warn("skipping destination: cannot decode credentials", "error", err)
			metrics.Get().IncSkippedDestinations()
			continue
		}

		uc := NewUploadContext(dest, password, settings, o.layouts)
		paths := SelectPaths(dest, plain, archived)

		key := loginKey(uc)
		if existing, ok := byLogin[key]; ok {
			added := existing.merge(paths)
			log.Info("merged destination into existing batch", "added", added, "files", existing.Len())
			continue
		}

		batch, err := NewBatch(uc, paths)
		if err != nil {
			log.Warn("skipping destination", "error", err)
			metrics.Get().IncSkippedDestinations()
			continue
		}

		byLogin[key] = batch
		batches = append(batches, batch)
		log.Debug("batch built",
			"files", batch.Len(),
			"zip", dest.ZipBeforeUpload,
			"images_dir", uc.ImagesDir,
			"vectors_dir", uc.VectorsDir,
		)
	}

	return batches
}

func loginKey(uc *UploadContext) string {
	return strings.ToLower(strings.TrimSpace(uc.Host)) + "\x00" + uc.Username + "\x00" + uc.Password
}

// PrepareArchives creates the missing archives for artworks with a vector
// when at least one destination zips before upload. It returns the paths of
// archives it created.
func PrepareArchives(artworks []Artwork, destinations []Destination, maker ArchiveMaker) ([]string, error) {
	needed := false
	for _, d := range destinations {
		if d.ZipBeforeUpload {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	var created []string
	var errs []error

	for _, a := range artworks {
		if !a.HasVector() {
			continue
		}

		if _, err := os.Stat(maker.ArchivePathFor(a.FilePath)); err == nil {
			continue
		}

		path, err := maker.Create([]string{a.FilePath, a.VectorPath})
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", a.FilePath, err))
			continue
		}
		created = append(created, path)
	}

	return created, errors.Join(errs...)
}

var rasterExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

var companionExts = []string{".eps", ".ai"}

// DiscoverArtworks turns a list of local paths into artworks. Vector files
// listed next to a raster with the same name are attached to it. With
// autoVectors, a sibling .eps or .ai on disk is attached to each raster.
func DiscoverArtworks(paths []string, autoVectors bool) []Artwork {
	stem := func(p string) string {
		return strings.TrimSuffix(p, filepath.Ext(p))
	}

	listedVectors := make(map[string]string)
	for _, p := range paths {
		if IsVector(p) {
			listedVectors[stem(p)] = p
		}
	}

	attached := make(map[string]bool)
	var artworks []Artwork

	for _, p := range paths {
		if IsVector(p) {
			continue
		}

		a := Artwork{FilePath: p}
		if v, ok := listedVectors[stem(p)]; ok {
			a.VectorPath = v
			attached[v] = true
		} else if autoVectors && rasterExts[strings.ToLower(filepath.Ext(p))] {
			for _, ext := range companionExts {
				candidate := stem(p) + ext
				if _, err := os.Stat(candidate); err == nil {
					a.VectorPath = candidate
					break
				}
			}
		}
		artworks = append(artworks, a)
	}

	for _, p := range paths {
		if IsVector(p) && !attached[p] {
			artworks = append(artworks, Artwork{FilePath: p})
		}
	}

	return artworks
}
