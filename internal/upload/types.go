package upload

import (
	"errors"
	"path/filepath"
	"strings"
)

// RetriesCount is the number of extra attempts made for a file after its
// first attempt fails. Attempts are immediate, without backoff.
const RetriesCount = 3

var (
	// ErrEmptyBatch is returned when a batch would carry no files.
	ErrEmptyBatch = errors.New("upload batch has no files")
	// ErrInvalidContext is returned when an UploadContext fails validation.
	ErrInvalidContext = errors.New("invalid upload context")
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("upload run already in progress")
	// ErrNothingToUpload is returned when batch building leaves no work.
	ErrNothingToUpload = errors.New("nothing to upload")
)

// Artwork is one local image, optionally paired with a vector original.
type Artwork struct {
	FilePath   string
	VectorPath string // empty when no vector is attached
}

// HasVector reports whether a vector original is attached.
func (a Artwork) HasVector() bool {
	return a.VectorPath != ""
}

// Destination is one configured remote FTP target.
type Destination struct {
	Title              string `yaml:"title"`
	Host               string `yaml:"host"`
	Username           string `yaml:"username"`
	EncodedPassword    string `yaml:"password"`
	ZipBeforeUpload    bool   `yaml:"zip_before_upload"`
	DisablePassiveMode bool   `yaml:"disable_passive_mode"`
	DisableEPSV        bool   `yaml:"disable_epsv"`
}

// ProxySettings describes a SOCKS5 proxy used for FTP connections.
type ProxySettings struct {
	Address  string `yaml:"address"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Settings are the global transfer settings shared by all destinations.
type Settings struct {
	UseProxy           bool
	Proxy              *ProxySettings
	TimeoutSeconds     int
	MaxParallelUploads int
	VerboseLogging     bool
}

// CredentialsDecoder turns a stored password into the plain one.
type CredentialsDecoder interface {
	Decode(encoded string) (string, error)
}

// Archiver resolves the archive path that bundles an artwork with its vector.
type Archiver interface {
	ArchivePathFor(filePath string) string
}

// ArchiveMaker is an Archiver that can also create the archive on disk.
type ArchiveMaker interface {
	Archiver
	Create(paths []string) (string, error)
}

// TransferOutcome is the final result of uploading one file to one host.
type TransferOutcome struct {
	FilePath   string
	Host       string
	RemotePath string
	Success    bool
	Attempts   int
	Err        error
	Bytes      int64
}

var vectorExts = map[string]bool{
	".eps": true,
	".ai":  true,
	".svg": true,
}

// IsVector reports whether path has a vector file extension.
func IsVector(path string) bool {
	return vectorExts[strings.ToLower(filepath.Ext(path))]
}
