package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/withObsrvr/artwork-uploader/internal/logging"
)

const defaultFTPPort = "21"

// ErrInvalidHost is returned when a destination host cannot be parsed.
var ErrInvalidHost = errors.New("invalid ftp host")

// ParseHost splits a destination host such as "ftp://upload.example.com/dir/"
// into a dial address and a base path. The scheme is optional and the port
// defaults to 21.
func ParseHost(host string) (addr, basePath string, err error) {
	raw := strings.TrimSpace(host)
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	if !strings.Contains(raw, "://") {
		raw = "ftp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	if !strings.EqualFold(u.Scheme, "ftp") {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidHost, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("%w: no hostname in %q", ErrInvalidHost, host)
	}

	port := u.Port()
	if port == "" {
		port = defaultFTPPort
	}

	return net.JoinHostPort(u.Hostname(), port), strings.Trim(u.Path, "/"), nil
}

// FTPDialer dials FTP sessions with github.com/jlaffaye/ftp.
type FTPDialer struct {
	// Debug, when set, receives the raw FTP control conversation for
	// contexts with verbose logging enabled.
	Debug io.Writer
	log   *slog.Logger
}

// NewFTPDialer creates an FTPDialer.
func NewFTPDialer() *FTPDialer {
	return &FTPDialer{log: logging.Component("ftp")}
}

// Dial connects and logs in.
func (d *FTPDialer) Dial(ctx context.Context, uc *UploadContext) (Session, error) {
	addr, _, err := ParseHost(uc.Host)
	if err != nil {
		return nil, err
	}

	log := d.log
	if log == nil {
		log = logging.Component("ftp")
	}

	// The client only speaks passive mode.
	if !uc.UsePassiveMode {
		log.Warn("active mode not supported, using passive mode", "host", uc.Host)
	}

	dial, err := dialFunc(ctx, uc)
	if err != nil {
		return nil, err
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(uc.Timeout()),
		ftp.DialWithDisabledEPSV(!uc.UseEPSV),
		ftp.DialWithDialFunc(dial),
	}

	if uc.VerboseLogging && d.Debug != nil {
		opts = append(opts, ftp.DialWithDebugOutput(d.Debug))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if err := conn.Login(uc.Username, uc.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("login %s as %s: %w", addr, uc.Username, err)
	}

	log.Debug("session opened", "host", uc.Host, "epsv", uc.UseEPSV, "proxy", uc.UseProxy)
	return conn, nil
}

// CheckContext verifies that the credentials in uc are accepted by logging
// in and listing the base directory.
func CheckContext(ctx context.Context, dialer Dialer, uc *UploadContext) error {
	if err := uc.Validate(); err != nil {
		return err
	}

	_, base, err := ParseHost(uc.Host)
	if err != nil {
		return err
	}
	if base == "" {
		base = "."
	}

	sess, err := dialer.Dial(ctx, uc)
	if err != nil {
		return err
	}
	defer sess.Quit()

	if _, err := sess.NameList(base); err != nil {
		return fmt.Errorf("list %s on %s: %w", base, uc.Host, err)
	}
	return nil
}
