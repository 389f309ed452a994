// Package secrets decodes stored destination passwords.
//
// Supported forms:
//
//	plain:<password>   literal password
//	base64:<data>      standard base64 encoded password
//	env:<NAME>         read from the environment variable NAME
//	<password>         anything without a known prefix is taken literally
package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrUnknownScheme is returned for an unsupported "scheme:" prefix that
	// is explicitly requested via Strict.
	ErrUnknownScheme = errors.New("unknown secret scheme")
	// ErrMissingEnv is returned when an env: secret names an unset variable.
	ErrMissingEnv = errors.New("secret environment variable not set")
)

// Decoder decodes stored passwords.
type Decoder struct {
	// Strict rejects values that look like "scheme:..." with an unknown
	// scheme instead of treating them as literal passwords.
	Strict bool

	lookupEnv func(string) (string, bool)
}

// NewDecoder creates a Decoder reading env: secrets from the process
// environment.
func NewDecoder() *Decoder {
	return &Decoder{lookupEnv: os.LookupEnv}
}

// Decode returns the plain password for encoded.
func (d *Decoder) Decode(encoded string) (string, error) {
	scheme, value, ok := strings.Cut(encoded, ":")
	if !ok {
		return encoded, nil
	}

	switch strings.ToLower(scheme) {
	case "plain":
		return value, nil

	case "base64":
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("decode base64 secret: %w", err)
		}
		return string(raw), nil

	case "env":
		lookup := d.lookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		v, found := lookup(value)
		if !found {
			return "", fmt.Errorf("%w: %s", ErrMissingEnv, value)
		}
		return v, nil

	default:
		if d.Strict && isSchemeName(scheme) {
			return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
		}
		return encoded, nil
	}
}

func isSchemeName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
