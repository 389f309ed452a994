// Package layout resolves host-specific remote directory layouts.
//
// Some stock agencies expect images and vectors in dedicated directories
// rather than the FTP login directory. The table is a small, explicit list of
// host substrings; new agencies are added as new rules.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/withObsrvr/artwork-uploader/internal/logging"
)

// ErrEmptyMatch is returned when a rule has no host substring.
var ErrEmptyMatch = errors.New("layout rule has empty match")

// ErrDuplicateRule is returned when two rules share the same host substring.
var ErrDuplicateRule = errors.New("duplicate layout rule")

// Rule maps a host substring to directory overrides.
type Rule struct {
	Match      string `yaml:"match"`
	ImagesDir  string `yaml:"images_dir"`
	VectorsDir string `yaml:"vectors_dir"`
}

// Matches returns true if host contains the rule's substring (case-insensitive).
func (r Rule) Matches(host string) bool {
	return strings.Contains(strings.ToLower(host), strings.ToLower(r.Match))
}

// Dirs holds the resolved overrides for a host. Empty means no override.
type Dirs struct {
	ImagesDir  string
	VectorsDir string
}

// IsZero reports whether no override applies.
func (d Dirs) IsZero() bool {
	return d.ImagesDir == "" && d.VectorsDir == ""
}

// DefaultRules returns the built-in agency layouts.
func DefaultRules() []Rule {
	return []Rule{
		{Match: "dreamstime", VectorsDir: "additional"},
		{Match: "alamy", ImagesDir: "Stock", VectorsDir: "Vector"},
	}
}

// Table resolves directory overrides for hosts.
type Table struct {
	rules []Rule
}

// NewTable creates a table from rules. Rule order is preserved: when several
// rules match a host, later non-empty fields win.
func NewTable(rules []Rule) (*Table, error) {
	seen := make(map[string]bool, len(rules))
	out := make([]Rule, 0, len(rules))

	for _, r := range rules {
		key := strings.ToLower(strings.TrimSpace(r.Match))
		if key == "" {
			return nil, ErrEmptyMatch
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRule, r.Match)
		}
		seen[key] = true
		r.Match = key
		out = append(out, r)
	}

	return &Table{rules: out}, nil
}

// DefaultTable returns a table with DefaultRules.
func DefaultTable() *Table {
	t, err := NewTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

// WithDefaults returns DefaultRules followed by the given extra rules. An
// extra rule whose match equals a built-in one replaces it in place. Only the
// first such rule replaces; repeats among the extras are kept so NewTable
// reports them.
func WithDefaults(extra []Rule) []Rule {
	rules := DefaultRules()
	replaced := make(map[int]bool)

	for _, r := range extra {
		key := strings.TrimSpace(r.Match)
		idx := -1
		for i, d := range DefaultRules() {
			if strings.EqualFold(key, d.Match) {
				idx = i
				break
			}
		}

		if idx >= 0 && !replaced[idx] {
			logging.Component("layout").Info("host layout overrides built-in rule",
				"match", rules[idx].Match,
				"images_dir", r.ImagesDir,
				"vectors_dir", r.VectorsDir,
			)
			rules[idx] = r
			replaced[idx] = true
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

// Resolve returns the directory overrides for host.
func (t *Table) Resolve(host string) Dirs {
	var d Dirs
	if t == nil {
		return d
	}

	for _, r := range t.rules {
		if !r.Matches(host) {
			continue
		}
		if r.ImagesDir != "" {
			d.ImagesDir = r.ImagesDir
		}
		if r.VectorsDir != "" {
			d.VectorsDir = r.VectorsDir
		}
	}

	return d
}

// Rules returns a copy of the configured rules.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
