package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultDebounce is how long a tracked file must stay unchanged before its
// change is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Options configures the file watcher behavior.
type Options struct {
	Debounce       time.Duration
	IgnorePatterns []string
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}

	// Default ignore patterns apply only when none were configured (nil, not
	// empty). Spreadsheet editors leave lock and backup files next to the sheet.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".~lock.*",
			"~$*",
			"*.tmp",
			"*.bak",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks if a path matches ignore patterns.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	if o.IgnoreHidden && strings.HasPrefix(base, ".") && base != "." && base != ".." {
		return true
	}

	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}
