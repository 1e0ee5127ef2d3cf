package sanitize

import (
	"regexp"
	"strings"
	"sync"
)

// hazard matches identifiers that reach outside the toplevel: process
// control, filesystem access, foreign-function entry points, and directives
// that change the working directory or install custom printers.
var hazard = regexp.MustCompile(
	`([Ss]ys|[Uu]nix|[Ss]tream|fork|exec|#\s*cd|#\s*directory|#\s*install_printer|fprintf|input_file|output_file|open_in|open_out)`,
)

// Filter rejects code containing deny-listed identifiers. The built-in deny
// list can be supplemented with extra tokens at runtime (see Reloader).
// It is a heuristic gate, not a sandbox: false negatives are expected.
type Filter struct {
	mu    sync.RWMutex
	extra []string
}

// New creates a Filter with the built-in deny list only.
func New() *Filter {
	return &Filter{}
}

// Check reports whether text contains a deny-listed token. The returned
// token is the first match, so callers can tell the user what was rejected.
func (f *Filter) Check(text string) (token string, hazardous bool) {
	if m := hazard.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, tok := range f.extra {
		if strings.Contains(text, tok) {
			return tok, true
		}
	}
	return "", false
}

// SetExtra replaces the supplemental token list.
func (f *Filter) SetExtra(tokens []string) {
	f.mu.Lock()
	f.extra = tokens
	f.mu.Unlock()
}
