// Package scanner walks an indexed working tree and decides which files
// the indexing surfaces care about. The same filter governs full scans
// and incremental change batches so both paths agree on scope.
package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// exclusionRule is one compiled gitignore-style pattern. Patterns
// without a slash match any path segment; negated patterns re-include.
// A leading **/ compiles to a second matcher without the prefix since
// gitignore lets such patterns match at the root as well.
type exclusionRule struct {
	negated  bool
	baseOnly bool
	matchers []glob.Glob
}

func (r exclusionRule) matchPath(path string) bool {
	for _, m := range r.matchers {
		if m.Match(path) {
			return true
		}
	}
	return false
}

// Filter applies the include-extension set and the exclusion patterns.
// A path passes iff its lowercased extension is included and the last
// matching exclusion pattern, if any, is not negated.
type Filter struct {
	extensions map[string]bool
	rules      []exclusionRule
	negations  bool
}

// NewFilter compiles the filter. An empty extension set admits every
// extension; exclusion patterns follow gitignore conventions
// (node_modules/**, **/*.min.js, !keep.min.js, trailing slash for
// directories).
func NewFilter(includeExtensions []string, excludePatterns []string) (*Filter, error) {
	f := &Filter{extensions: make(map[string]bool, len(includeExtensions))}
	for _, ext := range includeExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = true
	}

	for _, raw := range excludePatterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		negated := strings.HasPrefix(pattern, "!")
		if negated {
			pattern = pattern[1:]
			f.negations = true
		}
		pattern = strings.TrimPrefix(pattern, "/")
		if strings.HasSuffix(pattern, "/") {
			pattern += "**"
		}
		baseOnly := !strings.Contains(pattern, "/")
		variants := []string{pattern}
		if rest := strings.TrimPrefix(pattern, "**/"); rest != pattern {
			variants = append(variants, rest)
		}
		rule := exclusionRule{negated: negated, baseOnly: baseOnly}
		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("bad exclude pattern %q: %w", raw, err)
			}
			rule.matchers = append(rule.matchers, g)
		}
		f.rules = append(f.rules, rule)
	}
	return f, nil
}

// Match reports whether a repo-relative POSIX path is in scope.
func (f *Filter) Match(path string) bool {
	if len(f.extensions) > 0 && !f.extensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	return !f.excluded(path)
}

// excluded evaluates the exclusion rules in order; the last match wins,
// mirroring gitignore precedence.
func (f *Filter) excluded(path string) bool {
	if len(f.rules) == 0 {
		return false
	}
	segments := strings.Split(path, "/")
	excluded := false
	for _, rule := range f.rules {
		matched := false
		if rule.baseOnly {
			for _, seg := range segments {
				if rule.matchPath(seg) {
					matched = true
					break
				}
			}
		} else {
			matched = rule.matchPath(path)
		}
		if matched {
			excluded = !rule.negated
		}
	}
	return excluded
}

// skippableDir reports whether a directory subtree can be pruned during
// a walk. Pruning is unsafe when negations could re-include children.
func (f *Filter) skippableDir(relPath string) bool {
	if f.negations {
		return false
	}
	return f.excluded(relPath)
}
