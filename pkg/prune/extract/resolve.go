package extract

import (
	"path"
	"strings"
)

// resolveExtensions are tried when a hint omits its file extension.
var resolveExtensions = []string{
	".py", ".js", ".jsx", ".ts", ".tsx", ".cs", ".java", ".go", ".rs",
	".c", ".cpp", ".h", ".hpp", ".sql",
}

// Resolver maps raw target hints to project-relative paths of scanned
// files. Resolution is purely lexical: exact path, extension probing,
// package index files, then a unique-basename fallback.
type Resolver struct {
	// files is the set of known relative paths.
	files map[string]struct{}

	// byBase maps a base name to every relative path carrying it; a
	// basename resolves only when unambiguous.
	byBase map[string][]string
}

// NewResolver builds a resolver over the given project-relative paths.
func NewResolver(relPaths []string) *Resolver {
	r := &Resolver{
		files:  make(map[string]struct{}, len(relPaths)),
		byBase: make(map[string][]string),
	}
	for _, p := range relPaths {
		p = path.Clean(strings.ReplaceAll(p, `\`, "/"))
		r.files[p] = struct{}{}
		base := path.Base(p)
		r.byBase[base] = append(r.byBase[base], p)
	}
	return r
}

// Resolve maps a hint, as written in sourceRel, to a known relative path.
// It returns "" when the hint does not resolve (external dependency,
// stdlib import, broken link).
func (r *Resolver) Resolve(sourceRel, hint string) string {
	hint = strings.TrimSpace(strings.ReplaceAll(hint, `\`, "/"))
	if hint == "" {
		return ""
	}

	sourceDir := path.Dir(sourceRel)

	// Relative hints resolve against the referring file first.
	if strings.HasPrefix(hint, "./") || strings.HasPrefix(hint, "../") {
		if found := r.probe(path.Join(sourceDir, hint)); found != "" {
			return found
		}
	}

	// Dotted module paths (python/java style) become path separators.
	candidates := []string{hint}
	if dotted := strings.ReplaceAll(hint, ".", "/"); dotted != hint && !strings.Contains(hint, "/") {
		candidates = append(candidates, dotted)
	}

	for _, c := range candidates {
		// Relative to the source file, then the project root.
		if found := r.probe(path.Join(sourceDir, c)); found != "" {
			return found
		}
		if found := r.probe(c); found != "" {
			return found
		}
	}

	// Unique basename fallback.
	base := path.Base(hint)
	if !strings.Contains(base, ".") {
		for _, ext := range resolveExtensions {
			if paths := r.byBase[base+ext]; len(paths) == 1 {
				return paths[0]
			}
		}
		return ""
	}
	if paths := r.byBase[base]; len(paths) == 1 {
		return paths[0]
	}

	return ""
}

// probe checks a candidate path directly, with extensions, and as a
// package directory with an index file.
func (r *Resolver) probe(candidate string) string {
	candidate = path.Clean(strings.TrimPrefix(candidate, "/"))
	if candidate == "." || strings.HasPrefix(candidate, "../") {
		return ""
	}

	if _, ok := r.files[candidate]; ok {
		return candidate
	}

	for _, ext := range resolveExtensions {
		if c := candidate + ext; r.has(c) {
			return c
		}
	}

	for _, index := range []string{"index.js", "index.ts", "__init__.py"} {
		if c := path.Join(candidate, index); r.has(c) {
			return c
		}
	}

	return ""
}

// has reports whether the relative path is a known file.
func (r *Resolver) has(p string) bool {
	_, ok := r.files[p]
	return ok
}
