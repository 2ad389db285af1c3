package extract

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// langPatterns maps a language to the regexes that capture its import-like
// statements. Each regex captures the target hint in group 1.
var langPatterns = map[string][]*regexp.Regexp{
	"python": {
		regexp.MustCompile(`^\s*import\s+(\S+)`),
		regexp.MustCompile(`^\s*from\s+(\S+)\s+import`),
	},
	"javascript": {
		regexp.MustCompile(`^\s*import\s+.*\s+from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`^\s*const\s+\w+\s*=\s*require\(['"]([^'"]+)['"]\)`),
		regexp.MustCompile(`^\s*require\(['"]([^'"]+)['"]\)`),
	},
	"typescript": {
		regexp.MustCompile(`^\s*import\s+.*\s+from\s+['"]([^'"]+)['"]`),
		regexp.MustCompile(`^\s*import\s+['"]([^'"]+)['"]`),
	},
	"csharp": {
		regexp.MustCompile(`^\s*using\s+static\s+(\S+);`),
		regexp.MustCompile(`^\s*using\s+(\S+);`),
	},
	"java": {
		regexp.MustCompile(`^\s*import\s+static\s+(\S+);`),
		regexp.MustCompile(`^\s*import\s+(\S+);`),
	},
	"cpp": {
		regexp.MustCompile(`^\s*#include\s*[<"]([^>"]+)[>"]`),
	},
	"go": {
		regexp.MustCompile(`^\s*import\s+"([^"]+)"`),
		regexp.MustCompile(`^\s*"([^"]+)"\s*$`),
	},
	"rust": {
		regexp.MustCompile(`^\s*use\s+([\w:]+)`),
		regexp.MustCompile(`^\s*mod\s+(\w+);`),
	},
	"sql": {
		regexp.MustCompile(`(?i)^\s*(?:EXEC|EXECUTE)\s+(\S+)`),
	},
}

// extToLang maps file extensions to pattern languages.
var extToLang = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".cs":  "csharp",
	".java": "java",
	".c":   "cpp",
	".cc":  "cpp",
	".cpp": "cpp",
	".cxx": "cpp",
	".h":   "cpp",
	".hpp": "cpp",
	".go":  "go",
	".rs":  "rust",
	".sql": "sql",
}

// kindForLang maps a language to the reference kind it reports.
var kindForLang = map[string]types.ReferenceKind{
	"cpp": types.KindInclude,
	"sql": types.KindScript,
}

// ImportExtractor finds import/include statements with per-language
// regular expressions. This is textual extraction, not program analysis:
// it over-approximates on commented-out imports and under-approximates on
// computed ones, which the confidence model tolerates by design bias
// toward keeping files.
type ImportExtractor struct{}

// NewImportExtractor creates an import extractor.
func NewImportExtractor() *ImportExtractor {
	return &ImportExtractor{}
}

// Name implements Extractor.
func (x *ImportExtractor) Name() string { return "imports" }

// Supports implements Extractor.
func (x *ImportExtractor) Supports(path string) bool {
	_, ok := extToLang[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract implements Extractor. Line numbers are 1-based.
func (x *ImportExtractor) Extract(path string, content []byte) []types.RawReference {
	lang, ok := extToLang[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil
	}

	kind := types.KindImport
	if k, ok := kindForLang[lang]; ok {
		kind = k
	}

	patterns := langPatterns[lang]
	seen := make(map[string]struct{})
	var refs []types.RawReference

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		for _, re := range patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			hint := cleanHint(m[1], lang)
			if hint == "" {
				continue
			}
			if _, dup := seen[hint]; dup {
				continue
			}
			seen[hint] = struct{}{}
			refs = append(refs, types.RawReference{
				TargetHint: hint,
				Kind:       kind,
				Line:       line,
			})
		}
	}

	return refs
}

// cleanHint normalizes a captured target hint for resolution.
func cleanHint(hint, lang string) string {
	hint = strings.Trim(hint, `"'`+"`;, ")
	if hint == "" {
		return ""
	}

	switch lang {
	case "javascript", "typescript":
		// Strip explicit extensions so ./util.js and ./util resolve alike.
		for _, ext := range []string{".js", ".jsx", ".ts", ".tsx", ".mjs"} {
			hint = strings.TrimSuffix(hint, ext)
		}
	case "rust":
		// use foo::bar::Baz refers to module foo.
		if i := strings.Index(hint, "::"); i > 0 {
			hint = hint[:i]
		}
	}

	return hint
}
