package extract

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// File reference patterns in markdown, each capturing the hint in group 1.
var mdPatterns = []*regexp.Regexp{
	// Links: [text](file.ext)
	regexp.MustCompile(`\[[^\]]*\]\(([^)#][^)]*)\)`),
	// Inline code: `path/file.ext`
	regexp.MustCompile("`([^`]+\\.[a-zA-Z0-9]+)`"),
	// Command line examples: python tool.py, node build.js
	regexp.MustCompile(`(?:python|node|dotnet|npm|yarn|go run)\s+(\S+\.[a-zA-Z0-9]+)`),
}

// Importance keywords checked against the surrounding context lines.
var (
	requiredKeywords = []string{
		"required", "essential", "critical", "must have", "necessary",
		"mandatory", "depends on", "prerequisite",
	}
	temporaryKeywords = []string{
		"temporary", "temp", "deprecated", "obsolete",
		"remove", "delete", "cleanup", "todo: remove", "fixme: remove",
	}
)

// contextLines is how far around a mention the importance scan looks.
const contextLines = 3

// MarkdownExtractor finds file references in documentation and classifies
// each mention's importance from the surrounding prose.
type MarkdownExtractor struct{}

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{}
}

// Name implements Extractor.
func (x *MarkdownExtractor) Name() string { return "markdown" }

// Supports implements Extractor.
func (x *MarkdownExtractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Extract implements Extractor. Links report KindLink, other mentions
// KindMarkdown.
func (x *MarkdownExtractor) Extract(path string, content []byte) []types.RawReference {
	seen := make(map[string]struct{})
	var refs []types.RawReference

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		for i, re := range mdPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				hint := strings.TrimSpace(m[1])
				if skipMarkdownHint(hint) {
					continue
				}
				if _, dup := seen[hint]; dup {
					continue
				}
				seen[hint] = struct{}{}

				kind := types.KindMarkdown
				if i == 0 {
					kind = types.KindLink
				}
				refs = append(refs, types.RawReference{
					TargetHint: hint,
					Kind:       kind,
					Line:       line,
				})
			}
		}
	}

	return refs
}

// skipMarkdownHint filters out hints that cannot be project files.
func skipMarkdownHint(hint string) bool {
	if hint == "" || !strings.Contains(hint, ".") {
		return true
	}
	for _, prefix := range []string{"http://", "https://", "mailto:", "#"} {
		if strings.HasPrefix(hint, prefix) {
			return true
		}
	}
	return false
}

// ClassifyImportance derives the documentation-importance signal for a file
// mentioned in markdown content. It scans the lines around each mention of
// the hint for required/temporary phrasing; required wins over temporary
// when both appear (fail-safe toward keeping).
func ClassifyImportance(content []byte, hint string) types.DocImportance {
	lines := strings.Split(string(content), "\n")

	importance := types.ImportanceUnknown
	for i, line := range lines {
		if !strings.Contains(line, hint) {
			continue
		}
		start := max(0, i-contextLines)
		end := min(len(lines), i+contextLines+1)
		context := strings.ToLower(strings.Join(lines[start:end], "\n"))

		if containsAny(context, requiredKeywords) {
			return types.ImportanceRequired
		}
		if containsAny(context, temporaryKeywords) {
			importance = types.ImportanceTemporary
			continue
		}
		if importance == types.ImportanceUnknown {
			importance = types.ImportanceStandard
		}
	}

	return importance
}

// containsAny reports whether s contains any of the keywords.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
