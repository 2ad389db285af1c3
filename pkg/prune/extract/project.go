package extract

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// projectFileNames are build/project files the extractor understands.
var projectFileNames = map[string]bool{
	"package.json": true,
	"makefile":     true,
}

// projectFileExts are extensions handled regardless of base name.
var projectFileExts = map[string]bool{
	".csproj": true,
	".sln":    true,
}

// entryPointNames are files conventionally used as program entry points.
// They rarely have incoming references yet must never look orphaned.
var entryPointNames = map[string]bool{
	"main.py": true, "__main__.py": true, "app.py": true, "run.py": true,
	"index.js": true, "app.js": true, "server.js": true,
	"program.cs": true, "startup.cs": true,
	"main.go": true, "main.rs": true,
}

// csprojInclude matches Compile/Content/None Include="..." items.
var csprojInclude = regexp.MustCompile(`(?i)<(?:Compile|Content|None|EmbeddedResource)\s+Include="([^"]+)"`)

// slnProject matches project path entries in a solution file.
var slnProject = regexp.MustCompile(`Project\([^)]*\)\s*=\s*"[^"]*",\s*"([^"]+)"`)

// makefileTarget matches file-looking words in makefile recipe lines.
var makefileFile = regexp.MustCompile(`(\S+\.[a-zA-Z0-9]+)`)

// ProjectExtractor reports which files a project/build file lists. Every
// hint it emits is a KindProject or KindDependency reference, which both
// feeds in-degree and marks the target as a project member.
type ProjectExtractor struct{}

// NewProjectExtractor creates a project-file extractor.
func NewProjectExtractor() *ProjectExtractor {
	return &ProjectExtractor{}
}

// Name implements Extractor.
func (x *ProjectExtractor) Name() string { return "project" }

// Supports implements Extractor.
func (x *ProjectExtractor) Supports(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if projectFileNames[base] {
		return true
	}
	return projectFileExts[strings.ToLower(filepath.Ext(path))]
}

// Extract implements Extractor.
func (x *ProjectExtractor) Extract(path string, content []byte) []types.RawReference {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case base == "package.json":
		return extractPackageJSON(content)
	case ext == ".csproj":
		return extractMatches(content, csprojInclude, types.KindProject)
	case ext == ".sln":
		return extractMatches(content, slnProject, types.KindProject)
	case base == "makefile":
		return extractMatches(content, makefileFile, types.KindDependency)
	default:
		return nil
	}
}

// IsEntryPoint reports whether the path is a conventional program entry
// point that should be treated as a project member.
func IsEntryPoint(relPath string) bool {
	return entryPointNames[strings.ToLower(filepath.Base(relPath))]
}

// packageJSON is the subset of package.json the extractor reads.
type packageJSON struct {
	Main    string            `json:"main"`
	Module  string            `json:"module"`
	Types   string            `json:"types"`
	Bin     json.RawMessage   `json:"bin"`
	Files   []string          `json:"files"`
	Scripts map[string]string `json:"scripts"`
}

// extractPackageJSON pulls file references out of a package.json.
func extractPackageJSON(content []byte) []types.RawReference {
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var refs []types.RawReference

	add := func(hint string, kind types.ReferenceKind) {
		hint = strings.TrimSpace(strings.TrimPrefix(hint, "./"))
		if hint == "" || !strings.Contains(hint, ".") {
			return
		}
		if _, dup := seen[hint]; dup {
			return
		}
		seen[hint] = struct{}{}
		refs = append(refs, types.RawReference{TargetHint: hint, Kind: kind})
	}

	add(pkg.Main, types.KindProject)
	add(pkg.Module, types.KindProject)
	add(pkg.Types, types.KindProject)
	for _, f := range pkg.Files {
		add(f, types.KindProject)
	}

	// bin can be a string or a map of name -> path.
	if len(pkg.Bin) > 0 {
		var binPath string
		if err := json.Unmarshal(pkg.Bin, &binPath); err == nil {
			add(binPath, types.KindProject)
		} else {
			var binMap map[string]string
			if err := json.Unmarshal(pkg.Bin, &binMap); err == nil {
				for _, p := range binMap {
					add(p, types.KindProject)
				}
			}
		}
	}

	// Script commands often name files directly (node build.js).
	for _, cmd := range pkg.Scripts {
		for _, word := range strings.Fields(cmd) {
			if strings.Contains(word, ".") && !strings.HasPrefix(word, "-") {
				add(word, types.KindScript)
			}
		}
	}

	return refs
}

// extractMatches applies a single-group regex line by line.
func extractMatches(content []byte, re *regexp.Regexp, kind types.ReferenceKind) []types.RawReference {
	seen := make(map[string]struct{})
	var refs []types.RawReference

	for i, line := range strings.Split(string(content), "\n") {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			hint := strings.ReplaceAll(strings.TrimSpace(m[1]), `\`, "/")
			if hint == "" {
				continue
			}
			if _, dup := seen[hint]; dup {
				continue
			}
			seen[hint] = struct{}{}
			refs = append(refs, types.RawReference{TargetHint: hint, Kind: kind, Line: i + 1})
		}
	}

	return refs
}
