package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

func hints(refs []types.RawReference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.TargetHint)
	}
	return out
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("default extractors are registered", func(t *testing.T) {
		t.Parallel()
		names := Names()
		assert.Contains(t, names, "imports")
		assert.Contains(t, names, "markdown")
		assert.Contains(t, names, "project")
	})

	t.Run("For returns extractors by path", func(t *testing.T) {
		t.Parallel()
		assert.NotEmpty(t, For("src/app.py"))
		assert.NotEmpty(t, For("README.md"))
		assert.NotEmpty(t, For("package.json"))
		assert.Empty(t, For("asset.png"))
	})
}

func TestImportExtractor(t *testing.T) {
	t.Parallel()
	x := NewImportExtractor()

	t.Run("python imports", func(t *testing.T) {
		t.Parallel()
		src := []byte("import os\nfrom utils.helpers import thing\n\nprint('hi')\n")
		refs := x.Extract("app.py", src)
		assert.ElementsMatch(t, []string{"os", "utils.helpers"}, hints(refs))
		for _, r := range refs {
			assert.Equal(t, types.KindImport, r.Kind)
		}
	})

	t.Run("javascript imports strip extensions", func(t *testing.T) {
		t.Parallel()
		src := []byte("import x from './util.js'\nconst y = require('./lib/db')\n")
		refs := x.Extract("main.js", src)
		assert.ElementsMatch(t, []string{"./util", "./lib/db"}, hints(refs))
	})

	t.Run("cpp includes report include kind", func(t *testing.T) {
		t.Parallel()
		src := []byte("#include \"parser.h\"\n#include <vector>\n")
		refs := x.Extract("main.cpp", src)
		require.Len(t, refs, 2)
		assert.Equal(t, types.KindInclude, refs[0].Kind)
	})

	t.Run("rust use keeps module root", func(t *testing.T) {
		t.Parallel()
		src := []byte("use parser::ast::Node;\nmod lexer;\n")
		refs := x.Extract("main.rs", src)
		assert.ElementsMatch(t, []string{"parser", "lexer"}, hints(refs))
	})

	t.Run("duplicates collapse and lines are recorded", func(t *testing.T) {
		t.Parallel()
		src := []byte("import os\nimport os\n")
		refs := x.Extract("a.py", src)
		require.Len(t, refs, 1)
		assert.Equal(t, 1, refs[0].Line)
	})
}

func TestMarkdownExtractor(t *testing.T) {
	t.Parallel()
	x := NewMarkdownExtractor()

	t.Run("extracts links and skips urls", func(t *testing.T) {
		t.Parallel()
		src := []byte("See [setup](scripts/setup.sh) and [docs](https://example.com/doc).\n")
		refs := x.Extract("README.md", src)
		assert.Contains(t, hints(refs), "scripts/setup.sh")
		assert.NotContains(t, hints(refs), "https://example.com/doc")
	})

	t.Run("classifies required context", func(t *testing.T) {
		t.Parallel()
		src := []byte("The file `deploy.sh` is required for production releases.\n")
		imp := ClassifyImportance(src, "deploy.sh")
		assert.Equal(t, types.ImportanceRequired, imp)
	})

	t.Run("classifies temporary context", func(t *testing.T) {
		t.Parallel()
		src := []byte("`scratch.py` is a temporary workaround, can be deleted later.\n")
		imp := ClassifyImportance(src, "scratch.py")
		assert.Equal(t, types.ImportanceTemporary, imp)
	})

	t.Run("unmentioned file is unknown", func(t *testing.T) {
		t.Parallel()
		imp := ClassifyImportance([]byte("nothing relevant here\n"), "ghost.go")
		assert.Equal(t, types.ImportanceUnknown, imp)
	})
}

func TestProjectExtractor(t *testing.T) {
	t.Parallel()
	x := NewProjectExtractor()

	t.Run("package json scripts and entry points", func(t *testing.T) {
		t.Parallel()
		src := []byte(`{
  "main": "src/index.js",
  "bin": {"tool": "bin/tool.js"},
  "scripts": {"build": "node scripts/build.js"}
}`)
		refs := x.Extract("package.json", src)
		got := hints(refs)
		assert.Contains(t, got, "src/index.js")
		assert.Contains(t, got, "bin/tool.js")
	})

	t.Run("csproj compile includes", func(t *testing.T) {
		t.Parallel()
		src := []byte(`<Project><ItemGroup><Compile Include="Services\Parser.cs" /></ItemGroup></Project>`)
		refs := x.Extract("App.csproj", src)
		require.NotEmpty(t, refs)
		assert.Equal(t, types.KindProject, refs[0].Kind)
	})

	t.Run("entry point names", func(t *testing.T) {
		t.Parallel()
		assert.True(t, IsEntryPoint("main.go"))
		assert.True(t, IsEntryPoint("src/index.js"))
		assert.False(t, IsEntryPoint("helper.go"))
	})
}

func TestResolver(t *testing.T) {
	t.Parallel()

	r := NewResolver([]string{
		"app.py",
		"utils/helpers.py",
		"utils/__init__.py",
		"web/index.js",
		"web/api.js",
		"widgets/unique_widget.py",
	})

	t.Run("dotted module path", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "utils/helpers.py", r.Resolve("app.py", "utils.helpers"))
	})

	t.Run("package resolves to index file", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "utils/__init__.py", r.Resolve("app.py", "utils"))
	})

	t.Run("relative hint against source dir", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "web/api.js", r.Resolve("web/index.js", "./api"))
	})

	t.Run("unique basename fallback", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "widgets/unique_widget.py", r.Resolve("app.py", "unique_widget"))
	})

	t.Run("external imports do not resolve", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, r.Resolve("app.py", "numpy"))
		assert.Empty(t, r.Resolve("web/index.js", "react"))
	})

	t.Run("escaping the project root does not resolve", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, r.Resolve("app.py", "../../etc/passwd"))
	})
}
