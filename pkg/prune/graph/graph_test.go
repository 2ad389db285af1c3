package graph

import (
	"testing"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

func file(rel string) *types.FileRecord {
	return &types.FileRecord{Path: "/project/" + rel, RelPath: rel}
}

func TestAddReference(t *testing.T) {
	t.Parallel()

	t.Run("counts incoming references", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile(file("main.go"))
		g.AddFile(file("util.go"))

		g.AddReference(types.Reference{Source: "main.go", Target: "util.go", Kind: types.KindImport})

		if got := g.InDegree("util.go"); got != 1 {
			t.Errorf("InDegree(util.go) = %d, want 1", got)
		}
		if got := g.InDegree("main.go"); got != 0 {
			t.Errorf("InDegree(main.go) = %d, want 0", got)
		}
	})

	t.Run("merges duplicate edges", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile(file("a.go"))
		g.AddFile(file("b.go"))

		ref := types.Reference{Source: "a.go", Target: "b.go", Kind: types.KindImport, Line: 3}
		g.AddReference(ref)
		g.AddReference(ref)
		g.AddReference(types.Reference{Source: "a.go", Target: "b.go", Kind: types.KindImport, Line: 9})

		if got := g.EdgeCount(); got != 1 {
			t.Errorf("EdgeCount() = %d, want 1", got)
		}
		if got := g.InDegree("b.go"); got != 1 {
			t.Errorf("InDegree(b.go) = %d, want 1", got)
		}
	})

	t.Run("ignores unknown targets", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile(file("a.go"))

		g.AddReference(types.Reference{Source: "a.go", Target: "gone.go", Kind: types.KindImport})

		if got := g.EdgeCount(); got != 0 {
			t.Errorf("EdgeCount() = %d, want 0", got)
		}
	})

	t.Run("self reference does not count", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile(file("a.go"))

		g.AddReference(types.Reference{Source: "a.go", Target: "a.go", Kind: types.KindImport})

		if got := g.InDegree("a.go"); got != 0 {
			t.Errorf("InDegree(a.go) = %d, want 0", got)
		}
	})
}

func TestOrphanedFiles(t *testing.T) {
	t.Parallel()

	t.Run("zero in-degree files are orphans", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddFile(file("main.go"))
		g.AddFile(file("util.go"))
		g.AddFile(file("orphan.go"))
		g.AddReference(types.Reference{Source: "main.go", Target: "util.go", Kind: types.KindImport})

		orphans := g.OrphanedFiles()
		got := map[string]bool{}
		for _, f := range orphans {
			got[f.RelPath] = true
		}
		if !got["orphan.go"] || !got["main.go"] {
			t.Errorf("orphans = %v, want main.go and orphan.go", got)
		}
		if got["util.go"] {
			t.Error("util.go reported as orphan despite incoming reference")
		}
	})

	t.Run("protected files are never orphans", func(t *testing.T) {
		t.Parallel()
		g := New()
		licensed := file("LICENSE")
		licensed.Protected = true
		g.AddFile(licensed)

		if orphans := g.OrphanedFiles(); len(orphans) != 0 {
			t.Errorf("OrphanedFiles() = %v, want empty", orphans)
		}
	})
}

func TestAnnotate(t *testing.T) {
	t.Parallel()

	g := New()
	a, b := file("a.go"), file("b.go")
	g.AddFile(a)
	g.AddFile(b)
	g.AddReference(types.Reference{Source: "a.go", Target: "b.go", Kind: types.KindImport})
	g.AddReference(types.Reference{Source: "b.go", Target: "a.go", Kind: types.KindImport})

	g.Annotate()

	if a.RefCount != 1 || b.RefCount != 1 {
		t.Errorf("RefCount a=%d b=%d, want 1 and 1", a.RefCount, b.RefCount)
	}
}
