// Package graph provides the in-memory reference graph combining scan
// output with reference facts supplied by the extractors. Building the
// graph is pure: it performs no I/O of its own.
package graph

import (
	"sort"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// edgeKey identifies a directed edge for de-duplication.
type edgeKey struct {
	source string
	target string
	kind   types.ReferenceKind
}

// Graph is a directed file-to-file reference graph. Nodes are FileRecords
// keyed by project-relative path; edges are References. Duplicate edges
// (same source, target, and kind) are merged.
type Graph struct {
	files map[string]*types.FileRecord
	edges map[edgeKey]types.Reference

	// incoming counts incoming edges per target, excluding self-references.
	incoming map[string]int
}

// New creates an empty reference graph.
func New() *Graph {
	return &Graph{
		files:    make(map[string]*types.FileRecord),
		edges:    make(map[edgeKey]types.Reference),
		incoming: make(map[string]int),
	}
}

// AddFile registers a file record. Re-adding the same relative path
// replaces the record but preserves edges already recorded against it.
func (g *Graph) AddFile(f *types.FileRecord) {
	g.files[f.RelPath] = f
}

// AddReference records a directed reference. The call is idempotent:
// duplicate edges are merged and counted once. References whose target is
// not a known file are ignored (unresolved hints carry no orphan signal).
// Self-references are recorded but do not contribute to in-degree.
func (g *Graph) AddReference(ref types.Reference) {
	if _, ok := g.files[ref.Target]; !ok {
		return
	}

	key := edgeKey{source: ref.Source, target: ref.Target, kind: ref.Kind}
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = ref

	if ref.Source != ref.Target {
		g.incoming[ref.Target]++
	}
}

// File returns the record for a relative path, or nil.
func (g *Graph) File(relPath string) *types.FileRecord {
	return g.files[relPath]
}

// Files returns all file records sorted by relative path.
func (g *Graph) Files() []*types.FileRecord {
	out := make([]*types.FileRecord, 0, len(g.files))
	for _, f := range g.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

// InDegree returns the number of distinct incoming references for a file.
func (g *Graph) InDegree(relPath string) int {
	return g.incoming[relPath]
}

// References returns all edges pointing at the given file.
func (g *Graph) References(relPath string) []types.Reference {
	var out []types.Reference
	for _, ref := range g.edges {
		if ref.Target == relPath {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// OrphanedFiles returns files with zero incoming references that are not
// protected. Protected status always wins regardless of reference count.
func (g *Graph) OrphanedFiles() []*types.FileRecord {
	var out []*types.FileRecord
	for _, f := range g.Files() {
		if f.Protected {
			continue
		}
		if g.incoming[f.RelPath] == 0 {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of files in the graph.
func (g *Graph) Len() int {
	return len(g.files)
}

// EdgeCount returns the number of distinct edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Annotate copies in-degree counts back onto the file records so later
// phases (scoring, reporting) see a consistent RefCount.
func (g *Graph) Annotate() {
	for rel, f := range g.files {
		f.RefCount = g.incoming[rel]
	}
}
