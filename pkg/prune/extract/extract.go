// Package extract provides the reference-extraction collaborators consumed
// by the reference graph. Extractors are registered by capability behind a
// registry: each one declares the paths it supports and returns raw
// reference facts for a file's content. The pipeline core only depends on
// the Extractor interface, so language support can be extended without
// touching the graph or scorer.
package extract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/deadwood/pkg/prune/types"
)

// Extractor produces raw reference facts from file content.
type Extractor interface {
	// Name returns the unique registry name of the extractor.
	Name() string

	// Supports reports whether the extractor understands the given path.
	Supports(path string) bool

	// Extract returns the reference facts found in the content. Target
	// hints are unresolved (import paths, link targets, bare file names).
	Extract(path string, content []byte) []types.RawReference
}

// registry holds registered extractors keyed by name.
var registry = struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}{
	extractors: make(map[string]Extractor),
}

// Register adds an extractor to the registry. It panics if the name is
// already taken, mirroring image/format-style registration.
func Register(e Extractor) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.extractors[e.Name()]; exists {
		panic(fmt.Sprintf("extract: duplicate extractor %q", e.Name()))
	}
	registry.extractors[e.Name()] = e
}

// For returns all registered extractors that support the given path,
// in stable name order.
func For(path string) []Extractor {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var out []Extractor
	for _, e := range registry.extractors {
		if e.Supports(path) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the names of all registered extractors, sorted.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.extractors))
	for name := range registry.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(NewImportExtractor())
	Register(NewMarkdownExtractor())
	Register(NewProjectExtractor())
}
