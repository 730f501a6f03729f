// Package languages maintains the table of runnable languages published by the runtime catalog.
//
// The table is an immutable Snapshot. A Registry publishes snapshots atomically, so readers never
// observe a partially built table and a refresh replaces the reference instead of mutating it.
package languages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/text/cases"
)

// Runtime is a single record of the runtime catalog.
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

// Entry is the resolution of an alias.
type Entry struct {
	Canonical string
	Version   string
}

// String renders the entry as language(version).
func (entry Entry) String() string {
	return fmt.Sprintf("%s(%s)", entry.Canonical, entry.Version)
}

// Snapshot maps aliases onto canonical languages. A Snapshot is never modified after NewSnapshot returns.
type Snapshot struct {
	canonicalByAlias map[string]string
	versionByName    map[string]string
	canonicalNames   []string
}

var emptySnapshot = &Snapshot{
	canonicalByAlias: map[string]string{},
	versionByName:    map[string]string{},
	canonicalNames:   []string{},
}

// NewSnapshot builds a snapshot from catalog records. Every alias and the canonical name resolve to
// the same canonical language; when a language appears more than once the last record's version wins.
// Only names some alias still resolves to are listed as canonical.
func NewSnapshot(runtimes []Runtime) *Snapshot {
	canonicalByAlias := make(map[string]string, len(runtimes)*4)
	versionByName := make(map[string]string, len(runtimes))
	for _, runtime := range runtimes {
		canonical := normalizeToken(runtime.Language)
		if canonical == "" {
			continue
		}
		canonicalByAlias[canonical] = canonical
		versionByName[canonical] = runtime.Version
		for _, alias := range runtime.Aliases {
			normalizedAlias := normalizeToken(alias)
			if normalizedAlias == "" {
				continue
			}
			canonicalByAlias[normalizedAlias] = canonical
		}
	}
	distinct := make(map[string]struct{}, len(versionByName))
	for _, canonical := range canonicalByAlias {
		distinct[canonical] = struct{}{}
	}
	canonicalNames := make([]string, 0, len(distinct))
	for name := range distinct {
		canonicalNames = append(canonicalNames, name)
	}
	sort.Strings(canonicalNames)
	return &Snapshot{
		canonicalByAlias: canonicalByAlias,
		versionByName:    versionByName,
		canonicalNames:   canonicalNames,
	}
}

// Resolve looks up an alias case-insensitively.
func (snapshot *Snapshot) Resolve(token string) (Entry, bool) {
	canonical, found := snapshot.canonicalByAlias[normalizeToken(token)]
	if !found {
		return Entry{}, false
	}
	return Entry{Canonical: canonical, Version: snapshot.versionByName[canonical]}, true
}

// Canonical returns the sorted distinct canonical names.
func (snapshot *Snapshot) Canonical() []string {
	return append([]string{}, snapshot.canonicalNames...)
}

// Len reports the number of known aliases, canonical names included.
func (snapshot *Snapshot) Len() int {
	return len(snapshot.canonicalByAlias)
}

// Registry publishes the current Snapshot. The zero value is an empty registry that resolves nothing.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Publish replaces the current snapshot.
func (registry *Registry) Publish(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	registry.current.Store(snapshot)
}

// Snapshot returns the current snapshot, or an empty one before the first publication.
func (registry *Registry) Snapshot() *Snapshot {
	if snapshot := registry.current.Load(); snapshot != nil {
		return snapshot
	}
	return emptySnapshot
}

// Ready reports whether a snapshot has been published.
func (registry *Registry) Ready() bool {
	return registry.current.Load() != nil
}

// Resolve looks up an alias in the current snapshot.
func (registry *Registry) Resolve(token string) (Entry, bool) {
	return registry.Snapshot().Resolve(token)
}

// Canonical returns the sorted canonical names of the current snapshot.
func (registry *Registry) Canonical() []string {
	return registry.Snapshot().Canonical()
}

// Load fetches the catalog once and publishes the result. On failure the registry keeps its
// previous snapshot, which before the first successful load is the empty one.
func (registry *Registry) Load(ctx context.Context, catalog CatalogClient) error {
	if catalog == nil {
		return ErrCatalogNotConfigured
	}
	runtimes, fetchErr := catalog.Runtimes(ctx)
	if fetchErr != nil {
		return fetchErr
	}
	registry.Publish(NewSnapshot(runtimes))
	return nil
}

func normalizeToken(token string) string {
	return cases.Fold().String(strings.TrimSpace(token))
}
