package content

import (
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// Registry provides in-memory access to the installed packages
type Registry struct {
	loader   *Loader
	mu       sync.RWMutex
	packages map[domain.PackageID]*domain.Package
	loaded   bool
}

// NewRegistry creates a new package registry
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:   loader,
		packages: make(map[domain.PackageID]*domain.Package),
	}
}

// Load reads the catalog and every manifest into memory
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	packages, err := r.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load packages: %w", err)
	}

	for _, pkg := range packages {
		r.packages[pkg.ID] = pkg
	}
	r.loaded = true
	return nil
}

// Install registers the package directory in the catalog and makes it
// launchable without a reload.
func (r *Registry) Install(dir string) (*domain.Package, error) {
	pkg, err := r.loader.Install(dir)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.packages[pkg.ID] = pkg
	r.mu.Unlock()
	return pkg, nil
}

// Reload drops the cache and reads the catalog again
func (r *Registry) Reload() error {
	r.mu.Lock()
	r.packages = make(map[domain.PackageID]*domain.Package)
	r.loaded = false
	r.mu.Unlock()

	return r.Load()
}

// Get returns a package by ID
func (r *Registry) Get(id domain.PackageID) (*domain.Package, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pkg, ok := r.packages[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return pkg, nil
}

// List returns all packages sorted by ID
func (r *Registry) List() []*domain.Package {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packages := make([]*domain.Package, 0, len(r.packages))
	for _, pkg := range r.packages {
		packages = append(packages, pkg)
	}
	sort.Slice(packages, func(i, j int) bool {
		return packages[i].ID.String() < packages[j].ID.String()
	})
	return packages
}

// Len returns the number of loaded packages
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.packages)
}
