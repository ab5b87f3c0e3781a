package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// CatalogName is the YAML file listing installed packages.
const CatalogName = "catalog.yaml"

// catalogFile represents the YAML structure of the package catalog
type catalogFile struct {
	Packages []CatalogEntry `yaml:"packages"`
}

// CatalogEntry is one installed package in catalog.yaml
type CatalogEntry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Path        string `yaml:"path"` // package directory, relative to the catalog
}

// Loader reads the catalog and the manifests it points at
type Loader struct {
	basePath string
}

// NewLoader creates a loader rooted at the content directory
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// BasePath returns the content directory the loader reads from
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadCatalog reads catalog.yaml and returns its entries without touching
// the package directories.
func (l *Loader) LoadCatalog() ([]CatalogEntry, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, CatalogName))
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return file.Packages, nil
}

// LoadPackage loads one catalog entry's manifest. Catalog fields override
// what the manifest declares: the catalog id becomes the package id and a
// catalog title replaces the manifest title.
func (l *Loader) LoadPackage(entry CatalogEntry) (*domain.Package, error) {
	dir := entry.Path
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(l.basePath, dir)
	}

	pkg, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("load package %s: %w", entry.ID, err)
	}

	if entry.ID != "" {
		id, err := domain.NewPackageID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: catalog id %q", domain.ErrPackageInvalid, entry.ID)
		}
		pkg.ID = id
	}
	if entry.Title != "" {
		pkg.Title = entry.Title
	}
	if entry.Description != "" {
		pkg.Description = entry.Description
	}
	return pkg, nil
}

// LoadAll loads every package the catalog lists.
func (l *Loader) LoadAll() ([]*domain.Package, error) {
	entries, err := l.LoadCatalog()
	if err != nil {
		return nil, err
	}

	packages := make([]*domain.Package, 0, len(entries))
	for _, entry := range entries {
		pkg, err := l.LoadPackage(entry)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}

// Install validates the package directory's manifest and appends it to
// catalog.yaml, creating the catalog on first install. The package
// directory stays where it is; the catalog records its path.
func (l *Loader) Install(dir string) (*domain.Package, error) {
	pkg, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	entries, err := l.LoadCatalog()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, entry := range entries {
		if entry.ID == pkg.ID.String() {
			return nil, fmt.Errorf("%w: %s", domain.ErrPackageAlreadyKnown, pkg.ID)
		}
	}

	entries = append(entries, CatalogEntry{
		ID:    pkg.ID.String(),
		Title: pkg.Title,
		Path:  dir,
	})
	if err := l.saveCatalog(entries); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (l *Loader) saveCatalog(entries []CatalogEntry) error {
	data, err := yaml.Marshal(catalogFile{Packages: entries})
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.basePath, CatalogName), data, 0644); err != nil {
		return fmt.Errorf("write catalog file: %w", err)
	}
	return nil
}
