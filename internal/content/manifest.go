// Package content loads SCORM packages: the imsmanifest.xml each package
// ships and the YAML catalog that lists which packages are installed.
package content

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// ManifestName is the file every SCORM package carries at its root.
const ManifestName = "imsmanifest.xml"

// manifestXML mirrors the imsmanifest.xml layout. Element matching is by
// local name, so the adlcp: prefixed extensions resolve without namespace
// bookkeeping.
type manifestXML struct {
	XMLName    xml.Name `xml:"manifest"`
	Identifier string   `xml:"identifier,attr"`
	Metadata   struct {
		Schema        string `xml:"schema"`
		SchemaVersion string `xml:"schemaversion"`
	} `xml:"metadata"`
	Organizations struct {
		Default string            `xml:"default,attr"`
		List    []organizationXML `xml:"organization"`
	} `xml:"organizations"`
	Resources struct {
		List []resourceXML `xml:"resource"`
	} `xml:"resources"`
}

type organizationXML struct {
	Identifier string    `xml:"identifier,attr"`
	Title      string    `xml:"title"`
	Items      []itemXML `xml:"item"`
}

type itemXML struct {
	Identifier      string    `xml:"identifier,attr"`
	IdentifierRef   string    `xml:"identifierref,attr"`
	Title           string    `xml:"title"`
	MasteryScore    string    `xml:"masteryscore"`
	DataFromLMS     string    `xml:"datafromlms"`
	MaxTimeAllowed  string    `xml:"maxtimeallowed"`
	TimeLimitAction string    `xml:"timelimitaction"`
	Items           []itemXML `xml:"item"`
}

type resourceXML struct {
	Identifier string `xml:"identifier,attr"`
	ScormType  string `xml:"scormtype,attr"`
	Href       string `xml:"href,attr"`
}

// ParseManifest reads an imsmanifest.xml document into a Package. The
// runtime version comes from metadata/schemaversion; manifests that omit
// the metadata block count as 1.2, which is how pre-2004 packages were
// commonly authored.
func ParseManifest(data []byte) (*domain.Package, error) {
	var m manifestXML
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Identifier == "" {
		return nil, fmt.Errorf("%w: manifest has no identifier", domain.ErrPackageInvalid)
	}

	version, err := detectVersion(m.Metadata.SchemaVersion)
	if err != nil {
		return nil, err
	}

	hrefs := make(map[string]string, len(m.Resources.List))
	for _, res := range m.Resources.List {
		hrefs[res.Identifier] = res.Href
	}

	pkgID, err := domain.NewPackageID(m.Identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest identifier %q", domain.ErrPackageInvalid, m.Identifier)
	}

	pkg := &domain.Package{
		ID:      pkgID,
		Version: version,
	}
	for _, org := range m.Organizations.List {
		pkg.Organizations = append(pkg.Organizations, domain.Organization{
			Identifier: org.Identifier,
			Title:      org.Title,
			Items:      convertItems(org.Items, hrefs),
		})
		if pkg.Title == "" {
			pkg.Title = org.Title
		}
	}

	launch, ok := pkg.DefaultItem()
	if !ok {
		return nil, fmt.Errorf("%w: no launchable item in manifest %s", domain.ErrPackageInvalid, m.Identifier)
	}
	pkg.LaunchHref = launch.LaunchHref
	if pkg.Title == "" {
		pkg.Title = launch.Title
	}

	// Launch metadata lives on the item in 1.2 manifests.
	if item, found := findItem(m.Organizations.List, launch.Identifier); found {
		pkg.MasteryScore = item.MasteryScore
		pkg.LaunchData = item.DataFromLMS
		pkg.MaxTimeAllowed = item.MaxTimeAllowed
		pkg.TimeLimitAction = item.TimeLimitAction
	}

	return pkg, nil
}

// ReadManifest loads and parses the manifest inside a package directory.
func ReadManifest(dir string) (*domain.Package, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

func detectVersion(schemaVersion string) (domain.RuntimeVersion, error) {
	s := strings.TrimSpace(schemaVersion)
	switch {
	case s == "":
		return domain.Runtime12, nil
	case strings.Contains(s, "1.2"):
		return domain.Runtime12, nil
	case strings.Contains(s, "2004"), strings.Contains(s, "1.3"), strings.Contains(s, "CAM"):
		return domain.Runtime2004, nil
	default:
		return "", fmt.Errorf("%w: unsupported schemaversion %q", domain.ErrPackageInvalid, schemaVersion)
	}
}

func convertItems(items []itemXML, hrefs map[string]string) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		conv := domain.Item{
			Identifier:  it.Identifier,
			Title:       it.Title,
			ResourceRef: it.IdentifierRef,
			Items:       convertItems(it.Items, hrefs),
		}
		if it.IdentifierRef != "" {
			conv.LaunchHref = hrefs[it.IdentifierRef]
		}
		out = append(out, conv)
	}
	return out
}

func findItem(orgs []organizationXML, identifier string) (itemXML, bool) {
	var walk func(items []itemXML) (itemXML, bool)
	walk = func(items []itemXML) (itemXML, bool) {
		for _, it := range items {
			if it.Identifier == identifier {
				return it, true
			}
			if found, ok := walk(it.Items); ok {
				return found, true
			}
		}
		return itemXML{}, false
	}
	for _, org := range orgs {
		if found, ok := walk(org.Items); ok {
			return found, true
		}
	}
	return itemXML{}, false
}
