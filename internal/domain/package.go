package domain

// Package represents an installed SCORM content package
type Package struct {
	ID              PackageID      `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Version         RuntimeVersion `json:"version"`
	LaunchHref      string         `json:"launch_href"` // resource href the player frame loads
	LaunchData      string         `json:"launch_data,omitempty"` // passed to content via the launch_data element
	MasteryScore    string         `json:"mastery_score,omitempty"` // 1.2 mastery score, empty when the manifest has none
	MaxTimeAllowed  string         `json:"max_time_allowed,omitempty"`
	TimeLimitAction string         `json:"time_limit_action,omitempty"`
	Organizations   []Organization `json:"organizations,omitempty"`
}

// RuntimeVersion selects which runtime surface a package speaks
type RuntimeVersion string

const (
	Runtime12   RuntimeVersion = "1.2"
	Runtime2004 RuntimeVersion = "2004"
)

// Valid reports whether the version is one the runtime implements
func (v RuntimeVersion) Valid() bool {
	return v == Runtime12 || v == Runtime2004
}

// Organization is one activity tree from the manifest
type Organization struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Items      []Item `json:"items,omitempty"`
}

// Item is a launchable activity within an organization
type Item struct {
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	ResourceRef string `json:"resource_ref,omitempty"` // identifierref into the manifest resources
	LaunchHref  string `json:"launch_href,omitempty"`  // resolved resource href, empty for structural items
	Items       []Item `json:"items,omitempty"`
}

// DefaultItem returns the first launchable item in document order, which
// is what a player without sequencing starts with
func (p *Package) DefaultItem() (Item, bool) {
	for _, org := range p.Organizations {
		if item, ok := firstLaunchable(org.Items); ok {
			return item, true
		}
	}
	return Item{}, false
}

func firstLaunchable(items []Item) (Item, bool) {
	for _, item := range items {
		if item.LaunchHref != "" {
			return item, true
		}
		if child, ok := firstLaunchable(item.Items); ok {
			return child, true
		}
	}
	return Item{}, false
}
