package content

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

const manifest12 = `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="golf-sample" version="1.0"
    xmlns="http://www.imsproject.org/xsd/imscp_rootv1p1p2"
    xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_rootv1p2">
  <metadata>
    <schema>ADL SCORM</schema>
    <schemaversion>1.2</schemaversion>
  </metadata>
  <organizations default="golf-org">
    <organization identifier="golf-org">
      <title>Golf Explained</title>
      <item identifier="playing-item" identifierref="playing-res">
        <title>Playing the Game</title>
        <adlcp:masteryscore>80</adlcp:masteryscore>
        <adlcp:datafromlms>unit=1</adlcp:datafromlms>
        <adlcp:maxtimeallowed>01:00:00</adlcp:maxtimeallowed>
        <adlcp:timelimitaction>continue,no message</adlcp:timelimitaction>
      </item>
      <item identifier="etiquette-item" identifierref="etiquette-res">
        <title>Etiquette</title>
      </item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="playing-res" type="webcontent" adlcp:scormtype="sco" href="playing/index.html">
      <file href="playing/index.html"/>
    </resource>
    <resource identifier="etiquette-res" type="webcontent" adlcp:scormtype="sco" href="etiquette/index.html"/>
  </resources>
</manifest>`

const manifest2004 = `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="runtime-sample-2004" version="1"
    xmlns="http://www.imsglobal.org/xsd/imscp_v1p1"
    xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_v1p3">
  <metadata>
    <schema>ADL SCORM</schema>
    <schemaversion>2004 4th Edition</schemaversion>
  </metadata>
  <organizations default="org">
    <organization identifier="org">
      <title>Runtime Sample</title>
      <item identifier="module-item">
        <title>Module</title>
        <item identifier="lesson-item" identifierref="lesson-res">
          <title>Lesson</title>
        </item>
      </item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="lesson-res" type="webcontent" adlcp:scormType="sco" href="shared/launch.html"/>
  </resources>
</manifest>`

func TestParseManifest12(t *testing.T) {
	pkg, err := ParseManifest([]byte(manifest12))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	if pkg.ID.String() != "golf-sample" {
		t.Errorf("ID = %q, want golf-sample", pkg.ID)
	}
	if pkg.Version != domain.Runtime12 {
		t.Errorf("Version = %q, want 1.2", pkg.Version)
	}
	if pkg.Title != "Golf Explained" {
		t.Errorf("Title = %q", pkg.Title)
	}
	if pkg.LaunchHref != "playing/index.html" {
		t.Errorf("LaunchHref = %q", pkg.LaunchHref)
	}
	if pkg.MasteryScore != "80" {
		t.Errorf("MasteryScore = %q, want 80", pkg.MasteryScore)
	}
	if pkg.LaunchData != "unit=1" {
		t.Errorf("LaunchData = %q, want unit=1", pkg.LaunchData)
	}
	if pkg.MaxTimeAllowed != "01:00:00" {
		t.Errorf("MaxTimeAllowed = %q", pkg.MaxTimeAllowed)
	}

	if len(pkg.Organizations) != 1 {
		t.Fatalf("Organizations = %d, want 1", len(pkg.Organizations))
	}
	items := pkg.Organizations[0].Items
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[1].LaunchHref != "etiquette/index.html" {
		t.Errorf("second item href = %q", items[1].LaunchHref)
	}
}

func TestParseManifest2004(t *testing.T) {
	pkg, err := ParseManifest([]byte(manifest2004))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	if pkg.Version != domain.Runtime2004 {
		t.Errorf("Version = %q, want 2004", pkg.Version)
	}
	// The launchable item is nested under a structural one.
	if pkg.LaunchHref != "shared/launch.html" {
		t.Errorf("LaunchHref = %q", pkg.LaunchHref)
	}
	item, ok := pkg.DefaultItem()
	if !ok {
		t.Fatal("DefaultItem() found nothing")
	}
	if item.Identifier != "lesson-item" {
		t.Errorf("DefaultItem() = %q, want lesson-item", item.Identifier)
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not xml", "not xml at all"},
		{"missing identifier", `<manifest><organizations/></manifest>`},
		{
			"no launchable item",
			`<manifest identifier="empty"><organizations><organization identifier="o"><title>T</title></organization></organizations></manifest>`,
		},
		{
			"unsupported schemaversion",
			`<manifest identifier="odd"><metadata><schemaversion>7.0</schemaversion></metadata></manifest>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.data)); err == nil {
				t.Error("ParseManifest() should fail")
			}
		})
	}
}

func TestParseManifestDefaultsToRuntime12(t *testing.T) {
	data := `<manifest identifier="legacy">
  <organizations><organization identifier="o"><title>Legacy</title>
    <item identifier="i" identifierref="r"><title>Only</title></item>
  </organization></organizations>
  <resources><resource identifier="r" href="index.html"/></resources>
</manifest>`

	pkg, err := ParseManifest([]byte(data))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if pkg.Version != domain.Runtime12 {
		t.Errorf("Version = %q, want 1.2 for manifests without schemaversion", pkg.Version)
	}
}

func TestParseManifestInvalidIsPackageInvalid(t *testing.T) {
	_, err := ParseManifest([]byte(`<manifest identifier="x"><organizations/></manifest>`))
	if !errors.Is(err, domain.ErrPackageInvalid) {
		t.Errorf("error = %v, want ErrPackageInvalid", err)
	}
}
