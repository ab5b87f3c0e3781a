package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/lectern/internal/config"
)

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="%s" version="1.0"
    xmlns="http://www.imsproject.org/xsd/imscp_rootv1p1p2"
    xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_rootv1p2">
  <metadata>
    <schema>ADL SCORM</schema>
    <schemaversion>%s</schemaversion>
  </metadata>
  <organizations default="org">
    <organization identifier="org">
      <title>Golf Explained</title>
      <item identifier="playing-item" identifierref="playing-res">
        <title>Playing the Game</title>
        <adlcp:masteryscore>80</adlcp:masteryscore>
        <adlcp:datafromlms>unit=1</adlcp:datafromlms>
      </item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="playing-res" type="webcontent" adlcp:scormtype="sco" href="playing/index.html"/>
  </resources>
</manifest>`

// writeTestPackage creates a package directory with a manifest and returns
// its path.
func writeTestPackage(t *testing.T, dir, identifier, schemaVersion string) string {
	t.Helper()

	pkgDir := filepath.Join(dir, identifier)
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatalf("create package dir: %v", err)
	}
	manifest := fmt.Sprintf(testManifest, identifier, schemaVersion)
	if err := os.WriteFile(filepath.Join(pkgDir, "imsmanifest.xml"), []byte(manifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return pkgDir
}

// setupTestServer creates a test server on the json backend with all state
// under a temp directory.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	tmpDir := t.TempDir()

	// NewServer resolves ~/.lectern and the config endpoint writes there;
	// point HOME at the sandbox.
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })

	cfg := config.DefaultLocalConfig()
	cfg.Daemon.Port = 0

	server, err := NewServer(context.Background(), ServerConfig{
		Config:      cfg,
		ContentPath: filepath.Join(tmpDir, "packages"),
		DataPath:    filepath.Join(tmpDir, "data"),
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return server
}

// do runs one request through the router. A non-empty body is sent as
// JSON; a non-empty token goes into the Authorization header.
func do(t *testing.T, server *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// installTestPackage installs a fresh package through the API and returns
// its ID.
func installTestPackage(t *testing.T, server *Server, identifier, schemaVersion string) string {
	t.Helper()

	pkgDir := writeTestPackage(t, t.TempDir(), identifier, schemaVersion)
	w := do(t, server, http.MethodPost, "/v1/packages", fmt.Sprintf(`{"path": %q}`, pkgDir), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("install package: status %d: %s", w.Code, w.Body.String())
	}
	return identifier
}

// createTestRegistration enrolls a learner and returns the registration ID.
func createTestRegistration(t *testing.T, server *Server, packageID, learnerID string) string {
	t.Helper()

	body := fmt.Sprintf(`{"package_id": %q, "learner_id": %q, "learner_name": "Pat Learner"}`, packageID, learnerID)
	w := do(t, server, http.MethodPost, "/v1/registrations", body, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create registration: status %d: %s", w.Code, w.Body.String())
	}
	id, ok := decodeBody(t, w)["id"].(string)
	if !ok || id == "" {
		t.Fatal("expected registration ID in response")
	}
	return id
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp := decodeBody(t, w); resp["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", resp["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/v1/status", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "running" {
		t.Errorf("expected status 'running', got %v", resp["status"])
	}
	if resp["version"] != Version {
		t.Errorf("version = %v, want %v", resp["version"], Version)
	}
	if resp["storage"] != "json" {
		t.Errorf("storage = %v, want json", resp["storage"])
	}
	if resp["packages"] != float64(0) {
		t.Errorf("packages = %v, want 0", resp["packages"])
	}
}

func TestConfigEndpoints(t *testing.T) {
	server := setupTestServer(t)

	t.Run("get returns config", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/config", "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		resp := decodeBody(t, w)
		daemon, ok := resp["daemon"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected 'daemon' section, got %v", resp)
		}
		if daemon["bind"] != "127.0.0.1" {
			t.Errorf("bind = %v, want 127.0.0.1", daemon["bind"])
		}
	})

	t.Run("put saves and reports restart", func(t *testing.T) {
		w := do(t, server, http.MethodPut, "/v1/config", `{"daemon": {"port": 9999, "bind": "127.0.0.1", "log_level": "debug"}}`, "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		resp := decodeBody(t, w)
		if resp["saved"] != true {
			t.Error("expected saved=true")
		}
		if resp["restart_required"] != true {
			t.Error("port change should require a restart")
		}

		// The saved file round-trips through the config loader.
		loaded, err := config.LoadLocalConfig()
		if err != nil {
			t.Fatalf("LoadLocalConfig() error = %v", err)
		}
		if loaded.Daemon.Port != 9999 {
			t.Errorf("saved port = %d, want 9999", loaded.Daemon.Port)
		}
		if loaded.Daemon.LogLevel != "debug" {
			t.Errorf("saved log level = %q, want debug", loaded.Daemon.LogLevel)
		}
	})

	t.Run("put rejects bad body", func(t *testing.T) {
		w := do(t, server, http.MethodPut, "/v1/config", `{not json`, "")

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestPackageEndpoints(t *testing.T) {
	server := setupTestServer(t)

	t.Run("list starts empty", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/packages", "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		resp := decodeBody(t, w)
		packages, ok := resp["packages"].([]interface{})
		if !ok || len(packages) != 0 {
			t.Errorf("expected empty packages list, got %v", resp["packages"])
		}
	})

	t.Run("install requires path", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/packages", `{}`, "")

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("install missing directory", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/packages", `{"path": "/nonexistent/dir"}`, "")

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	pkgDir := writeTestPackage(t, t.TempDir(), "golf-sample", "1.2")

	t.Run("install from manifest path", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/packages", fmt.Sprintf(`{"path": %q}`, pkgDir), "")

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
		}

		resp := decodeBody(t, w)
		if resp["id"] != "golf-sample" {
			t.Errorf("id = %v, want golf-sample", resp["id"])
		}
		if resp["version"] != "1.2" {
			t.Errorf("version = %v, want 1.2", resp["version"])
		}
		if resp["launch_href"] != "playing/index.html" {
			t.Errorf("launch_href = %v", resp["launch_href"])
		}
	})

	t.Run("install twice conflicts", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/packages", fmt.Sprintf(`{"path": %q}`, pkgDir), "")

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})

	t.Run("get by id", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/packages/golf-sample", "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		resp := decodeBody(t, w)
		if resp["title"] != "Golf Explained" {
			t.Errorf("title = %v", resp["title"])
		}
		if resp["mastery_score"] != "80" {
			t.Errorf("mastery_score = %v, want 80", resp["mastery_score"])
		}
	})

	t.Run("get unknown package", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/packages/missing", "", "")

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("list shows installed", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/packages", "", "")

		resp := decodeBody(t, w)
		packages, _ := resp["packages"].([]interface{})
		if len(packages) != 1 {
			t.Fatalf("expected 1 package, got %d", len(packages))
		}
	})
}

func TestRegistrationEndpoints(t *testing.T) {
	server := setupTestServer(t)
	pkgID := installTestPackage(t, server, "golf-sample", "1.2")

	t.Run("create requires fields", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/registrations", `{"package_id": "golf-sample"}`, "")

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("create with unknown package", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/registrations", `{"package_id": "missing", "learner_id": "learner-1"}`, "")

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	regID := createTestRegistration(t, server, pkgID, "learner-1")

	t.Run("get registration", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/registrations/"+regID, "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		resp := decodeBody(t, w)
		if resp["package_id"] != "golf-sample" {
			t.Errorf("package_id = %v", resp["package_id"])
		}
		if resp["status"] != "created" {
			t.Errorf("status = %v, want created", resp["status"])
		}
	})

	t.Run("list registrations", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/registrations", "", "")

		resp := decodeBody(t, w)
		regs, _ := resp["registrations"].([]interface{})
		if len(regs) != 1 {
			t.Fatalf("expected 1 registration, got %d", len(regs))
		}
	})

	t.Run("report before any commit", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/registrations/"+regID+"/report", "", "")

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("delete registration", func(t *testing.T) {
		w := do(t, server, http.MethodDelete, "/v1/registrations/"+regID, "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		w = do(t, server, http.MethodGet, "/v1/registrations/"+regID, "", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d after delete, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("get unknown registration", func(t *testing.T) {
		w := do(t, server, http.MethodGet, "/v1/registrations/nonexistent-id", "", "")

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestLaunchEndpoint(t *testing.T) {
	server := setupTestServer(t)
	pkgID := installTestPackage(t, server, "golf-sample", "1.2")
	regID := createTestRegistration(t, server, pkgID, "learner-1")

	t.Run("launch returns bootstrap payload", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/registrations/"+regID+"/launch", "", "")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		resp := decodeBody(t, w)
		token, _ := resp["token"].(string)
		if token == "" {
			t.Error("expected a launch token")
		}
		if resp["version"] != "1.2" {
			t.Errorf("version = %v, want 1.2", resp["version"])
		}
		if resp["launch_href"] != "playing/index.html" {
			t.Errorf("launch_href = %v", resp["launch_href"])
		}
		if resp["endpoint"] != "/v1/sessions/"+regID {
			t.Errorf("endpoint = %v", resp["endpoint"])
		}

		// The token authorizes exactly this registration.
		got, err := server.issuer.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if got != regID {
			t.Errorf("token registration = %q, want %q", got, regID)
		}
	})

	t.Run("launch unknown registration", func(t *testing.T) {
		w := do(t, server, http.MethodPost, "/v1/registrations/nonexistent/launch", "", "")

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestAssignLanesEndpoint(t *testing.T) {
	server := setupTestServer(t)

	body := `{"events": [
		{"id": "a", "title": "Course A", "start": "2026-03-01T00:00:00Z", "end": "2026-03-10T00:00:00Z"},
		{"id": "b", "title": "Course B", "start": "2026-03-05T00:00:00Z", "end": "2026-03-12T00:00:00Z"},
		{"id": "c", "title": "Course C", "start": "2026-03-11T00:00:00Z", "end": "2026-03-15T00:00:00Z"}
	]}`

	w := do(t, server, http.MethodPost, "/v1/schedule/lanes", body, "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	resp := decodeBody(t, w)
	lanes, ok := resp["lanes"].([]interface{})
	if !ok {
		t.Fatalf("expected lanes array, got %v", resp["lanes"])
	}
	if len(lanes) != 2 {
		t.Fatalf("expected 2 lanes, got %d", len(lanes))
	}

	// a and c share the first lane; b overlaps a and goes to the second.
	first, _ := lanes[0].([]interface{})
	if len(first) != 2 {
		t.Errorf("expected 2 events in lane 0, got %d", len(first))
	}

	placements, _ := resp["placements"].([]interface{})
	if len(placements) != 3 {
		t.Errorf("expected 3 placements, got %d", len(placements))
	}
}

func TestAssignLanesEndpoint_BadBody(t *testing.T) {
	server := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/v1/schedule/lanes", `{"events": "nope"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}
