package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
)

// cmdPackages manages content packages
func cmdPackages(args []string) error {
	if len(args) < 1 {
		return cmdPackagesList()
	}

	switch args[0] {
	case "list":
		return cmdPackagesList()
	case "install":
		if len(args) < 2 {
			return fmt.Errorf("package directory required (the one holding imsmanifest.xml)")
		}
		return cmdPackagesInstall(args[1])
	case "info":
		if len(args) < 2 {
			return fmt.Errorf("package ID required (see 'lectern packages')")
		}
		return cmdPackagesInfo(args[1])
	default:
		return fmt.Errorf("unknown packages command: %s", args[0])
	}
}

func cmdPackagesList() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/packages")
	if err != nil {
		return fmt.Errorf("get packages: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Packages []struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Version    string `json:"version"`
			LaunchHref string `json:"launch_href"`
		} `json:"packages"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if len(result.Packages) == 0 {
		fmt.Println("No packages installed.")
		fmt.Println("Install one with 'lectern packages install <dir>'")
		return nil
	}

	fmt.Println("Installed Packages:")
	for _, pkg := range result.Packages {
		fmt.Printf("  %s (SCORM %s)\n", pkg.ID, pkg.Version)
		fmt.Printf("    %s\n", pkg.Title)
		fmt.Printf("    Launches: %s\n\n", pkg.LaunchHref)
	}

	fmt.Println("Use 'lectern register <package-id> <learner-id>' to enroll a learner")
	return nil
}

func cmdPackagesInstall(dir string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	// The daemon resolves the path itself, so hand it an absolute one
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	body, _ := json.Marshal(map[string]string{"path": abs})
	resp, err := http.Post(daemonAddr+"/v1/packages", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("install package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}

	var pkg struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("✓ Installed %s (SCORM %s)\n", pkg.ID, pkg.Version)
	fmt.Printf("  %s\n", pkg.Title)
	return nil
}

func cmdPackagesInfo(id string) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/packages/" + id)
	if err != nil {
		return fmt.Errorf("get package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("package not found: %s", id)
	}

	var pkg struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		Description     string `json:"description"`
		Version         string `json:"version"`
		LaunchHref      string `json:"launch_href"`
		MasteryScore    string `json:"mastery_score"`
		MaxTimeAllowed  string `json:"max_time_allowed"`
		TimeLimitAction string `json:"time_limit_action"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("Package: %s\n\n", pkg.Title)
	fmt.Printf("ID:          %s\n", pkg.ID)
	fmt.Printf("Version:     SCORM %s\n", pkg.Version)
	fmt.Printf("Launch href: %s\n", pkg.LaunchHref)
	if pkg.MasteryScore != "" {
		fmt.Printf("Mastery:     %s\n", pkg.MasteryScore)
	}
	if pkg.MaxTimeAllowed != "" {
		fmt.Printf("Time limit:  %s (%s)\n", pkg.MaxTimeAllowed, pkg.TimeLimitAction)
	}
	if pkg.Description != "" {
		fmt.Printf("\n%s\n", pkg.Description)
	}

	return nil
}

// apiError extracts the daemon's error message from a failed response
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
}
