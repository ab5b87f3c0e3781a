package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// registrationView mirrors the daemon's registration JSON
type registrationView struct {
	ID          string        `json:"id"`
	PackageID   string        `json:"package_id"`
	Version     string        `json:"version"`
	LearnerID   string        `json:"learner_id"`
	LearnerName string        `json:"learner_name"`
	Status      string        `json:"status"`
	Score       string        `json:"score"`
	Attempts    int           `json:"attempts"`
	TotalTime   time.Duration `json:"total_time"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at"`
}

// cmdRegister enrolls a learner in a package
func cmdRegister(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: lectern register <package-id> <learner-id> [learner-name]")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	req := map[string]string{
		"package_id": args[0],
		"learner_id": args[1],
	}
	if len(args) > 2 {
		req["learner_name"] = args[2]
	}

	body, _ := json.Marshal(req)
	resp, err := http.Post(daemonAddr+"/v1/registrations", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}

	var reg registrationView
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("✓ Registered %s for %s (SCORM %s)\n\n", reg.LearnerID, reg.PackageID, reg.Version)
	fmt.Printf("Registration ID: %s\n\n", reg.ID)
	fmt.Printf("Launch it with 'lectern launch %s'\n", reg.ID)
	return nil
}

// cmdRegistrations lists registrations and their outcomes
func cmdRegistrations() error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/registrations")
	if err != nil {
		return fmt.Errorf("get registrations: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Registrations []registrationView `json:"registrations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if len(result.Registrations) == 0 {
		fmt.Println("No registrations yet.")
		fmt.Println("Create one with 'lectern register <package-id> <learner-id>'")
		return nil
	}

	fmt.Printf("Registrations (%d):\n\n", len(result.Registrations))
	for _, reg := range result.Registrations {
		learner := reg.LearnerID
		if reg.LearnerName != "" {
			learner = fmt.Sprintf("%s (%s)", reg.LearnerName, reg.LearnerID)
		}

		fmt.Printf("  %s\n", reg.ID)
		fmt.Printf("    Package:  %s\n", reg.PackageID)
		fmt.Printf("    Learner:  %s\n", learner)
		fmt.Printf("    Status:   %s%s\n", statusGlyph(reg.Status), reg.Status)
		if reg.Score != "" {
			fmt.Printf("    Score:    %s\n", reg.Score)
		}
		if reg.Attempts > 0 {
			fmt.Printf("    Attempts: %d, total time %s\n", reg.Attempts, reg.TotalTime.Round(time.Second))
		}
		fmt.Println()
	}

	return nil
}

// cmdLaunch mints a launch token for a registration
func cmdLaunch(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("registration ID required (see 'lectern registrations')")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	resp, err := http.Post(daemonAddr+"/v1/registrations/"+args[0]+"/launch", "application/json", nil)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var launch struct {
		RegistrationID string `json:"registration_id"`
		Token          string `json:"token"`
		ExpiresIn      int    `json:"expires_in"`
		Version        string `json:"version"`
		Title          string `json:"title"`
		LaunchHref     string `json:"launch_href"`
		Endpoint       string `json:"endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&launch); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("Launch ready: %s (SCORM %s)\n\n", launch.Title, launch.Version)
	fmt.Printf("Content:  %s\n", launch.LaunchHref)
	fmt.Printf("Endpoint: %s%s\n", daemonAddr, launch.Endpoint)
	fmt.Printf("Token:    %s\n", launch.Token)
	fmt.Printf("Expires:  in %s\n\n", (time.Duration(launch.ExpiresIn) * time.Second).String())
	fmt.Println("The player frame passes the token as a Bearer header on every runtime call.")
	return nil
}

// cmdReport shows the progress report for a registration
func cmdReport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("registration ID required (see 'lectern registrations')")
	}
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'lectern start' first)")
	}

	resp, err := http.Get(daemonAddr + "/v1/registrations/" + args[0] + "/report")
	if err != nil {
		return fmt.Errorf("get report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var report struct {
		RegistrationID   string     `json:"registration_id"`
		PackageID        string     `json:"package_id"`
		LearnerID        string     `json:"learner_id"`
		LearnerName      string     `json:"learner_name"`
		Status           string     `json:"status"`
		Attempts         int        `json:"attempts"`
		Commits          int        `json:"commits"`
		BestScore        string     `json:"best_score"`
		LatestScore      string     `json:"latest_score"`
		TotalTimeSeconds float64    `json:"total_time_seconds"`
		Location         string     `json:"location"`
		SuspendDataBytes int        `json:"suspend_data_bytes"`
		Objectives       int        `json:"objectives"`
		Interactions     int        `json:"interactions"`
		FirstActivity    time.Time  `json:"first_activity"`
		LastActivity     time.Time  `json:"last_activity"`
		CompletedAt      *time.Time `json:"completed_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	learner := report.LearnerID
	if report.LearnerName != "" {
		learner = fmt.Sprintf("%s (%s)", report.LearnerName, report.LearnerID)
	}

	fmt.Printf("Progress Report: %s\n\n", report.RegistrationID)
	fmt.Printf("Package:  %s\n", report.PackageID)
	fmt.Printf("Learner:  %s\n", learner)
	fmt.Printf("Status:   %s%s\n", statusGlyph(report.Status), report.Status)

	if report.BestScore != "" {
		if pct, err := strconv.ParseFloat(report.BestScore, 64); err == nil && pct >= 0 && pct <= 100 {
			fmt.Printf("Score:    %s %.0f%%\n", renderProgressBar(pct/100, 20), pct)
		} else {
			fmt.Printf("Score:    %s\n", report.BestScore)
		}
		if report.LatestScore != "" && report.LatestScore != report.BestScore {
			fmt.Printf("  latest: %s\n", report.LatestScore)
		}
	}

	fmt.Printf("Activity: %d attempts, %d commits, %s total\n",
		report.Attempts, report.Commits,
		(time.Duration(report.TotalTimeSeconds) * time.Second).String())
	if report.Location != "" {
		fmt.Printf("Bookmark: %s (%d bytes suspended)\n", report.Location, report.SuspendDataBytes)
	}
	if report.Objectives > 0 || report.Interactions > 0 {
		fmt.Printf("Tracking: %d objectives, %d interactions\n", report.Objectives, report.Interactions)
	}
	if !report.LastActivity.IsZero() {
		fmt.Printf("Last:     %s\n", report.LastActivity.Format("2006-01-02 15:04"))
	}
	if report.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", report.CompletedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

// statusGlyph marks terminal outcomes so they stand out in a list
func statusGlyph(status string) string {
	switch status {
	case "passed", "completed":
		return "✓ "
	case "failed":
		return "✗ "
	default:
		return ""
	}
}
