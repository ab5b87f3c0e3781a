// Package progress builds learner-facing reports from the CMI snapshots the
// runtime persists. It is fed synchronously by the daemon after each commit
// and terminate, and asynchronously by the queue consumer when the event
// pipeline is enabled. Both paths fold into the same per-registration Report.
package progress

import (
	"strconv"
	"strings"

	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// Summary is the read model extracted from a single CMI snapshot.
type Summary struct {
	Status           string  `json:"status"`
	Completion       string  `json:"completion,omitempty"`
	Success          string  `json:"success,omitempty"`
	ScoreRaw         string  `json:"score_raw,omitempty"`
	ScoreScaled      string  `json:"score_scaled,omitempty"`
	Location         string  `json:"location,omitempty"`
	ProgressMeasure  float64 `json:"progress_measure,omitempty"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	SuspendDataBytes int     `json:"suspend_data_bytes"`
	Objectives       int     `json:"objectives"`
	Interactions     int     `json:"interactions"`
}

// ParseSummary extracts the reportable fields from a CMI element map.
// Element names differ between the two runtime versions; everything else
// in this package is version-neutral.
func ParseSummary(version scorm.Version, data map[string]string) Summary {
	var sum Summary

	if version == scorm.V2004 {
		sum.Completion = data["cmi.completion_status"]
		sum.Success = data["cmi.success_status"]
		sum.ScoreRaw = data["cmi.score.raw"]
		sum.ScoreScaled = data["cmi.score.scaled"]
		sum.Location = data["cmi.location"]
		if v, err := strconv.ParseFloat(data["cmi.progress_measure"], 64); err == nil {
			sum.ProgressMeasure = v
		}
		if d, err := scorm.ParseTimeinterval2004(data["cmi.total_time"]); err == nil {
			sum.TotalTimeSeconds = d.Seconds()
		}
	} else {
		status := data["cmi.core.lesson_status"]
		switch status {
		case "passed", "completed":
			sum.Completion = "completed"
		case "incomplete", "browsed":
			sum.Completion = "incomplete"
		}
		switch status {
		case "passed":
			sum.Success = "passed"
		case "failed":
			sum.Success = "failed"
			sum.Completion = "completed"
		}
		sum.ScoreRaw = data["cmi.core.score.raw"]
		sum.Location = data["cmi.core.lesson_location"]
		if d, err := scorm.ParseTimespan12(data["cmi.core.total_time"]); err == nil {
			sum.TotalTimeSeconds = d.Seconds()
		}
	}

	sum.Status = deriveStatus(sum)
	sum.SuspendDataBytes = len(data["cmi.suspend_data"])
	sum.Objectives = countIndexed(data, "cmi.objectives.")
	sum.Interactions = countIndexed(data, "cmi.interactions.")

	return sum
}

// Score returns the snapshot's preferred score representation: scaled when
// present, raw otherwise.
func (sum Summary) Score() string {
	if sum.ScoreScaled != "" {
		return sum.ScoreScaled
	}
	return sum.ScoreRaw
}

// Terminal reports whether the summary's status closes out the registration.
func (sum Summary) Terminal() bool {
	switch sum.Status {
	case "passed", "failed", "completed":
		return true
	}
	return false
}

func deriveStatus(sum Summary) string {
	switch sum.Success {
	case "passed":
		return "passed"
	case "failed":
		return "failed"
	}
	if sum.Completion == "completed" {
		return "completed"
	}
	return "in-progress"
}

// countIndexed counts the distinct collection indices present under a
// prefix, e.g. cmi.interactions.0.id and cmi.interactions.0.result are one
// interaction.
func countIndexed(data map[string]string, prefix string) int {
	seen := make(map[int]bool)
	for key := range data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		dot := strings.IndexByte(rest, '.')
		if dot <= 0 {
			continue
		}
		idx, err := strconv.Atoi(rest[:dot])
		if err != nil || idx < 0 {
			continue
		}
		seen[idx] = true
	}
	return len(seen)
}
