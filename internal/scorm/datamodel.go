package scorm

import "strings"

// Version selects which CMI data model and wire codes a session speaks.
type Version string

const (
	// V12 is SCORM 1.2, the window.API surface.
	V12 Version = "1.2"
	// V2004 is SCORM 2004 3rd/4th edition, the window.API_1484_11 surface.
	V2004 Version = "2004"
)

// Valid reports whether v names a supported protocol version.
func (v Version) Valid() bool {
	return v == V12 || v == V2004
}

// access classifies who may touch an element. Read-only elements are
// LMS-owned; write-only elements are content-reported values the LMS
// consumes but content may not read back.
type access int

const (
	accessReadWrite access = iota
	accessReadOnly
	accessWriteOnly
)

// model12 maps canonical SCORM 1.2 element names to their access mode.
// Collection indices are canonicalized to "n" before lookup, so
// "cmi.objectives.4.id" resolves via "cmi.objectives.n.id". Any name
// absent from the active version's table is invalid.
var model12 = map[string]access{
	"cmi.core._children":       accessReadOnly,
	"cmi.core.student_id":      accessReadOnly,
	"cmi.core.student_name":    accessReadOnly,
	"cmi.core.lesson_location": accessReadWrite,
	"cmi.core.credit":          accessReadOnly,
	"cmi.core.lesson_status":   accessReadWrite,
	"cmi.core.entry":           accessReadOnly,
	"cmi.core.score._children": accessReadOnly,
	"cmi.core.score.raw":       accessReadWrite,
	"cmi.core.score.min":       accessReadWrite,
	"cmi.core.score.max":       accessReadWrite,
	"cmi.core.total_time":      accessReadOnly,
	"cmi.core.lesson_mode":     accessReadOnly,
	"cmi.core.exit":            accessWriteOnly,
	"cmi.core.session_time":    accessWriteOnly,

	"cmi.suspend_data":      accessReadWrite,
	"cmi.launch_data":       accessReadOnly,
	"cmi.comments":          accessReadWrite,
	"cmi.comments_from_lms": accessReadOnly,

	"cmi.objectives._children":        accessReadOnly,
	"cmi.objectives._count":           accessReadOnly,
	"cmi.objectives.n.id":             accessReadWrite,
	"cmi.objectives.n.score._children": accessReadOnly,
	"cmi.objectives.n.score.raw":      accessReadWrite,
	"cmi.objectives.n.score.min":      accessReadWrite,
	"cmi.objectives.n.score.max":      accessReadWrite,
	"cmi.objectives.n.status":         accessReadWrite,

	"cmi.student_data._children":         accessReadOnly,
	"cmi.student_data.mastery_score":     accessReadOnly,
	"cmi.student_data.max_time_allowed":  accessReadOnly,
	"cmi.student_data.time_limit_action": accessReadOnly,

	"cmi.student_preference._children": accessReadOnly,
	"cmi.student_preference.audio":     accessReadWrite,
	"cmi.student_preference.language":  accessReadWrite,
	"cmi.student_preference.speed":     accessReadWrite,
	"cmi.student_preference.text":      accessReadWrite,

	// 1.2 interaction elements are write-only journal entries.
	"cmi.interactions._children":                     accessReadOnly,
	"cmi.interactions._count":                        accessReadOnly,
	"cmi.interactions.n.id":                          accessWriteOnly,
	"cmi.interactions.n.objectives._count":           accessReadOnly,
	"cmi.interactions.n.objectives.n.id":             accessWriteOnly,
	"cmi.interactions.n.time":                        accessWriteOnly,
	"cmi.interactions.n.type":                        accessWriteOnly,
	"cmi.interactions.n.correct_responses._count":    accessReadOnly,
	"cmi.interactions.n.correct_responses.n.pattern": accessWriteOnly,
	"cmi.interactions.n.weighting":                   accessWriteOnly,
	"cmi.interactions.n.student_response":            accessWriteOnly,
	"cmi.interactions.n.result":                      accessWriteOnly,
	"cmi.interactions.n.latency":                     accessWriteOnly,
}

// model2004 maps canonical SCORM 2004 element names to their access mode.
var model2004 = map[string]access{
	"cmi._version":          accessReadOnly,
	"cmi.learner_id":        accessReadOnly,
	"cmi.learner_name":      accessReadOnly,
	"cmi.location":          accessReadWrite,
	"cmi.credit":            accessReadOnly,
	"cmi.completion_status": accessReadWrite,
	"cmi.success_status":    accessReadWrite,
	"cmi.entry":             accessReadOnly,
	"cmi.exit":              accessWriteOnly,
	"cmi.mode":              accessReadOnly,

	"cmi.score._children": accessReadOnly,
	"cmi.score.scaled":    accessReadWrite,
	"cmi.score.raw":       accessReadWrite,
	"cmi.score.min":       accessReadWrite,
	"cmi.score.max":       accessReadWrite,

	"cmi.total_time":   accessReadOnly,
	"cmi.session_time": accessWriteOnly,

	"cmi.suspend_data":          accessReadWrite,
	"cmi.launch_data":           accessReadOnly,
	"cmi.progress_measure":      accessReadWrite,
	"cmi.max_time_allowed":      accessReadOnly,
	"cmi.time_limit_action":     accessReadOnly,
	"cmi.completion_threshold":  accessReadOnly,
	"cmi.scaled_passing_score":  accessReadOnly,

	"cmi.learner_preference._children":       accessReadOnly,
	"cmi.learner_preference.audio_level":     accessReadWrite,
	"cmi.learner_preference.language":        accessReadWrite,
	"cmi.learner_preference.delivery_speed":  accessReadWrite,
	"cmi.learner_preference.audio_captioning": accessReadWrite,

	"cmi.objectives._children":            accessReadOnly,
	"cmi.objectives._count":               accessReadOnly,
	"cmi.objectives.n.id":                 accessReadWrite,
	"cmi.objectives.n.score._children":    accessReadOnly,
	"cmi.objectives.n.score.scaled":       accessReadWrite,
	"cmi.objectives.n.score.raw":          accessReadWrite,
	"cmi.objectives.n.score.min":          accessReadWrite,
	"cmi.objectives.n.score.max":          accessReadWrite,
	"cmi.objectives.n.success_status":     accessReadWrite,
	"cmi.objectives.n.completion_status":  accessReadWrite,
	"cmi.objectives.n.progress_measure":   accessReadWrite,
	"cmi.objectives.n.description":        accessReadWrite,

	"cmi.interactions._children":                     accessReadOnly,
	"cmi.interactions._count":                        accessReadOnly,
	"cmi.interactions.n.id":                          accessReadWrite,
	"cmi.interactions.n.type":                        accessReadWrite,
	"cmi.interactions.n.objectives._count":           accessReadOnly,
	"cmi.interactions.n.objectives.n.id":             accessReadWrite,
	"cmi.interactions.n.timestamp":                   accessReadWrite,
	"cmi.interactions.n.correct_responses._count":    accessReadOnly,
	"cmi.interactions.n.correct_responses.n.pattern": accessReadWrite,
	"cmi.interactions.n.weighting":                   accessReadWrite,
	"cmi.interactions.n.learner_response":            accessReadWrite,
	"cmi.interactions.n.result":                      accessReadWrite,
	"cmi.interactions.n.latency":                     accessReadWrite,
	"cmi.interactions.n.description":                 accessReadWrite,
}

// canonicalElement rewrites bare integer segments to "n" so collection
// indices of any value hit the model tables. Indices are not bounds-checked
// against _count; content may address any non-negative slot.
func canonicalElement(element string) string {
	parts := strings.Split(element, ".")
	changed := false
	for i, p := range parts {
		if isIndexSegment(p) {
			parts[i] = "n"
			changed = true
		}
	}
	if !changed {
		return element
	}
	return strings.Join(parts, ".")
}

func isIndexSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// lookupElement resolves an element name against the active version's data
// model. ok is false for names outside the model.
func lookupElement(v Version, element string) (access, bool) {
	m := model12
	if v == V2004 {
		m = model2004
	}
	a, ok := m[canonicalElement(element)]
	return a, ok
}

// sessionTimeElement returns the version's session_time element name.
func sessionTimeElement(v Version) string {
	if v == V2004 {
		return "cmi.session_time"
	}
	return "cmi.core.session_time"
}

// seedDefaults builds the LMS-owned portion of a fresh store. Saved state
// from a prior attempt is overlaid by the caller afterwards.
func seedDefaults(v Version, learnerID, learnerName, launchData string, resumed bool) map[string]string {
	entry := "ab-initio"
	if resumed {
		entry = "resume"
	}

	if v == V2004 {
		data := map[string]string{
			"cmi._version":            "1.0",
			"cmi.learner_id":          learnerID,
			"cmi.learner_name":        learnerName,
			"cmi.completion_status":   "unknown",
			"cmi.success_status":      "unknown",
			"cmi.entry":               entry,
			"cmi.mode":                "normal",
			"cmi.credit":              "credit",
			"cmi.total_time":          "PT0S",
			"cmi.objectives._count":   "0",
			"cmi.interactions._count": "0",
		}
		if launchData != "" {
			data["cmi.launch_data"] = launchData
		}
		return data
	}

	data := map[string]string{
		"cmi.core._children":       "student_id,student_name,lesson_location,credit,lesson_status,entry,score,total_time,lesson_mode,exit,session_time",
		"cmi.core.score._children": "raw,min,max",
		"cmi.core.student_id":      learnerID,
		"cmi.core.student_name":    learnerName,
		"cmi.core.lesson_status":   "not attempted",
		"cmi.core.entry":           entry,
		"cmi.core.lesson_mode":     "normal",
		"cmi.core.credit":          "credit",
		"cmi.core.total_time":      "00:00:00",
		"cmi.objectives._count":    "0",
		"cmi.interactions._count":  "0",
	}
	if launchData != "" {
		data["cmi.launch_data"] = launchData
	}
	return data
}
