package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/felixgeelhaar/lectern/internal/schedule"
)

// ScheduleHandler computes calendar lane layout for date-span bars
type ScheduleHandler struct{}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler() *ScheduleHandler {
	return &ScheduleHandler{}
}

// AssignLanesRequest carries the calendar events to lay out
type AssignLanesRequest struct {
	Events []schedule.Event `json:"events"`
}

// AssignLanes distributes events over non-overlapping lanes. The response
// carries both the lane-grouped events and a flat placement list.
func (h *ScheduleHandler) AssignLanes(w http.ResponseWriter, r *http.Request) {
	var req AssignLanesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lanes := schedule.AssignLanes(req.Events)

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"lanes":      lanes,
		"placements": schedule.Flatten(lanes),
	})
}

func (h *ScheduleHandler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *ScheduleHandler) jsonError(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
