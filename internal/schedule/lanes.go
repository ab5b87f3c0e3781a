// Package schedule computes calendar lane layout for date-span bars.
// Events that overlap in time go to different lanes so their bars never
// stack on top of each other; the lane count is capped to keep rows
// readable.
package schedule

import (
	"sort"
	"time"
)

// MaxLanes caps the rows a calendar renders. Events that cannot fit are
// dropped from the layout rather than squeezed into a fourth row.
const MaxLanes = 3

// Event is one date-span bar on the calendar.
type Event struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Placed is an event with its assigned lane index.
type Placed struct {
	Event
	Lane int `json:"lane"`
}

// AssignLanes distributes events over at most MaxLanes lanes. Events are
// considered in start order (stable for equal starts) and each goes to
// the first lane whose latest event ends at or before the candidate's
// start. Events that overlap every lane are dropped. The input slice is
// not modified.
func AssignLanes(events []Event) [][]Event {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var lanes [][]Event
	for _, ev := range sorted {
		placed := false
		for i := range lanes {
			last := lanes[i][len(lanes[i])-1]
			if !last.End.After(ev.Start) {
				lanes[i] = append(lanes[i], ev)
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		if len(lanes) < MaxLanes {
			lanes = append(lanes, []Event{ev})
		}
		// Otherwise every lane is occupied through ev.Start: drop it.
	}
	return lanes
}

// Flatten converts lane-grouped events into a single slice carrying the
// lane index, in lane-then-start order.
func Flatten(lanes [][]Event) []Placed {
	var out []Placed
	for lane, events := range lanes {
		for _, ev := range events {
			out = append(out, Placed{Event: ev, Lane: lane})
		}
	}
	return out
}
