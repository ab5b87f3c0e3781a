package schedule

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func span(id string, start, end int) Event {
	return Event{ID: id, Title: id, Start: day(start), End: day(end)}
}

func laneIDs(lanes [][]Event) [][]string {
	out := make([][]string, len(lanes))
	for i, lane := range lanes {
		for _, ev := range lane {
			out[i] = append(out[i], ev.ID)
		}
	}
	return out
}

func TestAssignLanes(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   [][]string
	}{
		{
			name:   "empty input",
			events: nil,
			want:   [][]string{},
		},
		{
			name:   "single event",
			events: []Event{span("a", 1, 3)},
			want:   [][]string{{"a"}},
		},
		{
			name: "disjoint events share a lane",
			events: []Event{
				span("a", 1, 3),
				span("b", 5, 7),
				span("c", 9, 10),
			},
			want: [][]string{{"a", "b", "c"}},
		},
		{
			name: "overlap opens a second lane",
			events: []Event{
				span("a", 1, 5),
				span("b", 3, 7),
			},
			want: [][]string{{"a"}, {"b"}},
		},
		{
			name: "back to back is not an overlap",
			events: []Event{
				span("a", 1, 3),
				span("b", 3, 5),
			},
			want: [][]string{{"a", "b"}},
		},
		{
			name: "first free lane wins",
			events: []Event{
				span("a", 1, 4),
				span("b", 2, 9),
				span("c", 5, 8),
			},
			want: [][]string{{"a", "c"}, {"b"}},
		},
		{
			name: "unsorted input handled",
			events: []Event{
				span("c", 5, 8),
				span("a", 1, 4),
				span("b", 2, 9),
			},
			want: [][]string{{"a", "c"}, {"b"}},
		},
		{
			name: "fourth concurrent event dropped",
			events: []Event{
				span("a", 1, 10),
				span("b", 1, 10),
				span("c", 1, 10),
				span("d", 2, 5),
			},
			want: [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name: "dropped event does not block later ones",
			events: []Event{
				span("a", 1, 10),
				span("b", 1, 10),
				span("c", 1, 10),
				span("d", 2, 5),
				span("e", 11, 12),
			},
			want: [][]string{{"a", "e"}, {"b"}, {"c"}},
		},
		{
			name: "equal starts keep input order",
			events: []Event{
				span("a", 1, 3),
				span("b", 1, 3),
			},
			want: [][]string{{"a"}, {"b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := laneIDs(AssignLanes(tt.events))
			if len(got) != len(tt.want) {
				t.Fatalf("AssignLanes() lanes = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if len(got[i]) != len(tt.want[i]) {
					t.Fatalf("lane %d = %v, want %v", i, got[i], tt.want[i])
				}
				for j := range tt.want[i] {
					if got[i][j] != tt.want[i][j] {
						t.Errorf("lane %d = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestAssignLanesDoesNotMutateInput(t *testing.T) {
	events := []Event{
		span("c", 5, 8),
		span("a", 1, 4),
		span("b", 2, 9),
	}
	AssignLanes(events)

	if events[0].ID != "c" || events[1].ID != "a" || events[2].ID != "b" {
		t.Errorf("input slice reordered: %v %v %v", events[0].ID, events[1].ID, events[2].ID)
	}
}

func TestAssignLanesNoOverlapWithinLane(t *testing.T) {
	events := []Event{
		span("a", 1, 6), span("b", 2, 4), span("c", 3, 9),
		span("d", 4, 5), span("e", 6, 8), span("f", 7, 10),
	}

	for lane, evs := range AssignLanes(events) {
		for i := 1; i < len(evs); i++ {
			if evs[i-1].End.After(evs[i].Start) {
				t.Errorf("lane %d: %s (ends %v) overlaps %s (starts %v)",
					lane, evs[i-1].ID, evs[i-1].End, evs[i].ID, evs[i].Start)
			}
		}
	}
}

func TestFlatten(t *testing.T) {
	lanes := AssignLanes([]Event{
		span("a", 1, 5),
		span("b", 3, 7),
		span("c", 6, 8),
	})

	placed := Flatten(lanes)
	if len(placed) != 3 {
		t.Fatalf("Flatten() len = %d, want 3", len(placed))
	}

	byID := map[string]int{}
	for _, p := range placed {
		byID[p.ID] = p.Lane
	}
	if byID["a"] != 0 || byID["c"] != 0 {
		t.Errorf("a and c should share lane 0, got a=%d c=%d", byID["a"], byID["c"])
	}
	if byID["b"] != 1 {
		t.Errorf("b lane = %d, want 1", byID["b"])
	}
}

func TestFlattenEmpty(t *testing.T) {
	if got := Flatten(nil); got != nil {
		t.Errorf("Flatten(nil) = %v, want nil", got)
	}
}
