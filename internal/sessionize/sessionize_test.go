package sessionize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/vincentbai/browsetrace-sessions/internal/models"
)

func event(visitor string, ts models.Timestamp, url string) models.Event {
	return models.Event{VisitorID: visitor, URL: url, Timestamp: ts}
}

func TestGroupPreservesOrderAndCount(t *testing.T) {
	events := []models.Event{
		event("v1", 30, "/a"),
		event("v2", 10, "/x"),
		event("v1", 20, "/b"),
		event("v1", 30, "/a"),
	}

	groups := Group(events)

	if len(groups) != 2 {
		t.Fatalf("Expected 2 visitors, got %d", len(groups))
	}
	want := []models.Event{event("v1", 30, "/a"), event("v1", 20, "/b"), event("v1", 30, "/a")}
	if !reflect.DeepEqual(groups["v1"], want) {
		t.Errorf("v1 group = %+v, want %+v", groups["v1"], want)
	}

	total := 0
	for _, group := range groups {
		total += len(group)
	}
	if total != len(events) {
		t.Errorf("Grouped %d events, want %d", total, len(events))
	}
}

func TestSortChronologicalIsStable(t *testing.T) {
	events := []models.Event{
		event("v1", 50, "/late"),
		event("v1", 10, "/first"),
		event("v1", 10, "/second"),
		event("v1", 10, "/third"),
	}

	sorted := SortChronological(events)

	var got []string
	for _, e := range sorted {
		got = append(got, e.URL)
	}
	want := []string{"/first", "/second", "/third", "/late"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sorted order = %v, want %v", got, want)
	}
	if events[0].URL != "/late" {
		t.Error("SortChronological must not reorder its input")
	}
}

func TestWindowGapBoundary(t *testing.T) {
	tests := []struct {
		name         string
		second       models.Timestamp
		wantSessions int
	}{
		{"exactly at gap extends", 600000, 1},
		{"one past gap opens new session", 600001, 2},
		{"same instant extends", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := Window([]models.Event{event("v1", 0, "/a"), event("v1", tt.second, "/b")}, DefaultGap)
			if len(sessions) != tt.wantSessions {
				t.Errorf("Got %d sessions, want %d: %+v", len(sessions), tt.wantSessions, sessions)
			}
		})
	}
}

func TestWindowScenario(t *testing.T) {
	events := []models.Event{
		event("v1", 0, "/a"),
		event("v1", 300000, "/b"),
		event("v1", 1000000, "/c"),
	}

	got := Window(events, DefaultGap)

	want := []models.Session{
		{StartTime: 0, Duration: 300000, Pages: []string{"/a", "/b"}},
		{StartTime: 1000000, Duration: 0, Pages: []string{"/c"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Window() = %+v, want %+v", got, want)
	}
}

func TestWindowChainsFromLatestActivity(t *testing.T) {
	// Each step is within the gap of the previous event even though the
	// session as a whole spans far more than the gap.
	events := []models.Event{
		event("v1", 0, "/a"),
		event("v1", 500000, "/b"),
		event("v1", 1000000, "/c"),
		event("v1", 1500000, "/d"),
	}

	got := Window(events, DefaultGap)

	if len(got) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(got))
	}
	if got[0].Duration != 1500000 {
		t.Errorf("Duration = %d, want 1500000", got[0].Duration)
	}
	if len(got[0].Pages) != 4 {
		t.Errorf("Pages = %v, want 4 pages", got[0].Pages)
	}
}

func TestStepFirstMatchOnly(t *testing.T) {
	// Two sessions that both accept the event: only the first absorbs it.
	sessions := []models.Session{
		{StartTime: 100, Duration: 0, Pages: []string{"/a"}},
		{StartTime: 200, Duration: 0, Pages: []string{"/b"}},
	}

	got := Step(sessions, event("v1", 300, "/c"), DefaultGap)

	if len(got) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(got))
	}
	if !reflect.DeepEqual(got[0].Pages, []string{"/a", "/c"}) || got[0].Duration != 200 {
		t.Errorf("First session = %+v", got[0])
	}
	if !reflect.DeepEqual(got[1].Pages, []string{"/b"}) || got[1].Duration != 0 {
		t.Errorf("Second session must be untouched, got %+v", got[1])
	}
}

func TestStepEarlierEventDoesNotExtend(t *testing.T) {
	sessions := []models.Session{{StartTime: 1000, Duration: 500, Pages: []string{"/a"}}}

	got := Step(sessions, event("v1", 1200, "/early"), DefaultGap)

	if len(got) != 2 {
		t.Fatalf("Expected a new session for an event before latest activity, got %+v", got)
	}
	if got[1].StartTime != 1200 || got[1].Duration != 0 {
		t.Errorf("New session = %+v", got[1])
	}
	if got[0].Duration != 500 {
		t.Errorf("Existing session changed: %+v", got[0])
	}
}

func TestWindowCustomGap(t *testing.T) {
	events := []models.Event{event("v1", 0, "/a"), event("v1", 11, "/b"), event("v1", 21, "/c")}

	got := Window(events, 10)

	if len(got) != 2 {
		t.Fatalf("Expected 2 sessions with gap 10, got %+v", got)
	}
	if !reflect.DeepEqual(got[1].Pages, []string{"/b", "/c"}) {
		t.Errorf("Second session pages = %v", got[1].Pages)
	}
}

func TestRunScenarios(t *testing.T) {
	tests := []struct {
		name   string
		events []models.Event
		want   map[string][]models.Session
	}{
		{
			name:   "single event",
			events: []models.Event{event("v2", 5, "/x")},
			want: map[string][]models.Session{
				"v2": {{StartTime: 5, Duration: 0, Pages: []string{"/x"}}},
			},
		},
		{
			name:   "two visitors",
			events: []models.Event{event("v1", 1, "/a"), event("v2", 2, "/b")},
			want: map[string][]models.Session{
				"v1": {{StartTime: 1, Duration: 0, Pages: []string{"/a"}}},
				"v2": {{StartTime: 2, Duration: 0, Pages: []string{"/b"}}},
			},
		},
		{
			name: "unsorted input",
			events: []models.Event{
				event("v1", 1000000, "/c"),
				event("v1", 300000, "/b"),
				event("v1", 0, "/a"),
			},
			want: map[string][]models.Session{
				"v1": {
					{StartTime: 0, Duration: 300000, Pages: []string{"/a", "/b"}},
					{StartTime: 1000000, Duration: 0, Pages: []string{"/c"}},
				},
			},
		},
		{
			name:   "no events",
			events: nil,
			want:   map[string][]models.Session{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Run(tt.events, Options{})
			if !reflect.DeepEqual(got.SessionByUser, tt.want) {
				t.Errorf("Run() = %+v, want %+v", got.SessionByUser, tt.want)
			}
		})
	}
}

func TestRunSessionInvariants(t *testing.T) {
	events := manyEvents(20, 50)

	result := Run(events, Options{Workers: 4})

	pages := 0
	for visitor, sessions := range result.SessionByUser {
		for i, s := range sessions {
			if len(s.Pages) == 0 {
				t.Errorf("%s session %d has no pages", visitor, i)
			}
			if i > 0 && sessions[i-1].StartTime > s.StartTime {
				t.Errorf("%s sessions out of order at %d", visitor, i)
			}
			pages += len(s.Pages)
		}
	}
	if pages != len(events) {
		t.Errorf("Sessions contain %d pages, want %d", pages, len(events))
	}
}

func TestRunDeterministicAcrossWorkers(t *testing.T) {
	events := manyEvents(30, 40)

	first, err := json.Marshal(Run(events, Options{Workers: 1}))
	if err != nil {
		t.Fatalf("Failed to marshal result: %v", err)
	}
	for _, workers := range []int{1, 3, 8} {
		again, err := json.Marshal(Run(events, Options{Workers: workers}))
		if err != nil {
			t.Fatalf("Failed to marshal result: %v", err)
		}
		if string(again) != string(first) {
			t.Errorf("Output with %d workers differs from single-worker output", workers)
		}
	}
}

func TestAggregate(t *testing.T) {
	parts := []VisitorSessions{
		{VisitorID: "v1", Sessions: []models.Session{{StartTime: 1, Pages: []string{"/a"}}}},
		{VisitorID: "v2", Sessions: []models.Session{{StartTime: 2, Pages: []string{"/b"}}}},
	}

	result := Aggregate(parts)

	if len(result.SessionByUser) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(result.SessionByUser))
	}
	for _, visitor := range []string{"v1", "v2"} {
		if len(result.SessionByUser[visitor]) != 1 {
			t.Errorf("%s has %d sessions, want 1", visitor, len(result.SessionByUser[visitor]))
		}
	}
}

// manyEvents builds interleaved events for several visitors with a mix of
// short and long idle gaps.
func manyEvents(visitors, perVisitor int) []models.Event {
	var events []models.Event
	for i := range perVisitor {
		for v := range visitors {
			step := models.Timestamp(60000)
			if i%7 == 0 {
				step = 900000
			}
			ts := models.Timestamp(i)*step + models.Timestamp(v)
			events = append(events, event(fmt.Sprintf("v%d", v), ts, fmt.Sprintf("/p%d", i)))
		}
	}
	return events
}
