// Package sessionize groups navigation events into per-visitor browsing sessions.
//
// A visitor's events belong to the same session while the idle time between an
// event and the session's latest activity stays within the gap threshold.
package sessionize

import (
	"cmp"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vincentbai/browsetrace-sessions/internal/models"
)

// DefaultGap is the inactivity threshold in milliseconds (10 minutes).
const DefaultGap uint64 = 600000

// Options tune a Run. The zero value uses DefaultGap on a single worker.
type Options struct {
	// Gap is the maximum idle time in milliseconds; zero means DefaultGap.
	Gap uint64
	// Workers bounds how many visitors are windowed concurrently.
	Workers int
}

func (o Options) gap() uint64 {
	if o.Gap == 0 {
		return DefaultGap
	}
	return o.Gap
}

// Group partitions events by visitor, keeping their relative input order.
func Group(events []models.Event) map[string][]models.Event {
	groups := make(map[string][]models.Event)
	for _, event := range events {
		groups[event.VisitorID] = append(groups[event.VisitorID], event)
	}
	return groups
}

// SortChronological returns a copy of events ordered by timestamp ascending.
// Events with equal timestamps keep their input order.
func SortChronological(events []models.Event) []models.Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b models.Event) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return sorted
}

// Step folds one event into a visitor's sessions and returns the updated list.
// The first session whose latest activity is within gap of the event absorbs
// it; otherwise a new session is appended. Like append, Step may reuse the
// storage of sessions, so callers must continue with the returned slice.
func Step(sessions []models.Session, event models.Event, gap uint64) []models.Session {
	for i := range sessions {
		if !extends(sessions[i], event.Timestamp, gap) {
			continue
		}
		sessions[i].Pages = append(sessions[i].Pages, event.URL)
		sessions[i].Duration = uint64(event.Timestamp - sessions[i].StartTime)
		return sessions
	}
	return append(sessions, models.Session{
		StartTime: event.Timestamp,
		Duration:  0,
		Pages:     []string{event.URL},
	})
}

// extends reports whether ts falls within gap of the session's latest activity.
// A timestamp before that activity never extends the session.
func extends(s models.Session, ts models.Timestamp, gap uint64) bool {
	latest := s.LatestActivity()
	if ts < latest {
		return false
	}
	return uint64(ts-latest) <= gap
}

// Window builds the sessions of one visitor from time-sorted events.
func Window(events []models.Event, gap uint64) []models.Session {
	var sessions []models.Session
	for _, event := range events {
		sessions = Step(sessions, event, gap)
	}
	return sessions
}

// VisitorSessions is the windowed output for a single visitor.
type VisitorSessions struct {
	VisitorID string
	Sessions  []models.Session
}

// Aggregate merges per-visitor session lists into a Result.
func Aggregate(parts []VisitorSessions) models.Result {
	result := models.Result{SessionByUser: make(map[string][]models.Session, len(parts))}
	for _, part := range parts {
		result.SessionByUser[part.VisitorID] = append(result.SessionByUser[part.VisitorID], part.Sessions...)
	}
	return result
}

// Run executes the whole pipeline: group, sort, window and aggregate.
// Visitors are independent, so with opts.Workers > 1 they are windowed
// concurrently; the result does not depend on the worker count.
func Run(events []models.Event, opts Options) models.Result {
	groups := Group(events)

	visitors := make([]string, 0, len(groups))
	for visitorID := range groups {
		visitors = append(visitors, visitorID)
	}
	sort.Strings(visitors)

	gap := opts.gap()
	parts := make([]VisitorSessions, len(visitors))

	var g errgroup.Group
	g.SetLimit(max(opts.Workers, 1))
	for i, visitorID := range visitors {
		g.Go(func() error {
			parts[i] = VisitorSessions{
				VisitorID: visitorID,
				Sessions:  Window(SortChronological(groups[visitorID]), gap),
			}
			return nil
		})
	}
	// Window never fails; Wait only joins the workers.
	_ = g.Wait()

	return Aggregate(parts)
}
