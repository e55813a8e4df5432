package main

import "sort"

// UpcomingHorizonMonths bounds how far ahead the upcoming bucket reaches.
// Events starting beyond the horizon are not shown in any bucket.
const UpcomingHorizonMonths = 3

// Buckets is the mutually exclusive classification of a user's events
// relative to "today".
type Buckets struct {
	Live     []Event `json:"live"`
	Upcoming []Event `json:"upcoming"`
	Past     []Event `json:"past"`
}

// ClassifyEvents partitions events into live, upcoming and past buckets.
// Events without a usable start date are dropped rather than erroring, so a
// single bad record never takes down the whole listing. The caller supplies
// "today" (normally Today()) which keeps the function pure and testable.
func ClassifyEvents(events []Event, today DateOnly) Buckets {
	horizon := today.AddMonths(UpcomingHorizonMonths)

	buckets := Buckets{
		Live:     []Event{},
		Upcoming: []Event{},
		Past:     []Event{},
	}

	for _, ev := range events {
		start := ev.StartDate
		if start.IsZero() {
			continue
		}
		end := ev.EffectiveEnd()
		if end.Before(start) {
			end = start
		}

		switch {
		case end.Before(today):
			buckets.Past = append(buckets.Past, ev)
		case !start.After(today) && !end.Before(today):
			buckets.Live = append(buckets.Live, ev)
		case start.After(today) && !start.After(horizon):
			buckets.Upcoming = append(buckets.Upcoming, ev)
		}
		// Starts beyond the horizon fall through: excluded everywhere.
	}

	sort.SliceStable(buckets.Live, func(i, j int) bool {
		return buckets.Live[i].StartDate.Before(buckets.Live[j].StartDate)
	})
	sort.SliceStable(buckets.Upcoming, func(i, j int) bool {
		return buckets.Upcoming[i].StartDate.Before(buckets.Upcoming[j].StartDate)
	})
	// Most recently past first.
	sort.SliceStable(buckets.Past, func(i, j int) bool {
		return buckets.Past[i].StartDate.After(buckets.Past[j].StartDate)
	})

	return buckets
}
