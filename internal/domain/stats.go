package domain

import "time"

// thisWeekWindow is the trailing window used for the weekly counters
const thisWeekWindow = 7 * 24 * time.Hour

// Statistics is a derived aggregate over a task list. It has no identity or
// persistence of its own: it is recomputed in full from the current list on
// every snapshot, never updated incrementally.
type Statistics struct {
	Total             int              `json:"total"`
	Completed         int              `json:"completed"`
	InProgress        int              `json:"in_progress"`
	Overdue           int              `json:"overdue"`
	ThisWeekTotal     int              `json:"this_week_total"`
	ThisWeekCompleted int              `json:"this_week_completed"`
	ByCategory        map[Category]int `json:"by_category"`
	ByPriority        map[Priority]int `json:"by_priority"`
}

// Todo returns the implicit todo count (total minus completed and in-progress)
func (s Statistics) Todo() int {
	return s.Total - s.Completed - s.InProgress
}

// ComputeStatistics derives the aggregate counters from tasks as of now.
// O(N) over the list; task lists are personal-scale, so total recomputation
// per snapshot is cheap enough.
func ComputeStatistics(tasks []Task, now time.Time) Statistics {
	stats := Statistics{
		ByCategory: make(map[Category]int, len(Categories)),
		ByPriority: make(map[Priority]int, len(Priorities)),
	}
	for _, c := range Categories {
		stats.ByCategory[c] = 0
	}
	for _, p := range Priorities {
		stats.ByPriority[p] = 0
	}

	for i := range tasks {
		t := &tasks[i]
		stats.Total++

		switch t.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusInProgress:
			stats.InProgress++
		}

		if t.IsOverdue(now) {
			stats.Overdue++
		}

		if t.CreatedWithin(thisWeekWindow, now) {
			stats.ThisWeekTotal++
			if t.Status == StatusCompleted {
				stats.ThisWeekCompleted++
			}
		}

		stats.ByCategory[t.Category]++
		stats.ByPriority[t.Priority]++
	}

	return stats
}
