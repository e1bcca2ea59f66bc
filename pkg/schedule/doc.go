// Package schedule tracks long-running maintenance schedules. Each
// condition holds a streak of consecutive successful window checks against
// the time-series store; the schedule's progress and lifecycle status are
// derived from the streaks on every periodic recompute.
package schedule
