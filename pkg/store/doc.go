// Package store provides persistence for groups, sensors, rules and
// schedules.
//
// Two implementations are available:
//
//   - Memory: a mutex-guarded in-memory store, used in tests and as a
//     fixture for the engine packages.
//   - SQLite: a file-backed store using modernc.org/sqlite, suitable for
//     single-node deployments.
//
// Rule and schedule definitions are treated as read-mostly: the engine
// writes only group health, tag membership, audit events and schedule
// progress.
package store
