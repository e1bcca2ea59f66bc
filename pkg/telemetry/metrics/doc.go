// Package metrics exposes Prometheus metrics for rule evaluation, action
// execution, the rule cache, schedule recomputation and reading intake.
package metrics
