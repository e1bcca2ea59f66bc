// Package rulecache caches each group's effective rule list: direct and
// ruleset rules deduplicated, filtered to active and sorted by priority.
//
// Lists are cached under "rules:group:{id}" with a TTL, and unknown group
// ids are negatively cached with a shorter one. Rule-graph mutations
// invalidate through the Invalidator after commit. A failing cache
// backend degrades to direct relational loads rather than failing
// evaluation.
package rulecache
