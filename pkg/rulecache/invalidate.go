package rulecache

import (
	"context"
	"log/slog"
)

// GraphChange describes a committed mutation of the rule graph: which
// groups were touched directly and which ruleset, if any, changed
// membership. Callers must list groups that were detached by the change
// as well as the ones now attached, so stale lists cannot survive.
type GraphChange struct {
	// GroupIDs are groups whose direct rule associations changed, on
	// either side of the mutation.
	GroupIDs []string

	// RuleSetID, when non-empty, names a ruleset whose rule membership
	// changed; every group currently using it is invalidated.
	RuleSetID string

	// DetachedGroupIDs are groups that used the ruleset before the
	// mutation but no longer do.
	DetachedGroupIDs []string
}

// Invalidator is the single chokepoint rule-graph mutations must pass
// through after commit. It translates a GraphChange into cache drops.
type Invalidator struct {
	cache  *Cache
	logger *slog.Logger
}

// NewInvalidator creates an Invalidator over the given cache.
func NewInvalidator(cache *Cache, logger *slog.Logger) *Invalidator {
	return &Invalidator{cache: cache, logger: logger.With("component", "invalidator")}
}

// CommitRuleGraphChange invalidates every group whose effective rule list
// the change may have altered. It must be called after the relational
// transaction commits.
func (inv *Invalidator) CommitRuleGraphChange(ctx context.Context, change GraphChange) error {
	affected := make(map[string]struct{})
	for _, id := range change.GroupIDs {
		affected[id] = struct{}{}
	}
	for _, id := range change.DetachedGroupIDs {
		affected[id] = struct{}{}
	}

	if change.RuleSetID != "" {
		groupIDs, err := inv.cache.source.RuleSetGroupIDs(ctx, change.RuleSetID)
		if err != nil {
			return err
		}
		for _, id := range groupIDs {
			affected[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	if err := inv.cache.Invalidate(ctx, ids...); err != nil {
		return err
	}
	inv.logger.Info("rule graph change committed", "ruleset_id", change.RuleSetID, "groups_invalidated", len(ids))
	return nil
}
