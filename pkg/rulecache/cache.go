package rulecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/model"
	"github.com/Hakopstar/VcelJAK/pkg/store"
)

// notFoundMarker is cached for group ids that do not exist, so repeated
// lookups of a bad id do not hammer the relational store.
const notFoundMarker = "__not_found__"

// GroupKey returns the cache key for a group's effective rule list.
func GroupKey(groupID string) string {
	return "rules:group:" + groupID
}

// RuleSource loads a group's raw rule graph. *store.SQLite and
// *store.Memory satisfy it.
type RuleSource interface {
	GroupRules(ctx context.Context, groupID string) ([]model.Rule, error)
	RuleSetGroupIDs(ctx context.Context, ruleSetID string) ([]string, error)
}

// Cache is a read-through cache of each group's effective rule list:
// direct rules and ruleset rules deduplicated, filtered to active and
// sorted by priority.
//
// A failing backend degrades to direct loads; the cache never makes rule
// evaluation unavailable.
type Cache struct {
	source   RuleSource
	backend  Backend
	logger   *slog.Logger
	recorder Recorder

	rulesTTL    time.Duration
	notFoundTTL time.Duration
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	// RulesTTL is how long a cached rule list stays fresh.
	// Default: 10 minutes.
	RulesTTL time.Duration

	// NotFoundTTL is how long a missing-group marker stays cached.
	// Default: 1 minute.
	NotFoundTTL time.Duration

	// Recorder receives hit/miss notifications. Optional.
	Recorder Recorder
}

// New creates a rule cache over the given source and backend.
func New(source RuleSource, backend Backend, logger *slog.Logger, cfg CacheConfig) *Cache {
	if cfg.RulesTTL == 0 {
		cfg.RulesTTL = 10 * time.Minute
	}
	if cfg.NotFoundTTL == 0 {
		cfg.NotFoundTTL = time.Minute
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Cache{
		source:      source,
		backend:     backend,
		logger:      logger.With("component", "rulecache"),
		recorder:    cfg.Recorder,
		rulesTTL:    cfg.RulesTTL,
		notFoundTTL: cfg.NotFoundTTL,
	}
}

// RulesForGroup returns the group's effective rules, consulting the cache
// first. Returns store.ErrNotFound for unknown groups; that outcome is
// itself cached, with a shorter TTL.
func (c *Cache) RulesForGroup(ctx context.Context, groupID string) ([]model.Rule, error) {
	key := GroupKey(groupID)

	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		// Cache trouble must not break evaluation: load directly.
		c.logger.Warn("cache read failed, loading rules directly", "group_id", groupID, "error", err)
		rules, srcErr := c.source.GroupRules(ctx, groupID)
		if srcErr != nil {
			return nil, srcErr
		}
		return effectiveRules(rules), nil
	}

	if ok {
		c.recorder.CacheHit()
		if string(raw) == notFoundMarker {
			return nil, store.ErrNotFound
		}
		var rules []model.Rule
		if err := json.Unmarshal(raw, &rules); err == nil {
			return rules, nil
		}
		// A corrupt entry falls through to a reload.
		c.logger.Warn("discarding corrupt cache entry", "group_id", groupID)
	}
	c.recorder.CacheMiss()

	rules, err := c.source.GroupRules(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		if setErr := c.backend.Set(ctx, key, []byte(notFoundMarker), c.notFoundTTL); setErr != nil {
			c.logger.Warn("cache write failed", "group_id", groupID, "error", setErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for group %s: %w", groupID, err)
	}

	effective := effectiveRules(rules)
	if encoded, err := json.Marshal(effective); err == nil {
		if setErr := c.backend.Set(ctx, key, encoded, c.rulesTTL); setErr != nil {
			c.logger.Warn("cache write failed", "group_id", groupID, "error", setErr)
		}
	}
	return effective, nil
}

// Invalidate drops the cached rule lists for the given groups.
func (c *Cache) Invalidate(ctx context.Context, groupIDs ...string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	keys := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		keys[i] = GroupKey(id)
	}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate groups: %w", err)
	}
	c.logger.Debug("invalidated cached rules", "groups", len(groupIDs))
	return nil
}

// effectiveRules deduplicates by rule id, keeps only active rules and
// sorts ascending by priority; each rule's actions are sorted by
// execution order. The id is a stable tie-break so equal priorities do
// not flap between calls.
func effectiveRules(rules []model.Rule) []model.Rule {
	seen := make(map[string]struct{}, len(rules))
	out := make([]model.Rule, 0, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		if !r.Active {
			continue
		}
		sort.SliceStable(r.Actions, func(i, j int) bool {
			return r.Actions[i].ExecutionOrder < r.Actions[j].ExecutionOrder
		})
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
