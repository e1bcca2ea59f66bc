package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// Memory is an in-memory Store. It is the default backend in tests and
// keeps the full rule graph in plain maps.
type Memory struct {
	mu sync.RWMutex

	groups    map[string]*model.Group
	sensors   map[string]*model.Sensor
	tags      map[string]struct{}
	rules     map[string]*model.Rule
	schedules map[string]*model.Schedule

	groupRules    map[string][]string // group id -> direct rule ids
	groupRuleSets map[string][]string // group id -> ruleset ids
	ruleSetRules  map[string][]string // ruleset id -> rule ids
	ruleSetGroups map[string][]string // ruleset id -> group ids

	events []model.GroupEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		groups:        make(map[string]*model.Group),
		sensors:       make(map[string]*model.Sensor),
		tags:          make(map[string]struct{}),
		rules:         make(map[string]*model.Rule),
		schedules:     make(map[string]*model.Schedule),
		groupRules:    make(map[string][]string),
		groupRuleSets: make(map[string][]string),
		ruleSetRules:  make(map[string][]string),
		ruleSetGroups: make(map[string][]string),
	}
}

// PutGroup inserts or replaces a group.
func (m *Memory) PutGroup(g *model.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups[g.ID] = &cp
	for i := range g.Sensors {
		s := g.Sensors[i]
		s.GroupID = g.ID
		m.sensors[s.ID] = &s
	}
}

// PutSensor inserts or replaces a sensor.
func (m *Memory) PutSensor(s *model.Sensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sensors[s.ID] = &cp
}

// PutTag registers a tag id.
func (m *Memory) PutTag(tagID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[tagID] = struct{}{}
}

// PutRule inserts or replaces a rule definition.
func (m *Memory) PutRule(r *model.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rules[r.ID] = &cp
}

// AttachRule associates a rule directly with a group.
func (m *Memory) AttachRule(groupID, ruleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupRules[groupID] = append(m.groupRules[groupID], ruleID)
}

// PutRuleSet defines a ruleset's rule membership.
func (m *Memory) PutRuleSet(ruleSetID string, ruleIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleSetRules[ruleSetID] = append([]string(nil), ruleIDs...)
}

// AttachRuleSet associates a ruleset with a group.
func (m *Memory) AttachRuleSet(groupID, ruleSetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupRuleSets[groupID] = append(m.groupRuleSets[groupID], ruleSetID)
	m.ruleSetGroups[ruleSetID] = append(m.ruleSetGroups[ruleSetID], groupID)
}

// PutSchedule inserts or replaces a schedule.
func (m *Memory) PutSchedule(s *model.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Conditions = append([]model.ScheduleCondition(nil), s.Conditions...)
	m.schedules[s.ID] = &cp
}

// Events returns a copy of the accumulated audit log.
func (m *Memory) Events() []model.GroupEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.GroupEvent(nil), m.events...)
}

func (m *Memory) GroupRules(ctx context.Context, groupID string) ([]model.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	var out []model.Rule
	for _, id := range m.groupRules[groupID] {
		if r, ok := m.rules[id]; ok {
			out = append(out, *r)
		}
	}
	for _, rsID := range m.groupRuleSets[groupID] {
		for _, id := range m.ruleSetRules[rsID] {
			if r, ok := m.rules[id]; ok {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}

func (m *Memory) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	cp.Tags = append([]string(nil), g.Tags...)
	cp.Sensors = nil
	for _, s := range m.sensors {
		if s.GroupID == groupID {
			cp.Sensors = append(cp.Sensors, *s)
		}
	}
	sort.Slice(cp.Sensors, func(i, j int) bool { return cp.Sensors[i].ID < cp.Sensors[j].ID })
	return &cp, nil
}

func (m *Memory) LatestAggregate(ctx context.Context, groupID, measurement string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest time.Time
	for _, s := range m.sensors {
		if s.GroupID != groupID || s.Measurement != measurement || s.LastReadingTime == nil {
			continue
		}
		if s.LastReadingTime.After(newest) {
			newest = *s.LastReadingTime
		}
	}
	if newest.IsZero() {
		return 0, false, nil
	}
	var sum float64
	var n int
	for _, s := range m.sensors {
		if s.GroupID != groupID || s.Measurement != measurement || s.LastReadingTime == nil {
			continue
		}
		if s.LastReadingTime.Equal(newest) && s.LastReadingValue != nil {
			sum += *s.LastReadingValue
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

func (m *Memory) UpdateGroupHealth(ctx context.Context, groupID string, health int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	g.Health = &health
	return nil
}

func (m *Memory) GroupHealthValues(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for id, g := range m.groups {
		if g.Health != nil {
			out[id] = *g.Health
		}
	}
	return out, nil
}

func (m *Memory) AddGroupTag(ctx context.Context, groupID, tagID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.tags[tagID]; !ok {
		return ErrNotFound
	}
	g.Tags = append(g.Tags, tagID)
	return nil
}

func (m *Memory) AppendGroupEvent(ctx context.Context, event model.GroupEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Conditions = append([]model.ScheduleCondition(nil), s.Conditions...)
	return &cp, nil
}

func (m *Memory) SaveScheduleProgress(ctx context.Context, schedule *model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.schedules[schedule.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Progress = schedule.Progress
	cur.Status = schedule.Status
	cur.CompletionDate = schedule.CompletionDate
	cur.Conditions = append([]model.ScheduleCondition(nil), schedule.Conditions...)
	return nil
}

func (m *Memory) GetSensor(ctx context.Context, sensorID string) (*model.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sensors[sensorID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateSensorReading(ctx context.Context, sensorID string, value float64, unit string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sensors[sensorID]
	if !ok {
		return ErrNotFound
	}
	v := value
	t := at
	s.LastReadingValue = &v
	s.LastReadingUnit = unit
	s.LastReadingTime = &t
	return nil
}

func (m *Memory) RuleSetGroupIDs(ctx context.Context, ruleSetID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ruleSetGroups[ruleSetID]...), nil
}

func (m *Memory) ListGroupIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ListScheduleIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.schedules))
	for id := range m.schedules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }
