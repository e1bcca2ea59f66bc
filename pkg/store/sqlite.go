package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Hakopstar/VcelJAK/pkg/model"
)

// SQLite implements Store on a file-backed SQLite database.
//
// The database is opened in WAL mode with a busy timeout and a single
// writer connection. Rule initiators and actions are stored in the raw
// authoring shape and classified into the closed variant set at load time.
type SQLite struct {
	db        *sql.DB
	dbPath    string
	mu        sync.RWMutex
	closeOnce sync.Once

	directRulesStmt  *sql.Stmt
	rulesetRulesStmt *sql.Stmt
	groupExistsStmt  *sql.Stmt
	aggregateStmt    *sql.Stmt
	eventStmt        *sql.Stmt
	sensorUpdateStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the path to the database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLite opens (creating if needed) a SQLite store at path with defaults.
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(SQLiteConfig{Path: path, BusyTimeout: 5 * time.Second})
}

// NewSQLiteWithConfig opens a SQLite store with custom configuration.
func NewSQLiteWithConfig(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db, dbPath: cfg.Path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		type      TEXT NOT NULL DEFAULT '',
		parent_id TEXT,
		health    INTEGER
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS group_tags (
		group_id TEXT NOT NULL REFERENCES groups(id),
		tag_id   TEXT NOT NULL REFERENCES tags(id),
		PRIMARY KEY (group_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS sensors (
		id                 TEXT PRIMARY KEY,
		group_id           TEXT REFERENCES groups(id),
		measurement        TEXT NOT NULL,
		last_reading_time  INTEGER,
		last_reading_value REAL,
		last_reading_unit  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rules (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		logical_operator TEXT NOT NULL DEFAULT 'and',
		priority         INTEGER NOT NULL DEFAULT 0,
		active           INTEGER NOT NULL DEFAULT 1,
		initiators       TEXT NOT NULL DEFAULT '[]',
		actions          TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS group_rules (
		group_id TEXT NOT NULL REFERENCES groups(id),
		rule_id  TEXT NOT NULL REFERENCES rules(id),
		PRIMARY KEY (group_id, rule_id)
	);

	CREATE TABLE IF NOT EXISTS ruleset_rules (
		ruleset_id TEXT NOT NULL,
		rule_id    TEXT NOT NULL REFERENCES rules(id),
		PRIMARY KEY (ruleset_id, rule_id)
	);

	CREATE TABLE IF NOT EXISTS group_rulesets (
		group_id   TEXT NOT NULL REFERENCES groups(id),
		ruleset_id TEXT NOT NULL,
		PRIMARY KEY (group_id, ruleset_id)
	);

	CREATE TABLE IF NOT EXISTS group_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id    TEXT NOT NULL REFERENCES groups(id),
		event_type  TEXT NOT NULL,
		event_time  INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		progress        INTEGER NOT NULL DEFAULT 0,
		completion_date INTEGER
	);

	CREATE TABLE IF NOT EXISTS schedule_conditions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		schedule_id    TEXT NOT NULL REFERENCES schedules(id),
		measurement    TEXT NOT NULL,
		operator       TEXT NOT NULL,
		value          TEXT NOT NULL,
		duration       INTEGER NOT NULL,
		duration_unit  TEXT NOT NULL,
		group_id       TEXT NOT NULL,
		streak         INTEGER NOT NULL DEFAULT 0,
		last_evaluated INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sensors_group ON sensors(group_id);
	CREATE INDEX IF NOT EXISTS idx_events_group ON group_events(group_id, event_time);
	CREATE INDEX IF NOT EXISTS idx_conditions_schedule ON schedule_conditions(schedule_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) prepareStatements() error {
	var err error

	s.directRulesStmt, err = s.db.Prepare(`
		SELECT r.id, r.name, r.logical_operator, r.priority, r.active, r.initiators, r.actions
		FROM rules r
		JOIN group_rules gr ON gr.rule_id = r.id
		WHERE gr.group_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare direct rules statement: %w", err)
	}

	s.rulesetRulesStmt, err = s.db.Prepare(`
		SELECT r.id, r.name, r.logical_operator, r.priority, r.active, r.initiators, r.actions
		FROM rules r
		JOIN ruleset_rules rr ON rr.rule_id = r.id
		JOIN group_rulesets grs ON grs.ruleset_id = rr.ruleset_id
		WHERE grs.group_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ruleset rules statement: %w", err)
	}

	s.groupExistsStmt, err = s.db.Prepare(`SELECT 1 FROM groups WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare group exists statement: %w", err)
	}

	s.aggregateStmt, err = s.db.Prepare(`
		SELECT AVG(last_reading_value)
		FROM sensors
		WHERE group_id = ? AND measurement = ? AND last_reading_value IS NOT NULL
		AND last_reading_time = (
			SELECT MAX(last_reading_time) FROM sensors
			WHERE group_id = ? AND measurement = ? AND last_reading_time IS NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare aggregate statement: %w", err)
	}

	s.eventStmt, err = s.db.Prepare(`
		INSERT INTO group_events (group_id, event_type, event_time, description)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event statement: %w", err)
	}

	s.sensorUpdateStmt, err = s.db.Prepare(`
		UPDATE sensors
		SET last_reading_value = ?, last_reading_unit = ?, last_reading_time = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sensor update statement: %w", err)
	}

	return nil
}

// rawInitiatorRow is the stored shape of an initiator before classification.
type rawInitiatorRow struct {
	ID            int64            `json:"id"`
	Type          string           `json:"type"`
	Operator      string           `json:"operator"`
	Value         *decimal.Decimal `json:"value,omitempty"`
	Value2        *decimal.Decimal `json:"value2,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	ScheduleType  string           `json:"schedule_type,omitempty"`
	ScheduleValue string           `json:"schedule_value,omitempty"`
}

// rawActionRow is the stored shape of an action before normalization.
type rawActionRow struct {
	ID             int64                  `json:"id"`
	Type           string                 `json:"type"`
	Params         map[string]interface{} `json:"params,omitempty"`
	ExecutionOrder int                    `json:"execution_order"`
}

func decodeRule(id, name, logical string, priority int, active bool, initiatorsJSON, actionsJSON string) (model.Rule, error) {
	rule := model.Rule{
		ID:              id,
		Name:            name,
		LogicalOperator: model.LogicalOperator(logical),
		Priority:        priority,
		Active:          active,
	}

	var rawInits []rawInitiatorRow
	if err := json.Unmarshal([]byte(initiatorsJSON), &rawInits); err != nil {
		return model.Rule{}, fmt.Errorf("failed to unmarshal initiators for rule %s: %w", id, err)
	}
	for _, ri := range rawInits {
		rule.Initiators = append(rule.Initiators, model.ClassifyInitiator(model.RawInitiator{
			ID:            ri.ID,
			Type:          ri.Type,
			Operator:      ri.Operator,
			Value:         ri.Value,
			Value2:        ri.Value2,
			Tags:          ri.Tags,
			ScheduleType:  ri.ScheduleType,
			ScheduleValue: ri.ScheduleValue,
		}))
	}

	var rawActs []rawActionRow
	if err := json.Unmarshal([]byte(actionsJSON), &rawActs); err != nil {
		return model.Rule{}, fmt.Errorf("failed to unmarshal actions for rule %s: %w", id, err)
	}
	for _, ra := range rawActs {
		rule.Actions = append(rule.Actions, model.Action{
			ID:             ra.ID,
			Kind:           model.NormalizeActionKind(ra.Type),
			Params:         ra.Params,
			ExecutionOrder: ra.ExecutionOrder,
		})
	}

	return rule, nil
}

func scanRules(rows *sql.Rows) ([]model.Rule, error) {
	var out []model.Rule
	for rows.Next() {
		var (
			id, name, logical, initiatorsJSON, actionsJSON string
			priority                                       int
			active                                         bool
		)
		if err := rows.Scan(&id, &name, &logical, &priority, &active, &initiatorsJSON, &actionsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rule, err := decodeRule(id, name, logical, priority, active, initiatorsJSON, actionsJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *SQLite) GroupRules(ctx context.Context, groupID string) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	if err := s.groupExistsStmt.QueryRowContext(ctx, groupID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to check group: %w", err)
	}

	rows, err := s.directRulesStmt.QueryContext(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load direct rules: %w", err)
	}
	direct, err := scanRules(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = s.rulesetRulesStmt.QueryContext(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset rules: %w", err)
	}
	viaSets, err := scanRules(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	return append(direct, viaSets...), nil
}

func (s *SQLite) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := &model.Group{ID: groupID}
	var parentID sql.NullString
	var health sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, type, parent_id, health FROM groups WHERE id = ?`, groupID,
	).Scan(&g.Name, &g.Type, &parentID, &health)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	g.ParentID = parentID.String
	if health.Valid {
		h := int(health.Int64)
		g.Health = &h
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_id FROM group_tags WHERE group_id = ? ORDER BY tag_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group tags: %w", err)
	}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		g.Tags = append(g.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, measurement, last_reading_time, last_reading_value, last_reading_unit
		FROM sensors WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group sensors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		sensor := model.Sensor{GroupID: groupID}
		var readTime sql.NullInt64
		var readValue sql.NullFloat64
		if err := rows.Scan(&sensor.ID, &sensor.Measurement, &readTime, &readValue, &sensor.LastReadingUnit); err != nil {
			return nil, fmt.Errorf("failed to scan sensor row: %w", err)
		}
		if readTime.Valid {
			t := time.Unix(readTime.Int64, 0).UTC()
			sensor.LastReadingTime = &t
		}
		if readValue.Valid {
			v := readValue.Float64
			sensor.LastReadingValue = &v
		}
		g.Sensors = append(g.Sensors, sensor)
	}
	return g, rows.Err()
}

func (s *SQLite) LatestAggregate(ctx context.Context, groupID, measurement string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avg sql.NullFloat64
	err := s.aggregateStmt.QueryRowContext(ctx, groupID, measurement, groupID, measurement).Scan(&avg)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !avg.Valid) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load aggregate: %w", err)
	}
	return avg.Float64, true, nil
}

func (s *SQLite) UpdateGroupHealth(ctx context.Context, groupID string, health int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE groups SET health = ? WHERE id = ?`, health, groupID)
	if err != nil {
		return fmt.Errorf("failed to update health: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) GroupHealthValues(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, health FROM groups WHERE health IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load health values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var health int
		if err := rows.Scan(&id, &health); err != nil {
			return nil, fmt.Errorf("failed to scan health row: %w", err)
		}
		out[id] = health
	}
	return out, rows.Err()
}

func (s *SQLite) AddGroupTag(ctx context.Context, groupID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE id = ?`, tagID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check tag: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE id = ?`, groupID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check group: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_tags (group_id, tag_id) VALUES (?, ?)`, groupID, tagID)
	if err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

func (s *SQLite) AppendGroupEvent(ctx context.Context, event model.GroupEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := event.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.eventStmt.ExecContext(ctx, event.GroupID, event.EventType, at.Unix(), event.Description)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *SQLite) GetSchedule(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched := &model.Schedule{ID: scheduleID}
	var status string
	var completion sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, status, progress, completion_date FROM schedules WHERE id = ?`, scheduleID,
	).Scan(&sched.Name, &status, &sched.Progress, &completion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	sched.Status = model.ScheduleStatus(status)
	if completion.Valid {
		t := time.Unix(completion.Int64, 0).UTC()
		sched.CompletionDate = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, measurement, operator, value, duration, duration_unit, group_id, streak, last_evaluated
		FROM schedule_conditions WHERE schedule_id = ? ORDER BY id`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule conditions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		cond := model.ScheduleCondition{ScheduleID: scheduleID}
		var op, value string
		var lastEval sql.NullInt64
		if err := rows.Scan(&cond.ID, &cond.Measurement, &op, &value,
			&cond.Duration, &cond.DurationUnit, &cond.GroupID, &cond.Streak, &lastEval); err != nil {
			return nil, fmt.Errorf("failed to scan condition row: %w", err)
		}
		cond.Operator = model.NormalizeOperator(op)
		cond.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid condition value %q: %w", value, err)
		}
		if lastEval.Valid {
			cond.LastEvaluated = time.Unix(lastEval.Int64, 0).UTC()
		}
		sched.Conditions = append(sched.Conditions, cond)
	}
	return sched, rows.Err()
}

func (s *SQLite) SaveScheduleProgress(ctx context.Context, schedule *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var completion interface{}
	if schedule.CompletionDate != nil {
		completion = schedule.CompletionDate.Unix()
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE schedules SET status = ?, progress = ?, completion_date = ? WHERE id = ?`,
		string(schedule.Status), schedule.Progress, completion, schedule.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	for _, cond := range schedule.Conditions {
		var lastEval interface{}
		if !cond.LastEvaluated.IsZero() {
			lastEval = cond.LastEvaluated.Unix()
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE schedule_conditions SET streak = ?, last_evaluated = ? WHERE id = ?`,
			cond.Streak, lastEval, cond.ID); err != nil {
			return fmt.Errorf("failed to update condition %d: %w", cond.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) GetSensor(ctx context.Context, sensorID string) (*model.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensor := &model.Sensor{ID: sensorID}
	var groupID sql.NullString
	var readTime sql.NullInt64
	var readValue sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, measurement, last_reading_time, last_reading_value, last_reading_unit
		FROM sensors WHERE id = ?`, sensorID,
	).Scan(&groupID, &sensor.Measurement, &readTime, &readValue, &sensor.LastReadingUnit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sensor: %w", err)
	}
	sensor.GroupID = groupID.String
	if readTime.Valid {
		t := time.Unix(readTime.Int64, 0).UTC()
		sensor.LastReadingTime = &t
	}
	if readValue.Valid {
		v := readValue.Float64
		sensor.LastReadingValue = &v
	}
	return sensor, nil
}

func (s *SQLite) UpdateSensorReading(ctx context.Context, sensorID string, value float64, unit string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.sensorUpdateStmt.ExecContext(ctx, value, unit, at.Unix(), sensorID)
	if err != nil {
		return fmt.Errorf("failed to update sensor reading: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) RuleSetGroupIDs(ctx context.Context, ruleSetID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM group_rulesets WHERE ruleset_id = ?`, ruleSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) ListGroupIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM groups ORDER BY id`)
}

func (s *SQLite) ListScheduleIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM schedules ORDER BY id`)
}

func (s *SQLite) listIDs(ctx context.Context, query string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle and prepared statements.
// Close is idempotent and safe to call multiple times.
func (s *SQLite) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{
			s.directRulesStmt, s.rulesetRulesStmt, s.groupExistsStmt,
			s.aggregateStmt, s.eventStmt, s.sensorUpdateStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})
	return closeErr
}
