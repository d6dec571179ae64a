package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/warstack/warroom-engine/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL,
	affected_system TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	escalated_to_vendor INTEGER NOT NULL DEFAULT 0,
	threads TEXT NOT NULL DEFAULT '[]',
	team_states TEXT NOT NULL DEFAULT '{}',
	hypothesis TEXT,
	actions TEXT NOT NULL DEFAULT '[]',
	timeline TEXT NOT NULL DEFAULT '[]',
	collaboration TEXT,
	exec_summary TEXT NOT NULL DEFAULT '',
	exec_summary_version INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS findings (
	id TEXT PRIMARY KEY,
	incident_id TEXT NOT NULL,
	thread TEXT NOT NULL,
	engineer TEXT NOT NULL,
	raw_text TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	entities TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_findings_incident ON findings(incident_id, thread);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	incident_id TEXT NOT NULL,
	thread TEXT NOT NULL,
	sender TEXT NOT NULL,
	sender_type TEXT NOT NULL,
	content TEXT NOT NULL,
	priority TEXT NOT NULL,
	is_critical INTEGER NOT NULL DEFAULT 0,
	mentions TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_incident ON messages(incident_id, thread);
`

// SQLiteStore persists entities in a single SQLite database. Enum values are
// converted to strings exactly once at this boundary; everything above it
// operates on the typed values.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serialises writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateIncident inserts a new incident row.
func (s *SQLiteStore) CreateIncident(ctx context.Context, inc *models.Incident) error {
	threads, teamStates, hypothesis, actions, timeline, collab, err := encodeIncidentDocs(inc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, title, description, severity, affected_system, status,
			escalated_to_vendor, threads, team_states, hypothesis, actions,
			timeline, collaboration, exec_summary, exec_summary_version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Title, inc.Description, string(inc.Severity), inc.AffectedSystem,
		string(inc.Status), boolToInt(inc.EscalatedToVendor), threads, teamStates,
		hypothesis, actions, timeline, collab, inc.ExecSummary, inc.ExecSummaryVer,
		formatTime(inc.CreatedAt), formatTime(inc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetIncident loads an incident or returns ErrNotFound.
func (s *SQLiteStore) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, severity, affected_system, status,
			escalated_to_vendor, threads, team_states, hypothesis, actions,
			timeline, collaboration, exec_summary, exec_summary_version,
			created_at, updated_at
		FROM incidents WHERE id = ?`, id)

	var (
		inc                  models.Incident
		severity, status     string
		escalated            int
		threads, teamStates  []byte
		hypothesis, collab   sql.NullString
		actions, timeline    []byte
		createdAt, updatedAt string
	)
	err := row.Scan(
		&inc.ID, &inc.Title, &inc.Description, &severity, &inc.AffectedSystem,
		&status, &escalated, &threads, &teamStates, &hypothesis, &actions,
		&timeline, &collab, &inc.ExecSummary, &inc.ExecSummaryVer,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan incident: %w", err)
	}

	inc.Severity = models.Severity(severity)
	inc.Status = models.IncidentStatus(status)
	inc.EscalatedToVendor = escalated != 0
	if err := json.Unmarshal(threads, &inc.Threads); err != nil {
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	if err := json.Unmarshal(teamStates, &inc.TeamStates); err != nil {
		return nil, fmt.Errorf("decode team states: %w", err)
	}
	if hypothesis.Valid && hypothesis.String != "" {
		inc.Hypothesis = &models.Hypothesis{}
		if err := json.Unmarshal([]byte(hypothesis.String), inc.Hypothesis); err != nil {
			return nil, fmt.Errorf("decode hypothesis: %w", err)
		}
	}
	if err := json.Unmarshal(actions, &inc.Actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	if err := json.Unmarshal(timeline, &inc.Timeline); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	if collab.Valid && collab.String != "" {
		inc.Collaboration = &models.CollaborationSession{}
		if err := json.Unmarshal([]byte(collab.String), inc.Collaboration); err != nil {
			return nil, fmt.Errorf("decode collaboration: %w", err)
		}
	}
	inc.CreatedAt = parseTime(createdAt)
	inc.UpdatedAt = parseTime(updatedAt)
	return &inc, nil
}

// UpdateIncident overwrites the mutable portion of an incident row.
func (s *SQLiteStore) UpdateIncident(ctx context.Context, inc *models.Incident) error {
	threads, teamStates, hypothesis, actions, timeline, collab, err := encodeIncidentDocs(inc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET
			title = ?, description = ?, severity = ?, affected_system = ?,
			status = ?, escalated_to_vendor = ?, threads = ?, team_states = ?,
			hypothesis = ?, actions = ?, timeline = ?, collaboration = ?,
			exec_summary = ?, exec_summary_version = ?, updated_at = ?
		WHERE id = ?`,
		inc.Title, inc.Description, string(inc.Severity), inc.AffectedSystem,
		string(inc.Status), boolToInt(inc.EscalatedToVendor), threads, teamStates,
		hypothesis, actions, timeline, collab, inc.ExecSummary, inc.ExecSummaryVer,
		formatTime(time.Now().UTC()), inc.ID,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIncidents returns summaries ordered by creation time, newest first.
func (s *SQLiteStore) ListIncidents(ctx context.Context, status string) ([]models.IncidentSummary, error) {
	query := `SELECT id, title, severity, status, created_at FROM incidents`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.IncidentSummary
	for rows.Next() {
		var (
			sum             models.IncidentSummary
			severity, state string
			createdAt       string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &severity, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("scan incident summary: %w", err)
		}
		sum.Severity = models.Severity(severity)
		sum.Status = models.IncidentStatus(state)
		sum.CreatedAt = parseTime(createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// AddFinding inserts an immutable finding record.
func (s *SQLiteStore) AddFinding(ctx context.Context, f *models.Finding) error {
	entities, err := json.Marshal(orEmptyMap(f.Entities))
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO findings (id, incident_id, thread, engineer, raw_text,
			signal_type, confidence, entities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.IncidentID, f.Thread, f.Engineer, f.RawText,
		string(f.Signal), f.Confidence, entities, formatTime(f.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// GetFindings returns findings in creation order.
func (s *SQLiteStore) GetFindings(ctx context.Context, incidentID, thread string) ([]models.Finding, error) {
	query := `SELECT id, incident_id, thread, engineer, raw_text, signal_type,
		confidence, entities, created_at FROM findings WHERE incident_id = ?`
	args := []any{incidentID}
	if thread != "" {
		query += ` AND thread = ?`
		args = append(args, thread)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		var (
			f         models.Finding
			signal    string
			entities  []byte
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.IncidentID, &f.Thread, &f.Engineer,
			&f.RawText, &signal, &f.Confidence, &entities, &createdAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Signal = models.SignalKind(signal)
		if err := json.Unmarshal(entities, &f.Entities); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		f.CreatedAt = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// AddMessage inserts one thread message.
func (s *SQLiteStore) AddMessage(ctx context.Context, m *models.Message) error {
	mentions, err := json.Marshal(orEmptySlice(m.Mentions))
	if err != nil {
		return fmt.Errorf("encode mentions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, incident_id, thread, sender, sender_type,
			content, priority, is_critical, mentions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.IncidentID, m.Thread, m.Sender, m.SenderType, m.Content,
		string(m.Priority), boolToInt(m.Critical), mentions, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessages returns the most recent matching messages in creation order.
func (s *SQLiteStore) GetMessages(ctx context.Context, incidentID, thread string, limit int) ([]models.Message, error) {
	query := `SELECT id, incident_id, thread, sender, sender_type, content,
		priority, is_critical, mentions, created_at FROM messages WHERE incident_id = ?`
	args := []any{incidentID}
	if thread != "" {
		query += ` AND thread = ?`
		args = append(args, thread)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m         models.Message
			priority  string
			critical  int
			mentions  []byte
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.IncidentID, &m.Thread, &m.Sender,
			&m.SenderType, &m.Content, &priority, &critical, &mentions, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Priority = models.Priority(priority)
		m.Critical = critical != 0
		if err := json.Unmarshal(mentions, &m.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, rows.Err()
}

func encodeIncidentDocs(inc *models.Incident) (threads, teamStates []byte, hypothesis any, actions, timeline []byte, collab any, err error) {
	threads, err = json.Marshal(orEmptySlice(inc.Threads))
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("encode threads: %w", err)
	}
	teamStates, err = json.Marshal(inc.TeamStates)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("encode team states: %w", err)
	}
	if inc.Hypothesis != nil {
		raw, merr := json.Marshal(inc.Hypothesis)
		if merr != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("encode hypothesis: %w", merr)
		}
		hypothesis = string(raw)
	}
	actions, err = json.Marshal(inc.Actions)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	if actions == nil || string(actions) == "null" {
		actions = []byte("[]")
	}
	timeline, err = json.Marshal(inc.Timeline)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("encode timeline: %w", err)
	}
	if string(timeline) == "null" {
		timeline = []byte("[]")
	}
	if inc.Collaboration != nil {
		raw, merr := json.Marshal(inc.Collaboration)
		if merr != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("encode collaboration: %w", merr)
		}
		collab = string(raw)
	}
	return threads, teamStates, hypothesis, actions, timeline, collab, nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
