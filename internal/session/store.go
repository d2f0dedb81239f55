// Package session persists users, conversations, and message history in
// sqlite, with an ephemeral per-session context cache layered on top of
// the kv store.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the durable session store.
type Store struct {
	db *sql.DB
}

// NewStore opens the sqlite database at dbPath and applies the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for components sharing the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession creates a session for an existing user.
func (s *Store) CreateSession(ctx context.Context, tenantID, userID, title string) (*Session, error) {
	sess := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		TenantID:    tenantID,
		Title:       title,
		ContextData: "{}",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, tenant_id, title, context_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.TenantID, sess.Title, sess.ContextData, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetOrCreateUserSession returns the most recent session for userID,
// creating the user and a fresh session when neither exists. An empty
// userID creates a guest identity.
func (s *Store) GetOrCreateUserSession(ctx context.Context, tenantID, userID string) (*Session, error) {
	if userID == "" {
		guest, err := s.CreateGuestUser(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		userID = guest.ID
	} else if err := s.ensureUser(ctx, tenantID, userID); err != nil {
		return nil, err
	}

	sess, err := s.latestSession(ctx, tenantID, userID)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("lookup session for %s: %w", userID, err)
	}
	return s.CreateSession(ctx, tenantID, userID, "")
}

// CreateGuestUser registers a synthetic guest identity.
func (s *Store) CreateGuestUser(ctx context.Context, tenantID string) (*User, error) {
	id := uuid.NewString()
	u := &User{
		ID:        id,
		TenantID:  tenantID,
		Username:  "guest_" + strings.ReplaceAll(id, "-", "")[:8],
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, username, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Username, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create guest user: %w", err)
	}
	return u, nil
}

func (s *Store) ensureUser(ctx context.Context, tenantID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, username)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		userID, tenantID, userID)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return nil
}

// latestSession is scoped to one tenant: the same user id under two
// tenants never shares a conversation.
func (s *Store) latestSession(ctx context.Context, tenantID, userID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, title, context_data, message_seq, current_tool, created_at, updated_at
		 FROM sessions WHERE user_id = ? AND tenant_id = ? ORDER BY updated_at DESC LIMIT 1`,
		userID, tenantID)
	return scanSession(row)
}

// SessionByID fetches a single session.
func (s *Store) SessionByID(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, title, context_data, message_seq, current_tool, created_at, updated_at
		 FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// UserSessions lists a user's sessions, most recent first.
func (s *Store) UserSessions(ctx context.Context, userID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, title, context_data, message_seq, current_tool, created_at, updated_at
		 FROM sessions WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// RecentSessions lists a tenant's sessions across all users.
func (s *Store) RecentSessions(ctx context.Context, tenantID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, title, context_data, message_seq, current_tool, created_at, updated_at
		 FROM sessions WHERE tenant_id = ? ORDER BY updated_at DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions for %s: %w", tenantID, err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// UpdateUserID reassigns a session to a different user, used when a
// guest authenticates mid-conversation.
func (s *Store) UpdateUserID(ctx context.Context, sessionID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET user_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		userID, sessionID)
	if err != nil {
		return fmt.Errorf("reassign session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// SetCurrentTool records which compiled tool is driving the session.
func (s *Store) SetCurrentTool(ctx context.Context, sessionID, tool string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET current_tool = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		tool, sessionID)
	if err != nil {
		return fmt.Errorf("set current tool for %s: %w", sessionID, err)
	}
	return nil
}

// SaveMessage appends a message to a session's history. The message
// index is claimed atomically from the session row, so concurrent
// writers never collide and indexes stay gapless per session.
func (s *Store) SaveMessage(ctx context.Context, sessionID, userID string, role int, content string, msgType int) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		`UPDATE sessions SET message_seq = message_seq + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? RETURNING message_seq`, sessionID).Scan(&seq)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim message index: %w", err)
	}

	msg := &Message{
		SessionID:    sessionID,
		UserID:       userID,
		Role:         role,
		Content:      content,
		MessageType:  msgType,
		MessageIndex: seq - 1,
		CreatedAt:    time.Now().UTC(),
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO message_history (session_id, user_id, role, content, message_type, message_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.UserID, msg.Role, msg.Content, msg.MessageType, msg.MessageIndex, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	msg.ID, _ = res.LastInsertId()
	return msg, nil
}

// Messages returns a session's full history in index order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, message_type, message_index, created_at
		 FROM message_history WHERE session_id = ? ORDER BY message_index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", sessionID, err)
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.MessageType, &m.MessageIndex, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// HistoryEntry is a role/content pair ready to hand to a model.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationHistory assembles the model-facing history. When the
// session has been compacted, everything before the most recent compact
// marker is replaced by the marker's summary, presented as a system
// turn.
func (s *Store) ConversationHistory(ctx context.Context, sessionID string) ([]HistoryEntry, error) {
	msgs, err := s.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleCompact {
			start = i
			break
		}
	}
	out := make([]HistoryEntry, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		role := RoleName(m.Role)
		if m.Role == RoleCompact {
			role = "system"
		}
		out = append(out, HistoryEntry{Role: role, Content: m.Content})
	}
	return out, nil
}

// ListActiveAutomations returns every active automation across tenants.
func (s *Store) ListActiveAutomations(ctx context.Context) ([]*Automation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, kind, schedule, param, last_triggered, is_active, created_at
		 FROM automations WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()
	var out []*Automation
	for rows.Next() {
		a := &Automation{}
		var last sql.NullTime
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Kind, &a.Schedule, &a.Param, &last, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		if last.Valid {
			t := last.Time
			a.LastTriggered = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAutomation registers a scheduled script for a tenant.
func (s *Store) CreateAutomation(ctx context.Context, tenantID, kind, schedule, param string) (*Automation, error) {
	a := &Automation{
		TenantID:  tenantID,
		Kind:      kind,
		Schedule:  schedule,
		Param:     param,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO automations (tenant_id, kind, schedule, param, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		a.TenantID, a.Kind, a.Schedule, a.Param, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create automation: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return a, nil
}

// DeleteAutomations removes a tenant's automations of one kind bound to
// param. Used when a script is recompiled or pruned.
func (s *Store) DeleteAutomations(ctx context.Context, tenantID, kind, param string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM automations WHERE tenant_id = ? AND kind = ? AND param = ?`,
		tenantID, kind, param)
	if err != nil {
		return fmt.Errorf("delete automations for %s/%s: %w", tenantID, param, err)
	}
	return nil
}

// UpdateLastTriggered stamps an automation after a trigger attempt.
func (s *Store) UpdateLastTriggered(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE automations SET last_triggered = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update automation %d: %w", id, err)
	}
	return nil
}

// Tenants lists every tenant with at least one session.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats reports stored volume for the whole database.
func (s *Store) Stats(ctx context.Context) (Statistics, error) {
	var st Statistics
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM message_history),
			(SELECT COUNT(*) FROM users)`)
	if err := row.Scan(&st.TotalSessions, &st.TotalMessages, &st.TotalUsers); err != nil {
		return st, fmt.Errorf("session stats: %w", err)
	}
	return st, nil
}

// TotalCount returns the number of sessions for one tenant.
func (s *Store) TotalCount(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions for %s: %w", tenantID, err)
	}
	return n, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	sess := &Session{}
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TenantID, &sess.Title, &sess.ContextData,
		&sess.MessageSeq, &sess.CurrentTool, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func collectSessions(rows *sql.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		sess := &Session{}
		err := rows.Scan(&sess.ID, &sess.UserID, &sess.TenantID, &sess.Title, &sess.ContextData,
			&sess.MessageSeq, &sess.CurrentTool, &sess.CreatedAt, &sess.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
