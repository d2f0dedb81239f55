package session

import (
	"time"
)

// Message roles as stored in message_history.
const (
	RoleUser      = 1
	RoleAssistant = 2
	RoleSystem    = 3
	RoleCompact   = 9
)

// RoleName maps a stored role code to its wire name. Unknown codes map
// to "unknown" rather than failing history assembly.
func RoleName(role int) string {
	switch role {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleSystem:
		return "system"
	case RoleCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// User is an end user of a bot. Guests get a synthetic username.
type User struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one conversation between a user and a bot. ContextData is
// a JSON document snapshot of durable conversation state, empty "{}" on
// creation.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Title       string    `json:"title"`
	ContextData string    `json:"context_data"`
	MessageSeq  int       `json:"message_seq"`
	CurrentTool string    `json:"current_tool,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message content types.
const (
	MessageTypeText = 1
)

// Message is one turn in a session's history.
type Message struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Role         int       `json:"role"`
	Content      string    `json:"content"`
	MessageType  int       `json:"message_type"`
	MessageIndex int       `json:"message_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// Automation trigger kinds.
const (
	AutomationKindScheduled = "scheduled"
	AutomationKindWebhook   = "webhook"
)

// Automation is a scheduled script run owned by a tenant.
type Automation struct {
	ID            int64      `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Kind          string     `json:"kind"`
	Schedule      string     `json:"schedule"`
	Param         string     `json:"param"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Statistics summarizes stored conversation volume.
type Statistics struct {
	TotalSessions int `json:"total_sessions"`
	TotalMessages int `json:"total_messages"`
	TotalUsers    int `json:"total_users"`
}

const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	username TEXT NOT NULL,
	email TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(tenant_id, username)
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	title TEXT DEFAULT '',
	context_data TEXT NOT NULL DEFAULT '{}',
	message_seq INTEGER NOT NULL DEFAULT 0,
	current_tool TEXT DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id, updated_at);

CREATE TABLE IF NOT EXISTS message_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	role INTEGER NOT NULL,
	content TEXT NOT NULL,
	message_type INTEGER NOT NULL DEFAULT 1,
	message_index INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(session_id, message_index)
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON message_history(session_id, message_index);

CREATE TABLE IF NOT EXISTS automations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	schedule TEXT NOT NULL,
	param TEXT NOT NULL,
	last_triggered DATETIME,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_automations_active ON automations(is_active, tenant_id);

CREATE TABLE IF NOT EXISTS bot_config (
	tenant TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (tenant, key)
);
`
