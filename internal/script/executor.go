package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/botrt/botrt/internal/session"
)

// Suggestion is one quick-reply button offered alongside a message.
type Suggestion struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Scope carries the state of one script run: the session it belongs to,
// its variables, and the I/O hooks back into the runtime. Variables are
// mirrored into the session context cache when one is attached.
type Scope struct {
	TenantID  string
	SessionID string
	UserID    string

	Vars        map[string]string
	Outputs     []string
	Suggestions []Suggestion
	LastResult  string

	// Send delivers text to the user. Nil means outputs are only
	// collected on the scope.
	Send func(ctx context.Context, text string) error

	store  *session.Store
	cache  *session.ContextCache
	broker *session.InputBroker
}

// NewScope creates a scope bound to a session. Any of store, cache, and
// broker may be nil; the corresponding behavior is skipped.
func NewScope(tenantID, sessionID, userID string, store *session.Store, cache *session.ContextCache, broker *session.InputBroker) *Scope {
	return &Scope{
		TenantID:  tenantID,
		SessionID: sessionID,
		UserID:    userID,
		Vars:      make(map[string]string),
		store:     store,
		cache:     cache,
		broker:    broker,
	}
}

// Say delivers text to the user and appends it to durable history.
func (sc *Scope) Say(ctx context.Context, text string) error {
	sc.Outputs = append(sc.Outputs, text)
	if sc.store != nil {
		if _, err := sc.store.SaveMessage(ctx, sc.SessionID, sc.UserID, session.RoleAssistant, text, session.MessageTypeText); err != nil {
			return fmt.Errorf("record message: %w", err)
		}
	}
	if sc.Send != nil {
		return sc.Send(ctx, text)
	}
	return nil
}

// WaitInput blocks until the user replies or ctx expires.
func (sc *Scope) WaitInput(ctx context.Context) (string, error) {
	if sc.broker == nil {
		return "", fmt.Errorf("no input source attached")
	}
	return sc.broker.Wait(ctx, sc.SessionID)
}

// SetVar binds a variable locally and in the session context cache.
func (sc *Scope) SetVar(ctx context.Context, name, value string) {
	sc.Vars[name] = value
	sc.cache.SetValue(ctx, sc.UserID, sc.SessionID, name, value)
}

// Var reads a variable, falling back to the context cache for values
// set by earlier runs.
func (sc *Scope) Var(ctx context.Context, name string) string {
	if v, ok := sc.Vars[name]; ok {
		return v
	}
	return sc.cache.Value(ctx, sc.UserID, sc.SessionID, name)
}

// SetActive marks which variable the session is collecting.
func (sc *Scope) SetActive(ctx context.Context, name string) {
	sc.cache.SetActive(ctx, sc.UserID, sc.SessionID, name)
}

// Interpolate substitutes ${name} references with variable values.
// Unknown names are left intact.
func (sc *Scope) Interpolate(s string) string {
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return s
		}
		name := s[start+2 : start+end]
		v, ok := sc.Vars[name]
		if !ok {
			return s
		}
		s = s[:start] + v + s[start+end+1:]
	}
}

// Statement is one parsed line of a compiled script.
type Statement struct {
	Keyword Keyword
	Args    []string
	Raw     string
}

// Unit is a compiled, loadable script ready to run.
type Unit struct {
	Name       string
	Statements []Statement
}

// LoadUnit reads a compiled .ast file and parses it against the registry.
func LoadUnit(name, astPath string, reg *Registry, logger *slog.Logger) (*Unit, error) {
	data, err := os.ReadFile(astPath)
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}
	return ParseUnit(name, string(data), reg, logger), nil
}

// ParseUnit parses compiled source into a unit. Lines with no matching
// keyword are dropped with a warning, so one bad line never disables a
// whole script.
func ParseUnit(name, compiled string, reg *Registry, logger *slog.Logger) *Unit {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Unit{Name: name}
	for _, raw := range strings.Split(compiled, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		kw, rest, ok := reg.Lookup(line)
		if !ok {
			logger.Warn("unknown statement skipped", "script", name, "line", line)
			continue
		}
		u.Statements = append(u.Statements, Statement{
			Keyword: kw,
			Args:    splitArgs(rest),
			Raw:     line,
		})
	}
	return u
}

// Run executes the unit sequentially. The first failing statement stops
// the run; callers bound execution time through ctx.
func (u *Unit) Run(ctx context.Context, sc *Scope) error {
	for _, stmt := range u.Statements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stmt.Keyword.Invoke(ctx, sc, stmt.Args); err != nil {
			return fmt.Errorf("script %s: %s: %w", u.Name, stmt.Raw, err)
		}
	}
	return nil
}

// splitArgs tokenizes a statement's argument list. Double-quoted
// strings are single tokens; commas and the AS connective separate
// tokens but are not kept.
func splitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		tok := strings.TrimSpace(cur.String())
		cur.Reset()
		if tok == "" || tok == "AS" {
			return
		}
		args = append(args, tok)
	}
	for _, r := range s {
		switch {
		case r == '"':
			if inQuote {
				args = append(args, cur.String())
				cur.Reset()
			}
			inQuote = !inQuote
		case inQuote:
			cur.WriteRune(r)
		case r == ',' || r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return args
}
