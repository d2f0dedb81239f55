package script

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Keyword is one dialog statement implementation.
type Keyword interface {
	// Name is the statement keyword, possibly multi-word.
	Name() string
	// MinArgs is the minimum argument count Invoke accepts.
	MinArgs() int
	// Invoke runs the statement against the scope.
	Invoke(ctx context.Context, sc *Scope, args []string) error
}

// Registry maps keyword names to implementations. Multi-word names are
// matched longest-first when parsing.
type Registry struct {
	keywords map[string]Keyword
	names    []string // sorted longest-first
}

// NewRegistry creates a registry preloaded with the builtin keywords.
func NewRegistry() *Registry {
	r := &Registry{keywords: make(map[string]Keyword)}
	for _, k := range builtins() {
		r.Register(k)
	}
	return r
}

// Register adds or replaces a keyword.
func (r *Registry) Register(k Keyword) {
	name := strings.ToUpper(k.Name())
	if _, exists := r.keywords[name]; !exists {
		r.names = append(r.names, name)
		sort.Slice(r.names, func(i, j int) bool { return len(r.names[i]) > len(r.names[j]) })
	}
	r.keywords[name] = k
}

// Lookup finds the keyword whose name prefixes line, returning it and
// the remainder of the line.
func (r *Registry) Lookup(line string) (Keyword, string, bool) {
	upper := strings.ToUpper(line)
	for _, name := range r.names {
		if upper == name {
			return r.keywords[name], "", true
		}
		if strings.HasPrefix(upper, name+" ") {
			return r.keywords[name], strings.TrimSpace(line[len(name):]), true
		}
	}
	return nil, "", false
}

type keywordFunc struct {
	name    string
	minArgs int
	fn      func(ctx context.Context, sc *Scope, args []string) error
}

func (k *keywordFunc) Name() string { return k.name }
func (k *keywordFunc) MinArgs() int { return k.minArgs }
func (k *keywordFunc) Invoke(ctx context.Context, sc *Scope, args []string) error {
	if len(args) < k.minArgs {
		return fmt.Errorf("%s: want at least %d args, got %d", k.name, k.minArgs, len(args))
	}
	return k.fn(ctx, sc, args)
}

func builtins() []Keyword {
	return []Keyword{
		&keywordFunc{name: "TALK", minArgs: 1, fn: execTalk},
		&keywordFunc{name: "HEAR", minArgs: 1, fn: execHear},
		&keywordFunc{name: "SET", minArgs: 2, fn: execSet},
		&keywordFunc{name: "GET", minArgs: 1, fn: execGet},
		&keywordFunc{name: "WAIT", minArgs: 1, fn: execWait},
		&keywordFunc{name: "ADD SUGGESTION", minArgs: 1, fn: execAddSuggestion},
	}
}

// execTalk sends text to the user and records it as an assistant turn.
func execTalk(ctx context.Context, sc *Scope, args []string) error {
	text := sc.Interpolate(strings.Join(args, " "))
	return sc.Say(ctx, text)
}

// execHear blocks until the user answers, binding the reply to the
// named variable.
func execHear(ctx context.Context, sc *Scope, args []string) error {
	name := args[0]
	sc.SetActive(ctx, name)
	input, err := sc.WaitInput(ctx)
	if err != nil {
		return fmt.Errorf("HEAR %s: %w", name, err)
	}
	sc.SetVar(ctx, name, input)
	return nil
}

// execSet binds a variable.
func execSet(ctx context.Context, sc *Scope, args []string) error {
	sc.SetVar(ctx, args[0], sc.Interpolate(strings.Join(args[1:], " ")))
	return nil
}

// execGet loads a variable into the scope result slot.
func execGet(ctx context.Context, sc *Scope, args []string) error {
	sc.LastResult = sc.Var(ctx, args[0])
	return nil
}

// execWait pauses the script for a number of seconds.
func execWait(ctx context.Context, sc *Scope, args []string) error {
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("WAIT: bad duration %q", args[0])
	}
	select {
	case <-time.After(time.Duration(secs * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execAddSuggestion queues a quick-reply button. The optional AS clause
// sets the label; args arrive as [text, label] after AS stripping.
func execAddSuggestion(ctx context.Context, sc *Scope, args []string) error {
	s := Suggestion{Text: args[0], Label: args[0]}
	if len(args) > 1 {
		s.Label = args[1]
	}
	sc.Suggestions = append(sc.Suggestions, s)
	return nil
}
