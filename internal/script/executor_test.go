package script

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/botrt/botrt/internal/kv"
	"github.com/botrt/botrt/internal/session"
)

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`"hello world"`, []string{"hello world"}},
		{`name, "two words", 42`, []string{"name", "two words", "42"}},
		{`"inside" AS "Inside seating"`, []string{"inside", "Inside seating"}},
		{`plain`, []string{"plain"}},
		{``, nil},
	}
	for _, c := range cases {
		if got := splitArgs(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitArgs(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestParseUnitSkipsUnknownStatements(t *testing.T) {
	reg := NewRegistry()
	u := ParseUnit("x", "TALK \"hi\"\nFROBNICATE everything\nSET a 1\n", reg, nil)
	if len(u.Statements) != 2 {
		t.Fatalf("statements = %d, want 2", len(u.Statements))
	}
}

func TestRunTalkAndSet(t *testing.T) {
	reg := NewRegistry()
	u := ParseUnit("greet", "SET name \"Alice\"\nTALK \"Hello ${name}\"\n", reg, nil)

	sc := NewScope("acme", "s1", "alice", nil, nil, nil)
	if err := u.Run(context.Background(), sc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sc.Outputs) != 1 || sc.Outputs[0] != "Hello Alice" {
		t.Errorf("outputs = %v", sc.Outputs)
	}
}

func TestRunHearBindsInput(t *testing.T) {
	reg := NewRegistry()
	broker := session.NewInputBroker()
	cache := session.NewContextCache(kv.NewMemoryStore(), 0, nil)
	sc := NewScope("acme", "s1", "alice", nil, cache, broker)
	u := ParseUnit("ask", "TALK \"What city?\"\nHEAR city\nTALK \"Flying to ${city}\"\n", reg, nil)

	go func() {
		for !broker.Waiting("s1") {
			time.Sleep(time.Millisecond)
		}
		broker.Provide("s1", "Lisbon")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.Run(ctx, sc); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sc.Outputs[1] != "Flying to Lisbon" {
		t.Errorf("outputs = %v", sc.Outputs)
	}
	// The reply is mirrored into the session context.
	if got := cache.Value(ctx, "alice", "s1", "city"); got != "Lisbon" {
		t.Errorf("context value = %q", got)
	}
}

func TestRunHonorsTimeout(t *testing.T) {
	reg := NewRegistry()
	broker := session.NewInputBroker()
	sc := NewScope("acme", "s1", "alice", nil, nil, broker)
	u := ParseUnit("stuck", "HEAR never\n", reg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := u.Run(ctx, sc); err == nil {
		t.Error("expected timeout error")
	}
}

func TestRunAddSuggestion(t *testing.T) {
	reg := NewRegistry()
	sc := NewScope("acme", "s1", "alice", nil, nil, nil)
	u := ParseUnit("s", "ADD SUGGESTION \"inside\" AS \"Inside seating\"\n", reg, nil)
	if err := u.Run(context.Background(), sc); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := Suggestion{Text: "inside", Label: "Inside seating"}
	if len(sc.Suggestions) != 1 || sc.Suggestions[0] != want {
		t.Errorf("suggestions = %+v", sc.Suggestions)
	}
}

func TestScopeSayPersistsMessage(t *testing.T) {
	store, err := session.NewStore(t.TempDir() + "/exec.db")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	sess, err := store.GetOrCreateUserSession(ctx, "acme", "alice")
	if err != nil {
		t.Fatal(err)
	}
	sc := NewScope("acme", sess.ID, "alice", store, nil, nil)
	if err := sc.Say(ctx, "hello there"); err != nil {
		t.Fatalf("say: %v", err)
	}

	msgs, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Role != session.RoleAssistant || msgs[0].Content != "hello there" {
		t.Errorf("messages = %+v", msgs)
	}
}
