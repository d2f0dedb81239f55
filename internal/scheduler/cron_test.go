package scheduler

import (
	"testing"
	"time"
)

func TestParseCronEveryMinute(t *testing.T) {
	c, err := ParseCron("* * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.Minute) != 60 || len(c.Hour) != 24 {
		t.Errorf("wildcard expansion wrong: %d minutes, %d hours", len(c.Minute), len(c.Hour))
	}
	if !c.Matches(time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)) {
		t.Error("every-minute expression should match any time")
	}
}

func TestParseCronFields(t *testing.T) {
	c, err := ParseCron("*/15 9-17 1,15 * 1-5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := []int{0, 15, 30, 45}; !equalInts(c.Minute, want) {
		t.Errorf("minutes = %v, want %v", c.Minute, want)
	}
	if len(c.Hour) != 9 || c.Hour[0] != 9 || c.Hour[8] != 17 {
		t.Errorf("hours = %v", c.Hour)
	}
	if !equalInts(c.DayOfMonth, []int{1, 15}) {
		t.Errorf("days = %v", c.DayOfMonth)
	}
}

func TestParseCronRejectsBadInput(t *testing.T) {
	for _, expr := range []string{
		"* * * *",        // 4 fields
		"61 * * * *",     // minute out of range
		"* 25 * * *",     // hour out of range
		"*/0 * * * *",    // zero step
		"10-5 * * * *",   // inverted range
		"x * * * *",      // garbage
	} {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) should fail", expr)
		}
	}
}

func TestCronNext(t *testing.T) {
	c, err := ParseCron("30 14 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	from := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	next := c.Next(from)
	want := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Already past today's slot: rolls to tomorrow.
	from = time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	next = c.Next(from)
	want = time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
