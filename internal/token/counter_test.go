package token

import (
	"strings"
	"testing"
)

func TestCount_Empty(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestCount_ShortTextIsAtLeastOne(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	if got := c.Count("a"); got != 1 {
		t.Errorf("Count(\"a\") = %d, want 1", got)
	}
}

func TestCount_ScalesWithLength(t *testing.T) {
	c := NewCounter("gpt-4o-mini")

	text := strings.Repeat("word ", 100) // 500 chars
	got := c.Count(text)
	if got != 125 {
		t.Errorf("Count(500 chars) = %d, want 125 at 4 chars/token", got)
	}
}

func TestCount_Deterministic(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	text := "The quarterly pipeline review covers twelve enterprise deals."
	first := c.Count(text)
	for i := 0; i < 5; i++ {
		if got := c.Count(text); got != first {
			t.Fatalf("Count not deterministic: %d then %d", first, got)
		}
	}
}

func TestNewCounter_UnknownModelFallsBack(t *testing.T) {
	c := NewCounter("some-unknown-model")
	if c.Model() != "default" {
		t.Errorf("Model() = %q, want default", c.Model())
	}
	if c.Count("abcdefgh") != 2 {
		t.Errorf("default config should estimate 4 chars/token")
	}
}

func TestNewCounter_VersionedNameMatches(t *testing.T) {
	c := NewCounter("gpt-4o-mini-2024-07-18")
	if c.Model() != "gpt-4o-mini" {
		t.Errorf("Model() = %q, want gpt-4o-mini", c.Model())
	}
}

func TestCountAll(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	texts := []string{"abcd", "efgh", ""}
	if got := c.CountAll(texts); got != 2 {
		t.Errorf("CountAll = %d, want 2", got)
	}
}
