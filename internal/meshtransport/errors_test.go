package meshtransport

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsComparesKindOnly(t *testing.T) {
	a := New(InvalidFragment, "fragment.Decode", nil)
	b := New(InvalidFragment, "arena.Accept", fmt.Errorf("wrapped"))
	if !errors.Is(a, b) {
		t.Fatalf("expected errors with the same Kind to match via errors.Is")
	}
	c := New(CRC32Mismatch, "fragment.Decode", nil)
	if errors.Is(a, c) {
		t.Fatalf("expected errors with different Kinds not to match")
	}
}

func TestKindOfUnwrapsWrappedCauses(t *testing.T) {
	base := New(NoRoute, "router.DiscoverRoute", nil)
	wrapped := fmt.Errorf("pump failed: %w", base)
	kind, ok := KindOf(wrapped)
	if !ok || kind != NoRoute {
		t.Fatalf("expected KindOf to find NoRoute through fmt.Errorf wrapping, got %v, %v", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("expected KindOf to report false for a non-taxonomy error")
	}
}

func TestErrorStringIncludesOpKindAndCause(t *testing.T) {
	err := New(SessionExpired, "arena.SweepExpired", errors.New("deadline passed"))
	got := err.Error()
	want := "arena.SweepExpired: SessionExpired: deadline passed"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
