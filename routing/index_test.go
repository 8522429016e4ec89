// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package routing

import "testing"

func TestPrefixMatchBoundary(t *testing.T) {
	x := NewIndex[string]()
	x.Register("a/b", "sub1")

	matches := x.PrefixMatches("a/b/c")
	if len(matches) != 1 || matches[0] != "sub1" {
		t.Fatalf("expected sub1 to match a/b/c, got %v", matches)
	}

	matches = x.PrefixMatches("a/bc")
	if len(matches) != 0 {
		t.Fatalf("expected no match for a/bc, got %v", matches)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	x := NewIndex[string]()
	x.Register("t", "sub1")
	x.Register("t", "sub1")

	matches := x.PrefixMatches("t")
	if len(matches) != 1 {
		t.Fatalf("expected one registration to survive re-registering, got %v", matches)
	}
}

func TestEraseRemovesFromAllTopics(t *testing.T) {
	x := NewIndex[string]()
	x.Register("a", "sub1")
	x.Register("b", "sub1")

	removed := x.Erase("sub1")
	if len(removed) != 2 {
		t.Fatalf("expected 2 topics removed, got %v", removed)
	}
	if x.HaveSubscriberFor("a") || x.HaveSubscriberFor("b") {
		t.Fatal("expected no subscribers left after erase")
	}
}

func TestUnregisterThenMatchEmpty(t *testing.T) {
	x := NewIndex[string]()
	x.Register("a/b", "sub1")
	x.Unregister("a/b", "sub1")

	if x.HaveSubscriberFor("a/b") {
		t.Fatal("expected no subscriber after unregister")
	}
}
