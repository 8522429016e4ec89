// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package store

import (
	"path/filepath"
	"testing"
)

func TestFileSinkRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kvsink")
	s, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %s", err)
	}
	if err := s.Apply("kv", SinkEvent{Op: "add", Key: "a", Value: []byte("1")}); err != nil {
		t.Fatalf("apply add: %s", err)
	}
	if err := s.Apply("kv", SinkEvent{Op: "put", Key: "a", Value: []byte("2")}); err != nil {
		t.Fatalf("apply put: %s", err)
	}

	s2, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	if got := string(s2.data["a"]); got != "2" {
		t.Fatalf("expected reloaded value '2', got %q", got)
	}

	if err := s2.Apply("kv", SinkEvent{Op: "erase", Key: "a"}); err != nil {
		t.Fatalf("apply erase: %s", err)
	}
	if _, ok := s2.data["a"]; ok {
		t.Fatalf("expected key removed after erase")
	}
}

func TestNewSinkNone(t *testing.T) {
	s, err := NewSink("", nil)
	if err != nil || s != nil {
		t.Fatalf("expected nil sink for empty kind, got %v, %v", s, err)
	}
}

func TestNewSinkFileMissingPath(t *testing.T) {
	if _, err := NewSink("file", map[string]string{}); err != ErrSinkInvalidSpec {
		t.Fatalf("expected invalid spec error, got %v", err)
	}
}
