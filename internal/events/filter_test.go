package events

import (
	"testing"

	"github.com/helmcode/crew-bus/internal/protocol"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		match   bool
	}{
		{"*", "message_sent", true},
		{"message_sent", "message_sent", true},
		{"message_sent", "message_read", false},
		{"message_*", "message_read", true},
		{"*_ended", "private_session_ended", true},
		{"private_*_ended", "private_session_ended", true},
		{"private_*_ended", "private_session_started", false},
		{"agent_*", "team_mailbox_message", false},
		{"*a*a*a*a*b", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaac", false},
		{"", "", true},
		{"", "x", false},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.value); got != tt.match {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.match)
		}
	}
}

func TestParseFilter(t *testing.T) {
	if f := ParseFilter(" , "); f != nil {
		t.Errorf("blank spec should give nil filter, got %v", f)
	}
	if !Filter(nil).Match(protocol.EventMessageSent) {
		t.Error("nil filter should match everything")
	}

	f := ParseFilter("agent_*, private_session_ended")
	if len(f) != 2 {
		t.Fatalf("expected 2 patterns, got %v", f)
	}
	if !f.Match(protocol.EventAgentQuarantined) || !f.Match(protocol.EventSessionEnded) {
		t.Error("expected agent and session-ended events to match")
	}
	if f.Match(protocol.EventMessageSent) {
		t.Error("message_sent should not match")
	}
}
