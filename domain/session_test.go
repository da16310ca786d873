package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresence(t *testing.T) {
	now := time.Now()

	online := &Session{Active: true, ActiveAt: now.Add(-30 * time.Second)}
	assert.Equal(t, PresenceOnline, online.Presence(now))

	stale := &Session{Active: true, ActiveAt: now.Add(-2 * time.Minute)}
	assert.Equal(t, PresenceOffline, stale.Presence(now))

	inactive := &Session{Active: false, ActiveAt: now}
	assert.Equal(t, PresenceOffline, inactive.Presence(now))
}

func TestDisplayName(t *testing.T) {
	s := &Session{ID: "sess-1"}
	assert.Equal(t, "sess-1", s.DisplayName())

	s.Metadata = &SessionMetadata{Name: "refactor"}
	assert.Equal(t, "refactor", s.DisplayName())

	s.Metadata.Summary = "Refactoring the parser"
	assert.Equal(t, "Refactoring the parser", s.DisplayName())
}

func TestPendingRequestsOrdered(t *testing.T) {
	s := &Session{AgentState: &AgentState{Requests: map[string]PermissionRequest{
		"req-b": {Tool: ToolBash, CreatedAt: 2000},
		"req-a": {Tool: ToolEdit, CreatedAt: 1000},
		"req-c": {Tool: ToolWrite, CreatedAt: 2000},
	}}}

	requests := s.PendingRequests()
	assert.Equal(t, []string{"req-a", "req-b", "req-c"},
		[]string{requests[0].ID, requests[1].ID, requests[2].ID})

	assert.Nil(t, (&Session{}).PendingRequests())
}
