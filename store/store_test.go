package store

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"happy/domain"
	"happy/reducer"
)

func remoteSession(id string, updated time.Time) *domain.Session {
	return &domain.Session{
		ID:              id,
		UpdatedAt:       updated,
		Metadata:        &domain.SessionMetadata{Path: "/proj"},
		MetadataVersion: 1,
	}
}

func textRecord(id string, seq int64, text string) reducer.Record {
	content := fmt.Sprintf(`{"role":"user","content":{"type":"text","text":%q}}`, text)
	return reducer.Record{ID: id, Seq: seq, CreatedAt: seq * 1000, Content: json.RawMessage(content)}
}

func TestApplySessionsAddAndMerge(t *testing.T) {
	s := New()
	now := time.Now()

	removed := s.ApplySessions([]*domain.Session{remoteSession("s1", now)})
	assert.Empty(t, removed)
	require.NotNil(t, s.Session("s1"))

	// A later listing with newer metadata merges in place
	updated := remoteSession("s1", now.Add(time.Minute))
	updated.Metadata = &domain.SessionMetadata{Path: "/proj", Summary: "renamed"}
	updated.MetadataVersion = 2
	s.ApplySessions([]*domain.Session{updated})

	session := s.Session("s1")
	assert.Equal(t, "renamed", session.Metadata.Summary)
	assert.Equal(t, int64(2), session.MetadataVersion)
}

func TestApplySessionsPreservesLocalFields(t *testing.T) {
	s := New()
	now := time.Now()
	s.ApplySessions([]*domain.Session{remoteSession("s1", now)})

	s.UpdateDraft("s1", "half-typed message")
	s.SetThinking("s1", true)

	// A refresh with identical server state must not clobber local state
	s.ApplySessions([]*domain.Session{remoteSession("s1", now)})

	session := s.Session("s1")
	assert.Equal(t, "half-typed message", session.Draft)
	assert.True(t, session.Thinking)
}

func TestApplySessionsStaleMetadataIgnored(t *testing.T) {
	s := New()
	now := time.Now()

	current := remoteSession("s1", now)
	current.MetadataVersion = 5
	current.Metadata = &domain.SessionMetadata{Path: "/proj", Summary: "current"}
	s.ApplySessions([]*domain.Session{current})

	stale := remoteSession("s1", now)
	stale.MetadataVersion = 3
	stale.Metadata = &domain.SessionMetadata{Path: "/proj", Summary: "old"}
	s.ApplySessions([]*domain.Session{stale})

	assert.Equal(t, "current", s.Session("s1").Metadata.Summary)
}

func TestApplySessionsPrunesAbsent(t *testing.T) {
	s := New()
	now := time.Now()
	s.ApplySessions([]*domain.Session{remoteSession("s1", now), remoteSession("s2", now)})
	s.ApplyMessages("s2", []reducer.Record{textRecord("r1", 1, "hi")}, false)

	removed := s.ApplySessions([]*domain.Session{remoteSession("s1", now)})
	assert.Equal(t, []string{"s2"}, removed)
	assert.Nil(t, s.Session("s2"))
	assert.Empty(t, s.Messages("s2"))
}

func TestApplyMessagesCommitsNewestFirst(t *testing.T) {
	s := New()
	s.ApplySessions([]*domain.Session{remoteSession("s1", time.Now())})

	s.ApplyMessages("s1", []reducer.Record{
		textRecord("r1", 1, "first"),
		textRecord("r2", 2, "second"),
	}, false)

	messages := s.Messages("s1")
	require.Len(t, messages, 2)
	assert.Equal(t, "second", messages[0].Text)
	assert.Equal(t, "first", messages[1].Text)
	assert.True(t, s.Session("s1").IsLoaded)
}

func TestApplyMessagesUnknownSessionDropped(t *testing.T) {
	s := New()
	s.ApplyMessages("ghost", []reducer.Record{textRecord("r1", 1, "hi")}, false)
	assert.Empty(t, s.Messages("ghost"))
}

func TestApplyMessagesReset(t *testing.T) {
	s := New()
	s.ApplySessions([]*domain.Session{remoteSession("s1", time.Now())})
	s.ApplyMessages("s1", []reducer.Record{textRecord("r1", 1, "hi")}, false)

	// A full re-fetch with reset starts from a clean fold
	s.ApplyMessages("s1", []reducer.Record{textRecord("r2", 2, "only this")}, true)

	messages := s.Messages("s1")
	require.Len(t, messages, 1)
	assert.Equal(t, "only this", messages[0].Text)
}

func TestApplyMessagesPerSessionIsolation(t *testing.T) {
	s := New()
	now := time.Now()
	s.ApplySessions([]*domain.Session{remoteSession("s1", now), remoteSession("s2", now)})

	s.ApplyMessages("s1", []reducer.Record{textRecord("r1", 1, "for s1")}, false)
	s.ApplyMessages("s2", []reducer.Record{
		{ID: "r1", Seq: 1, CreatedAt: 1000, Content: json.RawMessage(`{"garbage`)},
	}, false)

	// s2's malformed payload lands as a passthrough and never touches s1
	assert.Len(t, s.Messages("s1"), 1)
	messages := s.Messages("s2")
	require.Len(t, messages, 1)
	assert.Equal(t, domain.KindEvent, messages[0].Kind)
}

func TestResolvePermission(t *testing.T) {
	s := New()
	session := remoteSession("s1", time.Now())
	session.AgentStateVersion = 1
	session.AgentState = &domain.AgentState{Requests: map[string]domain.PermissionRequest{
		"req-1": {ID: "req-1", Tool: domain.ToolBash},
		"req-2": {ID: "req-2", Tool: domain.ToolEdit},
	}}
	s.ApplySessions([]*domain.Session{session})

	before := s.Session("s1")
	s.ResolvePermission("s1", "req-1")

	after := s.Session("s1")
	assert.Len(t, after.AgentState.Requests, 1)
	assert.Contains(t, after.AgentState.Requests, "req-2")

	// Earlier snapshots are not mutated
	assert.Len(t, before.AgentState.Requests, 2)
}

func TestSubscribeSessionsNotifiesOnChange(t *testing.T) {
	s := New()
	calls := 0
	unsubscribe := s.SubscribeSessions(func(sessions []*domain.Session) {
		calls++
	})

	now := time.Now()
	s.ApplySessions([]*domain.Session{remoteSession("s1", now)})
	require.Equal(t, 1, calls)

	// Identical listing changes nothing, so no notification
	s.ApplySessions([]*domain.Session{remoteSession("s1", now)})
	assert.Equal(t, 1, calls)

	unsubscribe()
	s.ApplySessions([]*domain.Session{remoteSession("s1", now.Add(time.Minute))})
	assert.Equal(t, 1, calls)
}

func TestSubscribeMessagesScopedToSession(t *testing.T) {
	s := New()
	now := time.Now()
	s.ApplySessions([]*domain.Session{remoteSession("s1", now), remoteSession("s2", now)})

	var got []*domain.Message
	unsubscribe := s.SubscribeMessages("s1", func(messages []*domain.Message) {
		got = messages
	})
	defer unsubscribe()

	s.ApplyMessages("s2", []reducer.Record{textRecord("r1", 1, "other session")}, false)
	assert.Nil(t, got)

	s.ApplyMessages("s1", []reducer.Record{textRecord("r2", 2, "mine")}, false)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Text)
}

func TestSettingsVersionGate(t *testing.T) {
	s := New()

	s.ApplySettings(json.RawMessage(`{"theme":"dark"}`), 3)
	settings, version := s.Settings()
	assert.Equal(t, int64(3), version)
	assert.JSONEq(t, `{"theme":"dark"}`, string(settings))

	// Stale echo is ignored
	s.ApplySettings(json.RawMessage(`{"theme":"light"}`), 2)
	settings, version = s.Settings()
	assert.Equal(t, int64(3), version)
	assert.JSONEq(t, `{"theme":"dark"}`, string(settings))
}

func TestMutateSettingsBumpsVersion(t *testing.T) {
	s := New()
	s.ApplySettings(json.RawMessage(`{}`), 1)

	var notifiedVersion int64
	unsubscribe := s.SubscribeSettings(func(settings json.RawMessage, version int64) {
		notifiedVersion = version
	})
	defer unsubscribe()

	blob, version := s.MutateSettings(func(json.RawMessage) json.RawMessage {
		return json.RawMessage(`{"theme":"dark"}`)
	})
	assert.Equal(t, int64(2), version)
	assert.JSONEq(t, `{"theme":"dark"}`, string(blob))
	assert.Equal(t, int64(2), notifiedVersion)

	// The server echoing our own version back does not roll anything over
	s.ApplySettings(json.RawMessage(`{"theme":"dark"}`), 2)
	_, version = s.Settings()
	assert.Equal(t, int64(2), version)
}

func TestSessionListView(t *testing.T) {
	s := New()
	now := time.Now()
	active := remoteSession("s1", now)
	active.Active = true
	active.ActiveAt = now
	s.ApplySessions([]*domain.Session{active, remoteSession("s2", now.Add(-time.Hour))})

	items := s.SessionList(domain.SessionListOptions{Now: now})
	require.NotEmpty(t, items)
	assert.Equal(t, domain.ItemHeader, items[0].Kind)
	assert.Equal(t, domain.ActiveBucketTitle, items[0].Title)
}
