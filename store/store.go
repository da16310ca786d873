// Package store is the single source of truth for session and message
// state consumed by any view. All mutation goes through its methods; the
// per-session single-writer discipline is enforced upstream by the sync
// engine's InvalidateSync instances.
package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"happy/domain"
	"happy/logging"
	"happy/reducer"
)

// Store holds the local, eventually-consistent mirror of remote state
type Store struct {
	mu sync.Mutex

	sessions map[string]*domain.Session
	machines map[string]*domain.Machine

	// Per-session fold state and the committed newest-first transcript
	reducers map[string]*reducer.State
	messages map[string][]*domain.Message

	settings        json.RawMessage
	settingsVersion int64

	subscribers map[int]*subscriber
	nextSubID   int
}

// New creates an empty store
func New() *Store {
	return &Store{
		sessions:    make(map[string]*domain.Session),
		machines:    make(map[string]*domain.Machine),
		reducers:    make(map[string]*reducer.State),
		messages:    make(map[string][]*domain.Message),
		subscribers: make(map[int]*subscriber),
	}
}

// ApplySessions replaces the session set from a full server listing.
// Present sessions are merged field-by-field so local-only state (draft,
// thinking, loaded transcript) survives the refresh; absent sessions are
// pruned (tombstone-by-absence). Returns the ids that were removed.
func (s *Store) ApplySessions(remote []*domain.Session) []string {
	s.mu.Lock()

	seen := make(map[string]struct{}, len(remote))
	changed := false

	for _, incoming := range remote {
		seen[incoming.ID] = struct{}{}
		existing, ok := s.sessions[incoming.ID]
		if !ok {
			copied := *incoming
			s.sessions[incoming.ID] = &copied
			changed = true
			continue
		}
		if mergeSession(existing, incoming) {
			changed = true
		}
	}

	var removed []string
	for id := range s.sessions {
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		delete(s.sessions, id)
		delete(s.reducers, id)
		delete(s.messages, id)
		changed = true
	}

	var notify []func()
	if changed {
		notify = s.collectSessionNotificationsLocked()
		for _, id := range removed {
			notify = append(notify, s.collectMessageNotificationsLocked(id)...)
		}
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return removed
}

// mergeSession copies server-owned fields onto the existing session,
// leaving local-only fields untouched. Reports whether anything changed.
func mergeSession(existing, incoming *domain.Session) bool {
	changed := false
	if existing.Seq != incoming.Seq {
		existing.Seq = incoming.Seq
		changed = true
	}
	if existing.Active != incoming.Active {
		existing.Active = incoming.Active
		changed = true
	}
	if !existing.ActiveAt.Equal(incoming.ActiveAt) {
		existing.ActiveAt = incoming.ActiveAt
		changed = true
	}
	if !existing.UpdatedAt.Equal(incoming.UpdatedAt) {
		existing.UpdatedAt = incoming.UpdatedAt
		changed = true
	}
	if incoming.MetadataVersion > existing.MetadataVersion {
		existing.Metadata = incoming.Metadata
		existing.MetadataVersion = incoming.MetadataVersion
		changed = true
	}
	if incoming.AgentStateVersion > existing.AgentStateVersion {
		existing.AgentState = incoming.AgentState
		existing.AgentStateVersion = incoming.AgentStateVersion
		changed = true
	}
	return changed
}

// ApplyMessages folds new raw records into a session's transcript and
// commits the derived message list. reset discards the previous fold
// state first (full history re-fetch); thanks to id-idempotence this
// never duplicates already-seen messages. A fold for an unknown session
// id is dropped, and one session's bad payload can never affect another:
// each session has its own fold state.
func (s *Store) ApplyMessages(sessionID string, records []reducer.Record, reset bool) {
	s.mu.Lock()

	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		logging.Logger.Debug("Dropping messages for unknown session", "session_id", sessionID)
		return
	}

	state, ok := s.reducers[sessionID]
	if !ok || reset {
		state = reducer.New()
		s.reducers[sessionID] = state
	}

	changed := state.Fold(records)
	if !changed && session.IsLoaded && !reset {
		s.mu.Unlock()
		return
	}

	chronological := state.Messages()
	newestFirst := make([]*domain.Message, len(chronological))
	for i, msg := range chronological {
		newestFirst[len(chronological)-1-i] = msg
	}
	s.messages[sessionID] = newestFirst
	session.IsLoaded = true

	notify := s.collectMessageNotificationsLocked(sessionID)
	notify = append(notify, s.collectSessionNotificationsLocked()...)
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// UpdateDraft stores unsent composer text for a session. Local-only,
// independent of the server sync cycle.
func (s *Store) UpdateDraft(sessionID, text string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok || session.Draft == text {
		s.mu.Unlock()
		return
	}
	session.Draft = text
	notify := s.collectSessionNotificationsLocked()
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// SetThinking flags a session as having in-flight agent work
func (s *Store) SetThinking(sessionID string, thinking bool) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok || session.Thinking == thinking {
		s.mu.Unlock()
		return
	}
	session.Thinking = thinking
	session.ThinkingAt = time.Now()
	notify := s.collectSessionNotificationsLocked()
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// ResolvePermission optimistically removes a pending permission request
// after the user answered it. The next agent-state sync confirms; if the
// server still reports the request it reappears.
func (s *Store) ResolvePermission(sessionID, requestID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok || session.AgentState == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := session.AgentState.Requests[requestID]; !ok {
		s.mu.Unlock()
		return
	}
	// Copy-on-write so snapshots handed to subscribers stay stable
	state := *session.AgentState
	state.Requests = make(map[string]domain.PermissionRequest, len(session.AgentState.Requests))
	for id, req := range session.AgentState.Requests {
		if id != requestID {
			state.Requests[id] = req
		}
	}
	session.AgentState = &state
	notify := s.collectSessionNotificationsLocked()
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// ApplyMachines replaces the machine set from a full listing
func (s *Store) ApplyMachines(remote []*domain.Machine) {
	s.mu.Lock()
	s.machines = make(map[string]*domain.Machine, len(remote))
	for _, machine := range remote {
		copied := *machine
		s.machines[machine.ID] = &copied
	}
	s.mu.Unlock()
}

// Session returns a snapshot of one session, or nil
func (s *Store) Session(id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

// Sessions returns a snapshot of all sessions, newest-first
func (s *Store) Sessions() []*domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsSnapshotLocked()
}

func (s *Store) sessionsSnapshotLocked() []*domain.Session {
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Machines returns a snapshot of all machines
func (s *Store) Machines() []*domain.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Machine, 0, len(s.machines))
	for _, machine := range s.machines {
		copied := *machine
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Messages returns the committed newest-first transcript for a session
func (s *Store) Messages(sessionID string) []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesSnapshotLocked(sessionID)
}

func (s *Store) messagesSnapshotLocked(sessionID string) []*domain.Message {
	committed := s.messages[sessionID]
	out := make([]*domain.Message, len(committed))
	for i, msg := range committed {
		out[i] = msg.Clone()
	}
	return out
}

// SessionList derives the grouped session list view
func (s *Store) SessionList(opts domain.SessionListOptions) []domain.SessionListItem {
	return domain.BuildSessionList(s.Sessions(), opts)
}
