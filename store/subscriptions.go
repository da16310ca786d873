package store

import (
	"encoding/json"

	"happy/domain"
)

// Unsubscribe removes a subscription when called. Safe to call more
// than once.
type Unsubscribe func()

type subscriber struct {
	// sessionID is empty for session-list and settings subscribers
	sessionID  string
	onSessions func([]*domain.Session)
	onMessages func([]*domain.Message)
	onSettings func(json.RawMessage, int64)
}

// SubscribeSessions registers fn to receive the session list snapshot
// whenever it actually changes. fn is called from the mutating
// goroutine; it must not block.
func (s *Store) SubscribeSessions(fn func([]*domain.Session)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(&subscriber{onSessions: fn})
}

// SubscribeMessages registers fn for one session's transcript slice
func (s *Store) SubscribeMessages(sessionID string, fn func([]*domain.Message)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(&subscriber{sessionID: sessionID, onMessages: fn})
}

// SubscribeSettings registers fn for synced settings changes
func (s *Store) SubscribeSettings(fn func(json.RawMessage, int64)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(&subscriber{onSettings: fn})
}

func (s *Store) addLocked(sub *subscriber) Unsubscribe {
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// collectSessionNotificationsLocked snapshots the session list and
// returns the pending subscriber calls. The calls are made after the
// store lock is released so a subscriber may re-enter the store.
func (s *Store) collectSessionNotificationsLocked() []func() {
	var notify []func()
	var snapshot []*domain.Session
	for _, sub := range s.subscribers {
		if sub.onSessions == nil {
			continue
		}
		if snapshot == nil {
			snapshot = s.sessionsSnapshotLocked()
		}
		fn := sub.onSessions
		notify = append(notify, func() { fn(snapshot) })
	}
	return notify
}

func (s *Store) collectMessageNotificationsLocked(sessionID string) []func() {
	var notify []func()
	var snapshot []*domain.Message
	for _, sub := range s.subscribers {
		if sub.onMessages == nil || sub.sessionID != sessionID {
			continue
		}
		if snapshot == nil {
			snapshot = s.messagesSnapshotLocked(sessionID)
		}
		fn := sub.onMessages
		notify = append(notify, func() { fn(snapshot) })
	}
	return notify
}

func (s *Store) collectSettingsNotificationsLocked() []func() {
	var notify []func()
	for _, sub := range s.subscribers {
		if sub.onSettings == nil {
			continue
		}
		fn := sub.onSettings
		settings := s.settings
		version := s.settingsVersion
		notify = append(notify, func() { fn(settings, version) })
	}
	return notify
}
