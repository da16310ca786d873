package store

import "encoding/json"

// Settings returns the current synced settings blob and its version
func (s *Store) Settings() (json.RawMessage, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, s.settingsVersion
}

// ApplySettings reconciles a server echo of the settings blob. Stale
// echoes (version not newer than what we already hold) are ignored so a
// racing optimistic mutation is not rolled back.
func (s *Store) ApplySettings(settings json.RawMessage, version int64) {
	s.mu.Lock()
	if version <= s.settingsVersion {
		s.mu.Unlock()
		return
	}
	s.settings = settings
	s.settingsVersion = version
	notify := s.collectSettingsNotificationsLocked()
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// MutateSettings applies fn to the settings blob optimistically and
// returns the new blob with its bumped version for the sync engine to
// push. The server echo then confirms via ApplySettings.
func (s *Store) MutateSettings(fn func(json.RawMessage) json.RawMessage) (json.RawMessage, int64) {
	s.mu.Lock()
	s.settings = fn(s.settings)
	s.settingsVersion++
	settings, version := s.settings, s.settingsVersion
	notify := s.collectSettingsNotificationsLocked()
	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	return settings, version
}
