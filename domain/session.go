package domain

import (
	"sort"
	"time"
)

// Presence represents the derived online/offline status of a session
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// presenceWindow is how long after the last heartbeat a session still counts as online
const presenceWindow = 60 * time.Second

// SessionMetadata is the end-to-end encrypted per-session metadata.
// It is stored encrypted on the server and only readable client-side.
type SessionMetadata struct {
	Host      string `json:"host,omitempty"`
	MachineID string `json:"machineId,omitempty"`
	Name      string `json:"name,omitempty"`
	Path      string `json:"path,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Version   string `json:"version,omitempty"`
}

// PermissionRequest is a pending tool permission request from the agent
type PermissionRequest struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CreatedAt int64          `json:"createdAt"`
}

// AgentState is the end-to-end encrypted live state reported by the agent
type AgentState struct {
	ControlledByUser bool                         `json:"controlledByUser"`
	Requests         map[string]PermissionRequest `json:"requests,omitempty"`
}

// Session represents a remote coding-agent session mirrored locally
type Session struct {
	ID                string
	Seq               int64
	Active            bool
	ActiveAt          time.Time
	AgentState        *AgentState
	AgentStateVersion int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Metadata          *SessionMetadata
	MetadataVersion   int64

	// Local-only fields, never synced to the server
	Draft      string
	IsLoaded   bool
	Thinking   bool
	ThinkingAt time.Time
}

// Presence derives the online/offline status from liveness data
func (s *Session) Presence(now time.Time) Presence {
	if s.Active && now.Sub(s.ActiveAt) < presenceWindow {
		return PresenceOnline
	}
	return PresenceOffline
}

// ProjectPath returns the session's project path, or empty if metadata
// has not been decrypted yet
func (s *Session) ProjectPath() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.Path
}

// DisplayName returns the best human-readable name for the session
func (s *Session) DisplayName() string {
	if s.Metadata == nil {
		return s.ID
	}
	if s.Metadata.Summary != "" {
		return s.Metadata.Summary
	}
	if s.Metadata.Name != "" {
		return s.Metadata.Name
	}
	return s.ID
}

// PendingRequests returns the pending permission requests in a stable order
func (s *Session) PendingRequests() []PermissionRequest {
	if s.AgentState == nil || len(s.AgentState.Requests) == 0 {
		return nil
	}
	requests := make([]PermissionRequest, 0, len(s.AgentState.Requests))
	for id, req := range s.AgentState.Requests {
		if req.ID == "" {
			req.ID = id
		}
		requests = append(requests, req)
	}
	// Oldest first so the UI answers them in arrival order
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt != requests[j].CreatedAt {
			return requests[i].CreatedAt < requests[j].CreatedAt
		}
		return requests[i].ID < requests[j].ID
	})
	return requests
}

// Machine represents a machine running the agent daemon
type Machine struct {
	ID        string
	Active    bool
	ActiveAt  time.Time
	Metadata  *MachineMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MachineMetadata is the end-to-end encrypted machine metadata
type MachineMetadata struct {
	Host     string `json:"host,omitempty"`
	HomeDir  string `json:"homeDir,omitempty"`
	Platform string `json:"platform,omitempty"`
	Username string `json:"username,omitempty"`
}
