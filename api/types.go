package api

import "encoding/json"

// Session is the server's view of a session. Metadata and AgentState are
// base64 encrypted envelopes, opaque to the server.
type Session struct {
	ID                string `json:"id"`
	Seq               int64  `json:"seq"`
	Active            bool   `json:"active"`
	ActiveAt          int64  `json:"activeAt"`
	Metadata          string `json:"metadata,omitempty"`
	MetadataVersion   int64  `json:"metadataVersion"`
	AgentState        string `json:"agentState,omitempty"`
	AgentStateVersion int64  `json:"agentStateVersion"`
	CreatedAt         int64  `json:"createdAt"`
	UpdatedAt         int64  `json:"updatedAt"`
}

// Machine is the server's view of a machine running the daemon
type Machine struct {
	ID        string `json:"id"`
	Active    bool   `json:"active"`
	ActiveAt  int64  `json:"activeAt"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// MessageItem is one item of a session's message log. Body is either an
// encrypted envelope (base64) or plain JSON, distinguished client-side.
type MessageItem struct {
	ID        string          `json:"id"`
	Cursor    string          `json:"cursor"`
	LocalID   string          `json:"localId,omitempty"`
	Body      json.RawMessage `json:"body"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

// MessagesPage is one page of a cursor-paginated message listing
type MessagesPage struct {
	Items   []MessageItem `json:"items"`
	HasMore bool          `json:"hasMore"`
}

// FeedItem is one item of the account activity feed
type FeedItem struct {
	ID        string          `json:"id"`
	Cursor    string          `json:"cursor"`
	Body      json.RawMessage `json:"body"`
	CreatedAt int64           `json:"createdAt"`
}

// FeedPage is one page of the cursor-paginated feed
type FeedPage struct {
	Items   []FeedItem `json:"items"`
	HasMore bool       `json:"hasMore"`
}

// UsageQuery selects usage records to aggregate
type UsageQuery struct {
	SessionID string `json:"sessionId,omitempty"`
	GroupBy   string `json:"groupBy,omitempty"`
	Since     int64  `json:"since,omitempty"`
	Until     int64  `json:"until,omitempty"`
}

// UsageReport is the aggregated usage response
type UsageReport struct {
	Tokens map[string]int64 `json:"tokens"`
	Cost   map[string]int64 `json:"cost"`
}

// AccountSettings is the opaque synced settings blob with its version
// counter for optimistic concurrency
type AccountSettings struct {
	Settings json.RawMessage `json:"settings"`
	Version  int64           `json:"version"`
}

// SendMessageRequest posts a new encrypted message to a session
type SendMessageRequest struct {
	LocalID string `json:"localId,omitempty"`
	Body    string `json:"body"`
}

// PermissionDecision answers a pending permission request
type PermissionDecision struct {
	Approved bool `json:"approved"`
}

// PushTokenRequest registers a push token for this client
type PushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// PairingApproval carries a box-encrypted response to a terminal or
// account pairing request
type PairingApproval struct {
	PublicKey string `json:"publicKey"`
	Response  string `json:"response"`
}
