package reducer

import "encoding/json"

// Record is one decrypted chronological entry from a session's event log.
// Content is the decrypted body; its shape varies by producer and is
// classified during the fold.
type Record struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	LocalID   string          `json:"localId,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	Content   json.RawMessage `json:"content"`
}

// recordBody is the outer shape of a decrypted record
type recordBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Record roles
const (
	roleUser  = "user"
	roleAgent = "agent"
)

// userContent is the body of a role=user record
type userContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// agentEvent is the body of a role=agent record: a single event from the
// agent's output stream
type agentEvent struct {
	Type            string        `json:"type"`
	Message         *agentMessage `json:"message,omitempty"`
	ParentToolUseID string        `json:"parent_tool_use_id,omitempty"`
}

// Agent event types
const (
	eventAssistant = "assistant"
	eventUser      = "user"
)

// agentMessage carries the content blocks of an assistant or user event
type agentMessage struct {
	Content []contentBlock `json:"content"`
}

// contentBlock is one block inside an agent message. Exactly which
// fields are set depends on Type.
type contentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Block types
const (
	blockText       = "text"
	blockToolUse    = "tool_use"
	blockToolResult = "tool_result"
)
