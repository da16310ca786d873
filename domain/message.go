package domain

import "encoding/json"

// MessageKind discriminates the Message union
type MessageKind string

const (
	KindUserText  MessageKind = "user-text"
	KindAgentText MessageKind = "agent-text"
	KindToolCall  MessageKind = "tool-call"
	// KindToolCallGroup exists for wire compatibility with older transcripts.
	// The reducer merges consecutive tool calls into a single tool-call
	// message instead of emitting group markers.
	KindToolCallGroup MessageKind = "tool-call-group"
	// KindEvent is the passthrough for server content we don't interpret.
	// The raw payload is preserved so nothing is silently discarded.
	KindEvent MessageKind = "event"
)

// Message is one entry in a session transcript
type Message struct {
	ID        string
	LocalID   string
	Kind      MessageKind
	CreatedAt int64 // ms since epoch, copied from the source event
	Text      string
	Tools     []*ToolCall
	Raw       json.RawMessage // populated for KindEvent
}

// Clone returns a deep copy safe to hand to subscribers
func (m *Message) Clone() *Message {
	out := *m
	if m.Tools != nil {
		out.Tools = make([]*ToolCall, len(m.Tools))
		for i, tool := range m.Tools {
			out.Tools[i] = tool.Clone()
		}
	}
	return &out
}

// ToolState is the lifecycle state of a tool call
type ToolState string

const (
	ToolRunning   ToolState = "running"
	ToolCompleted ToolState = "completed"
	ToolError     ToolState = "error"
)

// ToolCall is a structured invocation of a named capability by the agent.
// Tool calls may spawn nested child tool calls (e.g. a Task tool running
// sub-tools).
type ToolCall struct {
	ID          string
	Name        string
	State       ToolState
	Input       json.RawMessage
	Result      json.RawMessage
	CreatedAt   int64
	CompletedAt int64
	Children    []*ToolCall
}

// Complete transitions the tool call out of the running state.
// The transition is monotonic: a completed or errored tool call never
// changes state again.
func (t *ToolCall) Complete(result json.RawMessage, isError bool, at int64) bool {
	if t.State != ToolRunning {
		return false
	}
	if isError {
		t.State = ToolError
	} else {
		t.State = ToolCompleted
	}
	t.Result = result
	t.CompletedAt = at
	return true
}

// Clone returns a deep copy of the tool call and its children
func (t *ToolCall) Clone() *ToolCall {
	out := *t
	if t.Children != nil {
		out.Children = make([]*ToolCall, len(t.Children))
		for i, child := range t.Children {
			out.Children[i] = child.Clone()
		}
	}
	return &out
}
