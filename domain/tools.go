package domain

import "encoding/json"

// Known tool names reported by the agent
const (
	ToolBash      = "Bash"
	ToolEdit      = "Edit"
	ToolGlob      = "Glob"
	ToolGrep      = "Grep"
	ToolRead      = "Read"
	ToolTask      = "Task"
	ToolWebFetch  = "WebFetch"
	ToolWebSearch = "WebSearch"
	ToolWrite     = "Write"
)

// BashInput is the typed payload for Bash tool calls
type BashInput struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Timeout     int64  `json:"timeout,omitempty"`
}

// EditInput is the typed payload for Edit tool calls
type EditInput struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// ReadInput is the typed payload for Read tool calls
type ReadInput struct {
	FilePath string `json:"file_path"`
	Offset   int64  `json:"offset,omitempty"`
	Limit    int64  `json:"limit,omitempty"`
}

// WriteInput is the typed payload for Write tool calls
type WriteInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// TaskInput is the typed payload for Task (sub-agent) tool calls
type TaskInput struct {
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
}

// SearchInput is the typed payload for Glob and Grep tool calls
type SearchInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// ToolInput is the decoded tool argument payload. Exactly one typed field
// is set for known tools; Unknown carries the raw JSON otherwise, so an
// unrecognized tool never loses its payload.
type ToolInput struct {
	Bash    *BashInput
	Edit    *EditInput
	Read    *ReadInput
	Search  *SearchInput
	Task    *TaskInput
	Write   *WriteInput
	Unknown json.RawMessage
}

// ParseToolInput decodes a tool's arguments based on its name.
// Payloads that fail to decode degrade to Unknown rather than erroring:
// the shape of tool arguments is controlled by the agent, not by us.
func ParseToolInput(name string, raw json.RawMessage) ToolInput {
	switch name {
	case ToolBash:
		var input BashInput
		if json.Unmarshal(raw, &input) == nil {
			return ToolInput{Bash: &input}
		}
	case ToolEdit:
		var input EditInput
		if json.Unmarshal(raw, &input) == nil {
			return ToolInput{Edit: &input}
		}
	case ToolRead:
		var input ReadInput
		if json.Unmarshal(raw, &input) == nil {
			return ToolInput{Read: &input}
		}
	case ToolWrite:
		var input WriteInput
		if json.Unmarshal(raw, &input) == nil {
			return ToolInput{Write: &input}
		}
	case ToolTask:
		var input TaskInput
		if json.Unmarshal(raw, &input) == nil {
			return ToolInput{Task: &input}
		}
	case ToolGlob, ToolGrep:
		var input SearchInput
		if json.Unmarshal(raw, &input) == nil {
			return ToolInput{Search: &input}
		}
	}
	return ToolInput{Unknown: raw}
}
