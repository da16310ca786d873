package reducer

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"happy/domain"
)

func userRecord(id string, seq int64, text string) Record {
	content := fmt.Sprintf(`{"role":"user","content":{"type":"text","text":%q}}`, text)
	return Record{ID: id, Seq: seq, CreatedAt: seq * 1000, Content: json.RawMessage(content)}
}

func assistantRecord(id string, seq int64, blocks string, parentToolUseID string) Record {
	parent := ""
	if parentToolUseID != "" {
		parent = fmt.Sprintf(`,"parent_tool_use_id":%q`, parentToolUseID)
	}
	content := fmt.Sprintf(`{"role":"agent","content":{"type":"assistant","message":{"content":[%s]}%s}}`, blocks, parent)
	return Record{ID: id, Seq: seq, CreatedAt: seq * 1000, Content: json.RawMessage(content)}
}

func textRecord(id string, seq int64, text string) Record {
	return assistantRecord(id, seq, fmt.Sprintf(`{"type":"text","text":%q}`, text), "")
}

func toolUseRecord(id string, seq int64, toolID, name string) Record {
	block := fmt.Sprintf(`{"type":"tool_use","id":%q,"name":%q,"input":{"command":"ls"}}`, toolID, name)
	return assistantRecord(id, seq, block, "")
}

func toolResultRecord(id string, seq int64, toolUseID string, isError bool) Record {
	content := fmt.Sprintf(
		`{"role":"agent","content":{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":%q,"content":"output","is_error":%t}]}}}`,
		toolUseID, isError)
	return Record{ID: id, Seq: seq, CreatedAt: seq * 1000, Content: json.RawMessage(content)}
}

func TestFoldUserText(t *testing.T) {
	s := New()
	changed := s.Fold([]Record{userRecord("r1", 1, "hello")})
	require.True(t, changed)

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "r1", messages[0].ID)
	assert.Equal(t, domain.KindUserText, messages[0].Kind)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, int64(1000), messages[0].CreatedAt)
}

func TestFoldIdempotent(t *testing.T) {
	records := []Record{
		userRecord("r1", 1, "run the tests"),
		toolUseRecord("r2", 2, "tool-1", domain.ToolBash),
		toolResultRecord("r3", 3, "tool-1", false),
		textRecord("r4", 4, "all green"),
	}

	s := New()
	require.True(t, s.Fold(records))
	first := s.Messages()

	// Re-applying the same records must change nothing
	assert.False(t, s.Fold(records))
	assert.Equal(t, first, s.Messages())
}

func TestFoldDeterministic(t *testing.T) {
	records := []Record{
		userRecord("r1", 1, "hi"),
		toolUseRecord("r2", 2, "tool-1", domain.ToolRead),
		toolUseRecord("r3", 3, "tool-2", domain.ToolGrep),
		toolResultRecord("r4", 4, "tool-2", false),
		textRecord("r5", 5, "found it"),
	}

	a := New()
	a.Fold(records)
	b := New()
	b.Fold(records)
	assert.Equal(t, a.Messages(), b.Messages())
}

func TestFoldLocalIDDedup(t *testing.T) {
	s := New()

	// Optimistic local append followed by the server's copy of the same
	// message under its permanent id
	optimistic := Record{ID: "local-1", LocalID: "local-1", CreatedAt: 1000,
		Content: json.RawMessage(`{"role":"user","content":{"type":"text","text":"hi"}}`)}
	server := userRecord("srv-1", 2, "hi")
	server.LocalID = "local-1"

	require.True(t, s.Fold([]Record{optimistic}))
	assert.False(t, s.Fold([]Record{server}))
	assert.Equal(t, 1, s.Len())
}

func TestToolCallLifecycle(t *testing.T) {
	s := New()
	s.Fold([]Record{
		toolUseRecord("r1", 1, "tool-1", domain.ToolBash),
	})

	messages := s.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, domain.KindToolCall, messages[0].Kind)
	require.Len(t, messages[0].Tools, 1)
	assert.Equal(t, domain.ToolRunning, messages[0].Tools[0].State)

	s.Fold([]Record{toolResultRecord("r2", 2, "tool-1", false)})

	messages = s.Messages()
	require.Len(t, messages, 1)
	tool := messages[0].Tools[0]
	assert.Equal(t, domain.ToolCompleted, tool.State)
	assert.Equal(t, json.RawMessage(`"output"`), tool.Result)
	assert.Equal(t, int64(2000), tool.CompletedAt)
}

func TestToolCallErrorResult(t *testing.T) {
	s := New()
	s.Fold([]Record{
		toolUseRecord("r1", 1, "tool-1", domain.ToolBash),
		toolResultRecord("r2", 2, "tool-1", true),
	})

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, domain.ToolError, messages[0].Tools[0].State)
}

func TestToolResultIsMonotonic(t *testing.T) {
	s := New()
	s.Fold([]Record{
		toolUseRecord("r1", 1, "tool-1", domain.ToolBash),
		toolResultRecord("r2", 2, "tool-1", false),
		// A late duplicate result must not flip the state
		toolResultRecord("r3", 3, "tool-1", true),
	})

	messages := s.Messages()
	tool := messages[0].Tools[0]
	assert.Equal(t, domain.ToolCompleted, tool.State)
	assert.Equal(t, int64(2000), tool.CompletedAt)
}

func TestConsecutiveToolCallsShareMessage(t *testing.T) {
	s := New()
	s.Fold([]Record{
		toolUseRecord("r1", 1, "tool-1", domain.ToolRead),
		toolUseRecord("r2", 2, "tool-2", domain.ToolGrep),
	})

	messages := s.Messages()
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Tools, 2)
	assert.Equal(t, domain.ToolRead, messages[0].Tools[0].Name)
	assert.Equal(t, domain.ToolGrep, messages[0].Tools[1].Name)
}

func TestTextClosesToolCallTurn(t *testing.T) {
	s := New()
	s.Fold([]Record{
		toolUseRecord("r1", 1, "tool-1", domain.ToolRead),
		textRecord("r2", 2, "here is the file"),
		toolUseRecord("r3", 3, "tool-2", domain.ToolEdit),
	})

	messages := s.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, domain.KindToolCall, messages[0].Kind)
	assert.Equal(t, domain.KindAgentText, messages[1].Kind)
	assert.Equal(t, domain.KindToolCall, messages[2].Kind)
	assert.Len(t, messages[2].Tools, 1)
}

func TestNestedToolCalls(t *testing.T) {
	s := New()
	child := assistantRecord("r2", 2,
		`{"type":"tool_use","id":"tool-2","name":"Bash","input":{"command":"go test"}}`, "tool-1")
	s.Fold([]Record{
		toolUseRecord("r1", 1, "tool-1", domain.ToolTask),
		child,
	})

	messages := s.Messages()
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Tools, 1)

	parent := messages[0].Tools[0]
	require.Len(t, parent.Children, 1)
	assert.Equal(t, "Bash", parent.Children[0].Name)

	// A result for the child resolves inside the nested call
	s.Fold([]Record{toolResultRecord("r3", 3, "tool-2", false)})
	messages = s.Messages()
	assert.Equal(t, domain.ToolCompleted, messages[0].Tools[0].Children[0].State)
	assert.Equal(t, domain.ToolRunning, messages[0].Tools[0].State)
}

func TestOrphanToolResult(t *testing.T) {
	s := New()
	require.True(t, s.Fold([]Record{toolResultRecord("r1", 1, "never-seen", false)}))

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, domain.KindEvent, messages[0].Kind)
	assert.NotEmpty(t, messages[0].Raw)
}

func TestUnknownShapePassthrough(t *testing.T) {
	s := New()
	raw := json.RawMessage(`{"something":"else","numbers":[1,2,3]}`)
	require.True(t, s.Fold([]Record{{ID: "r1", Seq: 1, CreatedAt: 1000, Content: raw}}))

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, domain.KindEvent, messages[0].Kind)
	assert.JSONEq(t, string(raw), string(messages[0].Raw))
}

func TestMultipleMessagesPerRecord(t *testing.T) {
	s := New()
	blocks := `{"type":"text","text":"let me check"},{"type":"tool_use","id":"tool-1","name":"Read","input":{}}`
	s.Fold([]Record{assistantRecord("r1", 1, blocks, "")})

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "r1", messages[0].ID)
	assert.Equal(t, "r1#1", messages[1].ID)
	assert.Equal(t, domain.KindAgentText, messages[0].Kind)
	assert.Equal(t, domain.KindToolCall, messages[1].Kind)
}

func TestMessagesReturnsCopies(t *testing.T) {
	s := New()
	s.Fold([]Record{toolUseRecord("r1", 1, "tool-1", domain.ToolBash)})

	snapshot := s.Messages()
	snapshot[0].Tools[0].State = domain.ToolError

	// Mutating the snapshot must not leak into the fold state
	assert.Equal(t, domain.ToolRunning, s.Messages()[0].Tools[0].State)
}
