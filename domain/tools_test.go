package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolInputKnownTools(t *testing.T) {
	input := ParseToolInput(ToolBash, json.RawMessage(`{"command":"go test ./..."}`))
	require.NotNil(t, input.Bash)
	assert.Equal(t, "go test ./...", input.Bash.Command)

	input = ParseToolInput(ToolEdit, json.RawMessage(`{"file_path":"main.go","old_string":"a","new_string":"b"}`))
	require.NotNil(t, input.Edit)
	assert.Equal(t, "main.go", input.Edit.FilePath)

	input = ParseToolInput(ToolGrep, json.RawMessage(`{"pattern":"func main"}`))
	require.NotNil(t, input.Search)
	assert.Equal(t, "func main", input.Search.Pattern)
}

func TestParseToolInputUnknownTool(t *testing.T) {
	raw := json.RawMessage(`{"custom":"payload"}`)
	input := ParseToolInput("SomeNewTool", raw)
	assert.Nil(t, input.Bash)
	assert.Equal(t, raw, input.Unknown)
}

func TestParseToolInputMalformedPayload(t *testing.T) {
	raw := json.RawMessage(`not json`)
	input := ParseToolInput(ToolBash, raw)
	assert.Nil(t, input.Bash)
	assert.Equal(t, raw, input.Unknown)
}
