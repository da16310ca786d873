// Package reducer folds the ordered event log of a session into
// structured transcript messages. The fold is deterministic and
// idempotent: re-applying already-seen records never duplicates
// messages or corrupts tool-call state, so the whole history can be
// safely re-folded after a cold start or resync.
package reducer

import (
	"encoding/json"
	"strconv"

	"happy/domain"
)

// State is the per-session fold accumulator. It is owned by the session
// store and mutated only through Fold; a full history re-fetch discards
// it and starts from New.
type State struct {
	messages []*domain.Message
	byID     map[string]*domain.Message
	seen     map[string]struct{}

	// seenLocal tracks client idempotency keys so the server's copy of
	// an optimistically appended message is not folded a second time
	seenLocal map[string]struct{}

	// openTools indexes currently running tool calls by the provider's
	// tool-use id so later result events can be matched back
	openTools map[string]*domain.ToolCall

	// openToolMessage is the tool-call message still accepting tools
	// from the current turn; nil once a text message closes the turn
	openToolMessage *domain.Message

	// curRecord/curEmitted track the record being folded so that each
	// message it yields gets a stable derived id
	curRecord  *Record
	curEmitted int
}

// New creates an empty fold state
func New() *State {
	return &State{
		byID:      make(map[string]*domain.Message),
		seen:      make(map[string]struct{}),
		seenLocal: make(map[string]struct{}),
		openTools: make(map[string]*domain.ToolCall),
	}
}

// Fold applies records in the given order and reports whether anything
// changed. Records must arrive in server-provided chronological order;
// already-seen record ids are skipped.
func (s *State) Fold(records []Record) bool {
	changed := false
	for i := range records {
		if s.foldOne(&records[i]) {
			changed = true
		}
	}
	return changed
}

// Messages returns a deep copy of the transcript in chronological order
func (s *State) Messages() []*domain.Message {
	out := make([]*domain.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of transcript messages
func (s *State) Len() int {
	return len(s.messages)
}

func (s *State) foldOne(record *Record) bool {
	if record.ID != "" {
		if _, done := s.seen[record.ID]; done {
			return false
		}
	}
	if record.LocalID != "" {
		if _, done := s.seenLocal[record.LocalID]; done {
			return false
		}
		s.seenLocal[record.LocalID] = struct{}{}
	}
	if record.ID != "" {
		s.seen[record.ID] = struct{}{}
	}
	s.curRecord = record
	s.curEmitted = 0

	var body recordBody
	if err := json.Unmarshal(record.Content, &body); err != nil || body.Role == "" {
		s.appendPassthrough(record)
		return true
	}

	switch body.Role {
	case roleUser:
		return s.foldUser(record, body.Content)
	case roleAgent:
		return s.foldAgent(record, body.Content)
	default:
		s.appendPassthrough(record)
		return true
	}
}

func (s *State) foldUser(record *Record, content json.RawMessage) bool {
	var text userContent
	if err := json.Unmarshal(content, &text); err != nil || text.Type != blockText {
		s.appendPassthrough(record)
		return true
	}
	s.openToolMessage = nil
	s.appendMessage(&domain.Message{
		ID:        record.ID,
		LocalID:   record.LocalID,
		Kind:      domain.KindUserText,
		CreatedAt: record.CreatedAt,
		Text:      text.Text,
	})
	return true
}

func (s *State) foldAgent(record *Record, content json.RawMessage) bool {
	var event agentEvent
	if err := json.Unmarshal(content, &event); err != nil || event.Type == "" {
		s.appendPassthrough(record)
		return true
	}

	switch event.Type {
	case eventAssistant:
		return s.foldAssistant(record, &event)
	case eventUser:
		// Tool results come back wrapped in a user-typed agent event
		return s.foldToolResults(record, &event)
	default:
		s.appendPassthrough(record)
		return true
	}
}

func (s *State) foldAssistant(record *Record, event *agentEvent) bool {
	if event.Message == nil {
		s.appendPassthrough(record)
		return true
	}

	changed := false
	for _, block := range event.Message.Content {
		switch block.Type {
		case blockText:
			// A text message is a turn boundary: it closes the open
			// tool-call group
			s.openToolMessage = nil
			s.appendMessage(&domain.Message{
				ID:        s.nextMessageID(),
				Kind:      domain.KindAgentText,
				CreatedAt: record.CreatedAt,
				Text:      block.Text,
			})
			changed = true
		case blockToolUse:
			s.addToolCall(record, &block, event.ParentToolUseID)
			changed = true
		case blockToolResult:
			if s.resolveToolResult(&block, record.CreatedAt) {
				changed = true
			} else {
				s.appendOrphanResult(record, &block)
				changed = true
			}
		default:
			s.appendPassthrough(record)
			changed = true
		}
	}
	return changed
}

func (s *State) foldToolResults(record *Record, event *agentEvent) bool {
	if event.Message == nil {
		s.appendPassthrough(record)
		return true
	}
	changed := false
	for _, block := range event.Message.Content {
		if block.Type != blockToolResult {
			s.appendPassthrough(record)
			changed = true
			continue
		}
		if s.resolveToolResult(&block, record.CreatedAt) {
			changed = true
		} else {
			s.appendOrphanResult(record, &block)
			changed = true
		}
	}
	return changed
}

// addToolCall opens a new tool call, nesting it under its parent when
// the event names one, and otherwise merging it into the current turn's
// tool-call message. Consecutive tool calls from one turn share a single
// message rather than producing one message per tool.
func (s *State) addToolCall(record *Record, block *contentBlock, parentID string) {
	tool := &domain.ToolCall{
		ID:        block.ID,
		Name:      block.Name,
		State:     domain.ToolRunning,
		Input:     block.Input,
		CreatedAt: record.CreatedAt,
	}
	if block.ID != "" {
		s.openTools[block.ID] = tool
	}

	if parentID != "" {
		if parent, ok := s.openTools[parentID]; ok {
			parent.Children = append(parent.Children, tool)
			return
		}
	}

	if s.openToolMessage != nil {
		s.openToolMessage.Tools = append(s.openToolMessage.Tools, tool)
		return
	}

	msg := &domain.Message{
		ID:        s.nextMessageID(),
		Kind:      domain.KindToolCall,
		CreatedAt: record.CreatedAt,
		Tools:     []*domain.ToolCall{tool},
	}
	s.appendMessage(msg)
	s.openToolMessage = msg
}

// resolveToolResult transitions a running tool call to its terminal
// state. Returns false when no matching open tool call exists.
func (s *State) resolveToolResult(block *contentBlock, at int64) bool {
	tool, ok := s.openTools[block.ToolUseID]
	if !ok {
		return false
	}
	if tool.Complete(block.Content, block.IsError, at) {
		delete(s.openTools, block.ToolUseID)
	}
	return true
}

// appendOrphanResult records a tool result that arrived without a
// matching tool call. It is preserved as a passthrough message instead
// of being dropped: nothing from the server is silently discarded.
func (s *State) appendOrphanResult(record *Record, block *contentBlock) {
	raw, err := json.Marshal(block)
	if err != nil {
		raw = record.Content
	}
	s.appendMessage(&domain.Message{
		ID:        s.nextMessageID(),
		Kind:      domain.KindEvent,
		CreatedAt: record.CreatedAt,
		Raw:       raw,
	})
}

// appendPassthrough preserves an event we don't interpret
func (s *State) appendPassthrough(record *Record) {
	s.appendMessage(&domain.Message{
		ID:        s.nextMessageID(),
		Kind:      domain.KindEvent,
		CreatedAt: record.CreatedAt,
		Raw:       record.Content,
	})
}

func (s *State) appendMessage(msg *domain.Message) {
	if msg.ID != "" {
		if _, exists := s.byID[msg.ID]; exists {
			// Same id folded through a different path; keep the first
			return
		}
		s.byID[msg.ID] = msg
	}
	s.messages = append(s.messages, msg)
}

// nextMessageID derives a stable per-message id. A single record can
// yield several messages (text plus tool calls), so later ones get an
// ordinal suffix; determinism follows from the fold order.
func (s *State) nextMessageID() string {
	record := s.curRecord
	if record == nil || record.ID == "" {
		return ""
	}
	ordinal := s.curEmitted
	s.curEmitted++
	if ordinal == 0 {
		return record.ID
	}
	return record.ID + "#" + strconv.Itoa(ordinal)
}
