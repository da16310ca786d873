package engine

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"happy/api"
	"happy/domain"
	"happy/encryption"
	"happy/logging"
	"happy/reducer"
	"happy/storage"
)

// decryptInto opens a base64 secret-box envelope and unmarshals the
// plaintext into out. Any failure yields false.
func (e *Engine) decryptInto(envelope string, key *[encryption.KeySize]byte, out any) bool {
	bundle, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return false
	}
	raw, ok := encryption.DecryptSecretBox(bundle, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// decodeSession maps a wire session to the domain, decrypting the
// envelope fields. Undecryptable metadata (rotated key, tampered blob)
// leaves the field nil; the session itself still syncs.
func (e *Engine) decodeSession(remote *api.Session) *domain.Session {
	session := &domain.Session{
		ID:                remote.ID,
		Seq:               remote.Seq,
		Active:            remote.Active,
		ActiveAt:          msToTime(remote.ActiveAt),
		MetadataVersion:   remote.MetadataVersion,
		AgentStateVersion: remote.AgentStateVersion,
		CreatedAt:         msToTime(remote.CreatedAt),
		UpdatedAt:         msToTime(remote.UpdatedAt),
	}

	if remote.Metadata != "" {
		var metadata domain.SessionMetadata
		if e.decryptInto(remote.Metadata, e.contentKey, &metadata) {
			session.Metadata = &metadata
		} else {
			logging.Logger.Debug("Skipping undecryptable session metadata", "session_id", remote.ID)
		}
	}
	if remote.AgentState != "" {
		var state domain.AgentState
		if e.decryptInto(remote.AgentState, e.contentKey, &state) {
			session.AgentState = &state
		} else {
			logging.Logger.Debug("Skipping undecryptable agent state", "session_id", remote.ID)
		}
	}
	return session
}

func (e *Engine) decodeMachines(remote []api.Machine) []*domain.Machine {
	machines := make([]*domain.Machine, 0, len(remote))
	for i := range remote {
		machine := &domain.Machine{
			ID:        remote[i].ID,
			Active:    remote[i].Active,
			ActiveAt:  msToTime(remote[i].ActiveAt),
			CreatedAt: msToTime(remote[i].CreatedAt),
			UpdatedAt: msToTime(remote[i].UpdatedAt),
		}
		if remote[i].Metadata != "" {
			var metadata domain.MachineMetadata
			if e.decryptInto(remote[i].Metadata, e.machineKey, &metadata) {
				machine.Metadata = &metadata
			}
		}
		machines = append(machines, machine)
	}
	return machines
}

// decodeItems turns wire message items into reducer records plus their
// cacheable raw form. Items that cannot be decrypted or whose cursor is
// unparseable are logged and skipped; a single bad item never aborts the
// batch.
func (e *Engine) decodeItems(sessionID string, items []api.MessageItem) ([]reducer.Record, []storage.CachedRecord) {
	records := make([]reducer.Record, 0, len(items))
	cached := make([]storage.CachedRecord, 0, len(items))

	for i := range items {
		item := &items[i]
		seq, err := api.ParseCursor(item.Cursor)
		if err != nil {
			logging.Logger.Warn("Skipping item with bad cursor",
				"session_id", sessionID, "cursor", item.Cursor, "error", err)
			continue
		}

		content, ok := e.decodeBody(item.Body)
		if !ok {
			logging.Logger.Debug("Skipping undecryptable item",
				"session_id", sessionID, "id", item.ID)
			continue
		}

		records = append(records, reducer.Record{
			ID:        item.ID,
			Seq:       seq,
			LocalID:   item.LocalID,
			CreatedAt: item.CreatedAt,
			Content:   content,
		})
		cached = append(cached, storage.CachedRecord{
			RecordID: item.ID,
			Seq:      seq,
			Body:     item.Body,
			EventAt:  item.CreatedAt,
		})
	}
	return records, cached
}

// decodeCached re-decodes locally cached raw items. Returns the records
// and the resume cursor derived from the highest cached sequence.
func (e *Engine) decodeCached(cached []storage.CachedRecord) ([]reducer.Record, string) {
	records := make([]reducer.Record, 0, len(cached))
	var maxSeq int64 = -1
	for i := range cached {
		content, ok := e.decodeBody(cached[i].Body)
		if !ok {
			continue
		}
		records = append(records, reducer.Record{
			ID:        cached[i].RecordID,
			Seq:       cached[i].Seq,
			CreatedAt: cached[i].EventAt,
			Content:   content,
		})
		if cached[i].Seq > maxSeq {
			maxSeq = cached[i].Seq
		}
	}
	if maxSeq < 0 {
		return records, ""
	}
	// Cursors are single-shard, see api.ParseCursor
	return records, "0-" + strconv.FormatInt(maxSeq, 10)
}

// decodeBody handles the two wire body forms: a JSON string holding a
// base64 encrypted envelope, or plain (already public) JSON. A string
// that is not base64 is plain content; a well-formed envelope that does
// not open under our key stays undecryptable.
func (e *Engine) decodeBody(body json.RawMessage) (json.RawMessage, bool) {
	var envelope string
	if err := json.Unmarshal(body, &envelope); err == nil {
		bundle, err := base64.StdEncoding.DecodeString(envelope)
		if err != nil {
			return body, true
		}
		if raw, ok := encryption.DecryptSecretBox(bundle, e.contentKey); ok {
			return raw, true
		}
		return nil, false
	}
	if json.Valid(body) {
		return body, true
	}
	return nil, false
}

// encryptBody wraps outbound content in a secret-box envelope, returning
// the base64 form the server stores
func (e *Engine) encryptBody(v any) (string, error) {
	bundle, err := encryption.EncryptSecretBox(v, e.contentKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bundle), nil
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
