package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"happy/api"
	"happy/async"
	"happy/encryption"
	"happy/reducer"
)

// outboundMessage is the plaintext shape of a user message before
// envelope encryption
type outboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type outboundText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendMessage encrypts and posts a user message to a session. The local
// transcript is updated optimistically under a client-generated local
// id; the server's copy is deduplicated against it on the next pull.
// The post itself is awaited to completion (including retries), so when
// this returns nil the message is durable server-side.
func (e *Engine) SendMessage(ctx context.Context, sessionID, text string) error {
	localID := uuid.New().String()
	now := time.Now().UnixMilli()

	content, err := json.Marshal(outboundText{Type: "text", Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	plaintext, err := json.Marshal(outboundMessage{Role: "user", Content: content})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	e.store.ApplyMessages(sessionID, []reducer.Record{{
		ID:        localID,
		LocalID:   localID,
		CreatedAt: now,
		Content:   plaintext,
	}}, false)

	body, err := e.encryptBody(json.RawMessage(plaintext))
	if err != nil {
		return err
	}

	err = async.Retry(ctx, e.opts.Backoff, func(ctx context.Context) error {
		return e.client.SendMessage(ctx, sessionID, api.SendMessageRequest{
			LocalID: localID,
			Body:    body,
		})
	})
	if err != nil {
		return err
	}

	e.invalidateSession(sessionID)
	return nil
}

// AllowPermission approves a pending tool permission request
func (e *Engine) AllowPermission(ctx context.Context, sessionID, requestID string) error {
	return e.answerPermission(ctx, sessionID, requestID, true)
}

// DenyPermission rejects a pending tool permission request
func (e *Engine) DenyPermission(ctx context.Context, sessionID, requestID string) error {
	return e.answerPermission(ctx, sessionID, requestID, false)
}

// answerPermission posts the decision and optimistically clears the
// request locally. Awaited through retries so the optimistic state is
// durable once this returns.
func (e *Engine) answerPermission(ctx context.Context, sessionID, requestID string, approved bool) error {
	err := async.Retry(ctx, e.opts.Backoff, func(ctx context.Context) error {
		return e.client.AnswerPermission(ctx, sessionID, requestID, approved)
	})
	if err != nil {
		return err
	}
	e.store.ResolvePermission(sessionID, requestID)
	e.invalidateSession(sessionID)
	return nil
}

// UpdateDraft updates a session's composer text in the store and
// schedules a debounced local-cache write. Intermediate values are
// dropped under backpressure; only the latest draft is persisted.
func (e *Engine) UpdateDraft(sessionID, text string) {
	e.store.UpdateDraft(sessionID, text)

	if e.cache == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	sync, ok := e.draftSyncs[sessionID]
	if !ok {
		sync = async.NewValueSync(func(ctx context.Context, write draftWrite) error {
			return e.cache.SetDraft(ctx, write.sessionID, write.text)
		}, e.opts.Backoff)
		e.draftSyncs[sessionID] = sync
	}
	e.mu.Unlock()

	sync.SetValue(draftWrite{sessionID: sessionID, text: text})
}

// UpdateSettings applies fn to the synced settings blob optimistically
// and pushes the result; the server echo reconciles via the settings
// sync cycle
func (e *Engine) UpdateSettings(ctx context.Context, fn func(json.RawMessage) json.RawMessage) error {
	settings, version := e.store.MutateSettings(fn)

	return async.Retry(ctx, e.opts.Backoff, func(ctx context.Context) error {
		echo, err := e.client.UpdateAccountSettings(ctx, api.AccountSettings{
			Settings: settings,
			Version:  version,
		})
		if err != nil {
			return err
		}
		e.store.ApplySettings(echo.Settings, echo.Version)
		return nil
	})
}

// pairingPayload is the plaintext handed to a pairing device: the root
// secret, box-encrypted to the key the device displayed
type pairingPayload struct {
	Secret string `json:"secret"`
}

// ApprovePairing encrypts the root secret to the public key scanned
// from a new device and posts the approval. Only the holder of the
// matching private key can open it.
func (e *Engine) ApprovePairing(ctx context.Context, devicePublicKey string) error {
	keyBytes, err := encryption.DecodeKey(devicePublicKey)
	if err != nil {
		return fmt.Errorf("invalid device public key: %w", err)
	}
	if len(keyBytes) != encryption.KeySize {
		return fmt.Errorf("invalid device public key length: %d", len(keyBytes))
	}
	var publicKey [encryption.KeySize]byte
	copy(publicKey[:], keyBytes)

	bundle, err := encryption.EncryptBox(pairingPayload{
		Secret: base64.StdEncoding.EncodeToString(e.secret),
	}, &publicKey)
	if err != nil {
		return err
	}

	return async.Retry(ctx, e.opts.Backoff, func(ctx context.Context) error {
		return e.client.ApprovePairing(ctx, api.PairingApproval{
			PublicKey: devicePublicKey,
			Response:  base64.StdEncoding.EncodeToString(bundle),
		})
	})
}

// RegisterPushToken registers a push token with the server and caches
// it locally so re-registration is skipped on unchanged tokens
func (e *Engine) RegisterPushToken(ctx context.Context, token, platform string) error {
	if e.cache != nil {
		if cached, ok, _ := e.cache.GetValue(ctx, "push-token"); ok && cached == token {
			return nil
		}
	}

	err := async.Retry(ctx, e.opts.Backoff, func(ctx context.Context) error {
		return e.client.RegisterPushToken(ctx, token, platform)
	})
	if err != nil {
		return err
	}

	if e.cache != nil {
		if err := e.cache.SetValue(ctx, "push-token", token); err != nil {
			return err
		}
	}
	return nil
}

// QueryUsage fetches aggregated usage, retried under backoff
func (e *Engine) QueryUsage(ctx context.Context, query api.UsageQuery) (*api.UsageReport, error) {
	return async.RetryValue(ctx, e.opts.Backoff, func(ctx context.Context) (*api.UsageReport, error) {
		return e.client.QueryUsage(ctx, query)
	})
}

// FeedItem is a decrypted entry of the account activity feed
type FeedItem struct {
	ID        string
	Seq       int64
	Body      json.RawMessage
	CreatedAt time.Time
}

// Feed fetches and decrypts one page of the account activity feed.
// Undecryptable entries are skipped.
func (e *Engine) Feed(ctx context.Context, cursor string) ([]FeedItem, string, bool, error) {
	page, err := async.RetryValue(ctx, e.opts.Backoff, func(ctx context.Context) (*api.FeedPage, error) {
		return e.client.ListFeed(ctx, cursor)
	})
	if err != nil {
		return nil, "", false, err
	}

	items := make([]FeedItem, 0, len(page.Items))
	next := cursor
	for i := range page.Items {
		raw := &page.Items[i]
		next = raw.Cursor
		seq, err := api.ParseCursor(raw.Cursor)
		if err != nil {
			continue
		}
		body, ok := e.decodeBody(raw.Body)
		if !ok {
			continue
		}
		items = append(items, FeedItem{
			ID:        raw.ID,
			Seq:       seq,
			Body:      body,
			CreatedAt: msToTime(raw.CreatedAt),
		})
	}
	return items, next, page.HasMore, nil
}

func (e *Engine) invalidateSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.sessionSyncLocked(sessionID).Invalidate()
}
