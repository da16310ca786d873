// Package engine orchestrates the fetch/decrypt/apply sync cycles that
// keep the local store consistent with the server-held encrypted event
// log. Every logical key (session list, each session's messages, synced
// settings) has its own coalescing InvalidateSync, so concurrent
// triggers collapse into one in-flight fetch plus at most one queued
// follow-up, and transport failures retry invisibly under backoff.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"happy/api"
	"happy/async"
	"happy/domain"
	"happy/encryption"
	"happy/logging"
	"happy/storage"
	"happy/store"
)

// Options configures the sync engine
type Options struct {
	PollInterval time.Duration
	Backoff      async.BackoffOptions
	// HydrateParallelism bounds concurrent initial message fetches
	HydrateParallelism int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.HydrateParallelism <= 0 {
		o.HydrateParallelism = 4
	}
	return o
}

// Engine drives the sync loop for one authenticated account
type Engine struct {
	client *api.Client
	store  *store.Store
	cache  *storage.Cache
	opts   Options

	contentKey *[encryption.KeySize]byte
	machineKey *[encryption.KeySize]byte
	secret     []byte

	ctx    context.Context
	cancel context.CancelFunc

	listSync     *async.InvalidateSync
	settingsSync *async.InvalidateSync

	mu           sync.Mutex
	sessionSyncs map[string]*async.InvalidateSync
	draftSyncs   map[string]*async.ValueSync[draftWrite]
	cursors      map[string]string
	closed       bool
}

type draftWrite struct {
	sessionID string
	text      string
}

// New creates an Engine. The secret is the root key material from which
// all content keys are derived; cache may be nil to run without a local
// cache (tests).
func New(client *api.Client, st *store.Store, cache *storage.Cache, secret []byte, opts Options) (*Engine, error) {
	contentKey, err := encryption.ContentKey(secret)
	if err != nil {
		return nil, err
	}
	machineKey, err := encryption.MachineKey(secret)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		client:       client,
		store:        st,
		cache:        cache,
		opts:         opts.withDefaults(),
		contentKey:   contentKey,
		machineKey:   machineKey,
		secret:       secret,
		ctx:          ctx,
		cancel:       cancel,
		sessionSyncs: make(map[string]*async.InvalidateSync),
		draftSyncs:   make(map[string]*async.ValueSync[draftWrite]),
		cursors:      make(map[string]string),
	}
	e.listSync = async.NewInvalidateSync(e.syncSessionList, e.opts.Backoff)
	e.settingsSync = async.NewInvalidateSync(e.syncSettings, e.opts.Backoff)
	return e, nil
}

// Start runs the first sync cycle, hydrates transcripts and drafts from
// the local cache and begins periodic polling. Returns once the initial
// session listing has been applied.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.listSync.InvalidateAndAwait(ctx); err != nil {
		return err
	}
	e.hydrateFromCache(ctx)
	e.settingsSync.Invalidate()

	go e.pollLoop()
	return nil
}

// SyncNow triggers a full refresh (focus change, push notification,
// manual pull-to-refresh). Multiple triggers coalesce.
func (e *Engine) SyncNow() {
	e.listSync.Invalidate()
	e.settingsSync.Invalidate()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sync := range e.sessionSyncs {
		sync.Invalidate()
	}
}

// SyncSettingsNow refreshes the synced settings blob and waits for the
// cycle to complete
func (e *Engine) SyncSettingsNow(ctx context.Context) error {
	return e.settingsSync.InvalidateAndAwait(ctx)
}

// Close stops all scheduled work and releases any waiters. Requests
// already sent are not aborted.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sessionSyncs := e.sessionSyncs
	draftSyncs := e.draftSyncs
	e.mu.Unlock()

	e.cancel()
	e.listSync.Stop()
	e.settingsSync.Stop()
	for _, sync := range sessionSyncs {
		sync.Stop()
	}
	for _, sync := range draftSyncs {
		sync.Stop()
	}
}

func (e *Engine) pollLoop() {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.SyncNow()
		}
	}
}

// syncSessionList is the session-list pull cycle: fetch the full
// listing, decrypt metadata, merge into the store, prune tombstones and
// make sure every live session has its own sync.
func (e *Engine) syncSessionList(ctx context.Context) error {
	remote, err := e.client.ListSessions(ctx)
	if err != nil {
		return err
	}

	sessions := make([]*domain.Session, 0, len(remote))
	for i := range remote {
		sessions = append(sessions, e.decodeSession(&remote[i]))
	}

	removed := e.store.ApplySessions(sessions)

	e.mu.Lock()
	var stopped []*async.InvalidateSync
	for _, id := range removed {
		if sync, ok := e.sessionSyncs[id]; ok {
			stopped = append(stopped, sync)
			delete(e.sessionSyncs, id)
		}
		if sync, ok := e.draftSyncs[id]; ok {
			sync.Stop()
			delete(e.draftSyncs, id)
		}
		delete(e.cursors, id)
	}
	var invalidate []*async.InvalidateSync
	if !e.closed {
		for _, session := range sessions {
			invalidate = append(invalidate, e.sessionSyncLocked(session.ID))
		}
	}
	e.mu.Unlock()

	for _, sync := range stopped {
		sync.Stop()
	}
	for _, id := range removed {
		if e.cache != nil {
			if err := e.cache.DropSession(ctx, id); err != nil {
				logging.Logger.Warn("Failed to drop cached session", "session_id", id, "error", err)
			}
		}
	}
	for _, sync := range invalidate {
		sync.Invalidate()
	}

	if machines, err := e.client.ListMachines(ctx); err == nil {
		e.store.ApplyMachines(e.decodeMachines(machines))
	} else {
		// Machine metadata is auxiliary; a failed fetch never blocks
		// the session cycle
		logging.Logger.Debug("Machine listing failed", "error", err)
	}
	return nil
}

// sessionSyncLocked returns the InvalidateSync for a session, creating
// it on first sight. Caller holds e.mu.
func (e *Engine) sessionSyncLocked(sessionID string) *async.InvalidateSync {
	if sync, ok := e.sessionSyncs[sessionID]; ok {
		return sync
	}
	id := sessionID
	sync := async.NewInvalidateSync(func(ctx context.Context) error {
		return e.syncSessionMessages(ctx, id)
	}, e.opts.Backoff)
	e.sessionSyncs[sessionID] = sync
	return sync
}

// syncSessionMessages pulls one session's message log from its last
// cursor and folds the new records into the store. Failures isolate to
// this session; other sessions keep syncing.
func (e *Engine) syncSessionMessages(ctx context.Context, sessionID string) error {
	e.mu.Lock()
	cursor := e.cursors[sessionID]
	e.mu.Unlock()

	for {
		page, err := e.client.ListMessages(ctx, sessionID, cursor)
		if err != nil {
			return err
		}

		records, cached := e.decodeItems(sessionID, page.Items)
		if len(records) > 0 {
			e.store.ApplyMessages(sessionID, records, false)
		}
		if e.cache != nil && len(cached) > 0 {
			if err := e.cache.PutRecords(ctx, sessionID, cached); err != nil {
				logging.Logger.Warn("Failed to cache records", "session_id", sessionID, "error", err)
			}
		}

		next := cursor
		if len(page.Items) > 0 {
			next = page.Items[len(page.Items)-1].Cursor
			e.mu.Lock()
			e.cursors[sessionID] = next
			e.mu.Unlock()
		}
		if !page.HasMore {
			return nil
		}
		if next == cursor {
			// A page claiming more data without advancing the cursor
			// would spin here; hand the anomaly to the backoff loop
			return fmt.Errorf("message page for session %s did not advance past cursor %q", sessionID, cursor)
		}
		cursor = next
	}
}

// syncSettings pulls the synced settings blob and reconciles it
func (e *Engine) syncSettings(ctx context.Context) error {
	settings, err := e.client.GetAccountSettings(ctx)
	if err != nil {
		return err
	}
	e.store.ApplySettings(settings.Settings, settings.Version)
	return nil
}

// hydrateFromCache folds the locally cached encrypted log of every
// session before the first network round trip, bounded by the configured
// parallelism. Cache problems only cost the warm start.
func (e *Engine) hydrateFromCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	sessions := e.store.Sessions()
	if len(sessions) == 0 {
		return
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.HydrateParallelism)
	for _, session := range sessions {
		id := session.ID
		group.Go(func() error {
			if draft, err := e.cache.GetDraft(gctx, id); err == nil && draft != "" {
				e.store.UpdateDraft(id, draft)
			}

			cached, err := e.cache.GetRecords(gctx, id)
			if err != nil {
				logging.Logger.Warn("Failed to read cached records", "session_id", id, "error", err)
				return nil
			}
			records, cursor := e.decodeCached(cached)
			if len(records) > 0 {
				e.store.ApplyMessages(id, records, false)
				e.mu.Lock()
				// The network cycle may already be past this point;
				// never rewind its cursor
				if _, ok := e.cursors[id]; !ok {
					e.cursors[id] = cursor
				}
				e.mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
}
