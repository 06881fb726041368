package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bantam-dev/bantam/pkg/adapter"
	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/policy"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/bantam-dev/bantam/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const defaultIdleTimeout = 30 * time.Minute

// RegistryConfig wires the collaborators a registry hands to the
// sessions it creates. Storage and Redis are optional: without them
// transcripts are discarded on close and snapshots live only in
// process memory.
type RegistryConfig struct {
	Catalog   *policy.Catalog
	Gemini    adapter.Gemini
	Tools     *tool.Registry
	Evaluator *policy.Evaluator

	Storage adapter.Storage
	Redis   *redis.Client

	IdleTimeout time.Duration
}

// Registry owns the active sessions. It is the only place sessions are
// created, found, or evicted; nothing else holds the map.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[model.SessionKey]*Session
}

// NewRegistry creates an empty session registry
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[model.SessionKey]*Session),
	}
}

// GetOrCreate returns the session for a (tenant, contact) pair,
// creating it on first contact. Unknown tenants fail with
// model.ErrConfigNotFound before any session exists.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID, contactID string) (*Session, error) {
	key := model.NewSessionKey(tenantID, contactID)

	r.mu.RLock()
	s, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	pol, err := r.cfg.Catalog.Lookup(tenantID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Lost the race: another request created it first
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}

	s, err = New(ctx, tenantID, contactID, pol, r.cfg.Gemini, r.cfg.Tools, r.cfg.Evaluator)
	if err != nil {
		return nil, err
	}
	r.sessions[key] = s

	logging.From(ctx).Info("session created", "session_key", key)
	return s, nil
}

// Get returns an existing session or model.ErrSessionNotFound
func (r *Registry) Get(key model.SessionKey) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "no active session", goerr.V("session_key", key))
	}
	return s, nil
}

// HandleMessage is the inbound entry point: it routes a message event
// to its session and returns the reply for delivery.
func (r *Registry) HandleMessage(ctx context.Context, msg *model.InboundMessage) (*model.Reply, error) {
	tenantID := msg.TenantID
	if tenantID == "" {
		tenantID = "default"
	}

	s, err := r.GetOrCreate(ctx, tenantID, msg.ContactID)
	if err != nil {
		return nil, err
	}

	reply, err := s.Send(ctx, msg.Text)
	if err != nil {
		return nil, err
	}

	r.mirrorSnapshot(ctx, s)
	return reply, nil
}

// mirrorSnapshot pushes the qualification snapshot to Redis so other
// processes can inspect live sessions. Failures are logged, never
// propagated: the conversation does not depend on the mirror.
func (r *Registry) mirrorSnapshot(ctx context.Context, s *Session) {
	if r.cfg.Redis == nil {
		return
	}

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		logging.From(ctx).Warn("failed to marshal session snapshot", "session_key", s.Key(), "error", err)
		return
	}

	key := fmt.Sprintf("session:%s", s.Key())
	if err := r.cfg.Redis.Set(ctx, key, data, r.cfg.IdleTimeout).Err(); err != nil {
		logging.From(ctx).Warn("failed to mirror session snapshot", "session_key", s.Key(), "error", err)
	}
}

// List returns snapshots of all active sessions
func (r *Registry) List() map[model.SessionKey]model.QualificationSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[model.SessionKey]model.QualificationSnapshot, len(r.sessions))
	for key, s := range r.sessions {
		out[key] = s.Snapshot()
	}
	return out
}

// Count reports the number of active sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close terminates a session: removes it from the registry, archives
// its transcript, and drops the snapshot mirror. A later GetOrCreate
// with the same key starts from a clean state.
func (r *Registry) Close(ctx context.Context, key model.SessionKey) error {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if !ok {
		return goerr.Wrap(model.ErrSessionNotFound, "no active session", goerr.V("session_key", key))
	}

	r.archive(ctx, s)
	s.Close()

	if r.cfg.Redis != nil {
		if err := r.cfg.Redis.Del(ctx, fmt.Sprintf("session:%s", key)).Err(); err != nil {
			logging.From(ctx).Warn("failed to drop session mirror", "session_key", key, "error", err)
		}
	}

	logging.From(ctx).Info("session closed", "session_key", key)
	return nil
}

type archivedSession struct {
	SessionKey model.SessionKey            `json:"session_key"`
	TenantID   string                      `json:"tenant_id"`
	ContactID  string                      `json:"contact_id"`
	ClosedAt   time.Time                   `json:"closed_at"`
	Snapshot   model.QualificationSnapshot `json:"snapshot"`
	Transcript []TranscriptEntry           `json:"transcript"`
}

func (r *Registry) archive(ctx context.Context, s *Session) {
	if r.cfg.Storage == nil {
		return
	}

	doc := archivedSession{
		SessionKey: s.Key(),
		TenantID:   s.TenantID(),
		ContactID:  s.ContactID(),
		ClosedAt:   time.Now().UTC(),
		Snapshot:   s.Snapshot(),
		Transcript: s.Transcript(),
	}

	key := fmt.Sprintf("transcripts/%s/%s.json", s.TenantID(), ulid.Make().String())
	w, err := r.cfg.Storage.Put(ctx, key)
	if err != nil {
		logging.From(ctx).Warn("failed to open transcript object", "key", key, "error", err)
		return
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logging.From(ctx).Warn("failed to write transcript", "key", key, "error", err)
		w.Close()
		return
	}
	if err := w.Close(); err != nil {
		logging.From(ctx).Warn("failed to finalize transcript", "key", key, "error", err)
		return
	}

	logging.From(ctx).Info("transcript archived", "session_key", s.Key(), "key", key)
}

// RunSweeper evicts idle sessions until the context is cancelled.
// Intended to run as a goroutine next to the server loop.
func (r *Registry) RunSweeper(ctx context.Context) {
	interval := r.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	deadline := time.Now().Add(-r.cfg.IdleTimeout)

	r.mu.RLock()
	var idle []model.SessionKey
	for key, s := range r.sessions {
		if s.LastActivity().Before(deadline) {
			idle = append(idle, key)
		}
	}
	r.mu.RUnlock()

	for _, key := range idle {
		logging.From(ctx).Info("evicting idle session", "session_key", key)
		if err := r.Close(ctx, key); err != nil {
			logging.From(ctx).Warn("failed to evict session", "session_key", key, "error", err)
		}
	}
}

// Shutdown closes every active session, archiving transcripts
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	keys := make([]model.SessionKey, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	for _, key := range keys {
		if err := r.Close(ctx, key); err != nil {
			logging.From(ctx).Warn("failed to close session on shutdown", "session_key", key, "error", err)
		}
	}
}
