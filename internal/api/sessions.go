package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"twin_service/internal/core"
)

// Session is one client's scenario: an orchestrator plus its chat.
type Session struct {
	ID   string
	Orch *core.Orchestrator
	Chat *core.ChatSession
}

// SessionStore keeps sessions alive while they are used. Idle sessions expire
// after the TTL and their orchestrator is closed.
type SessionStore struct {
	service *core.Service
	logger  *zap.Logger
	items   *cache.Cache
	ttl     time.Duration
}

func NewSessionStore(service *core.Service, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	s := &SessionStore{
		service: service,
		logger:  logger,
		items:   cache.New(ttl, cleanup),
		ttl:     ttl,
	}
	s.items.OnEvicted(func(id string, v interface{}) {
		v.(*Session).Orch.Close()
		s.logger.Debug("session closed", zap.String("session", id))
	})
	return s
}

func (s *SessionStore) Create(opts ...core.Option) *Session {
	sess := &Session{
		ID:   uuid.NewString(),
		Orch: s.service.NewOrchestrator(opts...),
		Chat: s.service.NewChatSession(),
	}
	s.items.SetDefault(sess.ID, sess)
	s.logger.Debug("session created", zap.String("session", sess.ID))
	return sess
}

// Get returns the session and extends its lifetime. Replace only succeeds
// while the entry is still live, so a session evicted or deleted since the
// lookup is reported missing rather than stored again.
func (s *SessionStore) Get(id string) (*Session, bool) {
	v, found := s.items.Get(id)
	if !found {
		return nil, false
	}
	sess := v.(*Session)
	if err := s.items.Replace(id, sess, cache.DefaultExpiration); err != nil {
		return nil, false
	}
	return sess, true
}

// Delete closes and forgets a session. It reports whether the session existed.
func (s *SessionStore) Delete(id string) bool {
	if _, ok := s.items.Get(id); !ok {
		return false
	}
	s.items.Delete(id)
	return true
}

func (s *SessionStore) Len() int {
	return s.items.ItemCount()
}

// Close closes every session.
func (s *SessionStore) Close() {
	for id := range s.items.Items() {
		s.items.Delete(id)
	}
}
