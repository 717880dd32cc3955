package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

// Identity is the authenticated caller as carried by the session token.
type Identity struct {
	UserID    string `json:"userId"`
	Phone     string `json:"phone"`
	SessionID string `json:"-"`
}

// Session is the resolved view of an identity and its status record.
type Session struct {
	Identity      *Identity    `json:"identity"`
	Status        *domain.User `json:"status"`
	Loading       bool         `json:"loading"`
	Authenticated bool         `json:"authenticated"`
	IsNewUser     bool         `json:"isNewUser"`
}

// StatusLoader loads status records.
type StatusLoader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// TokenRevoker invalidates session ids.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// SessionNotifier is told when an identity's status record changed.
type SessionNotifier interface {
	Notify(ctx context.Context, userID string)
}

type subscriber struct {
	identity Identity
	ch       chan Session
}

// SessionProvider resolves sessions and pushes fresh snapshots to
// subscribers whenever the underlying record changes.
type SessionProvider struct {
	users       StatusLoader
	revoker     TokenRevoker
	loadTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*subscriber
}

func NewSessionProvider(users StatusLoader, revoker TokenRevoker, loadTimeout time.Duration, logger *slog.Logger) *SessionProvider {
	if loadTimeout <= 0 {
		loadTimeout = 5 * time.Second
	}
	return &SessionProvider{
		users:       users,
		revoker:     revoker,
		loadTimeout: loadTimeout,
		logger:      logger,
		subs:        map[string]map[uint64]*subscriber{},
	}
}

// Resolve loads the status record for identity. A load failure or timeout
// yields an unauthenticated session rather than an indefinite wait.
func (p *SessionProvider) Resolve(ctx context.Context, identity *Identity) Session {
	if identity == nil || identity.UserID == "" {
		return Session{}
	}

	loadCtx, cancel := context.WithTimeout(ctx, p.loadTimeout)
	defer cancel()

	user, err := p.users.GetUser(loadCtx, identity.UserID)
	switch {
	case err == nil:
		return Session{
			Identity:      identity,
			Status:        user,
			Authenticated: true,
			IsNewUser:     user.Status == domain.StatusUnregistered,
		}
	case errors.Is(err, store.ErrUserNotFound):
		return Session{Identity: identity, Authenticated: true, IsNewUser: true}
	default:
		p.logger.Warn("session status load failed; treating as signed out", "user_id", identity.UserID, "error", err)
		return Session{}
	}
}

// Subscribe registers for session snapshots of identity. The first value is
// a loading snapshot, followed by the resolved session. The returned func
// unsubscribes and closes the channel; calling it more than once is safe.
func (p *SessionProvider) Subscribe(ctx context.Context, identity Identity) (<-chan Session, func()) {
	sub := &subscriber{identity: identity, ch: make(chan Session, 2)}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	if p.subs[identity.UserID] == nil {
		p.subs[identity.UserID] = map[uint64]*subscriber{}
	}
	p.subs[identity.UserID][id] = sub
	sub.ch <- Session{Identity: &sub.identity, Loading: true}
	p.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.remove(identity.UserID, id)
		})
	}

	resolved := p.Resolve(ctx, &sub.identity)
	p.mu.Lock()
	if _, ok := p.subs[identity.UserID][id]; ok {
		deliver(sub, resolved)
	}
	p.mu.Unlock()

	return sub.ch, unsubscribe
}

// remove must be called with p.mu held.
func (p *SessionProvider) remove(userID string, id uint64) {
	group := p.subs[userID]
	sub, ok := group[id]
	if !ok {
		return
	}
	delete(group, id)
	if len(group) == 0 {
		delete(p.subs, userID)
	}
	close(sub.ch)
}

// deliver keeps only the newest snapshot when the subscriber falls behind.
func deliver(sub *subscriber, s Session) {
	select {
	case sub.ch <- s:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- s:
	default:
	}
}

// Subscribers reports how many subscriptions are open for userID.
func (p *SessionProvider) Subscribers(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[userID])
}

// Notify re-resolves userID's session and pushes it to every subscriber.
func (p *SessionProvider) Notify(ctx context.Context, userID string) {
	p.mu.Lock()
	group := p.subs[userID]
	targets := make(map[uint64]*subscriber, len(group))
	for id, sub := range group {
		targets[id] = sub
	}
	p.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	var identity Identity
	for _, sub := range targets {
		identity = sub.identity
		break
	}
	resolved := p.Resolve(ctx, &identity)

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range targets {
		if _, ok := p.subs[userID][id]; !ok {
			continue
		}
		s := resolved
		if s.Identity != nil {
			own := sub.identity
			s.Identity = &own
		}
		deliver(sub, s)
	}
}

// SignOut revokes the caller's token and ends subscriptions opened with it.
func (p *SessionProvider) SignOut(ctx context.Context, claims *SessionClaims) error {
	if claims == nil {
		return nil
	}
	if err := p.revoker.RevokeToken(ctx, claims.ID, claims.Remaining(time.Now())); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subs[claims.Subject] {
		if sub.identity.SessionID != claims.ID {
			continue
		}
		deliver(sub, Session{})
		p.remove(claims.Subject, id)
	}
	return nil
}
