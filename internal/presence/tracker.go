package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
)

// Store persists the durable presence flag.
type Store interface {
	SetOnline(ctx context.Context, userID int64) (models.Presence, error)
	SetOffline(ctx context.Context, userID int64, at time.Time) (models.Presence, error)
	GetPresence(ctx context.Context, userID int64) (models.Presence, error)
	ResetOnline(ctx context.Context, at time.Time) (int64, error)
}

// Occupancy reports whether a user currently has at least one live connection.
type Occupancy interface {
	IsOnline(userID int64) bool
}

const stripeCount = 64

// Tracker turns connection counts into online/offline transitions. Calls for
// the same user are serialized, and a transition is only written when it
// agrees with the registry at the time the stripe lock is held, so a connect
// racing a disconnect always settles on the registry's final answer.
type Tracker struct {
	store     Store
	occupancy Occupancy
	now       func() time.Time

	stripes [stripeCount]sync.Mutex

	mu     sync.RWMutex
	online map[int64]struct{}
}

func NewTracker(store Store, occupancy Occupancy) *Tracker {
	return &Tracker{
		store:     store,
		occupancy: occupancy,
		now:       time.Now,
		online:    map[int64]struct{}{},
	}
}

func (t *Tracker) stripe(userID int64) *sync.Mutex {
	return &t.stripes[uint64(userID)%stripeCount]
}

func (t *Tracker) recorded(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

func (t *Tracker) record(userID int64, online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
}

// Reset clears stale online flags left by a previous process.
func (t *Tracker) Reset(ctx context.Context) error {
	n, err := t.store.ResetOnline(ctx, t.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("presence reset", "users", n)
	}
	return nil
}

// MarkOnline records the user as online. changed is false when the user was
// already online or no longer has a connection.
func (t *Tracker) MarkOnline(ctx context.Context, userID int64) (models.Presence, bool, error) {
	lock := t.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	if t.recorded(userID) || !t.occupancy.IsOnline(userID) {
		return models.Presence{UserID: userID, IsOnline: t.recorded(userID)}, false, nil
	}

	p, err := t.store.SetOnline(ctx, userID)
	if err != nil {
		return models.Presence{}, false, err
	}
	t.record(userID, true)
	t.publish(ctx, "user_online", p)
	return p, true, nil
}

// MarkOffline records the user as offline with last_seen_at set to now.
// changed is false when the user was not online or reconnected meanwhile.
func (t *Tracker) MarkOffline(ctx context.Context, userID int64) (models.Presence, bool, error) {
	lock := t.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	if !t.recorded(userID) || t.occupancy.IsOnline(userID) {
		return models.Presence{UserID: userID, IsOnline: t.recorded(userID)}, false, nil
	}

	p, err := t.store.SetOffline(ctx, userID, t.now().UTC())
	if err != nil {
		return models.Presence{}, false, err
	}
	t.record(userID, false)
	t.publish(ctx, "user_offline", p)
	return p, true, nil
}

// Get returns the durable presence for a user.
func (t *Tracker) Get(ctx context.Context, userID int64) (models.Presence, error) {
	return t.store.GetPresence(ctx, userID)
}

func (t *Tracker) publish(ctx context.Context, name string, p models.Presence) {
	observability.IncPresenceTransition(p.IsOnline)
	if err := observability.PublishEvent(ctx, observability.RoutingKeyPresenceEvents,
		observability.NewEnvelope("presence_events", name, p), nil); err != nil {
		slog.Warn("presence event publish failed", "user_id", p.UserID, "error", err)
	}
}
