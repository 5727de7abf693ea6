package gateway

import (
	"context"
	"time"

	"CityOps/logger"
	"CityOps/model"
	"CityOps/wire"
)

// StatusStore persists the activity status flip. Writes are best-effort: a
// failure is logged and the broadcast still goes out, so the UI may briefly
// show a status the database does not reflect.
type StatusStore interface {
	SetActivityStatus(ctx context.Context, userID int64, status model.ActivityStatus, lastSeen time.Time) error
}

// PresenceCache mirrors online state into redis; optional.
type PresenceCache interface {
	Online(ctx context.Context, userID int64) error
	Offline(ctx context.Context, userID int64) error
}

// Tracker owns the connect/disconnect side effects: registry binding,
// persisted status, cache and the global presence broadcast. Presence is
// global information, so the broadcast goes to every bound connection.
type Tracker struct {
	reg     *Registry
	store   StatusStore
	cache   PresenceCache
	fan     *Fanout
	authTTL time.Duration
}

func NewTracker(reg *Registry, store StatusStore, cache PresenceCache, fan *Fanout, authTTL time.Duration) *Tracker {
	return &Tracker{reg: reg, store: store, cache: cache, fan: fan, authTTL: authTTL}
}

// HandleJoin binds the connection and announces the user online. A prior
// binding for the same user is evicted and closed.
func (t *Tracker) HandleJoin(ctx context.Context, c *Conn, userID int64) {
	evicted := t.reg.Bind(c, userID, t.authTTL)
	if evicted != nil {
		logger.Infof("[presence] user %d rebound, evicting conn %s", userID, evicted.ID)
		evicted.Close()
	}

	now := time.Now()
	if err := t.store.SetActivityStatus(ctx, userID, model.StatusOnline, now); err != nil {
		logger.Warnf("[presence] status write failed for user %d (broadcast proceeds): %v", userID, err)
	}
	if t.cache != nil {
		if err := t.cache.Online(ctx, userID); err != nil {
			logger.Debugf("[presence] cache online failed for user %d: %v", userID, err)
		}
	}
	t.broadcast(wire.PresencePayload{UserID: userID, Status: model.StatusOnline})
}

// HandleDisconnect runs when a socket closes for any reason. Only the current
// owner of a binding flips the user offline; a stale evicted socket is a
// no-op.
func (t *Tracker) HandleDisconnect(ctx context.Context, c *Conn) {
	userID, owned := t.reg.Unbind(c)
	if !owned {
		return
	}

	now := time.Now()
	if err := t.store.SetActivityStatus(ctx, userID, model.StatusOffline, now); err != nil {
		logger.Warnf("[presence] status write failed for user %d (broadcast proceeds): %v", userID, err)
	}
	if t.cache != nil {
		if err := t.cache.Offline(ctx, userID); err != nil {
			logger.Debugf("[presence] cache offline failed for user %d: %v", userID, err)
		}
	}
	t.broadcast(wire.PresencePayload{UserID: userID, Status: model.StatusOffline})
}

// Who lists the user ids currently online. The registry is the in-process
// truth; the persisted status column may lag it by one failed write.
func (t *Tracker) Who() []int64 {
	return t.reg.Online()
}

func (t *Tracker) broadcast(p wire.PresencePayload) {
	t.fan.Broadcast(t.reg.Snapshot(), wire.Marshal(wire.FramePresence, p))
}
