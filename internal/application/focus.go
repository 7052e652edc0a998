package application

import (
	"context"
	"sync"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
)

// FocusToken identifies one client's editing context for a schedule instance.
type FocusToken struct {
	ID       string
	ClientID string
	TeamID   string
	Key      instance.Key
	ctx      context.Context
}

// Done is closed once the client has focused a different instance.
func (t FocusToken) Done() <-chan struct{} {
	if t.ctx == nil {
		return nil
	}
	return t.ctx.Done()
}

// bind derives a context from parent that is cancelled when the token goes stale.
func (t FocusToken) bind(parent context.Context) (context.Context, func()) {
	if t.ctx == nil {
		return parent, func() {}
	}
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(t.ctx, func() { cancel(ErrStaleContext) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// DefaultFocusIdle is how long a focus survives without being used.
const DefaultFocusIdle = 12 * time.Hour

type focusEntry struct {
	token    FocusToken
	cancel   context.CancelFunc
	lastSeen time.Time
}

// FocusTracker remembers which instance each client is editing. Entries idle
// for longer than the configured duration are dropped as if released.
type FocusTracker struct {
	mu          sync.Mutex
	byClient    map[string]*focusEntry
	byToken     map[string]*focusEntry
	idGenerator func() string
	now         func() time.Time
	idle        time.Duration
}

// NewFocusTracker constructs a tracker issuing token ids from idGenerator.
func NewFocusTracker(idGenerator func() string) *FocusTracker {
	return NewFocusTrackerWithClock(idGenerator, time.Now, DefaultFocusIdle)
}

// NewFocusTrackerWithClock constructs a tracker that evicts entries unused for idle.
func NewFocusTrackerWithClock(idGenerator func() string, now func() time.Time, idle time.Duration) *FocusTracker {
	if now == nil {
		now = time.Now
	}
	if idle <= 0 {
		idle = DefaultFocusIdle
	}
	return &FocusTracker{
		byClient:    make(map[string]*focusEntry),
		byToken:     make(map[string]*focusEntry),
		idGenerator: idGenerator,
		now:         now,
		idle:        idle,
	}
}

// Focus moves clientID onto key, cancelling the client's previous token.
func (f *FocusTracker) Focus(clientID, teamID string, key instance.Key) FocusToken {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.evictIdleLocked(now)
	if previous, ok := f.byClient[clientID]; ok {
		f.dropLocked(previous)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &focusEntry{
		token: FocusToken{
			ID:       f.idGenerator(),
			ClientID: clientID,
			TeamID:   teamID,
			Key:      key,
			ctx:      ctx,
		},
		cancel:   cancel,
		lastSeen: now,
	}
	f.byClient[clientID] = entry
	f.byToken[entry.token.ID] = entry
	return entry.token
}

// Lookup returns the current token with id.
func (f *FocusTracker) Lookup(id string) (FocusToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	f.evictIdleLocked(now)
	entry, ok := f.byToken[id]
	if !ok {
		return FocusToken{}, false
	}
	entry.lastSeen = now
	return entry.token, true
}

// Current reports whether token is still its client's focus.
func (f *FocusTracker) Current(token FocusToken) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.byClient[token.ClientID]
	return ok && entry.token.ID == token.ID
}

// Release drops the client's focus and cancels its token.
func (f *FocusTracker) Release(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.byClient[clientID]; ok {
		f.dropLocked(entry)
	}
}

// Len returns the number of clients holding a focus.
func (f *FocusTracker) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byClient)
}

func (f *FocusTracker) evictIdleLocked(now time.Time) {
	for _, entry := range f.byClient {
		if now.Sub(entry.lastSeen) > f.idle {
			f.dropLocked(entry)
		}
	}
}

func (f *FocusTracker) dropLocked(entry *focusEntry) {
	entry.cancel()
	delete(f.byToken, entry.token.ID)
	delete(f.byClient, entry.token.ClientID)
}
