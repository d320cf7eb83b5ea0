package sessions

import (
	"sync"

	"github.com/jrsteele09/go-storefront/users"
	"github.com/rs/zerolog/log"
)

// Observer is notified when the session changes between absent and present.
// Callbacks run synchronously on the goroutine that changed the session, after
// the state lock is released.
type Observer interface {
	// OnLogin runs once per null -> non-null transition
	OnLogin(user *users.Profile)
	// OnLogout runs once per non-null -> null transition
	OnLogout()
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Login  func(user *users.Profile)
	Logout func()
}

func (o ObserverFuncs) OnLogin(user *users.Profile) {
	if o.Login != nil {
		o.Login(user)
	}
}

func (o ObserverFuncs) OnLogout() {
	if o.Logout != nil {
		o.Logout()
	}
}

// State is the client's record of the currently authenticated identity.
// One State exists per application; it is created by storefront.New and
// handed to every component that needs it.
type State struct {
	user      *users.Profile
	loading   bool
	observers []Observer
	lock      sync.RWMutex
}

// New returns an empty State in the loading phase (no identity probe yet).
func New() *State {
	return &State{loading: true}
}

// Subscribe registers an observer. If a session already exists the observer
// is not called retroactively.
func (s *State) Subscribe(o Observer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.observers = append(s.observers, o)
}

// User returns a copy of the current profile, or nil.
func (s *State) User() *users.Profile {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.user.Clone()
}

func (s *State) IsAuthenticated() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.user != nil
}

// Loading is true until the first Set or Clear.
func (s *State) Loading() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.loading
}

// Set stores user as the current identity. Replacing one profile with another
// (for example a /me/ refresh) does not count as a login transition.
func (s *State) Set(user *users.Profile) {
	if user == nil {
		s.Clear()
		return
	}

	s.lock.Lock()
	wasAnonymous := s.user == nil
	s.user = user.Clone()
	s.loading = false
	observers := s.snapshotObservers()
	s.lock.Unlock()

	if !wasAnonymous {
		return
	}
	log.Debug().Int64("user_id", user.ID).Msg("session started")
	for _, o := range observers {
		o.OnLogin(user.Clone())
	}
}

// Clear drops the current identity. Observers are told synchronously so no
// stale cart or wishlist survives the transition.
func (s *State) Clear() {
	s.lock.Lock()
	hadUser := s.user != nil
	s.user = nil
	s.loading = false
	observers := s.snapshotObservers()
	s.lock.Unlock()

	if !hadUser {
		return
	}
	log.Debug().Msg("session cleared")
	for _, o := range observers {
		o.OnLogout()
	}
}

// InvalidateSession implements the API client's session invalidation hook.
func (s *State) InvalidateSession() {
	s.Clear()
}

func (s *State) snapshotObservers() []Observer {
	dup := make([]Observer, len(s.observers))
	copy(dup, s.observers)
	return dup
}
