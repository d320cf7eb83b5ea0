package tokenrepofake

import (
	"sync"

	"github.com/jrsteele09/go-storefront/token"
)

var _ token.Store = (*FakeTokenStore)(nil)

// FakeTokenStore keeps the pair in memory and counts writes, for tests.
type FakeTokenStore struct {
	pair   token.Pair
	saves  int
	clears int
	lock   sync.RWMutex
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{}
}

// NewFakeTokenStoreWith starts with access/refresh already saved.
func NewFakeTokenStoreWith(access, refresh string) *FakeTokenStore {
	return &FakeTokenStore{pair: token.NewPair(access, refresh)}
}

func (ts *FakeTokenStore) Load() (token.Pair, error) {
	ts.lock.RLock()
	defer ts.lock.RUnlock()

	if ts.pair.Empty() {
		return token.Pair{}, token.ErrNoTokens
	}
	return token.NewPair(ts.pair.AccessToken, ts.pair.RefreshToken), nil
}

func (ts *FakeTokenStore) Save(pair token.Pair) error {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	ts.saves++
	if pair.Empty() {
		ts.pair = token.Pair{}
		return nil
	}
	ts.pair = token.NewPair(pair.AccessToken, pair.RefreshToken)
	return nil
}

func (ts *FakeTokenStore) Clear() error {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	ts.clears++
	ts.pair = token.Pair{}
	return nil
}

func (ts *FakeTokenStore) Saves() int {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return ts.saves
}

func (ts *FakeTokenStore) Clears() int {
	ts.lock.RLock()
	defer ts.lock.RUnlock()
	return ts.clears
}
