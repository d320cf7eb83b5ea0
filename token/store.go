package token

import "errors"

// ErrNoTokens is returned by Load when nothing has been saved.
var ErrNoTokens = errors.New("no tokens stored")

// Store persists the bearer pair between runs, the way a browser keeps it in
// localStorage. Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the saved pair or ErrNoTokens
	Load() (Pair, error)

	// Save replaces the saved pair
	Save(pair Pair) error

	// Clear removes any saved pair. Clearing an empty store is not an error.
	Clear() error
}
