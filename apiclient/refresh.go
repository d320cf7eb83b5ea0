package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	errs "github.com/jrsteele09/go-storefront/internal/errors"
)

// refresher serialises credential refreshes. While one refresh is in flight,
// every other request that fails with 401 parks a channel in queue; the queue
// is drained exactly once when the refresh settles.
//
// generation counts credential replacements. A request remembers the
// generation it was sent with, so a 401 that arrives after its episode was
// already resolved is replayed with the current credential instead of
// starting a second refresh.
type refresher struct {
	client     *Client
	lock       sync.Mutex
	generation uint64
	refreshing bool
	queue      []chan error
}

func (r *refresher) currentGeneration() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.generation
}

// replace runs fn as a credential change and bumps the generation.
func (r *refresher) replace(fn func() error) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	err := fn()
	r.generation++
	return err
}

func (r *refresher) execute(ctx context.Context, cl *call) ([]byte, error) {
	for {
		res := r.client.send(ctx, cl, true, nil)
		if res.err == nil {
			return res.body, nil
		}

		var he *HTTPError
		if !errs.As(res.err, &he) || he.Status != http.StatusUnauthorized {
			return nil, res.err
		}

		switch {
		case cl.retried && !res.attached:
			// The episode already ended in logout and the credential is gone.
			return nil, fmt.Errorf("%w: %w", errs.ErrSessionExpired, res.err)
		case cl.path == r.client.refreshPath || cl.retried:
			return nil, r.terminate(res.generation, res.err)
		case credentialsNotProvided(he):
			// Guest on an endpoint that rejects guests. Expected, not a
			// session expiry.
			return nil, res.err
		}

		cl.retried = true
		if err := r.recover(ctx, res.generation); err != nil {
			return nil, err
		}
	}
}

// recover makes sure the credential is fresher than generation, refreshing
// it if this caller is the first to notice the expiry.
func (r *refresher) recover(ctx context.Context, generation uint64) error {
	r.lock.Lock()
	if r.generation != generation {
		r.lock.Unlock()
		return nil
	}
	if r.refreshing {
		wait := make(chan error, 1)
		r.queue = append(r.queue, wait)
		r.lock.Unlock()

		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !r.client.creds.CanRefresh() {
		r.generation++
		r.lock.Unlock()
		return r.client.terminate(errs.ErrNoRefreshToken)
	}
	r.refreshing = true
	r.lock.Unlock()

	// The refresh outlives the caller that triggered it: other requests are
	// queued behind it.
	err := r.client.refresh(context.WithoutCancel(ctx))
	r.client.metrics.observeRefresh(err)

	r.lock.Lock()
	r.refreshing = false
	queue := r.queue
	r.queue = nil
	if err == nil {
		r.generation++
	}
	r.lock.Unlock()

	if err != nil {
		err = r.client.terminate(err)
	}
	for _, wait := range queue {
		wait <- err
	}
	return err
}

// terminate ends the episode that was current at generation. Requests from an
// episode that already ended only get the error.
func (r *refresher) terminate(generation uint64, cause error) error {
	r.lock.Lock()
	if r.generation != generation {
		r.lock.Unlock()
		return fmt.Errorf("%w: %w", errs.ErrSessionExpired, cause)
	}
	r.generation++
	r.lock.Unlock()
	return r.client.terminate(cause)
}

func (c *Client) refresh(ctx context.Context) error {
	body, err := c.creds.RefreshBody()
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRefreshFailed, err)
	}
	cl := &call{method: http.MethodPost, path: c.refreshPath}
	if body != nil {
		if cl.body, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal refresh body: %w", err)
		}
	}

	res := c.send(ctx, cl, false, c.creds.DecorateRefresh)
	if res.err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRefreshFailed, res.err)
	}
	if err := c.creds.Refreshed(res.body); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrRefreshFailed, err)
	}
	c.logger.Info().Msg("credentials refreshed")
	return nil
}

// terminate ends the session after an unrecoverable auth failure: local
// credentials are dropped and the invalidator runs. No retry follows.
func (c *Client) terminate(cause error) error {
	if err := c.ClearCredentials(); err != nil {
		c.logger.Err(err).Msg("failed to clear credentials")
	}
	c.logger.Warn().Err(cause).Msg("session ended by authentication failure")
	c.invalidator.InvalidateSession()
	return fmt.Errorf("%w: %w", errs.ErrSessionExpired, cause)
}
