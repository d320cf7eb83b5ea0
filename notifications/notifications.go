// Package notifications mirrors the account's notification feed and its
// read flags.
package notifications

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/jrsteele09/go-storefront/apiclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Notification struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at,omitempty"`
}

type Store struct {
	api    apiclient.API
	logger zerolog.Logger

	items   []Notification
	loading bool
	lock    sync.RWMutex
}

func NewStore(api apiclient.API) *Store {
	return &Store{api: api, logger: log.Logger}
}

// Fetch replaces the local feed with the server's.
func (s *Store) Fetch(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	var items []Notification
	if err := s.api.Get(ctx, "/accounts/notifications/", nil, &items); err != nil {
		s.logger.Err(err).Msg("Failed to fetch notifications")
		return fmt.Errorf("[Notifications Fetch] %w", err)
	}
	s.lock.Lock()
	s.items = items
	s.lock.Unlock()
	return nil
}

// MarkAsRead flags one notification on the server, then locally.
func (s *Store) MarkAsRead(ctx context.Context, id int64) error {
	if err := s.api.Post(ctx, readPath(id), nil, nil); err != nil {
		s.logger.Err(err).Int64("notification_id", id).Msg("Failed to mark notification as read")
		return fmt.Errorf("[Notifications MarkAsRead] %w", err)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
		}
	}
	return nil
}

// MarkAllAsRead flags every unread notification concurrently. The local feed
// only changes if all of them succeed.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range s.Unread() {
		id := n.ID
		g.Go(func() error {
			return s.api.Post(gctx, readPath(id), nil, nil)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Err(err).Msg("Failed to mark all notifications as read")
		return fmt.Errorf("[Notifications MarkAllAsRead] %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	return nil
}

func (s *Store) All() []Notification {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store) Unread() []Notification {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var out []Notification
	for _, n := range s.items {
		if !n.IsRead {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount is derived from the feed on every call.
func (s *Store) UnreadCount() int {
	return len(s.Unread())
}

func (s *Store) Loading() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.loading
}

func (s *Store) setLoading(v bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.loading = v
}

// Reset drops the feed, used on logout.
func (s *Store) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items = nil
}

func readPath(id int64) string {
	return "/accounts/notifications/" + strconv.FormatInt(id, 10) + "/read/"
}
