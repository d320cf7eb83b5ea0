package notifications_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jrsteele09/go-storefront/apiclient"
	"github.com/jrsteele09/go-storefront/notifications"
	tokenrepofake "github.com/jrsteele09/go-storefront/token/repofake"
	"github.com/stretchr/testify/require"
)

type feed struct {
	failID string
	marked []string
	lock   sync.Mutex
}

func (f *feed) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts/notifications/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"message":"Order 3 shipped","is_read":false},
			{"id":2,"message":"Welcome","is_read":true},
			{"id":3,"message":"Order 4 delivered","is_read":false}
		]`))
	})
	mux.HandleFunc("POST /accounts/notifications/{id}/read/", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == f.failID {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.lock.Lock()
		f.marked = append(f.marked, id)
		f.lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newStore(t *testing.T, f *feed) *notifications.Store {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := apiclient.New(apiclient.Config{BaseURL: srv.URL},
		apiclient.NewBearerCredentials(tokenrepofake.NewFakeTokenStoreWith("access", "refresh")))
	require.NoError(t, err)
	return notifications.NewStore(c)
}

func TestStore_MarkAsRead(t *testing.T) {
	ctx := context.Background()
	f := &feed{}
	s := newStore(t, f)

	require.NoError(t, s.Fetch(ctx))
	require.Len(t, s.All(), 3)
	require.Equal(t, 2, s.UnreadCount())

	require.NoError(t, s.MarkAsRead(ctx, 1))
	require.Equal(t, 1, s.UnreadCount())
	require.Equal(t, []string{"1"}, f.marked)

	require.NoError(t, s.MarkAllAsRead(ctx))
	require.Zero(t, s.UnreadCount())
	require.Equal(t, []string{"1", "3"}, f.marked)

	s.Reset()
	require.Empty(t, s.All())
}

func TestStore_MarkAllAsReadIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, &feed{failID: "3"})

	require.NoError(t, s.Fetch(ctx))
	require.Error(t, s.MarkAllAsRead(ctx))
	require.Equal(t, 2, s.UnreadCount())

	require.Error(t, s.MarkAsRead(ctx, 3))
	require.Equal(t, 2, s.UnreadCount())
}
