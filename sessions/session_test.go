package sessions_test

import (
	"testing"

	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/users"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	logins  []int64
	logouts int
}

func (r *recorder) OnLogin(u *users.Profile) { r.logins = append(r.logins, u.ID) }
func (r *recorder) OnLogout()                { r.logouts++ }

func TestState_Transitions(t *testing.T) {
	s := sessions.New()
	rec := &recorder{}
	s.Subscribe(rec)

	require.True(t, s.Loading())
	require.False(t, s.IsAuthenticated())
	require.Nil(t, s.User())

	t.Run("clear while anonymous is silent", func(t *testing.T) {
		s.Clear()
		require.False(t, s.Loading())
		require.Zero(t, rec.logouts)
	})

	t.Run("login fires once", func(t *testing.T) {
		s.Set(&users.Profile{ID: 7, Email: "a@example.com"})
		s.Set(&users.Profile{ID: 7, Email: "a@example.com", FirstName: "Ann"})
		require.Equal(t, []int64{7}, rec.logins)
		require.Equal(t, "Ann", s.User().FirstName)
	})

	t.Run("logout fires once", func(t *testing.T) {
		s.InvalidateSession()
		s.Clear()
		require.Equal(t, 1, rec.logouts)
		require.False(t, s.IsAuthenticated())
	})

	t.Run("set nil is a logout", func(t *testing.T) {
		s.Set(&users.Profile{ID: 8})
		s.Set(nil)
		require.Equal(t, []int64{7, 8}, rec.logins)
		require.Equal(t, 2, rec.logouts)
	})
}

func TestState_UserIsACopy(t *testing.T) {
	s := sessions.New()
	s.Set(&users.Profile{ID: 1, Email: "x@example.com"})

	u := s.User()
	u.Email = "changed@example.com"
	require.Equal(t, "x@example.com", s.User().Email)
}

func TestObserverFuncs(t *testing.T) {
	s := sessions.New()
	var logins, logouts int
	s.Subscribe(sessions.ObserverFuncs{
		Login:  func(*users.Profile) { logins++ },
		Logout: func() { logouts++ },
	})
	s.Subscribe(sessions.ObserverFuncs{})

	s.Set(&users.Profile{ID: 1})
	s.Clear()
	require.Equal(t, 1, logins)
	require.Equal(t, 1, logouts)
}
