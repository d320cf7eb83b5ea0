package token_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-storefront/token"
	"github.com/stretchr/testify/require"
)

func signedAccess(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwtlib.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestPair_AccessExpiryAndSubject(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	p := token.NewPair(signedAccess(t, "42", exp), "refresh-1")

	got, err := p.AccessExpiry()
	require.NoError(t, err)
	require.True(t, exp.Equal(got))
	require.True(t, exp.Equal(p.Expiry))
	require.Equal(t, "42", p.Subject())
	require.True(t, p.HasRefresh())

	t.Run("opaque token", func(t *testing.T) {
		p := token.NewPair("not-a-jwt", "")
		_, err := p.AccessExpiry()
		require.Error(t, err)
		require.False(t, p.HasRefresh())
		require.Empty(t, p.Subject())
	})

	t.Run("empty", func(t *testing.T) {
		require.True(t, token.Pair{}.Empty())
		_, err := token.Pair{}.AccessExpiry()
		require.Error(t, err)
	})
}

func TestPair_WithAccessKeepsRefresh(t *testing.T) {
	p := token.NewPair("old", "refresh-1").WithAccess("new")
	require.Equal(t, "new", p.AccessToken)
	require.Equal(t, "refresh-1", p.RefreshToken)
}

func TestPair_Apply(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	token.Pair{}.Apply(req)
	require.Empty(t, req.Header.Get("Authorization"))

	token.NewPair("abc", "").Apply(req)
	require.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

func TestFileStore(t *testing.T) {
	t.Run("clear text round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "tokens.json")
		fs := token.NewFileStore(path, "")

		_, err := fs.Load()
		require.ErrorIs(t, err, token.ErrNoTokens)

		require.NoError(t, fs.Save(token.NewPair("access-1", "refresh-1")))
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		got, err := fs.Load()
		require.NoError(t, err)
		require.Equal(t, "access-1", got.AccessToken)
		require.Equal(t, "refresh-1", got.RefreshToken)
	})

	t.Run("sealed round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.json")
		fs := token.NewFileStore(path, "correct horse")
		require.NoError(t, fs.Save(token.NewPair("access-2", "refresh-2")))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(raw), "access-2")

		got, err := fs.Load()
		require.NoError(t, err)
		require.Equal(t, "access-2", got.AccessToken)

		_, err = token.NewFileStore(path, "wrong").Load()
		require.ErrorIs(t, err, token.ErrWrongPassphrase)

		_, err = token.NewFileStore(path, "").Load()
		require.ErrorIs(t, err, token.ErrWrongPassphrase)
	})

	t.Run("clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.json")
		fs := token.NewFileStore(path, "")
		require.NoError(t, fs.Clear())
		require.NoError(t, fs.Save(token.NewPair("a", "r")))
		require.NoError(t, fs.Clear())
		_, err := fs.Load()
		require.ErrorIs(t, err, token.ErrNoTokens)
	})

	t.Run("saving an empty pair clears", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.json")
		fs := token.NewFileStore(path, "")
		require.NoError(t, fs.Save(token.NewPair("a", "r")))
		require.NoError(t, fs.Save(token.Pair{}))
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})
}
