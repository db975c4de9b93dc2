package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "1h")
	require.NoError(t, Init())

	player := uuid.New()
	tok, err := CreateJWT(player)
	require.NoError(t, err)

	got, err := AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, player, got)

	_, err = AuthenticateJWT(tok + "x")
	assert.Error(t, err)
}

func TestInitRejectsBadDuration(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "soon")
	assert.Error(t, Init())
}

func TestTokenFromRequest(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "never")
	require.NoError(t, Init())
	player := uuid.New()
	tok, err := CreateJWT(player)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/room/ws/x", nil)
	_, err = PlayerFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	got, err := PlayerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, player, got)

	r = httptest.NewRequest(http.MethodGet, "/room/ws/x?token="+tok, nil)
	got, err = PlayerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, player, got)
}
