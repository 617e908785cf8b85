package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlist/pkg/platform/sentinel"
)

type fakeDiscord struct {
	*httptest.Server
	profileStatus int
	profile       map[string]any
	gotCode       string
}

func newFakeDiscord(t *testing.T) *fakeDiscord {
	f := &fakeDiscord{
		profileStatus: http.StatusOK,
		profile: map[string]any{
			"id":            "80351110224678912",
			"username":      "nelly",
			"discriminator": "1337",
			"avatar":        "8342729096ea3675442027381ff50dfe",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.gotCode = r.PostForm.Get("code")
		if f.gotCode != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":604800,"scope":"identify"}`))
	})
	mux.HandleFunc("GET /api/users/@me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(f.profileStatus)
		_ = json.NewEncoder(w).Encode(f.profile)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeDiscord) provider() *Discord {
	return NewDiscord(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:3000/callback",
		AuthURL:      f.URL + "/oauth2/authorize",
		TokenURL:     f.URL + "/api/oauth2/token",
		APIBaseURL:   f.URL + "/api",
	}, WithHTTPClient(f.Client()))
}

func TestAuthCodeURL(t *testing.T) {
	d := NewDiscord(Config{
		ClientID:    "client",
		RedirectURL: "http://localhost:3000/callback",
		AuthURL:     "https://discord.com/oauth2/authorize",
	})

	u, err := url.Parse(d.AuthCodeURL("nonce-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "discord.com", u.Host)
	assert.Equal(t, "nonce-123", q.Get("state"))
	assert.Equal(t, "identify", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/callback", q.Get("redirect_uri"))
	assert.False(t, q.Has("prompt"), "the provider decides whether to show its consent screen")
}

func TestExchange(t *testing.T) {
	t.Run("returns the profile as an identity", func(t *testing.T) {
		f := newFakeDiscord(t)
		ident, err := f.provider().Exchange(context.Background(), "good-code")
		require.NoError(t, err)
		assert.Equal(t, "good-code", f.gotCode)
		assert.Equal(t, "80351110224678912", ident.ID.String())
		assert.Equal(t, "nelly", ident.Username)
		assert.Equal(t, "1337", ident.Discriminator)
		assert.Equal(t, "8342729096ea3675442027381ff50dfe", ident.Avatar)
	})

	t.Run("null avatar is empty", func(t *testing.T) {
		f := newFakeDiscord(t)
		f.profile["avatar"] = nil
		ident, err := f.provider().Exchange(context.Background(), "good-code")
		require.NoError(t, err)
		assert.Empty(t, ident.Avatar)
	})

	t.Run("rejected code fails", func(t *testing.T) {
		f := newFakeDiscord(t)
		_, err := f.provider().Exchange(context.Background(), "bad-code")
		assert.ErrorContains(t, err, "exchange code")
	})

	t.Run("profile endpoint failure is unavailable", func(t *testing.T) {
		f := newFakeDiscord(t)
		f.profileStatus = http.StatusBadGateway
		_, err := f.provider().Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("profile without username is incomplete", func(t *testing.T) {
		f := newFakeDiscord(t)
		f.profile["username"] = ""
		_, err := f.provider().Exchange(context.Background(), "good-code")
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("cancelled context aborts the handshake", func(t *testing.T) {
		f := newFakeDiscord(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.provider().Exchange(ctx, "good-code")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
